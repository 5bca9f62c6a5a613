package pcm179x

// Op is one masked register update.
type Op struct {
	Reg  byte
	Mask byte
	Val  byte
}

// Program is an ordered list of register updates produced by one transition.
type Program []Op

// Params are the stream parameters negotiated for one hw_params call.
type Params struct {
	Rate     uint32
	Format   Format
	Protocol Protocol
	Width    uint8 // 0 means Format.Width()
}

// Switch names one of the soft routing flags kept in the clock register.
type Switch uint8

const (
	SwitchSPDIFInput Switch = iota + 1
	SwitchSPDIFSelect
)

func (s Switch) bit() ClockBits {
	if s == SwitchSPDIFInput {
		return SPDIFIn
	}
	return SPDIFSel
}

// State is the session state of one codec. Transitions never modify the
// receiver; they return the program to write and the state to commit once
// every write has succeeded.
type State struct {
	Rate     uint32
	Format   Format
	Protocol Protocol
	Width    uint8
	Muted    bool
	DSD      bool

	// Clock is the last committed value of the clock register. The SPDIF
	// bits are soft state and cannot be read back from the chip.
	Clock ClockBits
}

// InitialState is the state at bind time: muted, nothing configured.
func InitialState() State { return State{Muted: true} }

func (s State) SPDIFInput() bool  { return s.Clock.Has(SPDIFIn) }
func (s State) SPDIFSelect() bool { return s.Clock.Has(SPDIFSel) }

// HWParams resolves p and builds the clock, format and DSD-enable writes in
// that order. Routing bits already in the clock register are carried over.
func (s State) HWParams(p Params) (Program, State, error) {
	width := p.Width
	if width == 0 {
		width = p.Format.Width()
	}
	res, err := Resolve(p.Rate, p.Format, p.Protocol, width)
	if err != nil {
		return nil, s, err
	}

	next := s
	next.Clock = (s.Clock & spdifMask) | res.Clock
	next.Rate = p.Rate
	next.Format = p.Format
	next.Protocol = p.Protocol
	next.Width = width
	next.DSD = p.Format == FormatDSDU16LE

	fmtVal := res.FormatSelect<<fmtShift | atldBit
	var dsd byte
	if next.DSD {
		// DSD bypasses the PCM interface: FMT and ATLD are cleared.
		fmtVal = dsdFilterSel(2)
		dsd = confDSDEnable
	}

	prog := Program{
		{Reg: regClock, Mask: 0xff, Val: byte(next.Clock)},
		{Reg: regFmtControl, Mask: fmtMask | atldBit | dsdFilter, Val: fmtVal},
		{Reg: regConfCtrl, Mask: confDSDEnable, Val: dsd},
	}
	return prog, next, nil
}

// Mute builds the soft-mute program. Muting is a no-op while the SPDIF input
// is routed through. With DSD active the DSD path is disabled before the mute
// bit is set; unmuting leaves it disabled until the next HWParams.
func (s State) Mute(muted bool) (Program, State) {
	next := s
	next.Muted = muted

	if s.SPDIFInput() && muted {
		return nil, next
	}

	var prog Program
	if s.DSD && muted {
		prog = append(prog, Op{Reg: regConfCtrl, Mask: confDSDEnable, Val: 0})
	}
	prog = append(prog, Op{Reg: regFmtControl, Mask: muteMask, Val: b2u(muted)})
	return prog, next
}

// Route flips one routing flag. changed is false, and the program empty,
// when the flag already holds the requested value.
func (s State) Route(sw Switch, on bool) (prog Program, next State, changed bool) {
	bit := sw.bit()
	saved := s.Clock.Has(bit)
	if saved == on {
		return nil, s, false
	}

	next = s
	if on {
		next.Clock |= bit
	} else {
		next.Clock &^= bit
	}

	if sw == SwitchSPDIFInput {
		// SPDIF pass-through and DSD rendering are exclusive paths.
		if s.DSD {
			var dsd byte
			if !on {
				dsd = confDSDEnable
			}
			prog = append(prog, Op{Reg: regConfCtrl, Mask: confDSDEnable, Val: dsd})
		}
		prog = append(prog, Op{Reg: regClock, Mask: 0xff, Val: byte(next.Clock)})
		// Kept as shipped: mute is re-asserted from the previous input flag.
		prog = append(prog, Op{Reg: regFmtControl, Mask: muteMask, Val: b2u(s.Muted && !saved)})
		return prog, next, true
	}

	prog = append(prog, Op{Reg: regClock, Mask: 0xff, Val: byte(next.Clock)})
	return prog, next, true
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}
