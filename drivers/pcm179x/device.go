// Package pcm179x provides a control-plane driver for the TI PCM1792A,
// PCM1795 and PCM1796 stereo DACs together with the board clock register
// that selects rate, word width, DSD and SPDIF routing.
//
// The driver does not stream audio. It turns stream parameters, mute
// requests and control switches into ordered register writes:
//
//	d := pcm179x.New(pcm179x.NewSPI(spi), pcm179x.Config{Variant: pcm179x.PCM1795})
//	d.SetDAIFormat(pcm179x.ProtocolI2S)
//	err := d.HWParams(pcm179x.Params{Rate: 44100, Format: pcm179x.FormatS16LE})
//
// Calls on one Device must be serialised by the caller.
package pcm179x

import (
	"io"
	"log/slog"
	"math"
	"time"

	"codecctl-go/errcode"
	"codecctl-go/x/conv"
	"codecctl-go/x/mathx"
)

// ControlID names a boolean control exposed to the audio pipeline.
type ControlID uint8

const (
	ControlSPDIFInput ControlID = iota + 1
	ControlSPDIFSelect
	ControlInvertOutput
	ControlRolloffFilter
)

// Volume control range: 0.5 dB steps from -120 dB, 0 is mute.
const (
	VolumeMax     = 0xff - volRegMin
	volRegMin     = 0x0f
	volMinCentiDB = -12000
	volStepCentiB = 50
)

// VolumeCentiDB converts a volume control value to hundredths of a dB.
func VolumeCentiDB(v uint8) int32 {
	return volMinCentiDB + int32(mathx.Clamp(v, 0, VolumeMax))*volStepCentiB
}

type Config struct {
	Variant Variant
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// StartupDelay is slept by Startup before a stream opens. Zero skips it.
	StartupDelay time.Duration
}

// DefaultStartupDelay is the settle time the codec needs on stream open.
const DefaultStartupDelay = 50 * time.Millisecond

// Device is one codec session. It owns the register mirror and the session
// state; both change only through its methods.
type Device struct {
	t       Transport
	variant Variant
	log     *slog.Logger
	delay   time.Duration

	regs  *regFile
	state State
	dai   Protocol

	// stale is set when a program touching session registers failed after
	// at least one write landed; the chip no longer matches state until
	// HWParams succeeds again.
	stale bool
}

func New(t Transport, cfg Config) *Device {
	v := cfg.Variant
	if v == VariantUnknown {
		v = PCM1795
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Device{
		t:       t,
		variant: v,
		log:     lg.With("codec", v.String()),
		delay:   cfg.StartupDelay,
		regs:    newRegFile(),
		state:   InitialState(),
		dai:     ProtocolI2S,
	}
}

func (d *Device) Variant() Variant       { return d.variant }
func (d *Device) State() State           { return d.state }
func (d *Device) NeedsReconfigure() bool { return d.stale }

// Startup waits for the codec to settle and returns the formats the
// variant accepts, for the pipeline to constrain the stream.
func (d *Device) Startup() FormatMask {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.variant.Formats()
}

// SetDAIFormat records the DAI protocol used by subsequent HWParams calls
// that leave Params.Protocol unset.
func (d *Device) SetDAIFormat(p Protocol) { d.dai = p }

// Configure is HWParams with positional arguments.
func (d *Device) Configure(rate uint32, f Format, p Protocol, width uint8) error {
	return d.HWParams(Params{Rate: rate, Format: f, Protocol: p, Width: width})
}

// HWParams programs clock, format and DSD enable for a new stream. Nothing
// is written if the parameters are rejected, and the session state is only
// advanced after every write succeeded.
func (d *Device) HWParams(p Params) error {
	if p.Protocol == ProtocolUnknown {
		p.Protocol = d.dai
	}
	if !d.variant.Formats().Has(p.Format) {
		return errcode.New(errcode.RejectedConfig, "hw_params", p.Format.String()+" not supported by "+d.variant.String())
	}
	if p.Rate > d.variant.MaxRate() {
		return errcode.New(errcode.RejectedConfig, "hw_params", "rate "+conv.Utoa(uint64(p.Rate))+" above "+d.variant.String()+" ceiling")
	}

	prog, next, err := d.state.HWParams(p)
	if err != nil {
		return err
	}
	if err := d.run("hw_params", prog); err != nil {
		return err
	}
	d.state = next
	d.stale = false
	d.log.Info("hw params",
		"rate", next.Rate,
		"format", next.Format.String(),
		"protocol", next.Protocol.String(),
		"dsd", next.DSD,
		"clock", conv.Hex8(byte(next.Clock)))
	return nil
}

// SetMute applies soft mute. It fails with errcode.InvalidTransition while
// the device needs reconfiguring.
func (d *Device) SetMute(muted bool) error {
	if d.stale {
		return errcode.New(errcode.InvalidTransition, "mute", "device needs reconfigure")
	}
	d.log.Info("mute", "mute", muted, "dsd", d.state.DSD)

	prog, next := d.state.Mute(muted)
	if err := d.run("mute", prog); err != nil {
		return err
	}
	d.state = next
	return nil
}

// SetControlSwitch writes a boolean control and reports whether its value
// changed. Setting a control to its current value writes nothing.
func (d *Device) SetControlSwitch(id ControlID, on bool) (bool, error) {
	switch id {
	case ControlSPDIFInput, ControlSPDIFSelect:
		sw := SwitchSPDIFInput
		if id == ControlSPDIFSelect {
			sw = SwitchSPDIFSelect
		}
		prog, next, changed := d.state.Route(sw, on)
		if !changed {
			return false, nil
		}
		if d.stale {
			return false, errcode.New(errcode.InvalidTransition, "route", "device needs reconfigure")
		}
		if err := d.run("route", prog); err != nil {
			return false, err
		}
		d.state = next
		return true, nil
	case ControlInvertOutput:
		return d.updateBits("invert", regModeCtrl, modeInvertBit, on)
	case ControlRolloffFilter:
		return d.updateBits("rolloff", regModeCtrl, modeRolloffBit, on)
	}
	return false, errcode.UnknownControl
}

// Switch returns the current value of a boolean control. While the device
// needs reconfiguring the routing flags are read from the register mirror,
// which holds what last reached the chip.
func (d *Device) Switch(id ControlID) (bool, error) {
	clk := d.state.Clock
	if d.stale {
		clk = ClockBits(d.regs.get(regClock))
	}
	switch id {
	case ControlSPDIFInput:
		return clk.Has(SPDIFIn), nil
	case ControlSPDIFSelect:
		return clk.Has(SPDIFSel), nil
	case ControlInvertOutput:
		return d.regs.get(regModeCtrl)&modeInvertBit != 0, nil
	case ControlRolloffFilter:
		return d.regs.get(regModeCtrl)&modeRolloffBit != 0, nil
	}
	return false, errcode.UnknownControl
}

// SetVolume sets both attenuators (0..VolumeMax) and reports a change.
func (d *Device) SetVolume(left, right uint8) (bool, error) {
	var prog Program
	for _, ch := range [2]struct{ reg, v byte }{{regVolLeft, left}, {regVolRight, right}} {
		val := mathx.Offset(ch.v, volRegMin, 0xff)
		if d.regs.get(ch.reg) != val {
			prog = append(prog, Op{Reg: ch.reg, Mask: 0xff, Val: val})
		}
	}
	if len(prog) == 0 {
		return false, nil
	}
	if err := d.run("volume", prog); err != nil {
		return false, err
	}
	return true, nil
}

// Volume returns the attenuator control values from the register mirror.
func (d *Device) Volume() (left, right uint8) {
	ctl := func(r byte) uint8 {
		if r < volRegMin {
			return 0
		}
		return r - volRegMin
	}
	return ctl(d.regs.get(regVolLeft)), ctl(d.regs.get(regVolRight))
}

// Sync writes the mirror of every writable register to the chip, e.g.
// after a hardware reset.
func (d *Device) Sync() error {
	for _, a := range WritableRegisters() {
		if err := d.t.WriteRegister(a, d.regs.get(a)); err != nil {
			return errcode.Wrap(errcode.BusError, "sync "+conv.Hex8(a), err)
		}
	}
	return nil
}

// ReadRegister reads addr back from the chip.
func (d *Device) ReadRegister(addr byte) (byte, error) {
	if err := checkReadable("read", addr); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := d.t.ReadRegisters(addr, b[:]); err != nil {
		return 0, errcode.Wrap(errcode.BusError, "read "+conv.Hex8(addr), err)
	}
	return b[0], nil
}

// Status is the content of the read-only status registers.
type Status struct {
	ZeroLeft  bool // zero-detect flag, left channel
	ZeroRight bool
	ID        byte
}

// ReadStatus reads the zero-detect flags and the device ID.
func (d *Device) ReadStatus() (Status, error) {
	var b [2]byte
	if err := d.t.ReadRegisters(regStatus0, b[:]); err != nil {
		return Status{}, errcode.Wrap(errcode.BusError, "status", err)
	}
	return Status{
		ZeroLeft:  b[0]&zeroLeft != 0,
		ZeroRight: b[0]&zeroRight != 0,
		ID:        b[1] & idMask,
	}, nil
}

// WriteRegister writes a raw value to a writable register and updates the
// mirror. The clock register carries session state and is refused.
func (d *Device) WriteRegister(addr, val byte) error {
	if addr == regClock {
		return errcode.New(errcode.InvalidTransition, "write", "clock register is owned by the session")
	}
	return d.run("write", Program{{Reg: addr, Mask: 0xff, Val: val}})
}

// Mirror returns the value last written to addr.
func (d *Device) Mirror(addr byte) (byte, error) {
	if err := checkReadable("mirror", addr); err != nil {
		return 0, err
	}
	return d.regs.get(addr), nil
}

func (d *Device) updateBits(op string, reg, mask byte, on bool) (bool, error) {
	var val byte
	if on {
		val = mask
	}
	if d.regs.merge(reg, mask, val) == d.regs.get(reg) {
		return false, nil
	}
	if err := d.run(op, Program{{Reg: reg, Mask: mask, Val: val}}); err != nil {
		return false, err
	}
	return true, nil
}

// run validates every address before the first write, then issues the
// program in order, stopping at the first bus error.
func (d *Device) run(op string, prog Program) error {
	for _, o := range prog {
		if err := checkWritable(op, o.Reg); err != nil {
			return err
		}
	}
	for i, o := range prog {
		v := d.regs.merge(o.Reg, o.Mask, o.Val)
		if err := d.t.WriteRegister(o.Reg, v); err != nil {
			if i > 0 && touchesSession(prog) {
				d.stale = true
			}
			d.log.Warn("register write failed", "op", op, "reg", conv.Hex8(o.Reg), "step", i, "err", err)
			return errcode.Wrap(errcode.BusError, op+" "+conv.Hex8(o.Reg), err)
		}
		d.regs.set(o.Reg, v)
		d.log.Debug("register write", "op", op, "reg", conv.Hex8(o.Reg), "val", conv.Hex8(v))
	}
	return nil
}

// touchesSession reports whether prog writes a register whose content is
// derived from the session state.
func touchesSession(prog Program) bool {
	for _, o := range prog {
		switch o.Reg {
		case regFmtControl, regConfCtrl, regClock:
			return true
		}
	}
	return false
}
