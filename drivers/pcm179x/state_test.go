package pcm179x

import (
	"reflect"
	"testing"
)

func mustHW(t *testing.T, s State, p Params) (Program, State) {
	t.Helper()
	prog, next, err := s.HWParams(p)
	if err != nil {
		t.Fatalf("HWParams(%+v): %v", p, err)
	}
	return prog, next
}

func TestState_HWParamsPCM16(t *testing.T) {
	prog, next := mustHW(t, InitialState(), Params{Rate: 44100, Format: FormatS16LE, Protocol: ProtocolI2S})

	want := Program{
		{Reg: regClock, Mask: 0xff, Val: 0x00},
		{Reg: regFmtControl, Mask: 0xfc, Val: 0xc0},
		{Reg: regConfCtrl, Mask: confDSDEnable, Val: 0},
	}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("program\n got %v\nwant %v", prog, want)
	}
	if next.DSD || next.Rate != 44100 || next.Width != 16 || !next.Muted {
		t.Fatalf("next state %+v", next)
	}
}

func TestState_PCMToDSDOrdering(t *testing.T) {
	_, s := mustHW(t, InitialState(), Params{Rate: 44100, Format: FormatS16LE, Protocol: ProtocolI2S})
	prog, next := mustHW(t, s, Params{Rate: 44100, Format: FormatDSDU16LE, Protocol: ProtocolI2S})

	if len(prog) != 3 {
		t.Fatalf("program length %d", len(prog))
	}
	// DSD_EN in the clock register, then the DSD filter, then DSD enable.
	if prog[0].Reg != regClock || !ClockBits(prog[0].Val).Has(DSDEn) {
		t.Fatalf("step 0 %+v", prog[0])
	}
	if prog[1].Reg != regFmtControl || prog[1].Val != dsdFilterSel(2) || prog[1].Mask&dsdFilter != dsdFilter {
		t.Fatalf("step 1 %+v", prog[1])
	}
	if prog[2] != (Op{Reg: regConfCtrl, Mask: confDSDEnable, Val: confDSDEnable}) {
		t.Fatalf("step 2 %+v", prog[2])
	}
	if !next.DSD {
		t.Fatal("DSD not active after commit")
	}
}

func TestState_HWParamsKeepsRouting(t *testing.T) {
	s := InitialState()
	s.Clock = SPDIFIn | SPDIFSel | CLK0 | W32

	prog, next := mustHW(t, s, Params{Rate: 96000, Format: FormatS16LE, Protocol: ProtocolRightJ})
	if want := SPDIFIn | SPDIFSel | CLK0 | CLK1; next.Clock != want {
		t.Fatalf("clock %#02x, want %#02x", next.Clock, want)
	}
	if prog[0].Val != byte(next.Clock) {
		t.Fatalf("clock write %#02x != state %#02x", prog[0].Val, next.Clock)
	}
}

func TestState_HWParamsRejectLeavesState(t *testing.T) {
	s := InitialState()
	prog, next, err := s.HWParams(Params{Rate: 352800, Format: FormatS24LE, Protocol: ProtocolI2S})
	if err == nil || prog != nil || next != s {
		t.Fatalf("got prog=%v next=%+v err=%v", prog, next, err)
	}
}

func TestState_MuteDSDDisablesFirst(t *testing.T) {
	_, s := mustHW(t, InitialState(), Params{Rate: 44100, Format: FormatDSDU16LE, Protocol: ProtocolI2S})

	prog, next := s.Mute(true)
	want := Program{
		{Reg: regConfCtrl, Mask: confDSDEnable, Val: 0},
		{Reg: regFmtControl, Mask: muteMask, Val: 1},
	}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("mute program %v", prog)
	}

	// Unmute only clears the mute bit; DSD enable waits for HWParams.
	prog, _ = next.Mute(false)
	want = Program{{Reg: regFmtControl, Mask: muteMask, Val: 0}}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("unmute program %v", prog)
	}
}

func TestState_MuteWhileSPDIFInputIsNoop(t *testing.T) {
	s := InitialState()
	s.Muted = false
	_, s, _ = s.Route(SwitchSPDIFInput, true)

	prog, next := s.Mute(true)
	if len(prog) != 0 {
		t.Fatalf("expected empty program, got %v", prog)
	}
	if !next.Muted {
		t.Fatal("mute flag should still be recorded")
	}

	prog, _ = next.Mute(false)
	if len(prog) != 1 {
		t.Fatalf("unmute over SPDIF should write, got %v", prog)
	}
}

func TestState_RouteUnchanged(t *testing.T) {
	s := InitialState()
	for _, sw := range []Switch{SwitchSPDIFInput, SwitchSPDIFSelect} {
		prog, next, changed := s.Route(sw, false)
		if changed || prog != nil || next != s {
			t.Fatalf("switch %d: changed=%v prog=%v", sw, changed, prog)
		}
	}
}

func TestState_RouteInputWithDSD(t *testing.T) {
	_, s := mustHW(t, InitialState(), Params{Rate: 44100, Format: FormatDSDU16LE, Protocol: ProtocolI2S})

	prog, next, changed := s.Route(SwitchSPDIFInput, true)
	if !changed {
		t.Fatal("expected change")
	}
	want := Program{
		{Reg: regConfCtrl, Mask: confDSDEnable, Val: 0},
		{Reg: regClock, Mask: 0xff, Val: byte(DSDEn | SPDIFIn)},
		{Reg: regFmtControl, Mask: muteMask, Val: 1},
	}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("input on\n got %v\nwant %v", prog, want)
	}

	prog, _, _ = next.Route(SwitchSPDIFInput, false)
	want = Program{
		{Reg: regConfCtrl, Mask: confDSDEnable, Val: confDSDEnable},
		{Reg: regClock, Mask: 0xff, Val: byte(DSDEn)},
		// Legacy formula: muted && !previousInput, so a muted device is
		// unmuted when the input is switched off.
		{Reg: regFmtControl, Mask: muteMask, Val: 0},
	}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("input off\n got %v\nwant %v", prog, want)
	}
}

func TestState_RouteSelect(t *testing.T) {
	s := InitialState()
	prog, next, changed := s.Route(SwitchSPDIFSelect, true)
	if !changed || !next.SPDIFSelect() || next.SPDIFInput() {
		t.Fatalf("changed=%v next=%+v", changed, next)
	}
	want := Program{{Reg: regClock, Mask: 0xff, Val: byte(SPDIFSel)}}
	if !reflect.DeepEqual(prog, want) {
		t.Fatalf("select program %v", prog)
	}
}
