package pcm179x

import (
	"errors"
	"reflect"
	"testing"

	"codecctl-go/errcode"
	"codecctl-go/internal/regsim"
)

// nakTransport fails every transfer.
type nakTransport struct{ err error }

func (n nakTransport) WriteRegister(byte, byte) error   { return n.err }
func (n nakTransport) ReadRegisters(byte, []byte) error { return n.err }

func newSimDevice(t *testing.T, v Variant) (*Device, *regsim.File) {
	t.Helper()
	sim := regsim.New(AddressDefault)
	return New(NewI2C(sim, 0), Config{Variant: v}), sim
}

func mustConfigure(t *testing.T, d *Device, rate uint32, f Format, width uint8) {
	t.Helper()
	if err := d.Configure(rate, f, ProtocolI2S, width); err != nil {
		t.Fatalf("Configure(%d, %s): %v", rate, f, err)
	}
}

func wantCode(t *testing.T, err error, want errcode.Code) {
	t.Helper()
	if got := errcode.Of(err); got != want {
		t.Fatalf("error %v: code %q, want %q", err, got, want)
	}
}

func TestDevice_ConfigurePCMThenDSD(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)

	mustConfigure(t, d, 44100, FormatS16LE, 16)
	mustConfigure(t, d, 44100, FormatDSDU16LE, 16)

	want := []regsim.Write{
		{Reg: regClock, Val: 0x00},
		{Reg: regFmtControl, Val: 0xc0},
		{Reg: regConfCtrl, Val: 0x00},
		{Reg: regClock, Val: byte(DSDEn)},
		{Reg: regFmtControl, Val: 0x08},
		{Reg: regConfCtrl, Val: confDSDEnable},
	}
	if got := sim.Writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes\n got %v\nwant %v", got, want)
	}
	if s := d.State(); !s.DSD || s.Clock != DSDEn {
		t.Fatalf("state %+v", s)
	}
}

func TestDevice_PartialFailureKeepsState(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	mustConfigure(t, d, 48000, FormatS24LE, 24)
	before := d.State()

	injected := errors.New("nack")
	sim.FailWrite(2, injected)

	err := d.Configure(44100, FormatDSDU16LE, ProtocolI2S, 16)
	wantCode(t, err, errcode.BusError)
	if !errors.Is(err, injected) {
		t.Fatalf("error %v does not wrap the bus error", err)
	}
	if d.State() != before {
		t.Fatalf("state advanced to %+v", d.State())
	}
	if !d.NeedsReconfigure() {
		t.Fatal("device not flagged for reconfigure")
	}

	// Only the clock write reached the chip.
	if got := sim.Peek(regClock); got != byte(DSDEn) {
		t.Fatalf("clock register 0x%02x", got)
	}

	// Mute and routing need a consistent device.
	wantCode(t, d.SetMute(true), errcode.InvalidTransition)
	_, err = d.SetControlSwitch(ControlSPDIFInput, true)
	wantCode(t, err, errcode.InvalidTransition)

	mustConfigure(t, d, 44100, FormatDSDU16LE, 16)
	if d.NeedsReconfigure() {
		t.Fatal("still flagged after a good hw params")
	}
	if err := d.SetMute(true); err != nil {
		t.Fatal(err)
	}
}

func TestDevice_FirstWriteFailureIsNotStale(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	sim.FailWrite(1, nil)

	err := d.Configure(44100, FormatS16LE, ProtocolI2S, 16)
	if !errors.Is(err, regsim.ErrInjected) {
		t.Fatalf("error %v", err)
	}
	if d.NeedsReconfigure() {
		t.Fatal("flagged although nothing was written")
	}
	if d.State() != InitialState() {
		t.Fatalf("state %+v", d.State())
	}
}

func TestDevice_VolumeFailureKeepsMuteUsable(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	mustConfigure(t, d, 44100, FormatS16LE, 16)

	sim.FailWrite(2, nil)
	_, err := d.SetVolume(10, 20)
	wantCode(t, err, errcode.BusError)
	if d.NeedsReconfigure() {
		t.Fatal("attenuator failure flagged the session")
	}
	if err := d.SetMute(false); err != nil {
		t.Fatalf("mute after attenuator failure: %v", err)
	}
	if l, _ := d.Volume(); l != 10 {
		t.Fatalf("left attenuator %d, want the write that landed", l)
	}
}

func TestDevice_StaleRoutingReadsMirror(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	mustConfigure(t, d, 44100, FormatS16LE, 16)

	// Clock write lands, the mute write after it does not.
	sim.FailWrite(2, nil)
	_, err := d.SetControlSwitch(ControlSPDIFInput, true)
	wantCode(t, err, errcode.BusError)
	if !d.NeedsReconfigure() {
		t.Fatal("device not flagged for reconfigure")
	}
	if d.State().SPDIFInput() {
		t.Fatal("session state advanced")
	}
	on, err := d.Switch(ControlSPDIFInput)
	if err != nil || !on {
		t.Fatalf("Switch = %v, %v; want the routing on the chip", on, err)
	}
	if got := sim.Peek(regClock); got != byte(SPDIFIn) {
		t.Fatalf("clock register 0x%02x", got)
	}
}

func TestDevice_RejectedConfigWritesNothing(t *testing.T) {
	d, sim := newSimDevice(t, PCM1792A)

	cases := []Params{
		{Rate: 44100, Format: FormatDSDU16LE, Protocol: ProtocolI2S}, // no DSD on 1792A
		{Rate: 352800, Format: FormatS16LE, Protocol: ProtocolI2S},   // above ceiling
		{Rate: 32000, Format: FormatS16LE, Protocol: ProtocolI2S},
		{Rate: 44100, Format: FormatS16LE, Protocol: ProtocolLeftJ},
	}
	for _, p := range cases {
		if got := errcode.Of(d.HWParams(p)); got != errcode.RejectedConfig {
			t.Errorf("%+v: code %q", p, got)
		}
	}
	if w := sim.Writes(); len(w) != 0 {
		t.Fatalf("writes %v", w)
	}
	if d.State() != InitialState() {
		t.Fatalf("state %+v", d.State())
	}
}

func TestDevice_DAIFormatDefault(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	d.SetDAIFormat(ProtocolRightJ)

	if err := d.HWParams(Params{Rate: 96000, Format: FormatS24LE}); err != nil {
		t.Fatal(err)
	}
	if p := d.State().Protocol; p != ProtocolRightJ {
		t.Fatalf("protocol %s", p)
	}
	// right-justified 24-bit selects code 2, ATLD set.
	if got := sim.Peek(regFmtControl); got != 2<<fmtShift|atldBit {
		t.Fatalf("format register 0x%02x", got)
	}
	if got := sim.Peek(regClock); got != byte(CLK0|CLK1|W32) {
		t.Fatalf("clock register 0x%02x", got)
	}
}

func TestDevice_MuteWhileSPDIFInput(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	if err := d.SetMute(false); err != nil {
		t.Fatal(err)
	}

	changed, err := d.SetControlSwitch(ControlSPDIFInput, true)
	if err != nil || !changed {
		t.Fatalf("route = %v, %v", changed, err)
	}

	sim.ClearWrites()
	if err := d.SetMute(true); err != nil {
		t.Fatal(err)
	}
	if w := sim.Writes(); len(w) != 0 {
		t.Fatalf("mute wrote %v", w)
	}
	if sim.Peek(regFmtControl)&muteMask != 0 {
		t.Fatal("soft mute set")
	}
}

func TestDevice_RoutingIdempotent(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)

	for _, id := range []ControlID{ControlSPDIFInput, ControlSPDIFSelect, ControlInvertOutput, ControlRolloffFilter} {
		changed, err := d.SetControlSwitch(id, false)
		if err != nil || changed {
			t.Fatalf("control %d: %v, %v", id, changed, err)
		}
	}
	if w := sim.Writes(); len(w) != 0 {
		t.Fatalf("writes %v", w)
	}

	if changed, err := d.SetControlSwitch(ControlSPDIFSelect, true); err != nil || !changed {
		t.Fatalf("first select = %v, %v", changed, err)
	}
	if changed, err := d.SetControlSwitch(ControlSPDIFSelect, true); err != nil || changed {
		t.Fatalf("second select = %v, %v", changed, err)
	}
	if n := len(sim.Writes()); n != 1 {
		t.Fatalf("%d writes", n)
	}
	if got := sim.Peek(regClock); got != byte(SPDIFSel) {
		t.Fatalf("clock register 0x%02x", got)
	}
	if on, err := d.Switch(ControlSPDIFSelect); err != nil || !on {
		t.Fatalf("Switch = %v, %v", on, err)
	}
}

func TestDevice_ModeSwitches(t *testing.T) {
	d, sim := newSimDevice(t, PCM1796)

	for _, id := range []ControlID{ControlInvertOutput, ControlRolloffFilter} {
		if changed, err := d.SetControlSwitch(id, true); err != nil || !changed {
			t.Fatalf("control %d = %v, %v", id, changed, err)
		}
	}
	if got := sim.Peek(regModeCtrl); got != modeInvertBit|modeRolloffBit {
		t.Fatalf("mode register 0x%02x", got)
	}
	if on, err := d.Switch(ControlInvertOutput); err != nil || !on {
		t.Fatalf("Switch = %v, %v", on, err)
	}

	_, err := d.SetControlSwitch(ControlID(99), true)
	wantCode(t, err, errcode.UnknownControl)
}

func TestDevice_ClockMirrorMatchesHardware(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)

	mustConfigure(t, d, 192000, FormatS32LE, 32)
	if _, err := d.SetControlSwitch(ControlSPDIFSelect, true); err != nil {
		t.Fatal(err)
	}
	mustConfigure(t, d, 88200, FormatS16LE, 16)

	if got := sim.Peek(regClock); got != byte(d.State().Clock) {
		t.Fatalf("chip 0x%02x, state 0x%02x", got, byte(d.State().Clock))
	}
	if c := d.State().Clock; c != SPDIFSel|CLK1 {
		t.Fatalf("clock 0x%02x", byte(c))
	}
	wantCode(t, d.WriteRegister(regClock, 0), errcode.InvalidTransition)
}

func TestDevice_Volume(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)

	if l, r := d.Volume(); l != VolumeMax || r != VolumeMax {
		t.Fatalf("default volume %d/%d", l, r)
	}

	changed, err := d.SetVolume(0, 200)
	if err != nil || !changed {
		t.Fatalf("SetVolume = %v, %v", changed, err)
	}
	if sim.Peek(regVolLeft) != 0x0f || sim.Peek(regVolRight) != 0x0f+200 {
		t.Fatalf("attenuators 0x%02x 0x%02x", sim.Peek(regVolLeft), sim.Peek(regVolRight))
	}
	if changed, err := d.SetVolume(0, 200); err != nil || changed {
		t.Fatalf("repeat SetVolume = %v, %v", changed, err)
	}

	for v, want := range map[uint8]int32{0: -12000, 200: -2000, VolumeMax: 0} {
		if got := VolumeCentiDB(v); got != want {
			t.Errorf("VolumeCentiDB(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestDevice_SPITransport(t *testing.T) {
	sim := regsim.New(0)
	d := New(NewSPI(sim.SPI()), Config{Variant: PCM1795})

	mustConfigure(t, d, 48000, FormatS16LE, 16)
	if got := sim.Peek(regClock); got != byte(CLK0) {
		t.Fatalf("clock register 0x%02x", got)
	}
	v, err := d.ReadRegister(regFmtControl)
	if err != nil || v != 0xc0 {
		t.Fatalf("ReadRegister = 0x%02x, %v", v, err)
	}
}

func TestVariantFromCompatible(t *testing.T) {
	v, err := VariantFromCompatible("ti,pcm1796")
	if err != nil || v != PCM1796 {
		t.Fatalf("pcm1796 = %v, %v", v, err)
	}
	if v.Formats() != PCM1792A.Formats() || v.Formats().Has(FormatDSDU16LE) {
		t.Fatalf("pcm1796 formats %v", v.Formats())
	}
	if !PCM1795.Formats().Has(FormatDSDU16LE) {
		t.Fatal("pcm1795 lacks DSD")
	}

	_, err = VariantFromCompatible("ti,pcm5102a")
	wantCode(t, err, errcode.Unsupported)
}

func TestDevice_ReadStatus(t *testing.T) {
	d, sim := newSimDevice(t, PCM1795)
	sim.Poke(regStatus0, zeroLeft)
	sim.Poke(regStatus1, 0xe5)

	st, err := d.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if want := (Status{ZeroLeft: true, ID: 0x05}); st != want {
		t.Fatalf("status %+v, want %+v", st, want)
	}

	_, err = New(nakTransport{errors.New("nak")}, Config{}).ReadStatus()
	wantCode(t, err, errcode.BusError)
}
