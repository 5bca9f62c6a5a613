// Package mixer exposes the codec and potentiometer settings as named
// controls. A write that changes a value publishes a retained event on
// mixer/<card>/<control>.
package mixer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"

	"codecctl-go/bus"
	"codecctl-go/drivers/ds1807"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/errcode"
	"codecctl-go/x/conv"
	"codecctl-go/x/mathx"
	"codecctl-go/x/ramp"
)

// FadeSteps is the number of writes a Fade spreads its change over.
const FadeSteps = 16

// Control names.
const (
	CtlVolume      = "DAC Playback Volume"
	CtlInvert      = "DAC Invert Output Switch"
	CtlRolloff     = "DAC Rolloff Filter Switch"
	CtlSPDIFInput  = "SPDIF Input Switch"
	CtlSPDIFSelect = "SPDIF Select Switch"
	CtlAnalogGain  = "Analog Playback Gain"
)

const topicPrefix = "mixer"

type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt
)

// Info describes one control.
type Info struct {
	Name  string
	Kind  Kind
	Count int // values per read/write
	Min   int
	Max   int
}

// Event is the payload published when a control changes.
type Event struct {
	Card    string
	Control string
	Values  []int
}

// Codec is the part of the codec session the mixer drives.
type Codec interface {
	SetControlSwitch(id pcm179x.ControlID, on bool) (bool, error)
	Switch(id pcm179x.ControlID) (bool, error)
	SetVolume(left, right uint8) (bool, error)
	Volume() (left, right uint8)
}

// Pot is the analog gain stage; optional.
type Pot interface {
	SetGain(ch int, gainDB int) error
	Gains() ([ds1807.Channels]int, error)
}

type Config struct {
	Card   string
	Codec  Codec
	Pot    Pot             // nil: no analog gain control
	Conn   *bus.Connection // nil: no events
	Logger *slog.Logger
}

type Mixer struct {
	card  string
	codec Codec
	pot   Pot
	conn  *bus.Connection
	log   *slog.Logger
}

func New(cfg Config) *Mixer {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Mixer{
		card:  cfg.Card,
		codec: cfg.Codec,
		pot:   cfg.Pot,
		conn:  cfg.Conn,
		log:   lg.With("card", cfg.Card),
	}
}

var switches = []struct {
	name string
	id   pcm179x.ControlID
}{
	{CtlInvert, pcm179x.ControlInvertOutput},
	{CtlRolloff, pcm179x.ControlRolloffFilter},
	{CtlSPDIFInput, pcm179x.ControlSPDIFInput},
	{CtlSPDIFSelect, pcm179x.ControlSPDIFSelect},
}

// List returns the available controls in a stable order.
func (m *Mixer) List() []Info {
	out := []Info{{Name: CtlVolume, Kind: KindInt, Count: 2, Min: 0, Max: pcm179x.VolumeMax}}
	for _, s := range switches {
		out = append(out, Info{Name: s.name, Kind: KindBool, Count: 1, Min: 0, Max: 1})
	}
	if m.pot != nil {
		out = append(out, Info{Name: CtlAnalogGain, Kind: KindInt, Count: ds1807.Channels, Min: ds1807.MuteDB, Max: 0})
	}
	return out
}

func (m *Mixer) info(name string) (Info, bool) {
	for _, in := range m.List() {
		if in.Name == name {
			return in, true
		}
	}
	return Info{}, false
}

// Get returns the current values of a control.
func (m *Mixer) Get(name string) ([]int, error) {
	switch name {
	case CtlVolume:
		l, r := m.codec.Volume()
		return []int{int(l), int(r)}, nil
	case CtlAnalogGain:
		if m.pot == nil {
			return nil, errcode.UnknownControl
		}
		g, err := m.pot.Gains()
		if err != nil {
			return nil, errcode.Wrap(errcode.BusError, "get "+name, err)
		}
		return g[:], nil
	}
	id, ok := switchID(name)
	if !ok {
		return nil, errcode.UnknownControl
	}
	on, err := m.codec.Switch(id)
	if err != nil {
		return nil, err
	}
	return []int{b2i(on)}, nil
}

// Put writes a control and reports whether its value changed.
func (m *Mixer) Put(name string, vals []int) (bool, error) {
	in, ok := m.info(name)
	if !ok {
		return false, errcode.UnknownControl
	}
	if err := check("put", in, vals); err != nil {
		return false, err
	}

	changed, err := m.put(name, vals)
	if err != nil {
		m.log.Warn("control write failed", "control", name, "err", err)
		// Part of a multi-channel write may have landed.
		if changed {
			if v, gerr := m.Get(name); gerr == nil {
				m.publish(name, v)
			}
		}
		return changed, err
	}
	if changed {
		m.log.Debug("control changed", "control", name, "values", vals)
		m.publish(name, vals)
	}
	return changed, nil
}

func check(op string, in Info, vals []int) error {
	if len(vals) != in.Count {
		return errcode.New(errcode.InvalidParams, op+" "+in.Name, "wrong value count")
	}
	for _, v := range vals {
		if !mathx.Between(v, in.Min, in.Max) {
			return errcode.New(errcode.InvalidParams, op+" "+in.Name, "value "+conv.Itoa(int64(v))+" out of range")
		}
	}
	return nil
}

func (m *Mixer) put(name string, vals []int) (bool, error) {
	switch name {
	case CtlVolume:
		return m.codec.SetVolume(uint8(vals[0]), uint8(vals[1]))
	case CtlAnalogGain:
		cur, err := m.pot.Gains()
		if err != nil {
			return false, errcode.Wrap(errcode.BusError, "put "+name, err)
		}
		changed := false
		for ch, v := range vals {
			if cur[ch] == v {
				continue
			}
			if err := m.pot.SetGain(ch, v); err != nil {
				return changed, potError("put "+name, err)
			}
			changed = true
		}
		return changed, nil
	}
	id, _ := switchID(name)
	return m.codec.SetControlSwitch(id, vals[0] != 0)
}

func (m *Mixer) publish(name string, vals []int) {
	if m.conn == nil {
		return
	}
	m.conn.Publish(&bus.Message{
		Topic:    bus.T(topicPrefix, m.card, name),
		Payload:  Event{Card: m.card, Control: name, Values: append([]int(nil), vals...)},
		Retained: true,
	})
}

// Fade ramps an integer control to vals over d. Intermediate writes are
// not published; a single event reports the final value.
func (m *Mixer) Fade(ctx context.Context, name string, vals []int, d time.Duration) error {
	in, ok := m.info(name)
	if !ok {
		return errcode.UnknownControl
	}
	if in.Kind != KindInt {
		return errcode.New(errcode.InvalidParams, "fade "+name, "not a level control")
	}
	if err := check("fade", in, vals); err != nil {
		return err
	}
	cur, err := m.Get(name)
	if err != nil {
		return err
	}
	from, to := cur, vals
	if name == CtlAnalogGain {
		// The mute position is not part of the attenuation range.
		from, to = fadeGain(cur), fadeGain(vals)
	}

	changed := false
	step := func(l []int) error {
		c, err := m.put(name, l)
		changed = changed || c
		return err
	}
	err = ramp.Linear(from, to, d, FadeSteps, ramp.ContextTick(ctx), step)
	if err == nil && name == CtlAnalogGain {
		err = step(vals)
	}
	if errors.Is(err, ramp.ErrCancelled) {
		err = errcode.Wrap(errcode.Error, "fade "+name, ctx.Err())
	}
	if changed {
		if v, gerr := m.Get(name); gerr == nil {
			m.publish(name, v)
		}
	}
	return err
}

func fadeGain(v []int) []int {
	out := make([]int, len(v))
	for i, g := range v {
		out[i] = max(g, -64)
	}
	return out
}

// Apply writes a set of control values in List order. Names and values
// are all checked before the first write.
func (m *Mixer) Apply(vals map[string][]int) error {
	for name, v := range vals {
		in, ok := m.info(name)
		if !ok {
			return errcode.New(errcode.UnknownControl, "apply", name)
		}
		if err := check("apply", in, v); err != nil {
			return err
		}
	}
	for _, in := range m.List() {
		v, ok := vals[in.Name]
		if !ok {
			continue
		}
		if _, err := m.Put(in.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// snapshot is the persisted form of the mixer state.
type snapshot struct {
	Card     string           `cbor:"card"`
	Controls map[string][]int `cbor:"controls"`
}

// Save writes every control value to w as CBOR.
func (m *Mixer) Save(w io.Writer) error {
	s := snapshot{Card: m.card, Controls: make(map[string][]int)}
	for _, in := range m.List() {
		v, err := m.Get(in.Name)
		if err != nil {
			return err
		}
		s.Controls[in.Name] = v
	}
	return cbor.NewEncoder(w).Encode(s)
}

// Restore reads a snapshot written by Save and applies it. Snapshots from
// another card are refused.
func (m *Mixer) Restore(r io.Reader) error {
	var s snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return errcode.Wrap(errcode.InvalidParams, "restore", err)
	}
	if s.Card != m.card {
		return errcode.New(errcode.InvalidParams, "restore", "snapshot for card "+s.Card)
	}
	return m.Apply(s.Controls)
}

func switchID(name string) (pcm179x.ControlID, bool) {
	for _, s := range switches {
		if s.name == name {
			return s.id, true
		}
	}
	return 0, false
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func potError(op string, err error) error {
	if errors.Is(err, ds1807.ErrGain) || errors.Is(err, ds1807.ErrChannel) {
		return errcode.Wrap(errcode.InvalidParams, op, err)
	}
	return errcode.Wrap(errcode.BusError, op, err)
}
