// Package card is the machine layer of a board: it owns the DAI link
// between the host's I2S controller and the codec, checks stream params
// against the external clock generator, and maps stream start/stop onto
// codec mute.
package card

import (
	"io"
	"log/slog"
	"math"
	"time"

	"codecctl-go/bus"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/errcode"
	"codecctl-go/x/conv"
)

// ResetDelay is how long the codec needs after its reset line is released.
const ResetDelay = 20 * time.Millisecond

const topicCard = "card"

// Codec is the codec session as driven by the card.
type Codec interface {
	Variant() pcm179x.Variant
	Startup() pcm179x.FormatMask
	SetDAIFormat(p pcm179x.Protocol)
	HWParams(p pcm179x.Params) error
	SetMute(muted bool) error
}

// ResetLine drives the codec's active-low reset.
type ResetLine interface {
	Release() error
}

type Config struct {
	Name      string
	DAIFormat pcm179x.Protocol
	MaxRate   uint32    // 0 => codec ceiling
	Reset     ResetLine // optional
	Conn      *bus.Connection
	Logger    *slog.Logger
}

// Phase is the stream lifecycle position.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseOpen
	PhasePrepared
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOpen:
		return "open"
	case PhasePrepared:
		return "prepared"
	case PhaseRunning:
		return "running"
	}
	return "unknown"
}

type Card struct {
	name    string
	codec   Codec
	maxRate uint32
	conn    *bus.Connection
	log     *slog.Logger

	phase   Phase
	formats pcm179x.FormatMask
	params  pcm179x.Params
	clock   pcm179x.ClockBits
}

// New binds the card to its codec. The reset line, if any, is released
// before the codec is touched.
func New(codec Codec, cfg Config) (*Card, error) {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if cfg.DAIFormat == pcm179x.ProtocolUnknown {
		cfg.DAIFormat = pcm179x.ProtocolI2S
	}
	limit := cfg.MaxRate
	if limit == 0 || limit > codec.Variant().MaxRate() {
		limit = codec.Variant().MaxRate()
	}
	c := &Card{
		name:    cfg.Name,
		codec:   codec,
		maxRate: limit,
		conn:    cfg.Conn,
		log:     lg.With("card", cfg.Name),
	}

	if cfg.Reset != nil {
		if err := cfg.Reset.Release(); err != nil {
			return nil, errcode.Wrap(errcode.BusError, "card reset", err)
		}
		time.Sleep(ResetDelay)
	}
	codec.SetDAIFormat(cfg.DAIFormat)
	c.log.Info("card ready", "codec", codec.Variant().String(), "dai", cfg.DAIFormat.String(), "max_rate", limit)
	return c, nil
}

func (c *Card) Name() string           { return c.name }
func (c *Card) Phase() Phase           { return c.phase }
func (c *Card) MaxRate() uint32        { return c.maxRate }
func (c *Card) Params() pcm179x.Params { return c.params }

// ExtClock returns the clock generator bits for a stream, or
// errcode.RejectedConfig when the generator cannot produce it.
func (c *Card) ExtClock(rate uint32, f pcm179x.Format) (pcm179x.ClockBits, error) {
	if rate > c.maxRate {
		return 0, errcode.New(errcode.RejectedConfig, "ext clock", "rate "+conv.Utoa(uint64(rate))+" above card limit")
	}
	res, err := pcm179x.Resolve(rate, f, pcm179x.ProtocolI2S, f.Width())
	if err != nil {
		return 0, err
	}
	return res.Clock, nil
}

// Open starts a stream and returns the formats it may use.
func (c *Card) Open() (pcm179x.FormatMask, error) {
	if c.phase != PhaseIdle {
		return 0, errcode.New(errcode.InvalidTransition, "open", "stream already "+c.phase.String())
	}
	c.formats = c.codec.Startup()
	c.setPhase(PhaseOpen)
	return c.formats, nil
}

// HWParams checks p against the clock generator and programs the codec.
// It may be called again on a prepared stream to renegotiate.
func (c *Card) HWParams(p pcm179x.Params) error {
	switch c.phase {
	case PhaseOpen, PhasePrepared:
	default:
		return errcode.New(errcode.InvalidTransition, "hw_params", "stream "+c.phase.String())
	}
	if !c.formats.Has(p.Format) {
		return errcode.New(errcode.RejectedConfig, "hw_params", p.Format.String()+" not offered at open")
	}
	clk, err := c.ExtClock(p.Rate, p.Format)
	if err != nil {
		c.log.Warn("ext clock rejected", "rate", p.Rate, "format", p.Format.String(), "err", err)
		return err
	}
	c.log.Debug("ext clock", "rate", p.Rate, "mask", conv.Hex8(byte(clk)))

	if err := c.codec.HWParams(p); err != nil {
		c.setPhase(PhaseOpen)
		return err
	}
	c.params = p
	c.clock = clk
	c.setPhase(PhasePrepared)
	return nil
}

// Start unmutes a prepared stream.
func (c *Card) Start() error {
	if c.phase != PhasePrepared {
		return errcode.New(errcode.InvalidTransition, "start", "stream "+c.phase.String())
	}
	if err := c.codec.SetMute(false); err != nil {
		return err
	}
	c.setPhase(PhaseRunning)
	return nil
}

// Stop mutes a running stream; the params stay valid for a later Start.
func (c *Card) Stop() error {
	if c.phase != PhaseRunning {
		return errcode.New(errcode.InvalidTransition, "stop", "stream "+c.phase.String())
	}
	if err := c.codec.SetMute(true); err != nil {
		return err
	}
	c.setPhase(PhasePrepared)
	return nil
}

// Close ends the stream, muting first if it is still running.
func (c *Card) Close() error {
	if c.phase == PhaseRunning {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	c.formats = 0
	c.setPhase(PhaseIdle)
	return nil
}

// StateEvent is published retained on card/<name>/state.
type StateEvent struct {
	Card   string
	Phase  string
	Rate   uint32
	Format string
	Clock  pcm179x.ClockBits
}

func (c *Card) setPhase(p Phase) {
	if c.phase == p && p != PhasePrepared {
		return
	}
	c.phase = p
	c.log.Debug("phase", "phase", p.String())
	if c.conn == nil {
		return
	}
	ev := StateEvent{Card: c.name, Phase: p.String()}
	if p >= PhasePrepared {
		ev.Rate = c.params.Rate
		ev.Format = c.params.Format.String()
		ev.Clock = c.clock
	}
	c.conn.Publish(&bus.Message{Topic: bus.T(topicCard, c.name, "state"), Payload: ev, Retained: true})
}
