package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"codecctl-go/bus"
	"codecctl-go/cmd/dacctl/interactive"
	"codecctl-go/drivers/ds1807"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/internal/regsim"
	"codecctl-go/services/card"
	"codecctl-go/services/config"
	"codecctl-go/services/mixer"
	"codecctl-go/services/monitor"
)

const defaultSPIHz = 1000000

// platform opens the buses named in a board description.
type platform interface {
	I2C(ref config.BusRef) (drivers.I2C, error)
	SPI(ref config.BusRef) (drivers.SPI, error)
	Reset(name string) (card.ResetLine, error)
	io.Closer
}

// simPlatform backs every bus with a simulated device.
type simPlatform struct {
	board *config.Board
	codec *regsim.File
	pot   *regsim.Pot
}

func (p *simPlatform) I2C(ref config.BusRef) (drivers.I2C, error) {
	if p.board.Pot != nil && ref == p.board.Pot.Bus {
		addr := ref.Address
		if addr == 0 {
			addr = ds1807.AddressDefault
		}
		p.pot = regsim.NewPot(addr)
		return p.pot, nil
	}
	addr := ref.Address
	if addr == 0 {
		addr = pcm179x.AddressDefault
	}
	p.codec = regsim.New(addr)
	return p.codec, nil
}

func (p *simPlatform) SPI(config.BusRef) (drivers.SPI, error) {
	p.codec = regsim.New(0)
	return p.codec.SPI(), nil
}

func (p *simPlatform) Reset(string) (card.ResetLine, error) { return nil, nil }
func (p *simPlatform) Close() error                         { return nil }

// hostPlatform opens Linux buses through periph.
type hostPlatform struct {
	i2c     map[string]i2c.BusCloser
	closers []io.Closer
}

func newHostPlatform() (*hostPlatform, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	return &hostPlatform{i2c: make(map[string]i2c.BusCloser)}, nil
}

// I2C opens each bus once; codec and potentiometer may share it.
func (p *hostPlatform) I2C(ref config.BusRef) (drivers.I2C, error) {
	if b, ok := p.i2c[ref.ID]; ok {
		return b, nil
	}
	b, err := i2creg.Open(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("open i2c %q: %w", ref.ID, err)
	}
	p.i2c[ref.ID] = b
	p.closers = append(p.closers, b)
	return b, nil
}

func (p *hostPlatform) SPI(ref config.BusRef) (drivers.SPI, error) {
	port, err := spireg.Open(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", ref.ID, err)
	}
	p.closers = append(p.closers, port)
	hz := ref.SpeedHz
	if hz == 0 {
		hz = defaultSPIHz
	}
	c, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect spi %q: %w", ref.ID, err)
	}
	return spiConn{c}, nil
}

func (p *hostPlatform) Reset(name string) (card.ResetLine, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return resetPin{pin}, nil
}

func (p *hostPlatform) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// spiConn adds the single-byte transfer the tinygo SPI interface expects.
type spiConn struct {
	spi.Conn
}

func (s spiConn) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

type resetPin struct {
	pin gpio.PinOut
}

func (r resetPin) Release() error { return r.pin.Out(gpio.High) }

// assemble wires codec, card and mixer for a board.
func assemble(b *config.Board, plat platform, lg *slog.Logger) (interactive.System, error) {
	var sys interactive.System

	v, err := b.Variant()
	if err != nil {
		return sys, err
	}
	proto, err := b.Protocol()
	if err != nil {
		return sys, err
	}

	var tr pcm179x.Transport
	switch b.Codec.Bus.Type {
	case "spi":
		s, err := plat.SPI(b.Codec.Bus)
		if err != nil {
			return sys, err
		}
		tr = pcm179x.NewSPI(s)
	default:
		i, err := plat.I2C(b.Codec.Bus)
		if err != nil {
			return sys, err
		}
		tr = pcm179x.NewI2C(i, b.Codec.Bus.Address)
	}

	var reset card.ResetLine
	if b.Card.ResetPin != "" {
		if reset, err = plat.Reset(b.Card.ResetPin); err != nil {
			return sys, err
		}
	}

	codec := pcm179x.New(tr, pcm179x.Config{
		Variant:      v,
		Logger:       lg.With("dev", "pcm179x"),
		StartupDelay: b.Codec.Delay(),
	})
	conn := bus.NewBus(16).NewConnection("dacctl")

	crd, err := card.New(codec, card.Config{
		Name:      b.Card.Name,
		DAIFormat: proto,
		MaxRate:   b.Card.MaxRate,
		Reset:     reset,
		Conn:      conn,
		Logger:    lg,
	})
	if err != nil {
		return sys, err
	}

	mcfg := mixer.Config{Card: b.Card.Name, Codec: codec, Conn: conn, Logger: lg}
	if b.Pot != nil {
		i, err := plat.I2C(b.Pot.Bus)
		if err != nil {
			return sys, err
		}
		mcfg.Pot = ds1807.New(i, ds1807.Config{Address: b.Pot.Bus.Address})
	}
	mx := mixer.New(mcfg)
	if err := mx.Apply(b.Controls); err != nil {
		return sys, fmt.Errorf("initial controls: %w", err)
	}

	lock := new(sync.Mutex)
	mon := monitor.New(monitor.Config{
		Card:     b.Card.Name,
		Codec:    codec,
		Conn:     conn,
		Interval: b.Monitor.Interval,
		Lock:     lock,
		Logger:   lg,
	})

	return interactive.System{Card: crd, Codec: codec, Mixer: mx, Monitor: mon, Conn: conn, Lock: lock}, nil
}
