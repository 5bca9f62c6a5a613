// Package ds1807 provides a minimal driver for the Maxim DS1807 dual
// audio-taper digital potentiometer.
//
// Design notes (datasheet references):
// • Two wipers, 65 positions each: 0 dB to -63 dB in 1 dB steps plus mute.
// • Write: command 0xA9 (wiper 0), 0xAA (wiper 1), 0xAF (both), then position.
// • Read: a bare two-byte receive returns wiper 0 then wiper 1.
// • 7-bit address 0101xxx; default 0x28.
package ds1807

import (
	"errors"

	"tinygo.org/x/drivers"

	"codecctl-go/x/mathx"
)

const (
	AddressDefault = 0x28

	Channels = 2

	// MuteDB is the gain reported for the mute position.
	MuteDB = -90

	maxStep  = 64
	cmdWrite = 0xa8
	cmdBoth  = 0xaf
)

var (
	ErrChannel = errors.New("ds1807: invalid channel")
	ErrGain    = errors.New("ds1807: gain out of range")
)

type Config struct {
	Address uint16
}

type Device struct {
	i2c  drivers.I2C
	addr uint16

	w [2]byte
	r [Channels]byte
}

func New(i2c drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr}
}

// SetGain sets wiper ch to gainDB. Valid gains are 0 down to -64 dB and
// MuteDB; -64 is the mute step.
func (d *Device) SetGain(ch int, gainDB int) error {
	if ch < 0 || ch >= Channels {
		return ErrChannel
	}
	step, err := stepFor(gainDB)
	if err != nil {
		return err
	}
	return d.write(cmdWrite|byte(ch+1), step)
}

// SetGainBoth moves both wipers in one transaction.
func (d *Device) SetGainBoth(gainDB int) error {
	step, err := stepFor(gainDB)
	if err != nil {
		return err
	}
	return d.write(cmdBoth, step)
}

// Gain reads wiper ch and returns its gain in dB; the mute step reads as MuteDB.
func (d *Device) Gain(ch int) (int, error) {
	if ch < 0 || ch >= Channels {
		return 0, ErrChannel
	}
	if err := d.i2c.Tx(d.addr, nil, d.r[:]); err != nil {
		return 0, err
	}
	return gainFor(d.r[ch]), nil
}

// Gains reads both wipers.
func (d *Device) Gains() (g [Channels]int, err error) {
	if err = d.i2c.Tx(d.addr, nil, d.r[:]); err != nil {
		return g, err
	}
	for i, s := range d.r {
		g[i] = gainFor(s)
	}
	return g, nil
}

func (d *Device) write(cmd, step byte) error {
	d.w[0] = cmd
	d.w[1] = step
	return d.i2c.Tx(d.addr, d.w[:], nil)
}

func stepFor(gainDB int) (byte, error) {
	if gainDB == MuteDB {
		return maxStep, nil
	}
	if !mathx.Between(gainDB, -maxStep, 0) {
		return 0, ErrGain
	}
	return byte(-gainDB), nil
}

func gainFor(step byte) int {
	if step >= maxStep {
		return MuteDB
	}
	return -int(step)
}
