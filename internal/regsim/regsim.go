// Package regsim simulates register-file devices behind tinygo driver bus
// interfaces. It backs the console's -sim mode and the driver tests.
package regsim

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

var (
	ErrNoDevice = errors.New("regsim: no device at address")
	ErrProtocol = errors.New("regsim: unsupported transaction")
	ErrInjected = errors.New("regsim: injected bus failure")
)

// Write records one register write in arrival order.
type Write struct {
	Reg byte
	Val byte
}

// File is a 256-byte register file addressed with a register pointer.
// It is safe for concurrent use.
type File struct {
	mu     sync.Mutex
	addr   uint16
	regs   [256]byte
	ro     [256]bool
	writes []Write

	failAt  int // 1-based index of the next write to fail; 0 = none
	failErr error
}

// New returns a register file answering on I2C address addr.
func New(addr uint16) *File {
	return &File{addr: addr}
}

// Poke sets a register without recording a write.
func (f *File) Poke(reg, val byte) {
	f.mu.Lock()
	f.regs[reg] = val
	f.mu.Unlock()
}

// Peek returns a register value.
func (f *File) Peek(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// ReadOnly makes writes to reg succeed on the bus but leave it unchanged,
// like a status mirror.
func (f *File) ReadOnly(reg byte) {
	f.mu.Lock()
	f.ro[reg] = true
	f.mu.Unlock()
}

// Writes returns a copy of the write log.
func (f *File) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// ClearWrites empties the write log.
func (f *File) ClearWrites() {
	f.mu.Lock()
	f.writes = nil
	f.mu.Unlock()
}

// FailWrite makes the n-th write from now (1-based) fail with err, or
// ErrInjected when err is nil. Earlier writes land normally.
func (f *File) FailWrite(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	f.failAt = n
	f.failErr = err
	f.mu.Unlock()
}

// write must be called with f.mu held.
func (f *File) write(reg, val byte) error {
	if f.failAt > 0 {
		f.failAt--
		if f.failAt == 0 {
			return f.failErr
		}
	}
	f.writes = append(f.writes, Write{Reg: reg, Val: val})
	if !f.ro[reg] {
		f.regs[reg] = val
	}
	return nil
}

// Tx implements drivers.I2C: w[0] is the register pointer, further bytes
// are written with auto-increment, r is read starting at the pointer.
func (f *File) Tx(addr uint16, w, r []byte) error {
	if addr != f.addr {
		return ErrNoDevice
	}
	if len(w) == 0 {
		return ErrProtocol
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	reg := w[0]
	for _, v := range w[1:] {
		if err := f.write(reg, v); err != nil {
			return err
		}
		reg++
	}
	for i := range r {
		r[i] = f.regs[reg]
		reg++
	}
	return nil
}

// SPI exposes the same register file over a 16-bit SPI control port:
// byte 0 is R/W (bit 7 set = read) plus a 7-bit index, byte 1 is data.
type SPI struct {
	*File
}

func (f *File) SPI() SPI { return SPI{File: f} }

func (s SPI) Tx(w, r []byte) error {
	if len(w) != 2 {
		return ErrProtocol
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := w[0] & 0x7f
	if w[0]&0x80 == 0 {
		return s.write(reg, w[1])
	}
	if len(r) == 2 {
		r[0] = 0
		r[1] = s.regs[reg]
	}
	return nil
}

// Transfer is not used by the codec control port.
func (s SPI) Transfer(b byte) (byte, error) { return 0, ErrProtocol }

// Compile-time checks.
var (
	_ drivers.I2C = (*File)(nil)
	_ drivers.SPI = SPI{}
)
