package pcm179x

import "tinygo.org/x/drivers"

// Transport is the register access the codec needs from its control bus.
// Errors are returned verbatim; retries, if any, belong to the transport.
type Transport interface {
	WriteRegister(reg, val byte) error
	// ReadRegisters fills buf from consecutive registers starting at start.
	ReadRegisters(start byte, buf []byte) error
}

// I2CTransport talks to the codec over I2C with a register-pointer write.
// NOTE: drivers.I2C.Tx MUST issue a repeated start between w and r.
type I2CTransport struct {
	bus  drivers.I2C
	addr uint16

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [1]byte
}

// NewI2C binds an I2C transport. addr 0 selects AddressDefault.
func NewI2C(bus drivers.I2C, addr uint16) *I2CTransport {
	if addr == 0 {
		addr = AddressDefault
	}
	return &I2CTransport{bus: bus, addr: addr}
}

func (t *I2CTransport) WriteRegister(reg, val byte) error {
	t.w[0] = reg
	t.w[1] = val
	return t.bus.Tx(t.addr, t.w[:2], nil)
}

// ReadRegisters reads one register per transaction; auto-increment is not
// relied upon.
func (t *I2CTransport) ReadRegisters(start byte, buf []byte) error {
	for i := range buf {
		t.w[0] = start + byte(i)
		if err := t.bus.Tx(t.addr, t.w[:1], t.r[:]); err != nil {
			return err
		}
		buf[i] = t.r[0]
	}
	return nil
}

// SPITransport talks to the codec over its 16-bit SPI control port: the
// first byte carries R/W (bit 7, 1 = read) and the 7-bit index, the second
// carries data.
type SPITransport struct {
	bus drivers.SPI

	w [2]byte
	r [2]byte
}

const spiRead = 0x80

func NewSPI(bus drivers.SPI) *SPITransport {
	return &SPITransport{bus: bus}
}

func (t *SPITransport) WriteRegister(reg, val byte) error {
	t.w[0] = reg &^ spiRead
	t.w[1] = val
	return t.bus.Tx(t.w[:], nil)
}

func (t *SPITransport) ReadRegisters(start byte, buf []byte) error {
	for i := range buf {
		t.w[0] = (start + byte(i)) | spiRead
		t.w[1] = 0
		if err := t.bus.Tx(t.w[:], t.r[:]); err != nil {
			return err
		}
		buf[i] = t.r[1]
	}
	return nil
}
