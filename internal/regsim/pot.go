package regsim

import "sync"

// Pot simulates a DS1807-style dual potentiometer: a two-byte write of
// (command, position) sets one or both wipers, a bare read returns both.
type Pot struct {
	mu     sync.Mutex
	addr   uint16
	wipers [2]byte
	fail   error
}

func NewPot(addr uint16) *Pot { return &Pot{addr: addr} }

// Wiper returns the raw position of wiper ch.
func (p *Pot) Wiper(ch int) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wipers[ch]
}

// Fail makes every transaction fail with err until cleared with nil.
func (p *Pot) Fail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

func (p *Pot) Tx(addr uint16, w, r []byte) error {
	if addr != p.addr {
		return ErrNoDevice
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}

	switch {
	case len(w) == 2 && w[0]&0xf8 == 0xa8:
		sel := w[0] & 0x07
		if sel&0x1 != 0 {
			p.wipers[0] = w[1]
		}
		if sel&0x2 != 0 {
			p.wipers[1] = w[1]
		}
		return nil
	case len(w) == 0:
		copy(r, p.wipers[:])
		return nil
	}
	return ErrProtocol
}
