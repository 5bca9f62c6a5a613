package pcm179x

import (
	"codecctl-go/errcode"
	"codecctl-go/x/conv"
)

type regInfo struct {
	def      byte
	writable bool
}

// Power-on defaults. Every listed register is readable; 0x16/0x17 mirror
// status and are read-only.
var regTable = map[byte]regInfo{
	regVolLeft:    {def: 0xff, writable: true},
	regVolRight:   {def: 0xff, writable: true},
	regFmtControl: {def: 0x50, writable: true},
	regModeCtrl:   {def: 0x00, writable: true},
	regConfCtrl:   {def: 0x00, writable: true},
	regMisc:       {def: 0x01, writable: true},
	regStatus0:    {def: 0x00},
	regStatus1:    {def: 0x00},
	regClock:      {def: 0x00, writable: true},
}

// IsReadable reports whether addr exists in the register map.
func IsReadable(addr byte) bool {
	_, ok := regTable[addr]
	return ok
}

// IsWritable reports whether addr exists and accepts writes.
func IsWritable(addr byte) bool {
	return regTable[addr].writable
}

// DefaultValue returns the power-on value of addr.
func DefaultValue(addr byte) (byte, bool) {
	ri, ok := regTable[addr]
	return ri.def, ok
}

// WritableRegisters lists the writable addresses in ascending order.
func WritableRegisters() []byte {
	out := make([]byte, 0, len(regTable))
	for a := byte(0); a <= maxRegister; a++ {
		if IsWritable(a) {
			out = append(out, a)
		}
	}
	return out
}

func checkWritable(op string, addr byte) error {
	if !IsWritable(addr) {
		return errcode.New(errcode.InvalidRegister, op, "register "+conv.Hex8(addr)+" not writable")
	}
	return nil
}

func checkReadable(op string, addr byte) error {
	if !IsReadable(addr) {
		return errcode.New(errcode.InvalidRegister, op, "register "+conv.Hex8(addr)+" not readable")
	}
	return nil
}

// regFile mirrors what was last written to the chip. It is seeded from the
// defaults and only advanced after a write succeeds.
type regFile struct {
	v [maxRegister + 1]byte
}

func newRegFile() *regFile {
	rf := &regFile{}
	for a, ri := range regTable {
		rf.v[a] = ri.def
	}
	return rf
}

func (rf *regFile) get(addr byte) byte { return rf.v[addr] }

func (rf *regFile) set(addr, val byte) { rf.v[addr] = val }

// merge applies a masked update to the mirrored value without storing it.
func (rf *regFile) merge(addr, mask, val byte) byte {
	return (rf.v[addr] &^ mask) | (val & mask)
}
