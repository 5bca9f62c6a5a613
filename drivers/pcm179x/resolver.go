package pcm179x

import (
	"codecctl-go/errcode"
	"codecctl-go/x/conv"
)

// Protocol is the DAI sub-format negotiated with the host.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolI2S
	ProtocolRightJ
	ProtocolLeftJ
	ProtocolDSPA
)

func (p Protocol) String() string {
	switch p {
	case ProtocolI2S:
		return "i2s"
	case ProtocolRightJ:
		return "right_j"
	case ProtocolLeftJ:
		return "left_j"
	case ProtocolDSPA:
		return "dsp_a"
	}
	return "unknown"
}

// ParseProtocol accepts the names produced by Protocol.String.
func ParseProtocol(s string) (Protocol, error) {
	for p := ProtocolI2S; p <= ProtocolDSPA; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return ProtocolUnknown, errcode.New(errcode.InvalidParams, "parse protocol", s)
}

// Resolution is the register image derived from one set of stream params.
type Resolution struct {
	Clock        ClockBits // rate and format bits for 0x20
	FormatSelect uint8     // 3-bit FMT field for 0x12
}

// Resolve maps stream parameters to register fields. It has no side effects
// and rejects unsupported combinations with errcode.RejectedConfig.
func Resolve(rate uint32, f Format, p Protocol, width uint8) (Resolution, error) {
	var clk ClockBits

	switch rate {
	case 44100:
	case 48000:
		clk |= CLK0
	case 88200:
		clk |= CLK1
	case 96000:
		clk |= CLK1 | CLK0
	case 176400:
		clk |= CLK2 | CLK1
	case 192000:
		clk |= CLK2 | CLK1 | CLK0
	case 352800, 705600:
		// These rates work only for DSD.
		if f != FormatDSDU16LE {
			return Resolution{}, reject("rate " + conv.Utoa(uint64(rate)) + " requires DSD")
		}
		clk |= CLK1 | W32
		if rate == 352800 {
			clk |= CLK2
		}
	default:
		return Resolution{}, reject("unsupported rate " + conv.Utoa(uint64(rate)))
	}

	switch f {
	case FormatDSDU16LE:
		clk |= DSDEn
	case FormatS16LE:
	case FormatS24LE, FormatS32LE:
		clk |= W32
	default:
		return Resolution{}, reject("unsupported format " + f.String())
	}

	sel, ok := formatSelect(p, width)
	if !ok {
		return Resolution{}, reject("unsupported " + p.String() + "/" + conv.Utoa(uint64(width)))
	}
	return Resolution{Clock: clk, FormatSelect: sel}, nil
}

// formatSelect is the FMT field lookup. I2S has no dedicated 32-bit code on
// this part: 16 and 32 bits both use code 4.
func formatSelect(p Protocol, width uint8) (uint8, bool) {
	switch p {
	case ProtocolRightJ:
		switch width {
		case 16:
			return 0, true
		case 24:
			return 2, true
		case 32:
			return 1, true
		}
	case ProtocolI2S:
		switch width {
		case 16, 32:
			return 4, true
		case 24:
			return 5, true
		}
	}
	return 0, false
}

func reject(msg string) error {
	return errcode.New(errcode.RejectedConfig, "resolve", msg)
}
