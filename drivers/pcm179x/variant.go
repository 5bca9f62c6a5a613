package pcm179x

import "codecctl-go/errcode"

// Variant identifies one member of the codec family.
type Variant uint8

const (
	VariantUnknown Variant = iota
	PCM1792A
	PCM1795
	PCM1796
)

func (v Variant) String() string {
	switch v {
	case PCM1792A:
		return "PCM1792A"
	case PCM1795:
		return "PCM1795"
	case PCM1796:
		return "PCM1796"
	}
	return "unknown"
}

// Format is the sample format negotiated by the audio pipeline.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatS16LE
	FormatS24LE
	FormatS32LE
	FormatDSDU16LE
)

func (f Format) String() string {
	switch f {
	case FormatS16LE:
		return "S16_LE"
	case FormatS24LE:
		return "S24_LE"
	case FormatS32LE:
		return "S32_LE"
	case FormatDSDU16LE:
		return "DSD_U16_LE"
	}
	return "unknown"
}

// Width returns the sample container width in bits.
func (f Format) Width() uint8 {
	switch f {
	case FormatS16LE, FormatDSDU16LE:
		return 16
	case FormatS24LE:
		return 24
	case FormatS32LE:
		return 32
	}
	return 0
}

// ParseFormat accepts the ALSA format names ("S16_LE", "DSD_U16_LE", ...).
func ParseFormat(s string) (Format, error) {
	for f := FormatS16LE; f <= FormatDSDU16LE; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FormatUnknown, errcode.New(errcode.InvalidParams, "parse format", s)
}

// FormatMask is a set of formats.
type FormatMask uint8

func (m FormatMask) Has(f Format) bool { return m&(1<<f) != 0 }

func maskOf(fs ...Format) FormatMask {
	var m FormatMask
	for _, f := range fs {
		m |= 1 << f
	}
	return m
}

var (
	pcmFormats = maskOf(FormatS16LE, FormatS24LE, FormatS32LE)
	dsdFormats = pcmFormats | maskOf(FormatDSDU16LE)
)

// Formats returns the sample formats the variant accepts on playback.
func (v Variant) Formats() FormatMask {
	if v == PCM1795 {
		return dsdFormats
	}
	return pcmFormats
}

// MaxRate returns the playback rate ceiling in Hz.
func (v Variant) MaxRate() uint32 {
	if v == PCM1795 {
		return 705600
	}
	return 192000
}

// Compatible strings accepted from board configuration. PCM1796 is
// register-compatible with PCM1792A and shares its capabilities.
var compatibles = [...]struct {
	s string
	v Variant
}{
	{"ti,pcm1792a", PCM1792A},
	{"ti,pcm1795", PCM1795},
	{"ti,pcm1796", PCM1796},
}

// VariantFromCompatible resolves a board compatible string.
func VariantFromCompatible(s string) (Variant, error) {
	for _, c := range compatibles {
		if c.s == s {
			return c.v, nil
		}
	}
	return VariantUnknown, errcode.New(errcode.Unsupported, "compatible", s)
}
