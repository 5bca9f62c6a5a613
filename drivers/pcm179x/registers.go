package pcm179x

const (
	// 7-bit I2C address with ADR1=ADR0=0 (1001_100b).
	AddressDefault = 0x4C

	// --- Register sub-addresses (8-bit registers) ---
	regVolLeft    = 0x10 // R/W, attenuation left
	regVolRight   = 0x11 // R/W, attenuation right
	regFmtControl = 0x12 // R/W, ATLD, FMT, DSD filter, soft mute
	regModeCtrl   = 0x13 // R/W, invert, rolloff
	regConfCtrl   = 0x14 // R/W, DSD enable
	regMisc       = 0x15 // R/W
	regStatus0    = 0x16 // R
	regStatus1    = 0x17 // R
	regClock      = 0x20 // R/W, board clock/DSD/SPDIF latch

	maxRegister = regClock

	// --- FMT_CONTROL (0x12) ---
	fmtMask   = 0x70
	fmtShift  = 4
	muteMask  = 0x01
	atldBit   = 1 << 7
	dsdFilter = 0x3 << 2

	// --- MODE_CONTROL (0x13) ---
	modeInvertBit  = 1 << 7
	modeRolloffBit = 1 << 1

	// --- CONF_CONTROL (0x14) ---
	confDSDEnable = 1 << 5

	// --- STATUS (0x16, 0x17) ---
	zeroRight = 1 << 0
	zeroLeft  = 1 << 1
	idMask    = 0x1f
)

// dsdFilterSel places a 2-bit DSD filter selection into FMT_CONTROL.
func dsdFilterSel(x byte) byte { return (x & 0x3) << 2 }

// ClockBits is the value of the board clock register (0x20).
type ClockBits byte

const (
	CLK2     ClockBits = 1 << 0
	CLK1     ClockBits = 1 << 1
	CLK0     ClockBits = 1 << 2
	W32      ClockBits = 1 << 3
	DSDEn    ClockBits = 1 << 4
	SPDIFIn  ClockBits = 1 << 5
	SPDIFSel ClockBits = 1 << 6

	spdifMask = SPDIFIn | SPDIFSel
)

func (b ClockBits) Has(flag ClockBits) bool { return b&flag != 0 }
