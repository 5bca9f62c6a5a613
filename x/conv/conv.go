// Package conv formats integers without fmt or strconv so the drivers stay
// usable on TinyGo targets.
package conv

// Utoa returns the base-10 representation of n.
func Utoa(n uint64) string {
	var buf [20]byte
	return string(utoa(buf[:], n))
}

// Itoa returns the base-10 representation of n.
func Itoa(n int64) string {
	var buf [21]byte
	if n >= 0 {
		return string(utoa(buf[:], uint64(n)))
	}
	b := utoa(buf[1:], uint64(-n))
	i := len(buf) - len(b) - 1
	buf[i] = '-'
	return string(buf[i:])
}

// Hex8 returns b as "0x" followed by two lowercase hex digits.
func Hex8(b byte) string {
	const hexd = "0123456789abcdef"
	return string([]byte{'0', 'x', hexd[b>>4], hexd[b&0xf]})
}

// utoa writes digits backwards into buf and returns the used tail.
func utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + (n % 10))
		n /= 10
	}
	return buf[i:]
}
