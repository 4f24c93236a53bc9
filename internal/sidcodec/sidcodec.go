// Package sidcodec implements the base-62 aid/sid codec.
// See doc.go for complete package documentation.
package sidcodec

// maxDigits is the length of the longest possible sid: 2^64-1 needs
// eleven base-62 digits.
const maxDigits = 11

// Encode returns the base-62 string form of an aid, least significant
// digit first. Every uint64 has exactly one canonical encoding; zero
// encodes as "0".
func Encode(aid uint64) string {
	var buf [maxDigits]byte
	n := 0
	for {
		c := byte(aid % 62)
		switch {
		case c < 10:
			c += '0'
		case c < 36:
			c += 'A' - 10
		default:
			c += 'a' - 36
		}
		buf[n] = c
		n++
		aid /= 62
		if aid == 0 {
			break
		}
	}
	return string(buf[:n])
}

// Decode converts a sid back to the aid it encodes. It is the exact
// inverse of Encode for every canonical sid.
func Decode(sid string) uint64 {
	var aid uint64
	shift := uint64(1)
	for i := 0; i < len(sid); i++ {
		c := sid[i]
		switch {
		case c <= '9':
			c -= '0'
		case c <= 'Z':
			c -= 'A' - 10
		default:
			c -= 'a' - 36
		}
		aid += shift * uint64(c)
		shift *= 62
	}
	return aid
}
