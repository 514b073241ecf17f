// Package sig implements the PakBus rolling signature and its nullifier.
package sig

// Seed is the initial signature value for a fresh computation.
const Seed uint16 = 0xAAAA

// NullifierLen is the size of the trailer appended to every signed packet.
const NullifierLen = 2

// Signature folds buf into the running signature seed.
func Signature(buf []byte, seed uint16) uint16 {
	s := uint32(seed)
	for _, x := range buf {
		j := s
		s = (s << 1) & 0x1FF
		if s >= 0x100 {
			s++
		}
		s = (((s + (j >> 8) + uint32(x)) & 0xFF) | (j << 8)) & 0xFFFF
	}
	return uint16(s)
}

// Nullifier returns the two bytes that drive the signature of the
// preceding stream to zero.
func Nullifier(s uint16) [NullifierLen]byte {
	var out [NullifierLen]byte
	var prev []byte
	for i := range out {
		s = Signature(prev, s)
		s2 := (uint32(s) << 1) & 0x1FF
		if s2 >= 0x100 {
			s2++
		}
		b := byte((0x100 - (s2 + uint32(s>>8))) & 0xFF)
		out[i] = b
		prev = []byte{b}
	}
	return out
}

// Sign returns p followed by its nullifier.
func Sign(p []byte) []byte {
	n := Nullifier(Signature(p, Seed))
	out := make([]byte, 0, len(p)+NullifierLen)
	out = append(out, p...)
	return append(out, n[:]...)
}

// Verify reports whether signed ends with the nullifier of its body.
func Verify(signed []byte) bool {
	if len(signed) < NullifierLen {
		return false
	}
	body := signed[:len(signed)-NullifierLen]
	n := Nullifier(Signature(body, Seed))
	return signed[len(signed)-2] == n[0] && signed[len(signed)-1] == n[1]
}
