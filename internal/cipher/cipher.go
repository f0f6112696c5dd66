// Package cipher implements the stream obfuscation codec applied to IPF
// entry payloads: a keyed state of three 32-bit registers that produces a
// per-byte mask over every other byte of the entry's compressed bytes.
//
// The state is single-use: Encrypt and Decrypt each reconstruct it from
// scratch from the fixed password below, so there is nothing to carry over
// between entries and nothing to reset.
package cipher

// Initial register constants and the fixed password folded into them
// before any entry bytes are processed. These are format constants, not
// secrets worth protecting; every IPF archive in the wild uses them.
const (
	k0Init uint32 = 0x12345678
	k1Init uint32 = 0x23456789
	k2Init uint32 = 0x34567890
)

var password = [20]byte{
	0x6F, 0x66, 0x4F, 0x31, 0x61, 0x30, 0x75, 0x65, 0x58, 0x41,
	0x3F, 0x20, 0x5B, 0xFF, 0x73, 0x20, 0x68, 0x20, 0x25, 0x3F,
}

// state holds the three registers that drive the mask stream.
type state struct {
	k0, k1, k2 uint32
}

// generate builds a fresh key schedule: the documented initial constants,
// then the password folded in one byte at a time through update.
func generate() *state {
	s := &state{k0: k0Init, k1: k1Init, k2: k2Init}
	for _, b := range password {
		s.update(b)
	}
	return s
}

// update folds byte b into the state. k1's multiply-add wraps in 32 bits,
// which is exactly what Go's uint32 arithmetic does by default.
func (s *state) update(b byte) {
	s.k0 = crc32Step(s.k0, b)
	s.k1 = 0x08088405*((s.k0&0xFF)+s.k1) + 1
	s.k2 = crc32Step(s.k2, byte(s.k1>>24))
}

// mask derives the byte to XOR into the stream from the current state.
func (s *state) mask() byte {
	v := uint32(s.k2&0xFFFD) | 2
	return byte((v * (v ^ 1)) >> 8 & 0xFF)
}

// stride returns the number of even-indexed bytes a pass over n bytes
// touches: 0, 2, 4, ... Zero-length input is never processed.
func stride(n int) int {
	if n == 0 {
		return 0
	}
	return ((n - 1) >> 1) + 1
}

// Decrypt reverses the obfuscation applied by Encrypt, in place, over buf.
// On each step the mask is drawn from the state as it stands before this
// step's update, used to unmask the byte; the state is then advanced from
// the resulting plaintext byte.
func Decrypt(buf []byte) {
	n := stride(len(buf))
	if n == 0 {
		return
	}
	s := generate()
	for i := 0; i < n; i++ {
		idx := i * 2
		m := s.mask()
		buf[idx] ^= m
		s.update(buf[idx])
	}
}

// Encrypt is the inverse of Decrypt. The mask is drawn from the state
// exactly as it stood before this step's update, same as Decrypt; the
// state is then advanced from the plaintext byte (still unmasked at this
// point) before the byte is masked into ciphertext. Encrypt and Decrypt
// read the same mask at each step only because both capture it before
// calling update; reordering the two statements to compute the mask
// after update would break the involution this cipher depends on.
func Encrypt(buf []byte) {
	n := stride(len(buf))
	if n == 0 {
		return
	}
	s := generate()
	for i := 0; i < n; i++ {
		idx := i * 2
		m := s.mask()
		s.update(buf[idx])
		buf[idx] ^= m
	}
}
