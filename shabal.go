package main

import (
	"encoding/binary"
	"hash"
	"math"
	"math/bits"
)

const (
	shabalBlockSize = 64
	shabal256Size   = 32
)

// shabalState is the Shabal A/B/C register set plus the 64-bit block counter.
type shabalState struct {
	a    [12]uint32
	b, c [16]uint32
	w    uint64
}

// shabal256IV is the state after the two prefix blocks that encode the
// 256-bit output size, computed once instead of carried as a constant table.
var shabal256IV = func() shabalState {
	s := shabalState{w: math.MaxUint64}
	var m [16]uint32
	for i := range m {
		m[i] = uint32(256 + i)
	}
	s.block(&m)
	for i := range m {
		m[i] = uint32(256 + 16 + i)
	}
	s.block(&m)
	return s
}()

func (s *shabalState) xorW() {
	s.a[0] ^= uint32(s.w)
	s.a[1] ^= uint32(s.w >> 32)
}

func (s *shabalState) permute(m *[16]uint32) {
	for i := range s.b {
		s.b[i] = bits.RotateLeft32(s.b[i], 17)
	}
	for j := 0; j < 3; j++ {
		for i := 0; i < 16; i++ {
			k := (16*j + i) % 12
			prev := (k + 11) % 12
			a := (s.a[k] ^ bits.RotateLeft32(s.a[prev], 15)*5 ^ s.c[(8-i)&15]) * 3
			a ^= s.b[(i+13)&15] ^ (s.b[(i+9)&15] &^ s.b[(i+6)&15]) ^ m[i]
			s.a[k] = a
			s.b[i] = ^(bits.RotateLeft32(s.b[i], 1) ^ a)
		}
	}
	for j := 0; j < 36; j++ {
		s.a[j%12] += s.c[(j+3)%16]
	}
}

func (s *shabalState) block(m *[16]uint32) {
	for i := range s.b {
		s.b[i] += m[i]
	}
	s.xorW()
	s.permute(m)
	for i := range s.c {
		s.c[i] -= m[i]
	}
	s.b, s.c = s.c, s.b
	s.w++
}

func decodeShabalBlock(m *[16]uint32, p []byte) {
	for i := range m {
		m[i] = binary.LittleEndian.Uint32(p[4*i:])
	}
}

// shabal256 implements hash.Hash for Shabal-256, the hash PoC plots and
// deadlines are built on.
type shabal256 struct {
	s   shabalState
	buf [shabalBlockSize]byte
	n   int
}

var _ hash.Hash = (*shabal256)(nil)

func newShabal256() *shabal256 {
	h := &shabal256{}
	h.Reset()
	return h
}

func (h *shabal256) Reset() {
	h.s = shabal256IV
	h.n = 0
}

func (h *shabal256) Size() int      { return shabal256Size }
func (h *shabal256) BlockSize() int { return shabalBlockSize }

func (h *shabal256) Write(p []byte) (int, error) {
	written := len(p)
	var m [16]uint32
	if h.n > 0 {
		c := copy(h.buf[h.n:], p)
		h.n += c
		p = p[c:]
		if h.n < shabalBlockSize {
			return written, nil
		}
		decodeShabalBlock(&m, h.buf[:])
		h.s.block(&m)
		h.n = 0
	}
	for len(p) >= shabalBlockSize {
		decodeShabalBlock(&m, p)
		h.s.block(&m)
		p = p[shabalBlockSize:]
	}
	h.n = copy(h.buf[:], p)
	return written, nil
}

func (h *shabal256) Sum(b []byte) []byte {
	sum := h.checkSum()
	return append(b, sum[:]...)
}

func (h *shabal256) sumInto(out []byte) {
	sum := h.checkSum()
	copy(out, sum[:])
}

func (h *shabal256) checkSum() [shabal256Size]byte {
	s := h.s
	var last [shabalBlockSize]byte
	copy(last[:], h.buf[:h.n])
	last[h.n] = 0x80
	var m [16]uint32
	decodeShabalBlock(&m, last[:])

	for i := range s.b {
		s.b[i] += m[i]
	}
	s.xorW()
	s.permute(&m)
	for k := 0; k < 3; k++ {
		s.b, s.c = s.c, s.b
		s.xorW()
		s.permute(&m)
	}

	var out [shabal256Size]byte
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(out[4*i:], s.b[8+i])
	}
	return out
}

// shabal256Sum hashes the concatenation of parts.
func shabal256Sum(parts ...[]byte) [shabal256Size]byte {
	var h shabal256
	h.Reset()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.checkSum()
}
