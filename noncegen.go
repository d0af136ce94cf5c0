package main

import "encoding/binary"

// nonceGenerator builds nonces on the fly so the CPU backend can mine
// without plot files. One generator per worker; it is not safe for
// concurrent use.
type nonceGenerator struct {
	gendata []byte
	h       shabal256
}

func newNonceGenerator() *nonceGenerator {
	return &nonceGenerator{gendata: make([]byte, nonceSize+16)}
}

// generate fills the generator buffer with the plain (PoC1 ordered) nonce
// and returns it. The slice is reused by the next call.
func (g *nonceGenerator) generate(accountID, nonce uint64) []byte {
	buf := g.gendata
	binary.BigEndian.PutUint64(buf[nonceSize:], accountID)
	binary.BigEndian.PutUint64(buf[nonceSize+8:], nonce)

	for i := nonceSize; i > 0; i -= hashSize {
		end := i + hashCap
		if end > len(buf) {
			end = len(buf)
		}
		g.h.Reset()
		_, _ = g.h.Write(buf[i:end])
		g.h.sumInto(buf[i-hashSize : i])
	}

	g.h.Reset()
	_, _ = g.h.Write(buf)
	final := g.h.checkSum()
	for i := 0; i < nonceSize; i++ {
		buf[i] ^= final[i%hashSize]
	}
	return buf[:nonceSize]
}

// poc2Scoop assembles the 64 bytes of scoop in PoC2 order: the first hash
// of the scoop itself and the second hash of its mirror scoop.
func poc2Scoop(nonceData []byte, scoop uint32, out []byte) {
	mirror := scoopsPerNonce - 1 - scoop
	off := int(scoop) * scoopSize
	moff := int(mirror)*scoopSize + hashSize
	copy(out[:hashSize], nonceData[off:off+hashSize])
	copy(out[hashSize:scoopSize], nonceData[moff:moff+hashSize])
}

// hitFor generates nonce for accountID and returns its hit for the
// round described by gensig and scoop.
func (g *nonceGenerator) hitFor(accountID, nonce uint64, gensig [32]byte, scoop uint32) uint64 {
	data := g.generate(accountID, nonce)
	var scoopData [scoopSize]byte
	poc2Scoop(data, scoop, scoopData[:])
	return calculateHit(gensig, scoopData[:])
}
