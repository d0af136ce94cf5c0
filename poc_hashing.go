package main

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	scoopsPerNonce = 4096
	scoopSize      = 64
	hashSize       = 32
	// hashCap bounds how much trailing data feeds each hash in the nonce chain.
	hashCap   = 4096
	nonceSize = scoopsPerNonce * scoopSize
)

var errBadGenerationSignature = errors.New("malformed generation signature")

// decodeGenerationSignature turns the 64 hex characters the pool sends into
// the 32 raw bytes every hash of the round is seeded with.
func decodeGenerationSignature(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 2*len(out) {
		return out, fmt.Errorf("%w: want %d hex characters, got %d", errBadGenerationSignature, 2*len(out), len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("%w: %v", errBadGenerationSignature, err)
	}
	return out, nil
}

// calculateScoop picks which of the 4096 scoops of every nonce takes part in
// the round at height.
func calculateScoop(height uint64, gensig [32]byte) uint32 {
	var data [40]byte
	copy(data[:32], gensig[:])
	binary.BigEndian.PutUint64(data[32:], height)
	h := shabal256Sum(data[:])
	return (uint32(h[30])<<8 | uint32(h[31])) % scoopsPerNonce
}

func calculateHit(gensig [32]byte, scoopData []byte) uint64 {
	h := shabal256Sum(gensig[:], scoopData)
	return binary.LittleEndian.Uint64(h[:8])
}

func calculateDeadline(hit, baseTarget uint64) uint64 {
	if baseTarget == 0 {
		return infiniteDeadline
	}
	return hit / baseTarget
}
