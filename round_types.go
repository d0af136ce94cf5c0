package main

import "math"

// genesisBaseTarget is the base target of the genesis block; the network
// difficulty shown in logs is derived from it.
const genesisBaseTarget uint64 = 4_398_046_511_104

// infiniteDeadline marks "no deadline seen yet" for a round.
const infiniteDeadline uint64 = math.MaxUint64

// MiningInfo is one successful answer from the pool/node describing the
// round it currently mines on.
type MiningInfo struct {
	GenerationSignature string
	Height              uint64
	BaseTarget          uint64
	TargetDeadline      uint64
}

// RoundInfo is handed to the hashing backend when a new round starts. It is
// passed by value and never mutated after construction.
type RoundInfo struct {
	GenSig     [32]byte
	BaseTarget uint64
	Scoop      uint64
	Height     uint64
}

// NonceCandidate is produced by the hashing backend for each nonce worth
// looking at. AdjustedDeadline is the deadline in seconds (hit divided by
// base target); RawDeadline is the unscaled hit.
type NonceCandidate struct {
	AccountID        uint64
	Nonce            uint64
	Height           uint64
	RawDeadline      uint64
	AdjustedDeadline uint64
	Capacity         uint64
}

func networkDifficulty(baseTarget uint64) uint64 {
	if baseTarget == 0 {
		return 0
	}
	return genesisBaseTarget / 240 / baseTarget
}
