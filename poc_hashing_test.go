package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGenerationSignature(t *testing.T) {
	gensig, err := decodeGenerationSignature(testSignature(0x5a))
	require.NoError(t, err)
	for _, b := range gensig {
		require.Equal(t, byte(0x5a), b)
	}

	for _, bad := range []string{"", "A", testSignature(1)[:62], testSignature(1) + "00", "zz" + testSignature(1)[2:]} {
		_, err := decodeGenerationSignature(bad)
		assert.ErrorIs(t, err, errBadGenerationSignature, "%q", bad)
	}
}

func TestCalculateScoopInRangeAndHeightDependent(t *testing.T) {
	gensig, err := decodeGenerationSignature(testSignature(0x33))
	require.NoError(t, err)

	distinct := make(map[uint32]bool)
	for h := uint64(1); h <= 64; h++ {
		s := calculateScoop(h, gensig)
		require.Less(t, s, uint32(scoopsPerNonce))
		require.Equal(t, s, calculateScoop(h, gensig))
		distinct[s] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestCalculateDeadline(t *testing.T) {
	assert.Equal(t, uint64(300), calculateDeadline(300_000, 1000))
	assert.Equal(t, uint64(0), calculateDeadline(999, 1000))
	assert.Equal(t, infiniteDeadline, calculateDeadline(12345, 0))
}

func TestCalculateHitDependsOnScoopData(t *testing.T) {
	gensig, err := decodeGenerationSignature(testSignature(0x01))
	require.NoError(t, err)
	var a, b [scoopSize]byte
	b[scoopSize-1] = 1

	assert.Equal(t, calculateHit(gensig, a[:]), calculateHit(gensig, a[:]))
	assert.NotEqual(t, calculateHit(gensig, a[:]), calculateHit(gensig, b[:]))
}

func TestNetworkDifficulty(t *testing.T) {
	assert.Equal(t, uint64(0), networkDifficulty(0))
	assert.Equal(t, genesisBaseTarget/240, networkDifficulty(1))
}

func TestCapacityGiB(t *testing.T) {
	// 4096 nonces per second over 240s is 983040 nonces of 256KiB each.
	assert.True(t, almostEqualFloat64(240, capacityGiB(4096, 240), 1e-9))
	assert.Zero(t, capacityGiB(0, 240))
}
