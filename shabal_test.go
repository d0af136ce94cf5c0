package main

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShabal256EmptyMessage(t *testing.T) {
	sum := shabal256Sum()
	assert.Equal(t, "aec750d11feee9f16271922fbaf5a9be142f62019ef8d720f858940070889014", hex.EncodeToString(sum[:]))
}

func TestShabal256StreamingMatchesOneShot(t *testing.T) {
	msg := make([]byte, 1000)
	for i := range msg {
		msg[i] = byte(i * 7)
	}
	want := shabal256Sum(msg)

	for _, chunk := range []int{1, 3, 63, 64, 65, 200} {
		h := newShabal256()
		for off := 0; off < len(msg); off += chunk {
			end := off + chunk
			if end > len(msg) {
				end = len(msg)
			}
			n, err := h.Write(msg[off:end])
			require.NoError(t, err)
			require.Equal(t, end-off, n)
		}
		assert.Equal(t, want[:], h.Sum(nil), "chunk %d", chunk)
	}
}

func TestShabal256SumDoesNotConsumeState(t *testing.T) {
	h := newShabal256()
	_, _ = h.Write([]byte("generation"))
	first := h.Sum(nil)
	assert.Equal(t, first, h.Sum(nil))

	_, _ = h.Write([]byte("signature"))
	want := shabal256Sum([]byte("generationsignature"))
	assert.Equal(t, want[:], h.Sum(nil))

	h.Reset()
	empty := shabal256Sum()
	assert.Equal(t, empty[:], h.Sum(nil))
}

func TestShabal256BlockBoundaries(t *testing.T) {
	seen := make(map[[32]byte]int)
	for _, n := range []int{0, 1, 55, 63, 64, 65, 127, 128, 129} {
		sum := shabal256Sum(bytes.Repeat([]byte{0xa5}, n))
		prev, dup := seen[sum]
		require.False(t, dup, "length %d collides with length %d", n, prev)
		seen[sum] = n
	}
	assert.Equal(t, 32, newShabal256().Size())
	assert.Equal(t, 64, newShabal256().BlockSize())
}
