package main

import (
	"context"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPool struct {
	fetch  *scriptedFetcher
	submit *fakeSubmitter
}

func (p testPool) FetchMiningInfo(ctx context.Context) (MiningInfo, error) {
	return p.fetch.FetchMiningInfo(ctx)
}

func (p testPool) SubmitNonce(ctx context.Context, cand NonceCandidate) (SubmitResult, error) {
	return p.submit.SubmitNonce(ctx, cand)
}

func TestCoordinatorMinesAndSubmits(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.NumericID = 4242
	cfg.TargetDeadline = 5000
	cfg.CPUWorkerTaskSize = 8

	pool := testPool{
		fetch: &scriptedFetcher{results: []pollResult{{info: MiningInfo{
			GenerationSignature: testSignature(0x61),
			Height:              321,
			BaseTarget:          1,
		}}}},
		submit: &fakeSubmitter{},
	}
	ledger, err := openSubmissionLedger(cfg.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	fr := &fatalRecorder{}
	coord := newCoordinator(cfg, pool, ledger, coordinatorOptions{
		Clock: clock.NewMock(),
		Evaluate: func(_ *nonceGenerator, accountID, nonce uint64, round RoundInfo) uint64 {
			return 1000 + nonce
		},
		OnFatal: fr.fatal,
		Devices: &hasherDeviceReport{Threads: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Run(ctx) }()

	// nonce 0 has the lowest hit, so the round settles on deadline 1000
	require.Eventually(t, func() bool {
		return pool.submit.Calls() > 0 && coord.state.snapshot().BestDeadline == 1000
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Empty(t, fr.Calls())

	snap := coord.state.snapshot()
	assert.Equal(t, uint64(321), snap.Height)
	assert.Equal(t, uint64(1000), snap.BestDeadline)

	require.NoError(t, ledger.Flush(context.Background()))
	recs, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for _, r := range recs {
		assert.Equal(t, uint64(4242), r.AccountID)
		assert.Equal(t, uint64(321), r.Height)
		assert.Equal(t, submissionAccepted, r.Status)
	}
}

func TestCoordinatorHoldsBackCandidatesAboveTarget(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.NumericID = 1
	cfg.TargetDeadline = 10

	pool := testPool{
		fetch: &scriptedFetcher{results: []pollResult{{info: MiningInfo{
			GenerationSignature: testSignature(0x62),
			Height:              9,
			BaseTarget:          1,
		}}}},
		submit: &fakeSubmitter{},
	}
	coord := newCoordinator(cfg, pool, nil, coordinatorOptions{
		Clock: clock.NewMock(),
		Evaluate: func(_ *nonceGenerator, _, _ uint64, _ RoundInfo) uint64 {
			return 1 << 20
		},
		Devices: &hasherDeviceReport{Threads: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Run(ctx) }()

	require.Eventually(t, func() bool { return coord.stats.Total() > 0 && coord.state.snapshot().Height == 9 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Zero(t, pool.submit.Calls())
	assert.False(t, coord.state.snapshot().HasDeadline())
}
