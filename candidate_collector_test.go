package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundLifecycleScenario(t *testing.T) {
	sig := testSignature(0x41)
	info := MiningInfo{GenerationSignature: sig, Height: 100, BaseTarget: 1000, TargetDeadline: 500}
	f := &scriptedFetcher{results: []pollResult{{info: info}}}
	d, state, rounds, fr := newTestDetector(t, f, nil)

	snap := state.snapshot()
	require.Zero(t, snap.Height)
	require.Equal(t, infiniteDeadline, snap.BestDeadline)

	d.pollOnce(context.Background())
	snap = state.snapshot()
	assert.Equal(t, uint64(100), snap.Height)
	assert.Equal(t, infiniteDeadline, snap.BestDeadline)
	round, ok := rounds.TryPop()
	require.True(t, ok)
	assert.Equal(t, uint64(100), round.Height)
	assert.Equal(t, uint64(1000), round.BaseTarget)

	disp := &recordingDispatcher{}
	candidates := newUnboundedQueue[NonceCandidate]()
	metrics := NewMinerMetrics()
	c := newCandidateCollector(state, candidates, 1000, disp, metrics, fr.fatal)

	assert.Equal(t, verdictAccepted, c.handle(NonceCandidate{Height: 100, Nonce: 1, AdjustedDeadline: 300}))
	assert.Equal(t, uint64(300), state.snapshot().BestDeadline)
	assert.Equal(t, verdictNotBetter, c.handle(NonceCandidate{Height: 100, Nonce: 2, AdjustedDeadline: 400}))
	assert.Equal(t, verdictStale, c.handle(NonceCandidate{Height: 99, Nonce: 3, AdjustedDeadline: 1}))

	dispatched := disp.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, uint64(1), dispatched[0].Nonce)

	before := state.snapshot()
	d.pollOnce(context.Background())
	assert.Equal(t, before, state.snapshot())
	assert.Zero(t, rounds.Len())
	assert.Empty(t, fr.Calls())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.candidates.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.candidates.WithLabelValues("not_better")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.candidates.WithLabelValues("stale")))
}

func TestCollectorDispatchesInArrivalOrder(t *testing.T) {
	state := newRoundState()
	startTestRound(t, state, testSignature(0x10), 7, 1, 0)
	candidates := newUnboundedQueue[NonceCandidate]()
	disp := &recordingDispatcher{}
	fr := &fatalRecorder{}
	c := newCandidateCollector(state, candidates, 1000, disp, nil, fr.fatal)

	for _, dl := range []uint64{900, 950, 800, 1200, 100, 100, 50} {
		require.NoError(t, candidates.Push(NonceCandidate{Height: 7, AdjustedDeadline: dl, Nonce: dl}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return candidates.Len() == 0 && len(disp.Dispatched()) == 4 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var got []uint64
	for _, cand := range disp.Dispatched() {
		got = append(got, cand.AdjustedDeadline)
	}
	assert.Equal(t, []uint64{900, 800, 100, 50}, got)
	assert.Empty(t, fr.Calls())
}

func TestCollectorClosedQueueIsFatal(t *testing.T) {
	candidates := newUnboundedQueue[NonceCandidate]()
	fr := &fatalRecorder{}
	c := newCandidateCollector(newRoundState(), candidates, infiniteDeadline, &recordingDispatcher{}, nil, fr.fatal)
	candidates.Close()

	c.Run(context.Background())

	calls := fr.Calls()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0].err, errQueueClosed)
}

func TestCollectorStopsQuietlyOnCancel(t *testing.T) {
	fr := &fatalRecorder{}
	c := newCandidateCollector(newRoundState(), newUnboundedQueue[NonceCandidate](), infiniteDeadline, &recordingDispatcher{}, nil, fr.fatal)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.Run(ctx)
	assert.Empty(t, fr.Calls())
}
