package main

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raulk/clock"
)

const (
	hashStatsSampleInterval = 5 * time.Second
	// hashRateTau smooths the rate so one slow sample does not swing the
	// reported capacity.
	hashRateTau = 60 * time.Second
)

// hashStats counts evaluated nonces and turns the rate into the capacity a
// plotted disk would need to match it.
type hashStats struct {
	clock     clock.Clock
	blocktime uint64
	metrics   *MinerMetrics

	total atomic.Uint64

	mu         sync.Mutex
	lastTotal  uint64
	lastSample time.Time
	rate       float64
}

func newHashStats(clk clock.Clock, blocktime uint64, metrics *MinerMetrics) *hashStats {
	if clk == nil {
		clk = clock.New()
	}
	if blocktime == 0 {
		blocktime = defaultBlocktimeSeconds
	}
	return &hashStats{clock: clk, blocktime: blocktime, metrics: metrics, lastSample: clk.Now()}
}

func (s *hashStats) add(n uint64) {
	if n == 0 {
		return
	}
	s.total.Add(n)
	s.metrics.RecordHashing(n)
}

func (s *hashStats) Total() uint64 {
	return s.total.Load()
}

// sample folds the nonces counted since the previous sample into the
// smoothed rate.
func (s *hashStats) sample() {
	now := s.clock.Now()
	total := s.total.Load()

	s.mu.Lock()
	elapsed := now.Sub(s.lastSample)
	if elapsed <= 0 {
		s.mu.Unlock()
		return
	}
	inst := float64(total-s.lastTotal) / elapsed.Seconds()
	if s.rate == 0 {
		s.rate = inst
	} else {
		alpha := 1 - math.Exp(-elapsed.Seconds()/hashRateTau.Seconds())
		s.rate += alpha * (inst - s.rate)
	}
	s.lastTotal = total
	s.lastSample = now
	rate := s.rate
	s.mu.Unlock()

	s.metrics.SetHashrate(rate, capacityGiB(rate, s.blocktime))
}

func (s *hashStats) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// CapacityGiB is reported to the pool as the miner's capacity.
func (s *hashStats) CapacityGiB() uint64 {
	return uint64(math.Round(capacityGiB(s.Rate(), s.blocktime)))
}

func (s *hashStats) run(ctx context.Context) {
	ticker := s.clock.Ticker(hashStatsSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// capacityGiB: a disk scans each of its nonces once per block, so hashing
// rate nonces per second over a block equals rate*blocktime nonces on disk.
func capacityGiB(rate float64, blocktime uint64) float64 {
	return rate * float64(blocktime) * nonceSize / (1 << 30)
}
