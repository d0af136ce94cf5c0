package main

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/remeh/sizedwaitgroup"
)

// nonceEvaluator returns the hit of one nonce for round.
type nonceEvaluator func(gen *nonceGenerator, accountID, nonce uint64, round RoundInfo) uint64

func evaluateGeneratedNonce(gen *nonceGenerator, accountID, nonce uint64, round RoundInfo) uint64 {
	return gen.hitFor(accountID, nonce, round.GenSig, uint32(round.Scoop))
}

// HashingBackend mines rounds taken from the round queue on a CPU worker
// pool and streams improving candidates to the candidate queue. Only the
// newest round is mined: every round bumps a generation counter and
// workers stop as soon as theirs is stale.
type HashingBackend struct {
	accountID  uint64
	startNonce uint64
	taskSize   uint64
	threads    int

	rounds     *unboundedQueue[RoundInfo]
	candidates *unboundedQueue[NonceCandidate]
	stats      *hashStats
	evaluate   nonceEvaluator
	onFatal    fatalFunc

	generation atomic.Uint64
	generators sync.Pool
}

type hashingBackendOptions struct {
	AccountID  uint64
	StartNonce uint64
	TaskSize   uint64
	Threads    int
	Stats      *hashStats
	Evaluate   nonceEvaluator
	OnFatal    fatalFunc
}

func newHashingBackend(rounds *unboundedQueue[RoundInfo], candidates *unboundedQueue[NonceCandidate], opts hashingBackendOptions) *HashingBackend {
	if opts.TaskSize == 0 {
		opts.TaskSize = defaultCPUWorkerTask
	}
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	if opts.Evaluate == nil {
		opts.Evaluate = evaluateGeneratedNonce
	}
	if opts.OnFatal == nil {
		opts.OnFatal = fatal
	}
	if opts.Stats == nil {
		opts.Stats = newHashStats(nil, defaultBlocktimeSeconds, nil)
	}
	b := &HashingBackend{
		accountID:  opts.AccountID,
		startNonce: opts.StartNonce,
		taskSize:   opts.TaskSize,
		threads:    opts.Threads,
		rounds:     rounds,
		candidates: candidates,
		stats:      opts.Stats,
		evaluate:   opts.Evaluate,
		onFatal:    opts.OnFatal,
	}
	b.generators.New = func() any { return newNonceGenerator() }
	return b
}

func (b *HashingBackend) current(gen uint64) bool {
	return b.generation.Load() == gen
}

// Run consumes rounds until ctx is done. The round in progress is abandoned
// when a newer one arrives.
func (b *HashingBackend) Run(ctx context.Context) {
	var (
		wg     sync.WaitGroup
		cancel context.CancelFunc = func() {}
	)
	defer func() {
		b.generation.Add(1)
		cancel()
		wg.Wait()
	}()

	for {
		round, ok := b.rounds.Pop(ctx)
		if !ok {
			if ctx.Err() == nil {
				b.onFatal("round queue to hashing backend closed", errQueueClosed)
			}
			return
		}
		// Rounds that piled up behind this one are already stale.
		for {
			next, more := b.rounds.TryPop()
			if !more {
				break
			}
			round = next
		}

		gen := b.generation.Add(1)
		cancel()
		wg.Wait()

		var roundCtx context.Context
		roundCtx, cancel = context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.mineRound(roundCtx, round, gen)
		}()
	}
}

func (b *HashingBackend) mineRound(ctx context.Context, round RoundInfo, gen uint64) {
	swg := sizedwaitgroup.New(b.threads)
	var best atomic.Uint64
	best.Store(math.MaxUint64)

	next := b.startNonce
	for ctx.Err() == nil && b.current(gen) {
		swg.Add()
		if ctx.Err() != nil || !b.current(gen) {
			swg.Done()
			break
		}
		start := next
		next += b.taskSize
		go func() {
			defer swg.Done()
			b.mineTask(round, gen, start, &best)
		}()
	}
	swg.Wait()
}

// mineTask evaluates one work package and emits its best nonce when it
// beats everything this backend already emitted for the round.
func (b *HashingBackend) mineTask(round RoundInfo, gen, start uint64, best *atomic.Uint64) {
	g := b.generators.Get().(*nonceGenerator)
	defer b.generators.Put(g)

	var (
		bestHit   uint64 = math.MaxUint64
		bestNonce uint64
		hashed    uint64
	)
	for i := uint64(0); i < b.taskSize; i++ {
		if !b.current(gen) {
			break
		}
		nonce := start + i
		hit := b.evaluate(g, b.accountID, nonce, round)
		hashed++
		if hit < bestHit {
			bestHit = hit
			bestNonce = nonce
		}
	}
	b.stats.add(hashed)
	if hashed == 0 || !b.current(gen) {
		return
	}

	deadline := calculateDeadline(bestHit, round.BaseTarget)
	for {
		cur := best.Load()
		if deadline >= cur {
			return
		}
		if best.CompareAndSwap(cur, deadline) {
			break
		}
	}

	cand := NonceCandidate{
		AccountID:        b.accountID,
		Nonce:            bestNonce,
		Height:           round.Height,
		RawDeadline:      bestHit,
		AdjustedDeadline: deadline,
		Capacity:         b.stats.CapacityGiB(),
	}
	if err := b.candidates.Push(cand); err != nil {
		b.onFatal("candidate queue to collector closed", err, "height", round.Height)
	}
}
