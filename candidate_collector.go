package main

import "context"

type candidateDispatcher interface {
	Dispatch(cand NonceCandidate)
}

// CandidateCollector drains the backend's candidate stream in arrival order
// and forwards each nonce that beats the round's best deadline and the
// target. It never waits on a submission.
type CandidateCollector struct {
	state          *roundState
	candidates     *unboundedQueue[NonceCandidate]
	targetDeadline uint64
	dispatcher     candidateDispatcher
	metrics        *MinerMetrics
	onFatal        fatalFunc
}

func newCandidateCollector(state *roundState, candidates *unboundedQueue[NonceCandidate], targetDeadline uint64, dispatcher candidateDispatcher, metrics *MinerMetrics, onFatal fatalFunc) *CandidateCollector {
	if onFatal == nil {
		onFatal = fatal
	}
	return &CandidateCollector{
		state:          state,
		candidates:     candidates,
		targetDeadline: targetDeadline,
		dispatcher:     dispatcher,
		metrics:        metrics,
		onFatal:        onFatal,
	}
}

// Run returns when ctx is done. A queue that closes underneath it means the
// hashing backend is gone, which is fatal.
func (c *CandidateCollector) Run(ctx context.Context) {
	for {
		cand, ok := c.candidates.Pop(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			c.onFatal("candidate queue from hashing backend closed", errQueueClosed)
			return
		}
		c.handle(cand)
	}
}

func (c *CandidateCollector) handle(cand NonceCandidate) candidateVerdict {
	verdict := c.state.evaluateCandidate(cand, c.targetDeadline)
	c.metrics.RecordCandidate(verdict, cand.AdjustedDeadline)
	switch verdict {
	case verdictAccepted:
		if debugLogging {
			collectorLog.Debug("new best deadline", "height", cand.Height, "nonce", cand.Nonce, "deadline", cand.AdjustedDeadline)
		}
		c.dispatcher.Dispatch(cand)
	case verdictStale:
		if debugLogging {
			collectorLog.Debug("stale candidate dropped", "height", cand.Height, "nonce", cand.Nonce)
		}
	}
	return verdict
}
