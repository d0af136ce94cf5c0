package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultSubmitRetryInterval = 250 * time.Millisecond

type nonceSubmitter interface {
	SubmitNonce(ctx context.Context, cand NonceCandidate) (SubmitResult, error)
}

// Submitter sends accepted candidates to the pool, one goroutine each.
// Nothing in the round loop waits on it; Wait is only used at shutdown.
type Submitter struct {
	client        nonceSubmitter
	state         *roundState
	retries       int
	retryInterval time.Duration
	ledger        *submissionLedger
	metrics       *MinerMetrics
	notifier      *discordNotifier
	wg            sync.WaitGroup

	// retryCtx only bounds the pauses between attempts. A request already
	// on the wire runs to its own timeout.
	retryCtx    context.Context
	stopRetries context.CancelFunc
}

func newSubmitter(client nonceSubmitter, state *roundState, retries int) *Submitter {
	retryCtx, stop := context.WithCancel(context.Background())
	return &Submitter{
		client:        client,
		state:         state,
		retries:       retries,
		retryInterval: defaultSubmitRetryInterval,
		retryCtx:      retryCtx,
		stopRetries:   stop,
	}
}

// Dispatch starts the submission of cand and returns immediately.
func (s *Submitter) Dispatch(cand NonceCandidate) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				submitLog.Error("submission panic", "height", cand.Height, "nonce", cand.Nonce, "error", r)
			}
		}()
		s.submit(cand)
	}()
}

func (s *Submitter) Wait() {
	s.wg.Wait()
}

// StopRetries ends any pending retry pause at shutdown. Submissions waiting
// to retry are recorded as failed.
func (s *Submitter) StopRetries() {
	s.stopRetries()
}

// submit retries transport errors up to s.retries extra times while the
// round is still current. A pool rejection is final.
func (s *Submitter) submit(cand NonceCandidate) submissionRecord {
	rec := submissionRecord{
		Height:    cand.Height,
		AccountID: cand.AccountID,
		Nonce:     cand.Nonce,
		Deadline:  cand.AdjustedDeadline,
	}
	start := time.Now()

	for {
		rec.Attempts++
		res, err := s.client.SubmitNonce(context.Background(), cand)
		if err == nil {
			rec.Status = submissionAccepted
			rec.ServerDeadline = res.ServerDeadline
			if res.ServerDeadline != cand.AdjustedDeadline {
				submitLog.Warn("deadline mismatch",
					"height", cand.Height,
					"nonce", cand.Nonce,
					"local_deadline", cand.AdjustedDeadline,
					"server_deadline", res.ServerDeadline,
				)
			}
			submitLog.Info("deadline accepted",
				"account", cand.AccountID,
				"height", cand.Height,
				"nonce", cand.Nonce,
				"deadline", cand.AdjustedDeadline,
				"attempts", rec.Attempts,
			)
			s.notifier.Notify(noticeSubmission, fmt.Sprintf("height %d nonce %d deadline %ds", cand.Height, cand.Nonce, cand.AdjustedDeadline))
			return s.finish(rec)
		}
		rec.Error = err.Error()

		if errors.Is(err, errSubmitRejected) {
			rec.Status = submissionRejected
			submitLog.Warn("submission not accepted",
				"height", cand.Height,
				"nonce", cand.Nonce,
				"deadline", cand.AdjustedDeadline,
				"error", err,
			)
			return s.finish(rec)
		}

		if cur := s.state.currentHeight(); cur != cand.Height {
			rec.Status = submissionStale
			submitLog.Warn("submission giving up after new round seen",
				"original_height", cand.Height,
				"current_height", cur,
				"attempts", rec.Attempts,
				"error", err,
			)
			return s.finish(rec)
		}

		if rec.Attempts > s.retries {
			rec.Status = submissionFailed
			submitLog.Error("submission failed",
				"height", cand.Height,
				"nonce", cand.Nonce,
				"attempts", rec.Attempts,
				"duration", time.Since(start).Round(time.Millisecond),
				"error", err,
			)
			return s.finish(rec)
		}

		if rec.Attempts == 1 {
			submitLog.Warn("submit nonce error; retrying", "height", cand.Height, "nonce", cand.Nonce, "error", err)
		}
		if err := sleepContext(s.retryCtx, s.retryInterval); err != nil {
			rec.Status = submissionFailed
			submitLog.Warn("submission retry abandoned at shutdown",
				"height", cand.Height,
				"nonce", cand.Nonce,
				"attempts", rec.Attempts,
			)
			return s.finish(rec)
		}
	}
}

func (s *Submitter) finish(rec submissionRecord) submissionRecord {
	s.metrics.RecordSubmission(string(rec.Status))
	s.ledger.Record(rec)
	return rec
}
