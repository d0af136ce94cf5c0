package main

import (
	"sync"
	"time"
)

// feedHealth is the state of the mining-info feed as seen by the poller.
type feedHealth int

const (
	// feedStarting: no poll has completed yet.
	feedStarting feedHealth = iota
	feedHealthy
	// feedDegraded: the most recent poll failed; degradedSince holds the
	// first failure of the current streak.
	feedDegraded
)

func (h feedHealth) String() string {
	switch h {
	case feedStarting:
		return "starting"
	case feedHealthy:
		return "healthy"
	case feedDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// feedTransition tells the caller which diagnostic, if any, a poll outcome
// deserves. Only transitions are reported, never steady states.
type feedTransition int

const (
	feedNoChange feedTransition = iota
	feedFirstPollFailed
	feedOutageStarted
	feedRecovered
)

type candidateVerdict int

const (
	verdictAccepted candidateVerdict = iota
	verdictStale
	verdictNotBetter
	verdictAboveTarget
)

func (v candidateVerdict) String() string {
	switch v {
	case verdictAccepted:
		return "accepted"
	case verdictStale:
		return "stale"
	case verdictNotBetter:
		return "not_better"
	case verdictAboveTarget:
		return "above_target"
	default:
		return "unknown"
	}
}

// roundState is the only state shared by the round detector and the
// candidate collector. Every field is read and written under mu; no method
// performs I/O or hashing while holding it.
type roundState struct {
	mu                   sync.Mutex
	generationSignature  string
	baseTarget           uint64
	height               uint64
	scoop                uint64
	serverTargetDeadline uint64
	bestDeadline         uint64
	roundStartedAt       time.Time
	health               feedHealth
	degradedSince        time.Time
}

func newRoundState() *roundState {
	return &roundState{
		baseTarget:           1,
		serverTargetDeadline: infiniteDeadline,
		bestDeadline:         infiniteDeadline,
		health:               feedStarting,
	}
}

// signatureChanged reports whether sig differs from the active round. The
// detector uses it to skip decoding on the common no-change poll.
func (s *roundState) signatureChanged(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sig != s.generationSignature
}

// beginRound installs a new round from info and resets the best deadline.
// gensig and scoop must already be derived from info. It returns false, and
// changes nothing, when info carries the signature of the active round.
func (s *roundState) beginRound(info MiningInfo, gensig [32]byte, scoop uint64, now time.Time) (RoundInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info.GenerationSignature == s.generationSignature {
		return RoundInfo{}, false
	}
	s.generationSignature = info.GenerationSignature
	s.height = info.Height
	s.baseTarget = info.BaseTarget
	s.serverTargetDeadline = info.TargetDeadline
	s.scoop = scoop
	s.bestDeadline = infiniteDeadline
	s.roundStartedAt = now
	return RoundInfo{
		GenSig:     gensig,
		BaseTarget: s.baseTarget,
		Scoop:      scoop,
		Height:     s.height,
	}, true
}

// recordPollSuccess leaves the state untouched when the feed is already
// healthy, so steady polling of an unchanged round writes nothing.
func (s *roundState) recordPollSuccess(now time.Time) (feedTransition, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.health {
	case feedHealthy:
		return feedNoChange, 0
	case feedDegraded:
		since := s.degradedSince
		s.health = feedHealthy
		s.degradedSince = time.Time{}
		return feedRecovered, now.Sub(since)
	default:
		s.health = feedHealthy
		return feedNoChange, 0
	}
}

func (s *roundState) recordPollFailure(now time.Time) feedTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.health {
	case feedStarting:
		s.health = feedDegraded
		s.degradedSince = now
		return feedFirstPollFailed
	case feedHealthy:
		s.health = feedDegraded
		s.degradedSince = now
		return feedOutageStarted
	default:
		return feedNoChange
	}
}

// evaluateCandidate applies the stale-height gate, the best-so-far gate and
// the target gate, in that order, and records the deadline when all pass.
// targetDeadline is the operator bar. The server-advertised target is kept
// for status only and never gates a candidate.
func (s *roundState) evaluateCandidate(c NonceCandidate, targetDeadline uint64) candidateVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Height != s.height {
		return verdictStale
	}
	if c.AdjustedDeadline >= s.bestDeadline {
		return verdictNotBetter
	}
	if c.AdjustedDeadline >= targetDeadline {
		return verdictAboveTarget
	}
	s.bestDeadline = c.AdjustedDeadline
	return verdictAccepted
}

// currentHeight is read by the submitter to stop retrying once a round is over.
func (s *roundState) currentHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

type roundSnapshot struct {
	GenerationSignature  string
	Height               uint64
	BaseTarget           uint64
	Scoop                uint64
	ServerTargetDeadline uint64
	BestDeadline         uint64
	RoundStartedAt       time.Time
	Health               feedHealth
	DegradedSince        time.Time
}

func (s *roundState) snapshot() roundSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return roundSnapshot{
		GenerationSignature:  s.generationSignature,
		Height:               s.height,
		BaseTarget:           s.baseTarget,
		Scoop:                s.scoop,
		ServerTargetDeadline: s.serverTargetDeadline,
		BestDeadline:         s.bestDeadline,
		RoundStartedAt:       s.roundStartedAt,
		Health:               s.health,
		DegradedSince:        s.degradedSince,
	}
}

func (r roundSnapshot) InOutage() bool    { return r.Health == feedDegraded }
func (r roundSnapshot) FirstPoll() bool   { return r.Health == feedStarting }
func (r roundSnapshot) HasDeadline() bool { return r.BestDeadline != infiniteDeadline }
