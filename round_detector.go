package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raulk/clock"
)

type miningInfoFetcher interface {
	FetchMiningInfo(ctx context.Context) (MiningInfo, error)
}

type fatalFunc func(msg string, err error, attrs ...any)

// RoundDetector polls the pool for mining info on a fixed interval, notices
// round changes and hands each new round to the hashing backend.
//
// At most one poll is in flight. A tick that fires while the previous poll
// is still running is skipped and counted.
type RoundDetector struct {
	client   miningInfoFetcher
	state    *roundState
	rounds   *unboundedQueue[RoundInfo]
	clock    clock.Clock
	interval time.Duration
	endpoint string
	metrics  *MinerMetrics
	notifier *discordNotifier
	onFatal  fatalFunc

	inFlight   atomic.Bool
	skipped    atomic.Uint64
	lastPollOK atomic.Int64
	trigger    chan struct{}
	wg         sync.WaitGroup
}

type roundDetectorOptions struct {
	Interval time.Duration
	Endpoint string
	Clock    clock.Clock
	Metrics  *MinerMetrics
	Notifier *discordNotifier
	OnFatal  fatalFunc
}

func newRoundDetector(client miningInfoFetcher, state *roundState, rounds *unboundedQueue[RoundInfo], opts roundDetectorOptions) *RoundDetector {
	if opts.Interval <= 0 {
		opts.Interval = defaultMiningInfoInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.OnFatal == nil {
		opts.OnFatal = fatal
	}
	return &RoundDetector{
		client:   client,
		state:    state,
		rounds:   rounds,
		clock:    opts.Clock,
		interval: opts.Interval,
		endpoint: opts.Endpoint,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		onFatal:  opts.OnFatal,
		trigger:  make(chan struct{}, 1),
	}
}

// Run polls once immediately and then on every tick until ctx is done. It
// waits for the poll in flight, if any, before returning.
func (d *RoundDetector) Run(ctx context.Context) {
	ticker := d.clock.Ticker(d.interval)
	defer ticker.Stop()
	defer d.wg.Wait()

	d.startPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.startPoll(ctx)
		case <-d.trigger:
			d.startPoll(ctx)
		}
	}
}

// RequestPoll asks for a poll ahead of the next tick. Requests made while
// one is already pending collapse into it.
func (d *RoundDetector) RequestPoll() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *RoundDetector) SkippedPolls() uint64 {
	return d.skipped.Load()
}

// LastPollOK is the time of the most recent successful poll, zero before one.
func (d *RoundDetector) LastPollOK() time.Time {
	ns := d.lastPollOK.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (d *RoundDetector) startPoll(ctx context.Context) bool {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		d.metrics.RecordSkippedPoll()
		if debugLogging {
			detectorLog.Debug("mining info poll still in flight; skipping tick")
		}
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Store(false)
		d.pollOnce(ctx)
	}()
	return true
}

// pollOnce fetches mining info once and reports the feed transition it
// logged, feedNoChange when nothing was worth a diagnostic.
func (d *RoundDetector) pollOnce(ctx context.Context) feedTransition {
	info, err := d.client.FetchMiningInfo(ctx)
	if ctx.Err() != nil {
		return feedNoChange
	}
	now := d.clock.Now()
	if err != nil {
		return d.handlePollFailure(now, err)
	}
	return d.handlePollSuccess(now, info)
}

func (d *RoundDetector) handlePollFailure(now time.Time, err error) feedTransition {
	transition := d.state.recordPollFailure(now)
	switch transition {
	case feedFirstPollFailed:
		detectorLog.Error("error getting mining info, please check server config", "url", d.endpoint, "error", err)
	case feedOutageStarted:
		detectorLog.Error("error getting mining info => connection outage", "url", d.endpoint, "error", err)
		d.notifier.Notify(noticeOutage, "Mining info feed lost: "+err.Error())
	default:
		if debugLogging {
			detectorLog.Debug("mining info poll failed", "error", err)
		}
	}
	d.metrics.RecordPollFailure(transition != feedNoChange)
	return transition
}

func (d *RoundDetector) handlePollSuccess(now time.Time, info MiningInfo) feedTransition {
	d.lastPollOK.Store(now.UnixNano())
	transition, outage := d.state.recordPollSuccess(now)
	if transition == feedRecovered {
		detectorLog.Info("outage resolved", "url", d.endpoint, "outage", formatOutageDuration(outage))
		d.notifier.Notify(noticeRecovered, "Mining info feed recovered after "+formatOutageDuration(outage))
	}
	d.applyMiningInfo(now, info)
	return transition
}

// applyMiningInfo starts a new round when the generation signature changed.
// Decoding and the scoop hash run before the state lock is taken; the push
// to the backend happens after it is released.
func (d *RoundDetector) applyMiningInfo(now time.Time, info MiningInfo) {
	if !d.state.signatureChanged(info.GenerationSignature) {
		return
	}
	gensig, err := decodeGenerationSignature(info.GenerationSignature)
	if err != nil {
		d.onFatal("pool sent a malformed generation signature", err, "height", info.Height, "signature", info.GenerationSignature)
		return
	}
	scoop := calculateScoop(info.Height, gensig)

	round, ok := d.state.beginRound(info, gensig, uint64(scoop), now)
	if !ok {
		return
	}
	detectorLog.Info("new block",
		"height", info.Height,
		"scoop", scoop,
		"basetarget", info.BaseTarget,
		"netdiff", networkDifficulty(info.BaseTarget),
	)
	d.metrics.RecordRound(info.Height)
	if err := d.rounds.Push(round); err != nil {
		d.onFatal("round queue to hashing backend closed", err, "height", info.Height)
	}
}
