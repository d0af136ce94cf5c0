package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raulk/clock"
)

type poolAPI interface {
	miningInfoFetcher
	nonceSubmitter
}

type coordinatorOptions struct {
	Clock    clock.Clock
	Evaluate nonceEvaluator
	OnFatal  fatalFunc
	Devices  *hasherDeviceReport
}

// Coordinator owns the round state and the queues between the three
// long-running flows: round detection, hashing and candidate collection.
type Coordinator struct {
	cfg        Config
	state      *roundState
	rounds     *unboundedQueue[RoundInfo]
	candidates *unboundedQueue[NonceCandidate]

	metrics   *MinerMetrics
	stats     *hashStats
	ledger    *submissionLedger
	notifier  *discordNotifier
	detector  *RoundDetector
	backend   *HashingBackend
	submitter *Submitter
	collector *CandidateCollector
	zmq       *zmqRoundFeed
	status    *StatusServer
	devices   hasherDeviceReport
}

func newCoordinator(cfg Config, client poolAPI, ledger *submissionLedger, opts coordinatorOptions) *Coordinator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	var devices hasherDeviceReport
	if opts.Devices != nil {
		devices = *opts.Devices
	} else {
		devices = detectHasherDevices(cfg)
	}

	c := &Coordinator{
		cfg:        cfg,
		state:      newRoundState(),
		rounds:     newUnboundedQueue[RoundInfo](),
		candidates: newUnboundedQueue[NonceCandidate](),
		metrics:    NewMinerMetrics(),
		ledger:     ledger,
		devices:    devices,
	}
	c.stats = newHashStats(clk, cfg.BlocktimeSeconds, c.metrics)
	c.notifier = newDiscordNotifier(cfg, c.metrics)

	endpoint := cfg.URL
	if pc, ok := client.(*PoolClient); ok {
		endpoint = pc.Endpoint()
	}
	c.detector = newRoundDetector(client, c.state, c.rounds, roundDetectorOptions{
		Interval: cfg.MiningInfoInterval,
		Endpoint: endpoint,
		Clock:    clk,
		Metrics:  c.metrics,
		Notifier: c.notifier,
		OnFatal:  opts.OnFatal,
	})
	c.backend = newHashingBackend(c.rounds, c.candidates, hashingBackendOptions{
		AccountID:  cfg.NumericID,
		StartNonce: cfg.StartNonce,
		TaskSize:   cfg.CPUWorkerTaskSize,
		Threads:    devices.Threads,
		Stats:      c.stats,
		Evaluate:   opts.Evaluate,
		OnFatal:    opts.OnFatal,
	})

	c.submitter = newSubmitter(client, c.state, cfg.SubmitRetries)
	c.submitter.ledger = ledger
	c.submitter.metrics = c.metrics
	c.submitter.notifier = c.notifier
	c.collector = newCandidateCollector(c.state, c.candidates, cfg.TargetDeadline, c.submitter, c.metrics, opts.OnFatal)

	if cfg.ZMQRoundAddr != "" {
		c.zmq = newZMQRoundFeed(cfg.ZMQRoundAddr, c.detector)
	}
	c.status = &StatusServer{
		accountID: cfg.NumericID,
		state:     c.state,
		detector:  c.detector,
		stats:     c.stats,
		ledger:    ledger,
		zmq:       c.zmq,
		notifier:  c.notifier,
		devices:   devices,
		metrics:   c.metrics,
		limiter:   newStatusRateLimiter(statusRateLimit, statusRateWindow),
		startedAt: clk.Now(),
		now:       clk.Now,
	}
	return c
}

// Run blocks until ctx is done, then waits for in-flight submissions.
func (c *Coordinator) Run(ctx context.Context) error {
	c.devices.log()
	if err := c.notifier.start(ctx, c.cfg.DiscordBotToken); err != nil {
		logger.Warn("discord notifier failed to start; notices will be dropped", "error", err)
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fatal("panic in "+name, fmt.Errorf("%v", r))
				}
			}()
			fn(ctx)
		}()
	}
	run("hashing backend", c.backend.Run)
	run("candidate collector", c.collector.Run)
	run("hash stats", c.stats.run)
	run("round detector", c.detector.Run)
	if c.zmq != nil {
		run("zmq round feed", c.zmq.run)
	}

	statusErr := make(chan error, 1)
	if c.cfg.StatusListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statusErr <- c.status.serve(ctx, c.cfg.StatusListen)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-statusErr:
		if err != nil {
			err = fmt.Errorf("status server: %w", err)
		}
	}
	if err != nil {
		return err
	}
	wg.Wait()
	c.submitter.StopRetries()

	waitCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout*time.Duration(c.cfg.SubmitRetries+1)+time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.submitter.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-waitCtx.Done():
		logger.Warn("shutdown: submissions still in flight")
	}
	c.notifier.close()
	return nil
}
