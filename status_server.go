package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusRecentSubmissions = 20
	statusRecentMax         = 200
)

type feedStatus struct {
	Health       string    `json:"health"`
	InOutage     bool      `json:"in_outage"`
	OutageFor    string    `json:"outage_for,omitempty"`
	LastPollOK   time.Time `json:"last_poll_ok,omitempty"`
	SkippedPolls uint64    `json:"skipped_polls"`
	ZMQEnabled   bool      `json:"zmq_enabled"`
	ZMQHealthy   bool      `json:"zmq_healthy"`
}

type statusSnapshot struct {
	Software             string             `json:"software"`
	Version              string             `json:"version"`
	Uptime               string             `json:"uptime"`
	AccountID            uint64             `json:"account_id"`
	Height               uint64             `json:"height"`
	GenerationSignature  string             `json:"generation_signature"`
	BaseTarget           uint64             `json:"base_target"`
	NetDiff              uint64             `json:"netdiff"`
	Scoop                uint64             `json:"scoop"`
	RoundAge             string             `json:"round_age,omitempty"`
	ServerTargetDeadline *uint64            `json:"server_target_deadline,omitempty"`
	BestDeadline         *uint64            `json:"best_deadline,omitempty"`
	Feed                 feedStatus         `json:"feed"`
	NoncesPerSecond      float64            `json:"nonces_per_second"`
	CapacityGiB          uint64             `json:"capacity_gib"`
	NoncesHashed         uint64             `json:"nonces_hashed"`
	NotifierDropped      uint64             `json:"notifier_dropped,omitempty"`
	Devices              hasherDeviceReport `json:"devices"`
	Submissions          []submissionRecord `json:"submissions"`
}

// StatusServer serves a JSON view of the miner and its Prometheus metrics.
type StatusServer struct {
	accountID uint64
	state     *roundState
	detector  *RoundDetector
	stats     *hashStats
	ledger    *submissionLedger
	zmq       *zmqRoundFeed
	notifier  *discordNotifier
	devices   hasherDeviceReport
	metrics   *MinerMetrics
	limiter   *statusRateLimiter
	startedAt time.Time
	now       func() time.Time
}

func (s *StatusServer) snapshot(ctx context.Context, recent int) statusSnapshot {
	now := s.now()
	rs := s.state.snapshot()
	out := statusSnapshot{
		Software:            softwareName,
		Version:             buildVersion,
		Uptime:              humanShortDuration(now.Sub(s.startedAt)),
		AccountID:           s.accountID,
		Height:              rs.Height,
		GenerationSignature: rs.GenerationSignature,
		BaseTarget:          rs.BaseTarget,
		NetDiff:             networkDifficulty(rs.BaseTarget),
		Scoop:               rs.Scoop,
		Feed: feedStatus{
			Health:     rs.Health.String(),
			InOutage:   rs.InOutage(),
			ZMQEnabled: s.zmq != nil,
		},
		NotifierDropped: s.notifier.Dropped(),
		Devices:         s.devices,
	}
	if !rs.RoundStartedAt.IsZero() {
		out.RoundAge = humanShortDuration(now.Sub(rs.RoundStartedAt))
	}
	if rs.ServerTargetDeadline != 0 && rs.ServerTargetDeadline != infiniteDeadline {
		v := rs.ServerTargetDeadline
		out.ServerTargetDeadline = &v
	}
	if rs.HasDeadline() {
		v := rs.BestDeadline
		out.BestDeadline = &v
	}
	if rs.InOutage() && !rs.DegradedSince.IsZero() {
		out.Feed.OutageFor = formatOutageDuration(now.Sub(rs.DegradedSince))
	}
	if s.detector != nil {
		out.Feed.SkippedPolls = s.detector.SkippedPolls()
		out.Feed.LastPollOK = s.detector.LastPollOK()
	}
	if s.zmq != nil {
		out.Feed.ZMQHealthy = s.zmq.Healthy()
	}
	if s.stats != nil {
		out.NoncesPerSecond = s.stats.Rate()
		out.CapacityGiB = s.stats.CapacityGiB()
		out.NoncesHashed = s.stats.Total()
	}
	if recs, err := s.ledger.Recent(ctx, recent); err != nil {
		logger.Warn("status: load recent submissions", "error", err)
	} else {
		out.Submissions = recs
	}
	if out.Submissions == nil {
		out.Submissions = []submissionRecord{}
	}
	return out
}

func (s *StatusServer) handleStatus(c *gin.Context) {
	recent := statusRecentSubmissions
	if v := c.Query("submissions"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "submissions must be a non-negative integer"})
			return
		}
		if n > statusRecentMax {
			n = statusRecentMax
		}
		recent = n
	}
	body, err := fastJSONMarshal(s.snapshot(c.Request.Context(), recent))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *StatusServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/status", s.limiter.middleware(), s.handleStatus)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

// serve blocks until ctx is done or the listener fails.
func (s *StatusServer) serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
