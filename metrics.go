package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "gopoc"

// MinerMetrics holds the collectors for one miner instance on a private
// registry, so tests can build as many instances as they like.
type MinerMetrics struct {
	registry *prometheus.Registry

	rounds        prometheus.Counter
	height        prometheus.Gauge
	pollFailures  prometheus.Counter
	feedOutages   prometheus.Counter
	skippedPolls  prometheus.Counter
	candidates    *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	bestDeadline  prometheus.Gauge
	noncesHashed  prometheus.Counter
	hashrate      prometheus.Gauge
	capacityGiB   prometheus.Gauge
	notifierDrops prometheus.Counter
}

func NewMinerMetrics() *MinerMetrics {
	m := &MinerMetrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_total",
			Help:      "number of new rounds seen",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "round_height",
			Help:      "height of the current round",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mining_info_poll_failures_total",
			Help:      "failed mining info requests",
		}),
		feedOutages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mining_info_outages_total",
			Help:      "outage onsets of the mining info feed",
		}),
		skippedPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mining_info_polls_skipped_total",
			Help:      "poll ticks skipped because a poll was still in flight",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "candidates_total",
			Help:      "nonce candidates by collector verdict",
		}, []string{"verdict"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "nonce submissions by outcome",
		}, []string{"outcome"}),
		bestDeadline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "best_deadline_seconds",
			Help:      "best accepted deadline of the current round",
		}),
		noncesHashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "nonces_hashed_total",
			Help:      "nonces evaluated by the hashing backend",
		}),
		hashrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "nonces_per_second",
			Help:      "recent nonce evaluation rate",
		}),
		capacityGiB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "virtual_capacity_gib",
			Help:      "capacity equivalent of the current hashing rate",
		}),
		notifierDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifier_dropped_total",
			Help:      "notices dropped because the notifier queue was full",
		}),
	}
	m.registry.MustRegister(
		m.rounds, m.height, m.pollFailures, m.feedOutages, m.skippedPolls,
		m.candidates, m.submissions, m.bestDeadline,
		m.noncesHashed, m.hashrate, m.capacityGiB, m.notifierDrops,
	)
	return m
}

func (m *MinerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MinerMetrics) RecordRound(height uint64) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.height.Set(float64(height))
	m.bestDeadline.Set(0)
}

func (m *MinerMetrics) RecordPollFailure(onset bool) {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
	if onset {
		m.feedOutages.Inc()
	}
}

func (m *MinerMetrics) RecordSkippedPoll() {
	if m == nil {
		return
	}
	m.skippedPolls.Inc()
}

func (m *MinerMetrics) RecordCandidate(v candidateVerdict, deadline uint64) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(v.String()).Inc()
	if v == verdictAccepted {
		m.bestDeadline.Set(float64(deadline))
	}
}

func (m *MinerMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *MinerMetrics) RecordHashing(nonces uint64) {
	if m == nil || nonces == 0 {
		return
	}
	m.noncesHashed.Add(float64(nonces))
}

func (m *MinerMetrics) SetHashrate(noncesPerSec, capacityGiB float64) {
	if m == nil {
		return
	}
	m.hashrate.Set(noncesPerSec)
	m.capacityGiB.Set(capacityGiB)
}

func (m *MinerMetrics) RecordNotifierDrop() {
	if m == nil {
		return
	}
	m.notifierDrops.Inc()
}
