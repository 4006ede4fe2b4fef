// Package telemetry provides opt-in, low-overhead Prometheus metrics and a
// periodic top-N summary logger for the checkstream pipeline. It is designed
// to be safe to call from hot paths: when disabled, all public functions are
// no-ops.
package telemetry

import (
	"hash/fnv"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the behavior of the telemetry module.
//
// SampleRate gates only the top-N exporter's per-rule trigger and per
// phase:action decision tallies (see exporter.go) — Prometheus counters and
// histograms always record every
// observation, deterministically, so dashboards never undercount.
type Config struct {
	Enabled     bool
	SampleRate  float64
	MetricsAddr string
	LogInterval time.Duration
	TopN        int
	KeyHashLen  int
}

var (
	modEnabled        atomic.Bool
	samplingThreshold atomic.Uint64

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkstream_requests_total",
		Help: "Total requests processed by phase outcome",
	}, []string{"phase", "outcome"})

	phaseLatencyMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkstream_phase_latency_ms",
		Help:    "Latency of each pipeline phase in milliseconds",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"phase"})

	phaseDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkstream_phase_decisions_total",
		Help: "Total policy decisions emitted per phase and action kind",
	}, []string{"phase", "action"})

	policyTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkstream_policy_triggers_total",
		Help: "Total times a named policy rule's trigger evaluated true",
	}, []string{"rule", "mode"})

	classifierLatencyMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkstream_classifier_latency_ms",
		Help:    "Latency of individual classifier invocations in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"classifier"})

	auditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkstream_audit_events_total",
		Help: "Total audit trail events by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(requestsTotal, phaseLatencyMs, phaseDecisionsTotal, policyTriggersTotal, classifierLatencyMs, auditEventsTotal)
}

// Enable configures the module. Safe to call multiple times; subsequent
// calls replace the previous config and restart the exporter loop.
func Enable(cfg Config) {
	if cfg.SampleRate < 0 {
		cfg.SampleRate = 0
	}
	if cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.KeyHashLen <= 0 {
		cfg.KeyHashLen = 8
	}

	var thr uint64
	switch {
	case cfg.SampleRate <= 0:
		thr = 0
	case cfg.SampleRate >= 1:
		thr = ^uint64(0)
	default:
		max := ^uint64(0)
		f := cfg.SampleRate * (float64(max) + 1.0)
		if f < 1 {
			f = 1
		}
		thr = uint64(f) - 1
	}
	samplingThreshold.Store(thr)
	modEnabled.Store(cfg.Enabled)

	startOrUpdateExporter(cfg)

	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether the telemetry module is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveRequest records a completed phase outcome (e.g. phase="ingress",
// outcome="stopped"|"continued").
func ObserveRequest(phase, outcome string) {
	if !modEnabled.Load() {
		return
	}
	requestsTotal.WithLabelValues(phase, outcome).Inc()
}

// ObservePhaseLatency records how long a pipeline phase took.
func ObservePhaseLatency(phase string, d time.Duration) {
	if !modEnabled.Load() {
		return
	}
	phaseLatencyMs.WithLabelValues(phase).Observe(float64(d.Microseconds()) / 1000.0)
}

// ObserveDecision records one emitted action for a phase.
func ObserveDecision(phase, action string) {
	if !modEnabled.Load() {
		return
	}
	phaseDecisionsTotal.WithLabelValues(phase, action).Inc()
	if sampled(phase + ":" + action) {
		exporterRecordDecision(hashKey(phase + ":" + action))
	}
}

// ObservePolicyTrigger records a rule's trigger firing in the given mode
// ("enforce" or "shadow").
func ObservePolicyTrigger(rule, mode string) {
	if !modEnabled.Load() {
		return
	}
	policyTriggersTotal.WithLabelValues(rule, mode).Inc()
	if sampled(rule) {
		exporterRecordTrigger(hashKey(rule), rule)
	}
}

// ObserveClassifierLatency records a single classifier invocation's latency.
func ObserveClassifierLatency(name string, d time.Duration) {
	if !modEnabled.Load() {
		return
	}
	classifierLatencyMs.WithLabelValues(name).Observe(float64(d.Microseconds()) / 1000.0)
}

// ObserveAuditEvent records an audit append outcome ("ok" or "error").
func ObserveAuditEvent(outcome string) {
	if !modEnabled.Load() {
		return
	}
	auditEventsTotal.WithLabelValues(outcome).Inc()
}

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

func sampled(key string) bool {
	thr := samplingThreshold.Load()
	if thr == 0 {
		return false
	}
	return hashKey(key) <= thr
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
