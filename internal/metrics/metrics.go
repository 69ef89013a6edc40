package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages observed by StageDuration.
const (
	StageTranscribe = "transcribe"
	StageRoute      = "route"
	StageSynthesize = "synthesize"
	StagePlay       = "play"
)

// Utterance outcomes.
const (
	OutcomeReplied     = "replied"
	OutcomeFallback    = "fallback"
	OutcomeSilent      = "silent"
	OutcomeEmpty       = "empty_transcript"
	OutcomeInterrupted = "interrupted"
)

// Metrics holds the Prometheus collectors for the call pipeline.
type Metrics struct {
	registry *prometheus.Registry

	ActiveCalls         prometheus.Gauge
	CallsTotal          *prometheus.CounterVec
	UtterancesTotal     *prometheus.CounterVec
	ResponderInvocation *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	DroppedChunks       prometheus.Counter
	AuditJobs           *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "callgate"
	}

	registry := prometheus.NewRegistry()

	activeCalls := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_calls",
		Help:      "Number of calls with a live session",
	})

	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_ended_total",
		Help:      "Calls ended, by reason",
	}, []string{"reason"})

	utterances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "utterances_total",
		Help:      "Segmented utterances, by outcome",
	}, []string{"outcome"})

	responders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "responder_invocations_total",
		Help:      "Responder invocations, by responder and status",
	}, []string{"responder", "status"})

	stage := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Per-utterance pipeline stage latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_chunks_total",
		Help:      "Audio chunks dropped as malformed or for unknown calls",
	})

	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_jobs_total",
		Help:      "Audit stream jobs processed, by status",
	}, []string{"status"})

	registry.MustRegister(
		activeCalls,
		callsTotal,
		utterances,
		responders,
		stage,
		dropped,
		audit,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:            registry,
		ActiveCalls:         activeCalls,
		CallsTotal:          callsTotal,
		UtterancesTotal:     utterances,
		ResponderInvocation: responders,
		StageDuration:       stage,
		DroppedChunks:       dropped,
		AuditJobs:           audit,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// The Record* helpers accept a nil receiver so callers can run without metrics.

func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

func (m *Metrics) RecordCallEnd(reason string) {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
	m.CallsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordUtterance(outcome string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordResponder(responder string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ResponderInvocation.WithLabelValues(responder, status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordDroppedChunk() {
	if m == nil {
		return
	}
	m.DroppedChunks.Inc()
}

func (m *Metrics) RecordAuditJob(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AuditJobs.WithLabelValues(status).Inc()
}
