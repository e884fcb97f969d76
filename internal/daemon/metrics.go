package daemon

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdeck/opsdeck/internal/models"
)

// Metrics collects Prometheus counters and histograms for opsdeckd.
type Metrics struct {
	registry              *prometheus.Registry
	operationsTotal       *prometheus.CounterVec
	operationSeconds      *prometheus.HistogramVec
	functionBatchesTotal  prometheus.Counter
	functionsDeployed     prometheus.Counter
	leadSubmissionsTotal  *prometheus.CounterVec
	chatMessagesTotal     *prometheus.CounterVec
	quizSessionsActiveNow prometheus.Gauge
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "deploy",
			Name:      "operations_total",
			Help:      "Total deploy-dashboard operations by kind and result.",
		},
		[]string{"kind", "result"},
	)
	operationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opsdeck",
			Subsystem: "deploy",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of deploy-dashboard operations.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)
	functionBatchesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "deploy",
			Name:      "function_batches_total",
			Help:      "Total batch requests issued by the function deployer.",
		},
	)
	functionsDeployed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "deploy",
			Name:      "functions_deployed_total",
			Help:      "Total functions reported deployed across all runs.",
		},
	)
	leadSubmissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "quiz",
			Name:      "lead_submissions_total",
			Help:      "Total quiz lead submissions by result.",
		},
		[]string{"result"},
	)
	chatMessagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total chat messages by role.",
		},
		[]string{"role"},
	)
	quizSessionsActiveNow := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "opsdeck",
			Subsystem: "quiz",
			Name:      "sessions_active",
			Help:      "Quiz runtime sessions currently held in memory.",
		},
	)

	registry.MustRegister(
		operationsTotal,
		operationSeconds,
		functionBatchesTotal,
		functionsDeployed,
		leadSubmissionsTotal,
		chatMessagesTotal,
		quizSessionsActiveNow,
	)

	return &Metrics{
		registry:              registry,
		operationsTotal:       operationsTotal,
		operationSeconds:      operationSeconds,
		functionBatchesTotal:  functionBatchesTotal,
		functionsDeployed:     functionsDeployed,
		leadSubmissionsTotal:  leadSubmissionsTotal,
		chatMessagesTotal:     chatMessagesTotal,
		quizSessionsActiveNow: quizSessionsActiveNow,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOperation(kind string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(kind, result).Inc()
	if seconds := duration.Seconds(); seconds >= 0 {
		m.operationSeconds.WithLabelValues(kind).Observe(seconds)
	}
}

func (m *Metrics) AddFunctionBatches(batches int) {
	if m == nil || batches <= 0 {
		return
	}
	m.functionBatchesTotal.Add(float64(batches))
}

func (m *Metrics) AddFunctionsDeployed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.functionsDeployed.Add(float64(count))
}

func (m *Metrics) IncLeadSubmission(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.leadSubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncChatMessage(role models.ChatRole) {
	if m == nil {
		return
	}
	m.chatMessagesTotal.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) SetActiveQuizSessions(count int) {
	if m == nil {
		return
	}
	m.quizSessionsActiveNow.Set(float64(count))
}
