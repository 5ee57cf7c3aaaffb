package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionStatus *prometheus.GaugeVec
	Turns         *prometheus.CounterVec
	TurnErrors    *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec
	WSMessages    *prometheus.CounterVec
	InitSignals   *prometheus.CounterVec

	window *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg instead of the default registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_status",
			Help:      "1 for the current session status, 0 otherwise.",
		}, []string{"status"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by input kind and outcome.",
		}, []string{"kind", "outcome"}),
		TurnErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Errors reported to the user by kind and stage.",
		}, []string{"kind", "stage"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 800, 1200, 2000, 4000, 8000},
		}, []string{"stage"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		InitSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_signals_total",
			Help:      "Subsystem initialization attempts by subsystem and result.",
		}, []string{"subsystem", "result"}),
		window: newStageWindow(256),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.window.Observe(stage, ms)
}

func (m *Metrics) ObserveTurn(kind, outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind, outcome).Inc()
	m.window.ObserveIndicator("turn_" + outcome)
}

func (m *Metrics) ObserveError(kind, stage string) {
	if m == nil {
		return
	}
	m.TurnErrors.WithLabelValues(kind, stage).Inc()
}

func (m *Metrics) ObserveInit(subsystem string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.InitSignals.WithLabelValues(subsystem, result).Inc()
}

// SetStatus marks status as the only active session status.
func (m *Metrics) SetStatus(status string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.SessionStatus.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ObserveWS(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// StageSnapshot returns rolling percentiles for recent turns.
func (m *Metrics) StageSnapshot() TurnStageSnapshot {
	if m == nil {
		return newStageWindow(0).Snapshot()
	}
	return m.window.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.window.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
