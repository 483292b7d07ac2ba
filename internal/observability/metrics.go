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
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	PaymentOutcomes    *prometheus.CounterVec
	PaymentWait        prometheus.Histogram
	PayoutDispatches   *prometheus.CounterVec
	PayoutQueueDepth   prometheus.Gauge
	VoiceGuardActions  *prometheus.CounterVec
	CommandInvocations *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of slot sessions held in memory.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		PaymentOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcomes_total",
			Help:      "Payment correlation outcomes.",
		}, []string{"outcome"}),
		PaymentWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_wait_seconds",
			Help:      "Time from instruction to confirmed payment.",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180},
		}),
		PayoutDispatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_dispatches_total",
			Help:      "Payout instructions by result.",
		}, []string{"result"}),
		PayoutQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payout_queue_depth",
			Help:      "Payout requests waiting for the dispatcher.",
		}),
		VoiceGuardActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voiceguard_disconnects_total",
			Help:      "Voice guard disconnects by rule and result.",
		}, []string{"rule", "result"}),
		CommandInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_invocations_total",
			Help:      "Slash command invocations by command and result.",
		}, []string{"command", "result"}),
	}
}

func (m *Metrics) ObservePaymentWait(d time.Duration) {
	if m == nil {
		return
	}
	m.PaymentWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObservePaymentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePayout(result string) {
	if m == nil {
		return
	}
	m.PayoutDispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPayoutQueueDepth(n int) {
	if m == nil {
		return
	}
	m.PayoutQueueDepth.Set(float64(n))
}

func (m *Metrics) ObserveVoiceGuard(rule, result string) {
	if m == nil {
		return
	}
	m.VoiceGuardActions.WithLabelValues(rule, result).Inc()
}

func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.CommandInvocations.WithLabelValues(command, result).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
