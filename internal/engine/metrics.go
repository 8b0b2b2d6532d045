package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: заявки по исходу (submitted, invalid, delivery_failed)
	Requests *prometheus.CounterVec

	// Решения согласующих (approve, reject, duplicate, expired, unknown)
	Decisions *prometheus.CounterVec

	// Latency: вызовы Slack Web API
	SlackCallDuration *prometheus.HistogramVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_requests_total",
			Help: "Approval request submissions by outcome.",
		}, []string{"outcome"}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_decisions_total",
			Help: "Decision clicks by result.",
		}, []string{"decision"}),

		SlackCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvalbot_slack_call_duration_seconds",
			Help:    "Histogram of Slack Web API call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // open_view, post_message, update_message, store, notify

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "approvalbot_circuit_breaker_state",
			Help: "Current state of the Slack circuit breaker (0=closed, 1=open, 0.5=half-open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "approvalbot_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
