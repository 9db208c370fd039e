package ivr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ivr"

// Metrics prometheus метрики IVR endpoint'ов.
// Nil *Metrics допустим: все методы в этом случае ничего не делают.
type Metrics struct {
	signalsTotal     *prometheus.CounterVec
	responsesTotal   *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	discardedTotal   *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	listenerErrors   prometheus.Counter
	ackLatency       prometheus.Histogram
	endpointsActive  prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg. Если reg == nil, используется
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		signalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signals_total",
			Help:      "Signals sent to the media gateway",
		}, []string{"signal"}),
		responsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_total",
			Help:      "Responses delivered to observers",
		}, []string{"outcome"}),
		failuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Signal lifecycles terminated by an error",
		}, []string{"category"}),
		discardedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discarded_total",
			Help:      "Acknowledgments and notifications for stale transactions",
		}, []string{"kind"}),
		stateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "state_transitions_total",
			Help:      "Endpoint state transitions",
		}, []string{"from", "to", "event"}),
		listenerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "listener_errors_total",
			Help:      "Errors and panics returned by observers",
		}),
		ackLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ack_latency_seconds",
			Help:      "Time between sending a command and receiving its final response",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		endpointsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "endpoints_active",
			Help:      "Open IVR endpoints",
		}),
	}
}

func (m *Metrics) signalSent(signal string) {
	if m == nil {
		return
	}
	m.signalsTotal.WithLabelValues(signal).Inc()
}

// responseEmitted final отличает завершение от промежуточного результата с пустым текстом
func (m *Metrics) responseEmitted(r Response, final bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	switch {
	case !r.Succeeded:
	case final:
		outcome = "completed"
	default:
		outcome = "interim"
	}
	m.responsesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) failure(category ErrorCategory) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(category.String()).Inc()
}

func (m *Metrics) discarded(kind string) {
	if m == nil {
		return
	}
	m.discardedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) transition(from, to, event string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(from, to, event).Inc()
}

func (m *Metrics) listenerError() {
	if m == nil {
		return
	}
	m.listenerErrors.Inc()
}

func (m *Metrics) acknowledged(d time.Duration) {
	if m == nil {
		return
	}
	m.ackLatency.Observe(d.Seconds())
}

func (m *Metrics) endpointOpened() {
	if m == nil {
		return
	}
	m.endpointsActive.Inc()
}

func (m *Metrics) endpointClosed() {
	if m == nil {
		return
	}
	m.endpointsActive.Dec()
}
