package jsapi

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts handshakes and capability calls. A nil *Metrics records nothing.
type Metrics struct {
	calls      *prometheus.CounterVec
	handshakes *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Collectors already registered by
// an earlier gateway on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx",
			Subsystem: "jsapi",
			Name:      "calls_total",
			Help:      "Capability calls by capability and outcome.",
		}, []string{"capability", "outcome"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx",
			Subsystem: "jsapi",
			Name:      "handshakes_total",
			Help:      "Signing and configure round trips by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wx",
			Subsystem: "jsapi",
			Name:      "call_duration_seconds",
			Help:      "Host capability call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"capability"}),
	}
	if reg == nil {
		return m
	}
	m.calls = register(reg, m.calls)
	m.handshakes = register(reg, m.handshakes)
	m.duration = register(reg, m.duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeCall(capability, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(capability, outcome).Inc()
	m.duration.WithLabelValues(capability).Observe(elapsed.Seconds())
}

// observeUnreached counts a call that failed before the host was entered. It
// leaves the duration histogram alone.
func (m *Metrics) observeUnreached(capability, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) observeHandshake(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = Kind(err)
	}
	m.handshakes.WithLabelValues(result).Inc()
}
