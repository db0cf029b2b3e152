package metatx

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Execution paths, used as metric and hook labels.
const (
	PathRelay    = "relay"
	PathStandard = "standard"
)

// Metrics records relay path activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	nonces   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metatx_relay_requests_total",
			Help: "Contract calls sent, by execution path and result.",
		}, []string{"path", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metatx_relay_duration_seconds",
			Help:    "Time from call to mined receipt, by execution path.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"path"}),
		nonces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metatx_nonce_acquired_total",
			Help: "Forwarder nonces handed out by the nonce tracker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.nonces)
	}
	return m
}

func (m *Metrics) observe(path string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
		var re *RelayError
		if errors.As(err, &re) {
			result = string(re.Kind)
		}
	}
	m.requests.WithLabelValues(path, result).Inc()
	m.duration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) nonceAcquired() {
	if m == nil {
		return
	}
	m.nonces.Inc()
}
