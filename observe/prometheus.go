package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aponysus/regone/policy"
)

// PrometheusObserver exports attempt and request counters plus a backoff histogram.
type PrometheusObserver struct {
	BaseObserver

	attempts *prometheus.CounterVec
	requests *prometheus.CounterVec
	backoff  *prometheus.HistogramVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regone_attempts_total",
				Help: "Total number of store attempts by failure category",
			},
			[]string{"key", "category"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regone_requests_total",
				Help: "Total number of logical store requests by outcome",
			},
			[]string{"key", "outcome"},
		),
		backoff: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regone_retry_backoff_seconds",
				Help:    "Backoff scheduled before a retried attempt",
				Buckets: []float64{0, 0.5, 1, 2, 4, 8, 15},
			},
			[]string{"key"},
		),
	}

	for _, c := range []prometheus.Collector{o.attempts, o.requests, o.backoff} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnAttempt(_ context.Context, key policy.PolicyKey, rec AttemptRecord) {
	category := "success"
	if rec.Err != nil {
		category = rec.Category.String()
	}
	o.attempts.WithLabelValues(key.String(), category).Inc()
	if rec.Retry {
		o.backoff.WithLabelValues(key.String()).Observe(rec.Backoff.Seconds())
	}
}

func (o *PrometheusObserver) OnSuccess(_ context.Context, key policy.PolicyKey, _ Timeline) {
	o.requests.WithLabelValues(key.String(), "success").Inc()
}

func (o *PrometheusObserver) OnFailure(_ context.Context, key policy.PolicyKey, tl Timeline) {
	outcome := tl.Attributes[AttrFinalState]
	if outcome == "" {
		outcome = "failed"
	}
	o.requests.WithLabelValues(key.String(), outcome).Inc()
}
