package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lernio/mentor"
)

// PromMeter exports engine events as Prometheus metrics.
type PromMeter struct {
	admissions   *prometheus.CounterVec
	denials      *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callDuration prometheus.Histogram
	spend        prometheus.Counter
	reviews      *prometheus.CounterVec
}

var _ mentor.Meter = (*PromMeter)(nil)

// NewPromMeter registers the metrics on the default registry.
func NewPromMeter() *PromMeter {
	return NewPromMeterWith(nil)
}

// NewPromMeterWith registers the metrics on reg. A nil registerer means
// the default registry.
func NewPromMeterWith(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMeter{
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_admissions_total",
			Help: "Admission decisions by result.",
		}, []string{"result"}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_denials_total",
			Help: "Denied admissions by reason.",
		}, []string{"reason"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_model_calls_total",
			Help: "Model calls by model and outcome.",
		}, []string{"model", "outcome"}),
		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mentor_model_call_duration_seconds",
			Help:    "Latency of model calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		spend: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentor_spend_dollars_total",
			Help: "Cumulative settled spend in dollars.",
		}),
		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_reviews_total",
			Help: "Quiz reviews by recall grade.",
		}, []string{"recall"}),
	}
}

func (m *PromMeter) OnAdmit(e mentor.AdmitEvent) {
	if e.Granted {
		m.admissions.WithLabelValues("granted").Inc()
		return
	}
	m.admissions.WithLabelValues("denied").Inc()
	m.denials.WithLabelValues(e.Reason.String()).Inc()
}

func (m *PromMeter) OnResult(e mentor.ResultEvent) {
	outcome := "success"
	if !e.Success {
		outcome = "error"
	}
	m.calls.WithLabelValues(e.Model, outcome).Inc()
	m.callDuration.Observe(e.Duration.Seconds())
	if e.Cost > 0 {
		m.spend.Add(e.Cost)
	}
}

func (m *PromMeter) OnReview(e mentor.ReviewEvent) {
	m.reviews.WithLabelValues(e.Recall.String()).Inc()
}
