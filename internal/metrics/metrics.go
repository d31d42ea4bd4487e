// Package metrics defines the Prometheus instruments for visited-country
// evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Classification outcomes.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
)

// Metrics tracks evaluations, classification outcomes and per-person
// visited counts.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	HistoryFailures    prometheus.Counter
	Classifications    *prometheus.CounterVec
	VisitedCountries   *prometheus.GaugeVec
	IngestedSamples    prometheus.Counter
}

// New registers all instruments on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visited_evaluations_total",
			Help: "Total number of visited-country evaluations by result",
		}, []string{"result"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "visited_evaluation_duration_seconds",
			Help:    "Duration of a single person evaluation including history lookup",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		HistoryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "visited_history_failures_total",
			Help: "History lookups that failed and degraded to no detected countries",
		}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visited_classifications_total",
			Help: "Current-location classifications by outcome",
		}, []string{"outcome"}),
		VisitedCountries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "visited_countries",
			Help: "Number of countries visited per person",
		}, []string{"person"}),
		IngestedSamples: f.NewCounter(prometheus.CounterOpts{
			Name: "visited_ingested_samples_total",
			Help: "Location samples accepted through the API or import",
		}),
	}
}

// ObserveEvaluation records an evaluation result and its duration.
// Call with time.Now() at the start of the evaluation.
func (m *Metrics) ObserveEvaluation(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Evaluations.WithLabelValues(result).Inc()
	m.EvaluationDuration.Observe(time.Since(start).Seconds())
}

// IncrementHistoryFailure records a degraded history lookup.
func (m *Metrics) IncrementHistoryFailure() {
	if m == nil {
		return
	}
	m.HistoryFailures.Inc()
}

// ObserveClassification records whether a current-location lookup matched.
func (m *Metrics) ObserveClassification(matched bool) {
	if m == nil {
		return
	}
	outcome := OutcomeNoMatch
	if matched {
		outcome = OutcomeMatch
	}
	m.Classifications.WithLabelValues(outcome).Inc()
}

// SetVisited records the visited count for person.
func (m *Metrics) SetVisited(person string, count int) {
	if m == nil {
		return
	}
	m.VisitedCountries.WithLabelValues(person).Set(float64(count))
}

// AddIngested records accepted samples.
func (m *Metrics) AddIngested(n int) {
	if m == nil {
		return
	}
	m.IngestedSamples.Add(float64(n))
}
