package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmix_predictions_total",
			Help: "Predictions served, by outcome",
		},
		[]string{"outcome"}, // "ok", "bad_input", "error"
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartmix_prediction_duration_seconds",
			Help:    "Time spent scaling, inferring and correcting one mix",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmix_fallback_substitutions_total",
			Help: "Model outputs replaced by a closed-form estimate, by field",
		},
		[]string{"field"},
	)

	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmix_recommendations_total",
			Help: "Optimizer queries, by outcome",
		},
		[]string{"outcome"}, // "match", "empty"
	)

	SyncAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmix_sync_attempts_total",
			Help: "Forwards to the external sheet, by outcome",
		},
		[]string{"outcome"}, // "ok", "failed", "open_circuit"
	)
)

// RecordPrediction counts one served prediction and its substitutions.
func RecordPrediction(seconds float64, corrected []string) {
	Predictions.WithLabelValues("ok").Inc()
	PredictionDuration.Observe(seconds)
	for _, field := range corrected {
		Fallbacks.WithLabelValues(field).Inc()
	}
}
