// Package metrics provides Prometheus metrics collection for the alert
// classifier service. It defines and manages the prediction, training, and
// ingestion metrics exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Ingestion metrics
	AlertsIngested prometheus.Counter // Total number of alerts received
	WSReconnects   prometheus.Counter // Total number of alert-feed reconnections

	// Prediction metrics
	Predictions           prometheus.Counter   // Total number of predictions served
	PredictionFailures    prometheus.Counter   // Total number of prediction failures
	PredictionUnavailable prometheus.Counter   // Predictions served without a loaded model
	PredictionScores      prometheus.Histogram // Distribution of prediction confidence scores
	PredictionLatency     prometheus.Histogram // Prediction latency in seconds
	ModelAge              prometheus.Gauge     // Age of the active model in seconds

	// Training and lifecycle metrics
	TrainingRuns     prometheus.Counter   // Total number of training runs started
	TrainingFailures prometheus.Counter   // Total number of failed training runs
	TrainingDuration prometheus.Histogram // Training run duration in seconds
	Promotions       prometheus.Counter   // Total number of model promotions
	Rollbacks        prometheus.Counter   // Total number of manual rollbacks

	// Labeling metrics
	AutoLabels  prometheus.Counter // Labels applied by auto-classification
	HumanLabels prometheus.Counter // Labels applied by analysts

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for tests,
// which need isolated collection).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		AlertsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_ingested_total",
			Help: "Total number of alerts received",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "alert_feed_reconnects_total",
			Help: "Total number of alert feed reconnections",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of prediction failures",
		}),
		PredictionUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_unavailable_total",
			Help: "Predictions served while no model was loaded",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of prediction confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the active model in seconds",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs started",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of failed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Training run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		Promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_promotions_total",
			Help: "Total number of model promotions",
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_rollbacks_total",
			Help: "Total number of manual rollbacks",
		}),
		AutoLabels: factory.NewCounter(prometheus.CounterOpts{
			Name: "auto_labels_total",
			Help: "Labels applied by auto-classification",
		}),
		HumanLabels: factory.NewCounter(prometheus.CounterOpts{
			Name: "human_labels_total",
			Help: "Labels applied by analysts",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
