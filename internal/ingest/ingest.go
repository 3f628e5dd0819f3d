// Package ingest is the write path for incoming alerts: persist, predict,
// record, and optionally auto-classify. It is the only place where the
// prediction runtime and the labeling policy meet.
package ingest

import (
	"fmt"

	"alertguard/internal/alert"
	"alertguard/internal/features"
	"alertguard/internal/ml"
	"alertguard/internal/policy"
	"alertguard/internal/storage"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics methods the ingest path reports to.
type MetricsInterface interface {
	AlertsIngestedInc()
	ErrorsInc()
}

// Result summarizes what happened to one ingested alert.
type Result struct {
	AlertID    string        `json:"alert_id"`
	Prediction ml.Prediction `json:"prediction"`
	AutoLabel  bool          `json:"auto_labeled"`
}

// Engine wires storage, the prediction runtime, and the auto-classification
// policy into one ingestion pipeline.
type Engine struct {
	store   *storage.Store
	runtime *ml.Runtime
	policy  *policy.Policy
	metrics MetricsInterface
}

// New creates an ingestion engine. metrics may be nil.
func New(store *storage.Store, runtime *ml.Runtime, pol *policy.Policy, metrics MetricsInterface) *Engine {
	return &Engine{store: store, runtime: runtime, policy: pol, metrics: metrics}
}

// HandleAlert runs the full ingestion pipeline for one raw alert: dedupe and
// persist, extract features, predict, record the prediction, and apply the
// auto-classification policy. Prediction unavailability is not an error; the
// alert is stored either way and the result says so.
func (e *Engine) HandleAlert(rec alert.Record) (Result, error) {
	id, err := e.store.SaveAlert(rec)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ErrorsInc()
		}
		return Result{}, fmt.Errorf("save alert: %w", err)
	}
	if e.metrics != nil {
		e.metrics.AlertsIngestedInc()
	}

	vec := features.Extract(rec)
	pred := e.runtime.Predict(vec)
	res := Result{AlertID: id, Prediction: pred}

	if pred.Label == ml.LabelUnavailable || pred.Score == nil {
		return res, nil
	}
	if err := e.store.RecordPrediction(id, pred.Label, *pred.Score, pred.VersionID); err != nil {
		// The prediction was served; losing the record is a storage problem,
		// not a prediction problem. Log and keep going.
		log.Error().Err(err).Str("alert_id", id).Msg("failed to record prediction")
		if e.metrics != nil {
			e.metrics.ErrorsInc()
		}
		return res, nil
	}

	settings, err := e.store.GetSettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings for auto-classification")
		return res, nil
	}
	labeled, err := e.policy.Apply(id, pred, settings)
	if err != nil {
		log.Error().Err(err).Str("alert_id", id).Msg("auto-classification failed")
		if e.metrics != nil {
			e.metrics.ErrorsInc()
		}
		return res, nil
	}
	res.AutoLabel = labeled
	return res, nil
}
