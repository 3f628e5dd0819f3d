// Package policy turns high-confidence predictions into automatic labels.
// The decision itself is pure; persistence is delegated to a sink whose
// contract is to key labels by alert ID, so re-evaluating the same alert
// never creates duplicate or conflicting entries.
package policy

import (
	"alertguard/internal/alert"
	"alertguard/internal/ml"
	"alertguard/internal/storage"

	"github.com/rs/zerolog/log"
)

// Event is an auto-label emitted for one alert.
type Event struct {
	AlertID    string `json:"alert_id"`
	Label      string `json:"label"`
	Provenance string `json:"provenance"`
}

// Sink receives auto-label events. Implementations must be idempotent per
// alert ID.
type Sink interface {
	SaveLabel(alertID, label, provenance string) error
}

// Decide evaluates the auto-classification rule for one fresh prediction.
// It emits an event only for a positive prediction whose score clears the
// confidence threshold while auto-classification is enabled.
func Decide(alertID string, pred ml.Prediction, settings storage.Settings) (Event, bool) {
	if !settings.AutoClassify {
		return Event{}, false
	}
	if pred.Label != ml.LabelMalicious || pred.Score == nil {
		return Event{}, false
	}
	if *pred.Score < settings.ConfidenceThreshold {
		return Event{}, false
	}
	return Event{
		AlertID:    alertID,
		Label:      alert.LabelMalicious,
		Provenance: alert.ProvenanceAuto,
	}, true
}

// Policy binds the pure decision to a sink.
type Policy struct {
	sink    Sink
	metrics MetricsInterface
}

// MetricsInterface defines the metrics methods the policy reports to.
type MetricsInterface interface {
	AutoLabelsInc()
}

// New creates a policy writing to sink. metrics may be nil.
func New(sink Sink, metrics MetricsInterface) *Policy {
	return &Policy{sink: sink, metrics: metrics}
}

// Apply evaluates the rule and, when it fires, forwards the event to the
// sink. Returns whether an event was emitted.
func (p *Policy) Apply(alertID string, pred ml.Prediction, settings storage.Settings) (bool, error) {
	ev, ok := Decide(alertID, pred, settings)
	if !ok {
		return false, nil
	}
	if err := p.sink.SaveLabel(ev.AlertID, ev.Label, ev.Provenance); err != nil {
		return false, err
	}
	if p.metrics != nil {
		p.metrics.AutoLabelsInc()
	}
	log.Info().
		Str("alert_id", ev.AlertID).
		Float64("score", *pred.Score).
		Msg("alert auto-classified as malicious")
	return true, nil
}
