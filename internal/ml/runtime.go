// Package ml hosts the serving and training halves of the model lifecycle:
// the hot-swappable prediction runtime, the trainer that turns labeled
// alerts into candidate model versions, and the promotion rule that decides
// whether a candidate replaces production.
package ml

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"alertguard/internal/features"
	"alertguard/internal/model"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics methods the ml package reports to.
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionUnavailableInc()
	PredictionScoresObserve(float64)
	PredictionLatencyObserve(float64)
	ModelAgeSet(float64)
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	PromotionsInc()
}

// Prediction labels. Unavailable is a valid outcome, not an error: it means
// no model has been loaded yet and callers should proceed without ML.
const (
	LabelMalicious   = "malicious"
	LabelBenign      = "benign"
	LabelUnavailable = "unavailable"
)

// Prediction is the result of scoring one alert.
type Prediction struct {
	Label     string   `json:"label"`
	Score     *float64 `json:"score"`
	VersionID string   `json:"model_version,omitempty"`
}

// snapshot is the immutable unit the runtime publishes. Readers always see a
// classifier together with the threshold and version it was published with.
type snapshot struct {
	clf       model.Classifier
	versionID string
	threshold float64
	loadedAt  time.Time
}

// Runtime holds the active model and serves predictions. The active snapshot
// is swapped wholesale on reload, so Predict never observes a half-applied
// model. A zero-value Runtime serves "unavailable" until the first
// successful Reload.
type Runtime struct {
	active  atomic.Pointer[snapshot]
	metrics MetricsInterface
}

// NewRuntime creates an empty runtime. metrics may be nil.
func NewRuntime(metrics MetricsInterface) *Runtime {
	return &Runtime{metrics: metrics}
}

// Predict scores a feature vector against the active model. It never blocks
// on a reload in progress and never returns an error to the caller: with no
// model loaded, or on a scoring failure, the result degrades to unavailable.
func (r *Runtime) Predict(v features.Vector) Prediction {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		}
	}()

	snap := r.active.Load()
	if snap == nil {
		if r.metrics != nil {
			r.metrics.PredictionUnavailableInc()
		}
		return Prediction{Label: LabelUnavailable}
	}

	score, err := snap.clf.PredictProba(v)
	if err != nil {
		log.Error().Err(err).Str("model_version", snap.versionID).Msg("prediction failed")
		if r.metrics != nil {
			r.metrics.PredictionFailuresInc()
		}
		return Prediction{Label: LabelUnavailable, VersionID: snap.versionID}
	}

	if r.metrics != nil {
		r.metrics.PredictionsInc()
		r.metrics.PredictionScoresObserve(score)
	}

	label := LabelBenign
	if score >= snap.threshold {
		label = LabelMalicious
	}
	return Prediction{Label: label, Score: &score, VersionID: snap.versionID}
}

// Reload loads and validates the artifact at path and, only on success,
// atomically publishes it as the active model. On failure the previous model
// (if any) keeps serving and the error is returned to the caller rather than
// surfacing on the request path.
func (r *Runtime) Reload(path, versionID string, threshold float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrModelLoad, path, err)
	}

	m, err := model.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	r.active.Store(&snapshot{
		clf:       m,
		versionID: versionID,
		threshold: threshold,
		loadedAt:  time.Now(),
	})

	if r.metrics != nil {
		r.metrics.ModelAgeSet(0)
	}
	log.Info().
		Str("model_version", versionID).
		Float64("threshold", threshold).
		Msg("model reloaded")
	return nil
}

// Info describes the currently loaded model.
type Info struct {
	Loaded    bool       `json:"loaded"`
	VersionID string     `json:"version,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

// Info returns a snapshot of the runtime state.
func (r *Runtime) Info() Info {
	snap := r.active.Load()
	if snap == nil {
		return Info{}
	}
	loadedAt := snap.loadedAt
	return Info{
		Loaded:    true,
		VersionID: snap.versionID,
		Threshold: snap.threshold,
		LoadedAt:  &loadedAt,
	}
}
