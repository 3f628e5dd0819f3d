package ml

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"alertguard/internal/model"
	"alertguard/internal/versioning"

	"github.com/rs/zerolog/log"
)

// Minimum corpus sizes enforced before any side effect.
const (
	MinTrainingSamples = 20
	MinSamplesPerClass = 5

	evalHoldout = 0.2
)

// LabelSource supplies the labeled corpus: alerts that carry both a prior
// model prediction and a confirmed human label. What counts as "labeled" is
// the source's concern, not the trainer's.
type LabelSource interface {
	QueryLabeled(ctx context.Context) ([]model.Sample, error)
}

// VersionCatalog is the slice of the version store the trainer needs.
type VersionCatalog interface {
	Create(artifact []byte, metrics versioning.Metrics, trainingSamples int) (versioning.ModelVersion, error)
	Promote(versionID string) error
	Production() (*versioning.ModelVersion, error)
	CurrentArtifactPath() string
}

// ModelReloader hot-swaps the serving model after a promotion.
type ModelReloader interface {
	Reload(path, versionID string, threshold float64) error
}

// TrainingResult reports one training run. A non-promotion is a normal
// outcome, not an error.
type TrainingResult struct {
	Promoted  bool               `json:"promoted"`
	VersionID string             `json:"version_id"`
	Metrics   versioning.Metrics `json:"metrics"`
	Message   string             `json:"message"`
}

// Trainer fits candidate classifiers from the labeled corpus and manages
// promotion. It runs off the request path entirely; only the scheduler's
// goroutine (or a manual caller) blocks on it.
type Trainer struct {
	source   LabelSource
	catalog  VersionCatalog
	reloader ModelReloader
	algo     model.Algorithm

	seed      int64
	threshold float64 // serving threshold passed to the runtime on reload
	metrics   MetricsInterface
}

// NewTrainer wires a trainer. metrics may be nil.
func NewTrainer(source LabelSource, catalog VersionCatalog, reloader ModelReloader, algo model.Algorithm, seed int64, threshold float64, metrics MetricsInterface) *Trainer {
	return &Trainer{
		source:    source,
		catalog:   catalog,
		reloader:  reloader,
		algo:      algo,
		seed:      seed,
		threshold: threshold,
		metrics:   metrics,
	}
}

// Run executes one full training cycle: fetch, validate, split, fit,
// evaluate, archive, maybe promote. Fitting or evaluation failures come back
// as errors, never as panics in the caller.
func (t *Trainer) Run(ctx context.Context) (result TrainingResult, err error) {
	start := time.Now()
	if t.metrics != nil {
		t.metrics.TrainingRunsInc()
	}
	defer func() {
		if t.metrics != nil {
			t.metrics.TrainingDurationObserve(time.Since(start).Seconds())
			if err != nil {
				t.metrics.TrainingFailuresInc()
			}
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panic: %v", r)
			log.Error().Interface("panic", r).Msg("training run panicked")
		}
	}()

	samples, err := t.source.QueryLabeled(ctx)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("query labeled samples: %w", err)
	}

	if err := validateCorpus(samples); err != nil {
		return TrainingResult{}, err
	}

	train, eval := stratifiedSplit(samples, evalHoldout, t.seed)
	log.Info().
		Int("total", len(samples)).
		Int("train", len(train)).
		Int("eval", len(eval)).
		Msg("training corpus loaded")

	clf, err := t.algo.Fit(train, t.seed)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("fit candidate: %w", err)
	}

	metrics, err := evaluate(clf, eval)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("evaluate candidate: %w", err)
	}

	m, ok := clf.(*model.Model)
	if !ok {
		return TrainingResult{}, fmt.Errorf("classifier is not serializable")
	}
	artifact, err := model.Encode(m)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("encode candidate: %w", err)
	}

	// The candidate is archived regardless of the promotion decision.
	version, err := t.catalog.Create(artifact, metrics, len(samples))
	if err != nil {
		return TrainingResult{}, fmt.Errorf("archive candidate: %w", err)
	}

	production, err := t.catalog.Production()
	if err != nil {
		return TrainingResult{}, fmt.Errorf("read production version: %w", err)
	}
	var prodMetrics *versioning.Metrics
	if production != nil {
		prodMetrics = &production.Metrics
	}

	if !ShouldPromote(metrics, prodMetrics) {
		log.Info().
			Str("version", version.VersionID).
			Float64("candidate_f1", metrics.F1).
			Float64("production_f1", prodMetrics.F1).
			Msg("candidate archived without promotion")
		return TrainingResult{
			Promoted:  false,
			VersionID: version.VersionID,
			Metrics:   metrics,
			Message:   fmt.Sprintf("model trained but not promoted (F1 %.4f vs production %.4f)", metrics.F1, prodMetrics.F1),
		}, nil
	}

	if err := t.catalog.Promote(version.VersionID); err != nil {
		return TrainingResult{}, fmt.Errorf("promote %s: %w", version.VersionID, err)
	}
	if t.metrics != nil {
		t.metrics.PromotionsInc()
	}

	if err := t.reloader.Reload(t.catalog.CurrentArtifactPath(), version.VersionID, t.threshold); err != nil {
		// The catalog already records the promotion; the runtime keeps the
		// prior model until the next successful reload.
		log.Error().Err(err).Str("version", version.VersionID).Msg("reload after promotion failed")
		return TrainingResult{
			Promoted:  true,
			VersionID: version.VersionID,
			Metrics:   metrics,
			Message:   fmt.Sprintf("model promoted (F1 %.4f) but runtime reload failed: %v", metrics.F1, err),
		}, nil
	}

	return TrainingResult{
		Promoted:  true,
		VersionID: version.VersionID,
		Metrics:   metrics,
		Message:   fmt.Sprintf("model promoted to production (F1 %.4f)", metrics.F1),
	}, nil
}

// validateCorpus enforces the minimum corpus sizes. Failing fast here means
// no artifact or version is ever created from a degenerate corpus.
func validateCorpus(samples []model.Sample) error {
	positives := 0
	for _, s := range samples {
		if s.Positive {
			positives++
		}
	}
	negatives := len(samples) - positives

	if len(samples) < MinTrainingSamples {
		return fmt.Errorf("%w: %d samples, need %d", ErrInsufficientTrainingData, len(samples), MinTrainingSamples)
	}
	if positives < MinSamplesPerClass || negatives < MinSamplesPerClass {
		return fmt.Errorf("%w: %d malicious / %d benign, need %d per class",
			ErrInsufficientTrainingData, positives, negatives, MinSamplesPerClass)
	}
	return nil
}

// stratifiedSplit partitions the corpus per class, deterministically for a
// given seed. Each class keeps at least one held-out sample.
func stratifiedSplit(samples []model.Sample, holdout float64, seed int64) (train, eval []model.Sample) {
	var pos, neg []model.Sample
	for _, s := range samples {
		if s.Positive {
			pos = append(pos, s)
		} else {
			neg = append(neg, s)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, class := range [][]model.Sample{pos, neg} {
		class := class
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })

		n := int(float64(len(class)) * holdout)
		if n < 1 && len(class) > 1 {
			n = 1
		}
		eval = append(eval, class[:n]...)
		train = append(train, class[n:]...)
	}
	return train, eval
}

// evaluate computes standard binary-classification metrics on the held-out
// partition, with malicious as the positive class.
func evaluate(clf model.Classifier, eval []model.Sample) (versioning.Metrics, error) {
	var tp, fp, tn, fn float64
	for _, s := range eval {
		p, err := clf.PredictProba(s.Features)
		if err != nil {
			return versioning.Metrics{}, err
		}
		predicted := p >= 0.5
		switch {
		case predicted && s.Positive:
			tp++
		case predicted && !s.Positive:
			fp++
		case !predicted && !s.Positive:
			tn++
		default:
			fn++
		}
	}

	total := tp + fp + tn + fn
	m := versioning.Metrics{}
	if total > 0 {
		m.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}
