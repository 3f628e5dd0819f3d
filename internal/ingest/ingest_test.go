package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"alertguard/internal/alert"
	"alertguard/internal/features"
	"alertguard/internal/ml"
	"alertguard/internal/model"
	"alertguard/internal/policy"
	"alertguard/internal/storage"
)

func newTestEngine(t *testing.T, runtime *ml.Runtime) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pol := policy.New(store, nil)
	return New(store, runtime, pol, nil), store
}

func loadedRuntime(t *testing.T) *ml.Runtime {
	t.Helper()

	var samples []model.Sample
	for i := 0; i < 12; i++ {
		samples = append(samples, corpusSample(10, "attack", true))
		samples = append(samples, corpusSample(2, "benign-traffic", false))
	}
	clf, err := model.LogisticRegression{}.Fit(samples, 42)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	data, err := model.Encode(clf.(*model.Model))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "current.model")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	runtime := ml.NewRuntime(nil)
	if err := runtime.Reload(path, "v1", 0.5); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	return runtime
}

func corpusSample(level float64, groups string, positive bool) model.Sample {
	v := features.NewVector()
	for i, f := range features.Schema {
		switch f.Name {
		case "rule_level":
			v.Num[i] = level
		case "rule_groups":
			v.Cat[i] = groups
		}
	}
	return model.Sample{Features: v, Positive: positive}
}

func maliciousAlert() alert.Record {
	return alert.Record{
		"timestamp": "2025-09-23T17:48:19.409+0000",
		"agent":     map[string]any{"id": "001"},
		"rule": map[string]any{
			"id":     "5710",
			"level":  10.0,
			"groups": []any{"attack"},
		},
		"full_log": "exploit attempt",
	}
}

func TestHandleAlert_NoModel(t *testing.T) {
	engine, store := newTestEngine(t, ml.NewRuntime(nil))

	res, err := engine.HandleAlert(maliciousAlert())
	if err != nil {
		t.Fatalf("HandleAlert failed: %v", err)
	}
	if res.Prediction.Label != ml.LabelUnavailable {
		t.Errorf("Expected unavailable, got %q", res.Prediction.Label)
	}
	if res.AutoLabel {
		t.Error("Expected no auto label without a model")
	}

	// Alert stored, no prediction recorded.
	stored, _ := store.GetAlert(res.AlertID)
	if stored == nil {
		t.Fatal("Alert not persisted")
	}
	if stored.PredictedAt != nil {
		t.Error("Expected no prediction recorded")
	}
}

func TestHandleAlert_RecordsPrediction(t *testing.T) {
	engine, store := newTestEngine(t, loadedRuntime(t))

	res, err := engine.HandleAlert(maliciousAlert())
	if err != nil {
		t.Fatalf("HandleAlert failed: %v", err)
	}
	if res.Prediction.Label != ml.LabelMalicious {
		t.Errorf("Expected malicious, got %q", res.Prediction.Label)
	}

	stored, _ := store.GetAlert(res.AlertID)
	if stored.PredictedLabel != ml.LabelMalicious {
		t.Errorf("Prediction not recorded: %q", stored.PredictedLabel)
	}
	if stored.ModelVersion != "v1" {
		t.Errorf("Model version not recorded: %q", stored.ModelVersion)
	}
}

func TestHandleAlert_AutoClassify(t *testing.T) {
	engine, store := newTestEngine(t, loadedRuntime(t))

	// Low threshold + auto-classify on.
	auto := true
	threshold := 0.5
	if _, err := store.UpdateSettings(storage.SettingsPatch{
		AutoClassify:        &auto,
		ConfidenceThreshold: &threshold,
	}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	res, err := engine.HandleAlert(maliciousAlert())
	if err != nil {
		t.Fatalf("HandleAlert failed: %v", err)
	}
	if !res.AutoLabel {
		t.Fatal("Expected auto label")
	}

	lr, _ := store.GetLabel(res.AlertID)
	if lr == nil || lr.Provenance != alert.ProvenanceAuto {
		t.Errorf("Auto label not persisted: %+v", lr)
	}
}

func TestHandleAlert_AutoClassifyOffByDefault(t *testing.T) {
	engine, store := newTestEngine(t, loadedRuntime(t))

	res, err := engine.HandleAlert(maliciousAlert())
	if err != nil {
		t.Fatalf("HandleAlert failed: %v", err)
	}
	if res.AutoLabel {
		t.Error("Expected auto-classification off by default")
	}
	lr, _ := store.GetLabel(res.AlertID)
	if lr != nil {
		t.Errorf("Unexpected label: %+v", lr)
	}
}
