package policy

import (
	"errors"
	"testing"

	"alertguard/internal/alert"
	"alertguard/internal/ml"
	"alertguard/internal/storage"
)

func score(v float64) *float64 { return &v }

func settingsWith(auto bool, threshold float64) storage.Settings {
	s := storage.DefaultSettings()
	s.AutoClassify = auto
	s.ConfidenceThreshold = threshold
	return s
}

func TestDecide(t *testing.T) {
	testCases := []struct {
		name     string
		pred     ml.Prediction
		settings storage.Settings
		expected bool
	}{
		{
			"fires above threshold",
			ml.Prediction{Label: ml.LabelMalicious, Score: score(0.95)},
			settingsWith(true, 0.85),
			true,
		},
		{
			"fires exactly at threshold",
			ml.Prediction{Label: ml.LabelMalicious, Score: score(0.85)},
			settingsWith(true, 0.85),
			true,
		},
		{
			"below threshold",
			ml.Prediction{Label: ml.LabelMalicious, Score: score(0.80)},
			settingsWith(true, 0.85),
			false,
		},
		{
			"disabled",
			ml.Prediction{Label: ml.LabelMalicious, Score: score(0.99)},
			settingsWith(false, 0.85),
			false,
		},
		{
			"benign prediction",
			ml.Prediction{Label: ml.LabelBenign, Score: score(0.10)},
			settingsWith(true, 0.85),
			false,
		},
		{
			"unavailable prediction",
			ml.Prediction{Label: ml.LabelUnavailable},
			settingsWith(true, 0.85),
			false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := Decide("alert-1", tc.pred, tc.settings)
			if ok != tc.expected {
				t.Fatalf("Expected %v, got %v", tc.expected, ok)
			}
			if ok {
				if ev.Label != alert.LabelMalicious {
					t.Errorf("Expected malicious label, got %q", ev.Label)
				}
				if ev.Provenance != alert.ProvenanceAuto {
					t.Errorf("Expected auto provenance, got %q", ev.Provenance)
				}
				if ev.AlertID != "alert-1" {
					t.Errorf("Expected alert-1, got %q", ev.AlertID)
				}
			}
		})
	}
}

type recordingSink struct {
	calls []string
	err   error
}

func (s *recordingSink) SaveLabel(alertID, label, provenance string) error {
	s.calls = append(s.calls, alertID)
	return s.err
}

func TestApply_WritesToSink(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, nil)

	fired, err := p.Apply("a1", ml.Prediction{Label: ml.LabelMalicious, Score: score(0.99)}, settingsWith(true, 0.85))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !fired {
		t.Fatal("Expected rule to fire")
	}
	if len(sink.calls) != 1 || sink.calls[0] != "a1" {
		t.Errorf("Sink not called correctly: %v", sink.calls)
	}
}

func TestApply_NoFireNoWrite(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, nil)

	fired, err := p.Apply("a1", ml.Prediction{Label: ml.LabelBenign, Score: score(0.1)}, settingsWith(true, 0.85))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if fired || len(sink.calls) != 0 {
		t.Error("Expected no sink write for a non-firing prediction")
	}
}

func TestApply_SinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("db closed")}
	p := New(sink, nil)

	fired, err := p.Apply("a1", ml.Prediction{Label: ml.LabelMalicious, Score: score(0.99)}, settingsWith(true, 0.85))
	if err == nil {
		t.Fatal("Expected sink error to surface")
	}
	if fired {
		t.Error("Expected fired=false on sink error")
	}
}
