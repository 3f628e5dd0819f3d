package features

import (
	"testing"
	"time"

	"alertguard/internal/alert"
)

func sampleRecord() alert.Record {
	return alert.Record{
		"timestamp": "2025-09-22T14:30:00.000+0000", // Monday
		"agent":     map[string]any{"name": "web-01"},
		"rule": map[string]any{
			"level":  7.0,
			"groups": []any{"syslog", "sshd", "authentication_success"},
		},
		"data":       map[string]any{"srcuser": "root"},
		"decoder":    map[string]any{"name": "sshd"},
		"predecoder": map[string]any{"program_name": "sshd"},
	}
}

func TestExtract(t *testing.T) {
	v := Extract(sampleRecord())

	expectCat := map[string]string{
		"agent_name":   "web-01",
		"srcuser":      "root",
		"decoder_name": "sshd",
		"program_name": "sshd",
		"rule_groups":  "syslog;sshd;authentication_success",
	}
	expectNum := map[string]float64{
		"rule_level":  7,
		"hour_of_day": 14,
		"day_of_week": 0, // Monday
		"success":     1,
	}

	for i, f := range Schema {
		if want, ok := expectCat[f.Name]; ok {
			if v.Cat[i] != want {
				t.Errorf("%s: expected %q, got %q", f.Name, want, v.Cat[i])
			}
		}
		if want, ok := expectNum[f.Name]; ok {
			if v.Num[i] != want {
				t.Errorf("%s: expected %f, got %f", f.Name, want, v.Num[i])
			}
		}
	}
}

func TestExtract_EmptyRecord(t *testing.T) {
	v := Extract(alert.Record{})

	if len(v.Cat) != len(Schema) || len(v.Num) != len(Schema) {
		t.Fatalf("Expected %d slots, got %d/%d", len(Schema), len(v.Cat), len(v.Num))
	}
	for i, f := range Schema {
		if f.Kind == Categorical && v.Cat[i] != "" {
			t.Errorf("%s: expected empty string, got %q", f.Name, v.Cat[i])
		}
	}
}

func TestExtract_SuccessFlag(t *testing.T) {
	rec := sampleRecord()
	rec["rule"] = map[string]any{
		"level":  5.0,
		"groups": []any{"syslog", "authentication_failed"},
	}
	v := Extract(rec)
	for i, f := range Schema {
		if f.Name == "success" && v.Num[i] != 0 {
			t.Errorf("Expected success=0 for failed auth, got %f", v.Num[i])
		}
	}
}

func TestExtract_SourceEnvelope(t *testing.T) {
	rec := alert.Record{
		"_source": map[string]any{
			"agent": map[string]any{"name": "db-02"},
			"rule":  map[string]any{"level": 3.0},
		},
	}
	v := Extract(rec)
	for i, f := range Schema {
		switch f.Name {
		case "agent_name":
			if v.Cat[i] != "db-02" {
				t.Errorf("Expected agent from _source, got %q", v.Cat[i])
			}
		case "rule_level":
			if v.Num[i] != 3 {
				t.Errorf("Expected level 3, got %f", v.Num[i])
			}
		}
	}
}

func TestWeekday(t *testing.T) {
	testCases := []struct {
		day      time.Time
		expected int
	}{
		{time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC), 0}, // Monday
		{time.Date(2025, 9, 24, 0, 0, 0, 0, time.UTC), 2}, // Wednesday
		{time.Date(2025, 9, 28, 0, 0, 0, 0, time.UTC), 6}, // Sunday
	}
	for _, tc := range testCases {
		if got := weekday(tc.day); got != tc.expected {
			t.Errorf("%v: expected %d, got %d", tc.day, tc.expected, got)
		}
	}
}
