package alert

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{
			"siem offset without colon",
			"2025-09-23T17:48:19.409+0000",
			time.Date(2025, 9, 23, 17, 48, 19, 409000000, time.UTC),
		},
		{
			"rfc3339 with zulu",
			"2025-09-23T17:48:19Z",
			time.Date(2025, 9, 23, 17, 48, 19, 0, time.UTC),
		},
		{
			"rfc3339 with offset",
			"2025-09-23T19:48:19+02:00",
			time.Date(2025, 9, 23, 17, 48, 19, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTimestamp(tc.input)
			if !got.Equal(tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestParseTimestamp_Unparseable(t *testing.T) {
	before := time.Now().UTC()
	got := ParseTimestamp("not a timestamp")
	after := time.Now().UTC()

	if got.Before(before) || got.After(after) {
		t.Errorf("Expected fallback to now, got %v", got)
	}
}

func TestRecordID_NativeID(t *testing.T) {
	rec := Record{"id": "alert-123", "full_log": "whatever"}
	if got := rec.ID(); got != "alert-123" {
		t.Errorf("Expected native id, got %q", got)
	}
}

func TestRecordID_Derived(t *testing.T) {
	rec := Record{
		"timestamp": "2025-09-23T17:48:19.409+0000",
		"agent":     map[string]any{"id": "001"},
		"rule":      map[string]any{"id": "5710"},
		"full_log":  "Sep 23 17:48:19 host sshd[1]: Failed password for root",
	}

	id1 := rec.ID()
	id2 := rec.ID()
	if id1 != id2 {
		t.Errorf("Derived ID is not stable: %q vs %q", id1, id2)
	}
	if len(id1) != 40 {
		t.Errorf("Expected 40-char hex digest, got %q", id1)
	}

	// Changing the rule changes the identity.
	rec["rule"] = map[string]any{"id": "5711"}
	if rec.ID() == id1 {
		t.Error("Expected different ID for different rule")
	}
}

func TestRecordID_LongLogTruncated(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	base := Record{
		"timestamp": "2025-09-23T17:48:19.409+0000",
		"agent":     map[string]any{"id": "001"},
		"rule":      map[string]any{"id": "5710"},
	}

	a := Record{}
	for k, v := range base {
		a[k] = v
	}
	a["full_log"] = string(long)

	b := Record{}
	for k, v := range base {
		b[k] = v
	}
	b["full_log"] = string(long[:80]) + "different tail entirely"

	if a.ID() != b.ID() {
		t.Error("Expected identical IDs when logs share the first 80 bytes")
	}
}

func TestRecordSource_Envelope(t *testing.T) {
	rec := Record{
		"_source": map[string]any{"id": "inner-id"},
	}
	if got := rec.ID(); got != "inner-id" {
		t.Errorf("Expected id from _source envelope, got %q", got)
	}
}

func TestRecordStrings(t *testing.T) {
	rec := Record{
		"groups": []any{"syslog", "sshd", "authentication_failed"},
	}
	got := rec.Strings("groups")
	expected := "syslog;sshd;authentication_failed"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestRecordNum(t *testing.T) {
	testCases := []struct {
		name     string
		rec      Record
		expected float64
	}{
		{"float", Record{"level": 5.0}, 5},
		{"int", Record{"level": 7}, 7},
		{"string", Record{"level": "10"}, 10},
		{"missing", Record{}, 0},
		{"garbage", Record{"level": "high"}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Num("level"); got != tc.expected {
				t.Errorf("Expected %f, got %f", tc.expected, got)
			}
		})
	}
}
