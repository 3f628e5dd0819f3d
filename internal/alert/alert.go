// Package alert defines the raw security-alert record consumed by the
// classifier pipeline and the helpers that normalize records on ingestion.
// Records arrive as arbitrary JSON from the SIEM integration hook; nothing
// here assumes any field is present.
package alert

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Record is a raw alert document. Nested objects are kept as generic maps so
// that the extractor can walk them defensively.
type Record map[string]any

// Source unwraps an Elasticsearch-style _source envelope, if present.
func (r Record) Source() Record {
	if src, ok := r["_source"].(map[string]any); ok {
		return Record(src)
	}
	return r
}

// Section returns a nested object field as a Record, or an empty one when
// the field is missing or has the wrong shape.
func (r Record) Section(name string) Record {
	if m, ok := r[name].(map[string]any); ok {
		return Record(m)
	}
	return Record{}
}

// Str returns a string field, or "" when absent.
func (r Record) Str(name string) string {
	switch v := r[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Num returns a numeric field, tolerating the float64/int/string encodings
// JSON decoding produces. Missing or malformed values become 0.
func (r Record) Num(name string) float64 {
	switch v := r[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}

// Strings returns a list field joined by semicolons, matching the encoding
// the training corpus uses for rule groups.
func (r Record) Strings(name string) string {
	switch v := r[name].(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ";")
	case string:
		return v
	}
	return ""
}

// Timestamp parses the record timestamp. SIEM agents emit
// "2025-09-23T17:48:19.409+0000" (no colon in the offset) as well as RFC3339
// with Z. Unparseable or missing timestamps fall back to now so that feature
// extraction never fails.
func (r Record) Timestamp() time.Time {
	return ParseTimestamp(r.Source().Str("timestamp"))
}

// ParseTimestamp normalizes the SIEM timestamp formats to UTC.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	ts = strings.Replace(ts, "+0000", "+00:00", 1)
	if strings.HasSuffix(ts, "Z") {
		ts = strings.TrimSuffix(ts, "Z") + "+00:00"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-07:00"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// ID computes a stable identifier for the record. The record's own id is
// preferred; otherwise a digest over timestamp, agent, rule, and the first
// 80 bytes of the raw log is used, so re-delivered alerts map to the same
// identifier.
func (r Record) ID() string {
	src := r.Source()
	if id := strings.TrimSpace(src.Str("id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Str("_id")); id != "" {
		return id
	}

	fullLog := src.Str("full_log")
	if len(fullLog) > 80 {
		fullLog = fullLog[:80]
	}
	composite := fmt.Sprintf("%s|%s|%s|%s",
		src.Str("timestamp"),
		src.Section("agent").Str("id"),
		src.Section("rule").Str("id"),
		fullLog,
	)
	sum := sha1.Sum([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// Label values attached to alerts by analysts or by auto-classification.
const (
	LabelMalicious = "malicious"
	LabelBenign    = "benign"
)

// Provenance of a label.
const (
	ProvenanceHuman = "human"
	ProvenanceAuto  = "auto_classified"
)

// LabelRecord is a confirmed classification for one alert, keyed by alert ID.
type LabelRecord struct {
	AlertID    string    `json:"alert_id"`
	Label      string    `json:"label"`
	Provenance string    `json:"provenance"`
	LabeledAt  time.Time `json:"labeled_at"`
}
