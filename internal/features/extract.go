// Package features maps raw alert records to the fixed feature vector the
// classifier consumes. The schema defined here is the single source of truth
// for field names, kinds, and order; both training and inference go through
// Extract, so the two sides cannot drift apart.
package features

import (
	"strings"
	"time"

	"alertguard/internal/alert"
)

// Kind distinguishes categorical from numeric fields.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

// Field is one named slot in the feature vector.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the fixed field set, in training order. Order matters: the
// encoder indexes columns positionally.
var Schema = []Field{
	{Name: "agent_name", Kind: Categorical},
	{Name: "srcuser", Kind: Categorical},
	{Name: "decoder_name", Kind: Categorical},
	{Name: "program_name", Kind: Categorical},
	{Name: "rule_groups", Kind: Categorical},
	{Name: "rule_level", Kind: Numeric},
	{Name: "hour_of_day", Kind: Numeric},
	{Name: "day_of_week", Kind: Numeric},
	{Name: "success", Kind: Numeric},
}

// Vector holds one value per Schema field, in Schema order. Categorical
// fields use Cat, numeric fields use Num; the unused slot stays at its zero
// value.
type Vector struct {
	Cat []string
	Num []float64
}

// NewVector allocates a zero vector sized to the schema.
func NewVector() Vector {
	return Vector{
		Cat: make([]string, len(Schema)),
		Num: make([]float64, len(Schema)),
	}
}

// Extract builds the feature vector for a raw alert. Missing categorical
// fields become the empty string and missing numerics become zero, so this
// never fails regardless of the record's shape.
func Extract(rec alert.Record) Vector {
	src := rec.Source()

	agent := src.Section("agent")
	rule := src.Section("rule")
	data := src.Section("data")
	decoder := src.Section("decoder")
	predecoder := src.Section("predecoder")

	ts := rec.Timestamp()
	groups := rule.Strings("groups")

	success := 0.0
	if strings.Contains(groups, "authentication_success") {
		success = 1.0
	}

	v := NewVector()
	for i, f := range Schema {
		switch f.Name {
		case "agent_name":
			v.Cat[i] = agent.Str("name")
		case "srcuser":
			v.Cat[i] = data.Str("srcuser")
		case "decoder_name":
			v.Cat[i] = decoder.Str("name")
		case "program_name":
			v.Cat[i] = predecoder.Str("program_name")
		case "rule_groups":
			v.Cat[i] = groups
		case "rule_level":
			v.Num[i] = rule.Num("level")
		case "hour_of_day":
			v.Num[i] = float64(ts.Hour())
		case "day_of_week":
			v.Num[i] = float64(weekday(ts))
		case "success":
			v.Num[i] = success
		}
	}
	return v
}

// weekday returns Monday=0..Sunday=6, the convention the training corpus was
// built with.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
