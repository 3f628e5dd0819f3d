package ml

import "alertguard/internal/versioning"

// promotionMargin is the relative F1 improvement a candidate must reach over
// production. "Improves by 2%" is read as relative: candidate >= prod * 1.02.
const promotionMargin = 1.02

// ShouldPromote decides whether a candidate replaces production. With no
// production version the candidate always wins; otherwise it must clear the
// relative margin. Pure so the rule is testable and swappable in isolation.
func ShouldPromote(candidate versioning.Metrics, production *versioning.Metrics) bool {
	if production == nil {
		return true
	}
	return candidate.F1 >= production.F1*promotionMargin
}
