// Package rules implements first-match placement rule lookup.
package rules

import (
	"kydras/internal/globmatch"
	"kydras/internal/poolmodel"
)

// Resolve returns the first rule whose pattern matches relPath, or (zero
// value, false) if none matches. Rule order is significant — rules are
// evaluated top-to-bottom.
func Resolve(ruleset []poolmodel.PoolRule, relPath string) (poolmodel.PoolRule, bool) {
	for _, rule := range ruleset {
		if globmatch.Match(rule.Pattern, relPath) {
			return rule, true
		}
	}
	return poolmodel.PoolRule{}, false
}
