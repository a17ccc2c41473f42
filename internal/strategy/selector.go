// Package strategy maps detected site technology onto a fetch strategy.
package strategy

import (
	"strings"

	"github.com/brandforge/siteharvest/internal/extract"
)

// staticFriendly lists platforms whose markup is complete without running
// JavaScript, keyed by the lowercase technology label.
var staticFriendly = map[string]struct{}{
	"wordpress":   {},
	"drupal":      {},
	"joomla":      {},
	"hugo":        {},
	"jekyll":      {},
	"eleventy":    {},
	"squarespace": {},
	"ghost":       {},
	"shopify":     {},
}

// spaFrameworks lists client-rendered frameworks that always need a browser.
var spaFrameworks = map[string]struct{}{
	"react":   {},
	"angular": {},
	"vue":     {},
	"svelte":  {},
	"next":    {},
	"nuxt":    {},
	"gatsby":  {},
	"ember":   {},
}

// Select is a pure mapping from site metadata to a fetch strategy. The
// result is advisory: the executor escalates regardless when content comes
// back empty. Absent or unknown technology routes to the heavier strategy.
func Select(meta extract.SiteMetadata) extract.Strategy {
	tech := strings.ToLower(strings.TrimSpace(meta.Technology))
	if tech == "" {
		return extract.StrategyDynamic
	}
	if _, ok := spaFrameworks[tech]; ok {
		return extract.StrategySPA
	}
	if _, ok := staticFriendly[tech]; ok {
		return extract.StrategyStatic
	}
	return extract.StrategyDynamic
}

// Heavier returns the escalation target for a strategy. Static pages promote
// to full browser rendering; dynamic pages promote to the SPA profile, which
// waits longer for client-side content.
func Heavier(s extract.Strategy) extract.Strategy {
	switch s {
	case extract.StrategyStatic:
		return extract.StrategyDynamic
	default:
		return extract.StrategySPA
	}
}
