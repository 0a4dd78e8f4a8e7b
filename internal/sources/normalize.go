package sources

import (
	"strings"

	"fieldsprout/internal/db"
)

// Ratios each platform reports as a 0-1 fraction.
var fractionKeys = map[db.SourceType][]string{
	db.SourceGoogleAds:       {"ctr", "conversion_rate"},
	db.SourceSearchConsole:   {"ctr"},
	db.SourceGoogleAnalytics: {"bounce_rate", "engagement_rate"},
}

// Canonical names for converted micros keys. Other *_micros keys keep
// their stem.
var microsAliases = map[string]string{
	"cost":        db.KeySpend,
	"average_cpc": "cpc",
	"average_cpm": "cpm",
}

// Normalize converts platform-native values to canonical units: micros to
// dollars, fraction ratios to percentages. It also folds the aliases
// "cost" into spend and "views" into impressions when the canonical key
// is missing. raw is not modified.
func Normalize(source db.SourceType, raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if !strings.HasSuffix(k, "_micros") {
			out[k] = v
		}
	}
	for k, v := range raw {
		stem, ok := strings.CutSuffix(k, "_micros")
		if !ok {
			continue
		}
		if alias, ok := microsAliases[stem]; ok {
			stem = alias
		}
		out[stem] = v / 1_000_000
	}

	moveIfAbsent(out, "cost", db.KeySpend)
	moveIfAbsent(out, "views", db.KeyImpressions)

	for _, k := range fractionKeys[source] {
		if v, ok := out[k]; ok {
			out[k] = v * 100
		}
	}
	return out
}

func moveIfAbsent(m map[string]float64, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, has := m[to]; has {
		return
	}
	m[to] = v
	delete(m, from)
}
