package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fieldsprout/internal/db"
)

func TestNormalizeMicrosToDollars(t *testing.T) {
	got := Normalize(db.SourceGoogleAds, map[string]float64{
		"cost_micros":        2_500_000,
		"average_cpc_micros": 1_250_000,
		"budget_micros":      10_000_000,
	})
	assert.Equal(t, 2.5, got[db.KeySpend])
	assert.Equal(t, 1.25, got["cpc"])
	assert.Equal(t, 10.0, got["budget"])
	assert.NotContains(t, got, "cost_micros")
}

func TestNormalizeMicrosWinsOverDollars(t *testing.T) {
	got := Normalize(db.SourceGoogleAds, map[string]float64{
		"cost_micros": 2_500_000,
		db.KeySpend:   99,
	})
	assert.Equal(t, 2.5, got[db.KeySpend])
}

func TestNormalizeFractionsPerSource(t *testing.T) {
	ads := Normalize(db.SourceGoogleAds, map[string]float64{"ctr": 0.05, "conversion_rate": 0.1})
	assert.InDelta(t, 5.0, ads["ctr"], 1e-9)
	assert.InDelta(t, 10.0, ads["conversion_rate"], 1e-9)

	ga := Normalize(db.SourceGoogleAnalytics, map[string]float64{"bounce_rate": 0.45})
	assert.InDelta(t, 45.0, ga["bounce_rate"], 1e-9)

	// Facebook already reports percentages.
	fb := Normalize(db.SourceFacebookAds, map[string]float64{"ctr": 1.7})
	assert.Equal(t, 1.7, fb["ctr"])
}

func TestNormalizeAliases(t *testing.T) {
	got := Normalize(db.SourceFacebookAds, map[string]float64{"cost": 12.5, "views": 300})
	assert.Equal(t, 12.5, got[db.KeySpend])
	assert.Equal(t, 300.0, got[db.KeyImpressions])
	assert.NotContains(t, got, "cost")
	assert.NotContains(t, got, "views")

	kept := Normalize(db.SourceFacebookAds, map[string]float64{"views": 300, db.KeyImpressions: 10})
	assert.Equal(t, 10.0, kept[db.KeyImpressions])
	assert.Equal(t, 300.0, kept["views"])
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := map[string]float64{"ctr": 0.5}
	Normalize(db.SourceSearchConsole, raw)
	assert.Equal(t, 0.5, raw["ctr"])
}
