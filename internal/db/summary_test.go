package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/db"
	"fieldsprout/internal/db/dbtest"
)

func TestSummaryTotalsAndRatios(t *testing.T) {
	store, _ := dbtest.Store(t)
	ctx := context.Background()

	a := adsRecord(1, "c1", "2024-01-01", 10, 20)
	b := adsRecord(1, "c1", "2024-01-02", 30, 40)
	vals := b.Values()
	vals[db.KeyConversions] = 4
	b.SetValues(vals)
	_, err := store.Upsert(ctx, []db.PerformanceMetric{a, b})
	require.NoError(t, err)

	sum, err := store.Summary(ctx, 1, db.QueryFilter{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)
	assert.EqualValues(t, 400, sum.Impressions)
	assert.EqualValues(t, 40, sum.Clicks)
	assert.InDelta(t, 60.0, sum.Spend, 1e-9)
	assert.InDelta(t, 4.0, sum.Conversions, 1e-9)
	assert.Equal(t, 10.0, sum.CTR)
	assert.Equal(t, 1.5, sum.CPC)
	assert.Equal(t, 15.0, sum.CPA)
	assert.Equal(t, 2, sum.Days)
}

func TestSummaryEmptyRange(t *testing.T) {
	store, _ := dbtest.Store(t)
	sum, err := store.Summary(context.Background(), 1, db.QueryFilter{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)
	assert.Zero(t, sum.Impressions)
	assert.Zero(t, sum.CTR)
	assert.Zero(t, sum.Days)
}

func TestTrendMarksMissingMetric(t *testing.T) {
	store, _ := dbtest.Store(t)
	ctx := context.Background()

	withReach := db.PerformanceMetric{AccountID: 1, SourceType: db.SourceFacebookAds, EntityID: "1", Date: day("2024-01-01")}
	withReach.SetValues(map[string]float64{"reach": 50})
	without := db.PerformanceMetric{AccountID: 1, SourceType: db.SourceFacebookAds, EntityID: "1", Date: day("2024-01-02")}
	without.SetValues(map[string]float64{db.KeyClicks: 2})
	_, err := store.Upsert(ctx, []db.PerformanceMetric{withReach, without})
	require.NoError(t, err)

	points, err := store.Trend(ctx, 1, db.QueryFilter{Start: day("2024-01-01"), End: day("2024-01-02")}, "reach")
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.NotNil(t, points[0].Value)
	assert.Equal(t, 50.0, *points[0].Value)
	assert.Nil(t, points[1].Value)
}

func TestComparePeriods(t *testing.T) {
	cur := db.Summary{Impressions: 150, Clicks: 0, Spend: 30}
	prior := db.Summary{Impressions: 100, Clicks: 0, Spend: 0}

	cmp := db.ComparePeriods(cur, prior)
	assert.Equal(t, 50.0, cmp.Change[db.KeyImpressions])
	assert.Equal(t, 50.0, cmp.Percent[db.KeyImpressions])
	assert.Equal(t, 0.0, cmp.Percent[db.KeyClicks])
	assert.Equal(t, 100.0, cmp.Percent[db.KeySpend])
}

func TestRanges(t *testing.T) {
	s, e := db.PriorRange(day("2024-03-01"), day("2024-03-10"))
	assert.Equal(t, day("2024-02-20"), s)
	assert.Equal(t, day("2024-02-29"), e)

	s, e = db.YearAgoRange(day("2024-03-01"), day("2024-03-10"))
	assert.Equal(t, day("2023-03-01"), s)
	assert.Equal(t, day("2023-03-10"), e)
}

func TestDailyLeadCounts(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	leads := []db.Lead{
		{AccountID: 1, Source: "glsa", CreatedAt: base},
		{AccountID: 1, Source: "glsa", CreatedAt: base.Add(3 * time.Hour)},
		{AccountID: 1, Source: "glsa", CreatedAt: base.AddDate(0, 0, 1)},
		{AccountID: 1, Source: "website", CreatedAt: base},
		{AccountID: 2, Source: "glsa", CreatedAt: base},
		{AccountID: 1, Source: "glsa", CreatedAt: base.AddDate(0, 0, 5)},
	}
	require.NoError(t, gdb.Create(&leads).Error)

	counts, err := db.NewLeadStore(gdb).DailyLeadCounts(ctx, 1, "glsa", day("2024-01-05"), day("2024-01-06"))
	require.NoError(t, err)
	assert.Equal(t, map[time.Time]int64{
		day("2024-01-05"): 2,
		day("2024-01-06"): 1,
	}, counts)
}
