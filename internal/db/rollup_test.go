package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/db"
	"fieldsprout/internal/db/dbtest"
)

func TestPeriodStart(t *testing.T) {
	// 2024-01-10 is a Wednesday
	assert.Equal(t, day("2024-01-08"), db.PeriodStart(db.TimeframeWeekly, day("2024-01-10")))
	assert.Equal(t, day("2024-01-08"), db.PeriodStart(db.TimeframeWeekly, day("2024-01-08")))
	assert.Equal(t, day("2024-01-08"), db.PeriodStart(db.TimeframeWeekly, day("2024-01-14")))
	assert.Equal(t, day("2024-01-01"), db.PeriodStart(db.TimeframeMonthly, day("2024-01-31")))
	assert.Equal(t, day("2024-02-29"), db.PeriodEnd(db.TimeframeMonthly, day("2024-02-01")))
}

func TestRollupWeeklySumsAndRecomputesRatios(t *testing.T) {
	store, _ := dbtest.Store(t)
	ctx := context.Background()

	mk := func(date string, impr, clicks, spend, ctr, position float64) db.PerformanceMetric {
		r := db.PerformanceMetric{AccountID: 1, SourceType: db.SourceGoogleAds, EntityType: "campaign", EntityID: "c1", Date: day(date)}
		r.SetValues(map[string]float64{
			db.KeyImpressions: impr,
			db.KeyClicks:      clicks,
			db.KeySpend:       spend,
			"ctr":             ctr,
			"position":        position,
		})
		return r
	}
	_, err := store.Upsert(ctx, []db.PerformanceMetric{
		mk("2024-01-08", 100, 10, 5, 10, 2),
		mk("2024-01-09", 300, 10, 15, 3.33, 4),
		// next week, must not be included
		mk("2024-01-15", 999, 99, 99, 9.9, 1),
	})
	require.NoError(t, err)

	res, err := store.Rollup(ctx, db.TimeframeWeekly, day("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, db.UpsertResult{Inserted: 1}, res)

	rows, err := store.Query(ctx, 1, db.QueryFilter{Timeframe: db.TimeframeWeekly, Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v := rows[0].Values()
	assert.Equal(t, day("2024-01-08"), rows[0].Date)
	assert.Equal(t, 400.0, v[db.KeyImpressions])
	assert.Equal(t, 20.0, v[db.KeyClicks])
	assert.InDelta(t, 20.0, v[db.KeySpend], 1e-9)
	assert.Equal(t, 5.0, v["ctr"])
	assert.Equal(t, 3.0, v["position"])
	assert.EqualValues(t, 400, *rows[0].Impressions)

	// re-running replaces rather than duplicates
	res, err = store.Rollup(ctx, db.TimeframeWeekly, day("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, db.UpsertResult{Updated: 1}, res)
}

func TestRollupRejectsDaily(t *testing.T) {
	store, _ := dbtest.Store(t)
	_, err := store.Rollup(context.Background(), db.TimeframeDaily, day("2024-01-01"))
	assert.ErrorIs(t, err, db.ErrInvalidRecord)
}
