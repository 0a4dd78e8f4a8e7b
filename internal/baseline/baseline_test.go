package baseline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/db"
	"fieldsprout/internal/db/dbtest"
)

func TestImportCSV(t *testing.T) {
	store, _ := dbtest.Store(t)
	ctx := context.Background()

	in := `Date,Impressions,Clicks,Spend,Conversions,entity_id
2024-01-01,10000,500,"$1,250.50",25,c1
2024-01-02,12000,600,300.00,,c1
not-a-date,1,1,1,1,c1
2024-01-03,11000,lots,275.25,28,c1
# trailing comment
`
	res, err := ImportCSV(ctx, store, 1, db.SourceGoogleAds, "123", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, res.Upsert.Inserted)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "line 4")
	assert.Contains(t, res.Errors[1], "clicks")

	rows, err := store.Query(ctx, 1, db.QueryFilter{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1250.50, *rows[0].Spend)
	assert.Equal(t, "c1", rows[0].EntityID)
	assert.Equal(t, "123", rows[0].SourceID)
	assert.Nil(t, rows[1].Conversions)
}

func TestImportCSVRequiresDateColumn(t *testing.T) {
	store, _ := dbtest.Store(t)
	_, err := ImportCSV(context.Background(), store, 1, db.SourceGoogleAds, "", strings.NewReader("day,clicks\n2024-01-01,1\n"))
	assert.ErrorIs(t, err, ErrNoDateColumn)

	_, err = ImportCSV(context.Background(), store, 1, db.SourceGoogleAds, "", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoDateColumn)
}

func TestImportCSVRejectsUnknownSource(t *testing.T) {
	store, _ := dbtest.Store(t)
	_, err := ImportCSV(context.Background(), store, 1, "yelp", "", strings.NewReader(Template()))
	assert.ErrorIs(t, err, db.ErrInvalidRecord)
}

func TestTemplateImports(t *testing.T) {
	store, _ := dbtest.Store(t)
	res, err := ImportCSV(context.Background(), store, 1, db.SourceFacebookAds, "", strings.NewReader(Template()))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Empty(t, res.Errors)
}

func TestImportMonthly(t *testing.T) {
	store, _ := dbtest.Store(t)
	ctx := context.Background()

	res, err := ImportMonthly(ctx, store, 1, db.SourceGoogleAds, "", []MonthlyRow{
		{Year: 2023, Month: 3, Metrics: map[string]float64{db.KeySpend: 1200, db.KeyClicks: 900}},
		{Year: 2023, Month: 13, Metrics: map[string]float64{db.KeySpend: 1}},
		{Year: 2023, Month: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Len(t, res.Errors, 2)

	rows, err := store.Query(ctx, 1, db.QueryFilter{
		Timeframe: db.TimeframeMonthly,
		Start:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, 1200.0, *rows[0].Spend)

	// monthly baselines do not count as daily coverage
	_, err = store.Coverage(ctx, 1, db.SourceGoogleAds)
	assert.ErrorIs(t, err, db.ErrNoData)
}
