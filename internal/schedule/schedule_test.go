package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/backfill"
	"fieldsprout/internal/db"
)

type recordingBackfiller struct {
	calls []uint
	fail  map[uint]error
}

func (r *recordingBackfiller) Backfill(_ context.Context, accountID uint, months int, force bool) (*backfill.Report, error) {
	r.calls = append(r.calls, accountID)
	if months != 1 || force {
		return nil, errors.New("nightly run must be incremental")
	}
	return &backfill.Report{AccountID: accountID}, r.fail[accountID]
}

type staticAccounts []uint

func (s staticAccounts) ConnectedAccounts(context.Context) ([]uint, error) { return s, nil }

type recordingRoller struct {
	periods map[db.Timeframe]time.Time
}

func (r *recordingRoller) Rollup(_ context.Context, tf db.Timeframe, start time.Time) (db.UpsertResult, error) {
	if r.periods == nil {
		r.periods = map[db.Timeframe]time.Time{}
	}
	r.periods[tf] = start
	return db.UpsertResult{Inserted: 1}, nil
}

func TestNightlyRunOnce(t *testing.T) {
	bf := &recordingBackfiller{fail: map[uint]error{2: &db.StorageError{Op: "upsert"}}}
	roll := &recordingRoller{}
	var cutoff time.Time
	job := &NightlyJob{
		Backfill:      bf,
		Accounts:      staticAccounts{1, 2, 3},
		Rollups:       roll,
		RetentionDays: 30,
		Purge: func(_ context.Context, c time.Time) (int64, error) {
			cutoff = c
			return 4, nil
		},
		Clock: func() time.Time { return time.Date(2024, 3, 1, 3, 30, 0, 0, time.UTC) },
	}

	err := job.RunOnce(context.Background())
	var se *db.StorageError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "account 2")

	assert.Equal(t, []uint{1, 2, 3}, bf.calls)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), roll.periods[db.TimeframeWeekly])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), roll.periods[db.TimeframeMonthly])
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), cutoff)
}

func TestNightlySkipsPurgeWithoutRetention(t *testing.T) {
	purged := false
	job := &NightlyJob{
		Backfill: &recordingBackfiller{},
		Accounts: staticAccounts{},
		Rollups:  &recordingRoller{},
		Purge: func(context.Context, time.Time) (int64, error) {
			purged = true
			return 0, nil
		},
	}
	require.NoError(t, job.RunOnce(context.Background()))
	assert.False(t, purged)
}

func TestManagerRegistersSchedule(t *testing.T) {
	job := &NightlyJob{Backfill: &recordingBackfiller{}, Accounts: staticAccounts{}, Rollups: &recordingRoller{}}

	m := NewManager("0 30 3 * * *", job, nil)
	require.NoError(t, m.RegisterJobs())
	assert.Equal(t, 1, m.Entries())

	off := NewManager("", job, nil)
	require.NoError(t, off.RegisterJobs())
	assert.Zero(t, off.Entries())

	bad := NewManager("every night", job, nil)
	assert.Error(t, bad.RegisterJobs())
}
