package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldsprout/internal/backfill"
	"fieldsprout/internal/db"
	"fieldsprout/internal/logger"
)

type Backfiller interface {
	Backfill(ctx context.Context, accountID uint, months int, force bool) (*backfill.Report, error)
}

type AccountLister interface {
	ConnectedAccounts(ctx context.Context) ([]uint, error)
}

type Roller interface {
	Rollup(ctx context.Context, tf db.Timeframe, periodStart time.Time) (db.UpsertResult, error)
}

// PurgeFunc deletes rows dated before cutoff.
type PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// NightlyJob keeps history current: a one-month incremental backfill for
// every connected account, weekly and monthly rollups of the period
// containing yesterday, and an optional retention purge.
type NightlyJob struct {
	Backfill      Backfiller
	Accounts      AccountLister
	Rollups       Roller
	Purge         PurgeFunc
	RetentionDays int
	// Timeout bounds a whole run. Zero means no bound.
	Timeout time.Duration
	Clock   func() time.Time
	Log     *logger.Logger
}

// Run implements cron.Job.
func (j *NightlyJob) Run() {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	if err := j.RunOnce(ctx); err != nil {
		j.log().Error("nightly run failed", "error", err)
	}
}

// RunOnce performs one nightly pass. Failures of one account do not stop
// the others; all of them are returned joined.
func (j *NightlyJob) RunOnce(ctx context.Context) error {
	log := j.log()
	accounts, err := j.Accounts.ConnectedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var errs []error
	for _, id := range accounts {
		report, err := j.Backfill.Backfill(ctx, id, 1, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %d: %w", id, err))
		}
		if report != nil {
			log.Info("nightly backfill", "account_id", id, "run_id", report.RunID, "imported", report.TotalImported, "failed", len(report.Failed()))
		}
	}

	yesterday := db.Day(j.now()).AddDate(0, 0, -1)
	for _, tf := range []db.Timeframe{db.TimeframeWeekly, db.TimeframeMonthly} {
		res, err := j.Rollups.Rollup(ctx, tf, yesterday)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s rollup: %w", tf, err))
			continue
		}
		log.Info("rollup written", "timeframe", tf, "period", db.PeriodStart(tf, yesterday).Format(time.DateOnly), "records", res.Total())
	}

	if j.RetentionDays > 0 && j.Purge != nil {
		cutoff := db.Day(j.now()).AddDate(0, 0, -j.RetentionDays)
		n, err := j.Purge(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge: %w", err))
		} else if n > 0 {
			log.Info("retention purge", "cutoff", cutoff.Format(time.DateOnly), "deleted", n)
		}
	}
	return errors.Join(errs...)
}

func (j *NightlyJob) now() time.Time {
	if j.Clock != nil {
		return j.Clock().UTC()
	}
	return time.Now().UTC()
}

func (j *NightlyJob) log() *logger.Logger {
	if j.Log != nil {
		return j.Log
	}
	return logger.Nop()
}
