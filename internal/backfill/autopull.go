package backfill

import (
	"context"
	"fmt"

	"fieldsprout/internal/db"
)

// PullIfStale starts a background backfill of months for one source when
// the account has no data for it newer than StaleAfter. It reports whether
// a pull was started. Used when a source is (re)connected.
func (o *Orchestrator) PullIfStale(ctx context.Context, accountID uint, source db.SourceType, months int) (bool, error) {
	if err := validateArgs(accountID, months); err != nil {
		return false, err
	}
	if _, ok := o.registry.Get(source); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	stale, err := o.Stale(ctx, accountID, source)
	if err != nil || !stale {
		return false, err
	}

	log := o.opts.Logger.With("account_id", accountID, "source", source)
	log.Info("recent data missing, starting historical pull", "months", months)

	o.pulls.Add(1)
	go func() {
		defer o.pulls.Done()
		// the caller's context usually ends with its request
		report, err := o.BackfillSource(context.Background(), accountID, source, months, false)
		if err != nil {
			log.Error("historical pull failed", "error", err)
			return
		}
		if res, ok := report.Result(source); ok {
			log.Info("historical pull finished", "run_id", report.RunID, "status", res.Status, "inserted", res.Inserted)
		}
	}()
	return true, nil
}

// Wait blocks until every pull started by PullIfStale has finished.
func (o *Orchestrator) Wait() {
	o.pulls.Wait()
}
