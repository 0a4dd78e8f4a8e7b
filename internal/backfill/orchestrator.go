// Package backfill imports historical performance data for an account
// from every registered source and records per-source outcomes.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fieldsprout/internal/db"
	"fieldsprout/internal/logger"
	"fieldsprout/internal/sources"
)

// ErrUnknownSource is returned for a source with no registered adapter.
var ErrUnknownSource = errors.New("backfill: no adapter registered for source")

// Store is the part of db.Store a backfill writes through.
type Store interface {
	Upsert(ctx context.Context, records []db.PerformanceMetric) (db.UpsertResult, error)
	Coverage(ctx context.Context, accountID uint, source db.SourceType) (db.Coverage, error)
}

type Options struct {
	// Parallelism caps concurrently fetched sources. Values below 1 mean 1.
	Parallelism int
	// SourceTimeout bounds each adapter fetch. Zero disables the bound.
	SourceTimeout time.Duration
	// Clock supplies "today". Defaults to time.Now.
	Clock   func() time.Time
	Logger  *logger.Logger
	Metrics *Metrics
}

type Orchestrator struct {
	store    Store
	registry *sources.Registry
	creds    sources.CredentialProvider
	opts     Options

	// pulls tracks background backfills started by PullIfStale.
	pulls sync.WaitGroup
}

func New(store Store, registry *sources.Registry, creds sources.CredentialProvider, opts Options) *Orchestrator {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Orchestrator{store: store, registry: registry, creds: creds, opts: opts}
}

// Window returns the inclusive date range a backfill of months covers,
// ending today (UTC).
func (o *Orchestrator) Window(months int) (time.Time, time.Time) {
	end := db.Day(o.opts.Clock().UTC())
	return end.AddDate(0, -months, 0), end
}

// Backfill imports up to months of history for every registered source.
// Without force, dates already covered by stored daily rows are not
// re-fetched. Adapter failures are recorded in the report; storage
// failures are recorded and also returned joined as the error, next to
// the report.
func (o *Orchestrator) Backfill(ctx context.Context, accountID uint, months int, force bool) (*Report, error) {
	if err := validateArgs(accountID, months); err != nil {
		return nil, err
	}
	return o.run(ctx, accountID, months, force, o.registry.All())
}

// BackfillSource is Backfill restricted to one registered source.
func (o *Orchestrator) BackfillSource(ctx context.Context, accountID uint, source db.SourceType, months int, force bool) (*Report, error) {
	if err := validateArgs(accountID, months); err != nil {
		return nil, err
	}
	a, ok := o.registry.Get(source)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return o.run(ctx, accountID, months, force, []sources.Adapter{a})
}

func validateArgs(accountID uint, months int) error {
	if accountID == 0 {
		return fmt.Errorf("backfill: account id is required")
	}
	if months < 1 {
		return fmt.Errorf("backfill: months must be positive, got %d", months)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, accountID uint, months int, force bool, adapters []sources.Adapter) (*Report, error) {
	start, end := o.Window(months)
	report := &Report{
		RunID:     uuid.NewString(),
		AccountID: accountID,
		Start:     start,
		End:       end,
		Force:     force,
	}
	log := o.opts.Logger.With("run_id", report.RunID, "account_id", accountID)
	log.Info("backfill started", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "force", force)

	results := make([]SourceResult, len(adapters))
	storageErrs := make([]error, len(adapters))

	var g errgroup.Group
	g.SetLimit(o.opts.Parallelism)
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			began := time.Now()
			res, err := o.runSource(ctx, log.With("source", a.Source()), accountID, a, start, end, force)
			elapsed := time.Since(began)
			res.DurationMs = elapsed.Milliseconds()
			o.opts.Metrics.observe(a.Source(), res, elapsed)
			results[i] = res
			storageErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	report.Sources = results
	report.tally()
	err := errors.Join(storageErrs...)

	log.Info("backfill finished",
		"attempted", report.Attempted,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"failed", len(report.Failed()),
	)
	return report, err
}

func (o *Orchestrator) runSource(ctx context.Context, log *logger.Logger, accountID uint, a sources.Adapter, start, end time.Time, force bool) (SourceResult, error) {
	src := a.Source()
	res := SourceResult{Source: src}

	creds, err := o.creds.Credentials(ctx, accountID, src)
	if err != nil {
		ae := sources.AsError(src, err)
		if ae.Kind == sources.KindNotConnected {
			res.Status = StatusSkipped
			res.Note = ae.Error()
			log.Debug("source not connected")
			return res, nil
		}
		return failed(log, res, ae), nil
	}
	creds.AccountID = accountID
	creds.Source = src

	windows := []Window{{Start: start, End: end}}
	if !force {
		cov, err := o.store.Coverage(ctx, accountID, src)
		switch {
		case errors.Is(err, db.ErrNoData):
		case err != nil:
			return storageFailed(log, res, err), fmt.Errorf("backfill %s coverage: %w", src, err)
		default:
			windows = uncovered(start, end, cov)
		}
	}
	if len(windows) == 0 {
		res.Status = StatusSkipped
		res.Note = "window already covered"
		return res, nil
	}
	res.Windows = windows

	for _, w := range windows {
		records, err := o.fetch(ctx, a, creds, w)
		if err != nil {
			return failed(log, res, sources.AsError(src, err)), nil
		}
		res.Records += len(records)
		if len(records) == 0 {
			continue
		}
		// commit per window so a later failure keeps earlier progress
		up, err := o.store.Upsert(ctx, records)
		if err != nil {
			return storageFailed(log, res, err), fmt.Errorf("backfill %s: %w", src, err)
		}
		res.Inserted += up.Inserted
		res.Updated += up.Updated
	}

	res.Status = StatusOK
	log.Info("source imported", "records", res.Records, "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context, a sources.Adapter, creds sources.Credentials, w Window) ([]db.PerformanceMetric, error) {
	if o.opts.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SourceTimeout)
		defer cancel()
	}
	return a.Fetch(ctx, creds, w.Start, w.End)
}

func failed(log *logger.Logger, res SourceResult, ae *sources.Error) SourceResult {
	res.Status = StatusError
	res.ErrorKind = ae.Kind
	res.Error = ae.Error()
	res.RetryLater = ae.RetryLater()
	if ae.Kind == sources.KindUnsupported {
		log.Info("source unsupported", "error", res.Error)
	} else {
		log.Warn("source failed", "kind", ae.Kind, "error", res.Error, "retry_later", res.RetryLater)
	}
	return res
}

func storageFailed(log *logger.Logger, res SourceResult, err error) SourceResult {
	res.Status = StatusError
	res.ErrorKind = ErrorKindStorage
	res.Error = err.Error()
	res.RetryLater = true
	log.Error("source storage failed", "error", err)
	return res
}

// uncovered returns the parts of [start, end] outside the covered range:
// the days before cov.MinDate and the days after cov.MaxDate. Gaps inside
// the covered range are not detected.
func uncovered(start, end time.Time, cov db.Coverage) []Window {
	var out []Window
	if start.Before(cov.MinDate) {
		headEnd := cov.MinDate.AddDate(0, 0, -1)
		if headEnd.After(end) {
			headEnd = end
		}
		out = append(out, Window{Start: start, End: headEnd})
	}
	if end.After(cov.MaxDate) {
		tailStart := cov.MaxDate.AddDate(0, 0, 1)
		if tailStart.Before(start) {
			tailStart = start
		}
		out = append(out, Window{Start: tailStart, End: end})
	}
	return out
}
