package backfill

import (
	"context"
	"errors"
	"time"

	"fieldsprout/internal/db"
)

// StaleAfter is how old the newest stored day may be before a source is
// reported as stale.
const StaleAfter = 7 * 24 * time.Hour

// SourceCoverage is the Check entry for one source.
type SourceCoverage struct {
	Source        db.SourceType `json:"source"`
	HasData       bool          `json:"has_data"`
	Count         int64         `json:"count"`
	EarliestDate  *time.Time    `json:"earliest_date,omitempty"`
	LatestDate    *time.Time    `json:"latest_date,omitempty"`
	DateRangeDays int           `json:"date_range_days"`
	Stale         bool          `json:"stale"`
}

// Check reports stored daily coverage for each registered source. It
// never calls an adapter.
func (o *Orchestrator) Check(ctx context.Context, accountID uint) ([]SourceCoverage, error) {
	out := make([]SourceCoverage, 0, len(o.registry.Sources()))
	for _, src := range o.registry.Sources() {
		entry, err := o.coverage(ctx, accountID, src)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Stale reports whether source has no stored days for the account or its
// newest day is at least StaleAfter old.
func (o *Orchestrator) Stale(ctx context.Context, accountID uint, source db.SourceType) (bool, error) {
	entry, err := o.coverage(ctx, accountID, source)
	if err != nil {
		return false, err
	}
	return entry.Stale, nil
}

func (o *Orchestrator) coverage(ctx context.Context, accountID uint, src db.SourceType) (SourceCoverage, error) {
	today := db.Day(o.opts.Clock().UTC())
	entry := SourceCoverage{Source: src}
	cov, err := o.store.Coverage(ctx, accountID, src)
	switch {
	case errors.Is(err, db.ErrNoData):
		entry.Stale = true
	case err != nil:
		return SourceCoverage{}, err
	default:
		minDate, maxDate := cov.MinDate, cov.MaxDate
		entry.HasData = true
		entry.Count = cov.RowCount
		entry.EarliestDate = &minDate
		entry.LatestDate = &maxDate
		entry.DateRangeDays = int(maxDate.Sub(minDate).Hours() / 24)
		entry.Stale = today.Sub(maxDate) >= StaleAfter
	}
	return entry, nil
}
