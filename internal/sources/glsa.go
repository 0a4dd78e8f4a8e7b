package sources

import (
	"context"
	"sort"
	"time"

	"fieldsprout/internal/db"
)

// LeadCounter reports per-day lead counts for a lead source tag.
type LeadCounter interface {
	DailyLeadCounts(ctx context.Context, accountID uint, source string, start, end time.Time) (map[time.Time]int64, error)
}

// GLSAAdapter derives Local Services performance from the leads table;
// the platform has no reporting API. Records are account-level.
type GLSAAdapter struct {
	Leads LeadCounter
}

func NewGLSAAdapter(l LeadCounter) *GLSAAdapter {
	return &GLSAAdapter{Leads: l}
}

func (a *GLSAAdapter) Source() db.SourceType { return db.SourceGLSA }

func (a *GLSAAdapter) Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error) {
	counts, err := a.Leads.DailyLeadCounts(ctx, creds.AccountID, string(db.SourceGLSA), start, end)
	if err != nil {
		return nil, wrapErr(db.SourceGLSA, KindTransient, err)
	}

	days := make([]time.Time, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	creds.ResourceID = ""
	out := make([]db.PerformanceMetric, 0, len(days))
	for _, d := range days {
		n := float64(counts[d])
		raw := map[string]float64{
			"leads":           n,
			"phone_calls":     n,
			db.KeyConversions: n,
		}
		out = append(out, record(creds, db.SourceGLSA, d, "", "", "", raw))
	}
	return out, nil
}

// GMBAdapter is registered so Business Profile shows up in reports; it
// has no metric contract yet.
type GMBAdapter struct{}

func (GMBAdapter) Source() db.SourceType { return db.SourceGMB }

func (GMBAdapter) Fetch(context.Context, Credentials, time.Time, time.Time) ([]db.PerformanceMetric, error) {
	return nil, NewError(db.SourceGMB, KindUnsupported, "business profile performance import is not available")
}
