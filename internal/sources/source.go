// Package sources pulls daily performance data from the external
// platforms and maps it onto db.PerformanceMetric records.
package sources

import (
	"context"
	"time"

	"fieldsprout/internal/db"
)

// Credentials is a live credential for one account on one platform. The
// provider that hands it out is responsible for refreshing tokens.
type Credentials struct {
	AccountID       uint
	Source          db.SourceType
	ResourceID      string
	AccessToken     string
	LoginCustomerID string
}

// CredentialProvider resolves credentials, failing with *Error of kind
// KindNotConnected or KindAuthExpired.
type CredentialProvider interface {
	Credentials(ctx context.Context, accountID uint, source db.SourceType) (Credentials, error)
}

// Adapter fetches one platform's daily records for [start, end].
// Implementations fail only with *Error and must return values already
// converted to dollars and 0-100 percentages.
type Adapter interface {
	Source() db.SourceType
	Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error)
}

// Registry maps a source type to its adapter and remembers registration
// order.
type Registry struct {
	order    []db.SourceType
	adapters map[db.SourceType]Adapter
}

// NewRegistry registers adapters in order. A later adapter for the same
// source replaces the earlier one in place.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[db.SourceType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	src := a.Source()
	if _, ok := r.adapters[src]; !ok {
		r.order = append(r.order, src)
	}
	r.adapters[src] = a
}

func (r *Registry) Get(source db.SourceType) (Adapter, bool) {
	a, ok := r.adapters[source]
	return a, ok
}

// All returns the adapters in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, src := range r.order {
		out = append(out, r.adapters[src])
	}
	return out
}

func (r *Registry) Sources() []db.SourceType {
	return append([]db.SourceType(nil), r.order...)
}

// record builds a daily record with normalised values.
func record(creds Credentials, source db.SourceType, day time.Time, entityType, entityID, entityName string, raw map[string]float64) db.PerformanceMetric {
	rec := db.PerformanceMetric{
		AccountID:  creds.AccountID,
		SourceType: source,
		SourceID:   creds.ResourceID,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Date:       db.Day(day),
		Timeframe:  db.TimeframeDaily,
	}
	rec.SetValues(Normalize(source, raw))
	return rec
}
