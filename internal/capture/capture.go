// Package capture stores performance data the application already fetched
// for display, so live page views build history between backfills.
package capture

import (
	"context"
	"time"

	"fieldsprout/internal/db"
	"fieldsprout/internal/logger"
	"fieldsprout/internal/sources"
)

type Upserter interface {
	Upsert(ctx context.Context, records []db.PerformanceMetric) (db.UpsertResult, error)
}

// Entity identifies the sub-resource a capture belongs to. The zero value
// means an account-level record.
type Entity struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
	Name string `json:"entity_name"`
}

type Hook struct {
	store Upserter
	log   *logger.Logger
}

func New(store Upserter, log *logger.Logger) *Hook {
	if log == nil {
		log = logger.Nop()
	}
	return &Hook{store: store, log: log}
}

// Capture normalises raw and upserts it as the daily record for date. It
// makes no external calls. Validation failures return db.ErrInvalidRecord,
// write failures *db.StorageError.
func (h *Hook) Capture(ctx context.Context, accountID uint, source db.SourceType, sourceID string, entity Entity, date time.Time, raw map[string]float64) error {
	rec := db.PerformanceMetric{
		AccountID:  accountID,
		SourceType: source,
		SourceID:   sourceID,
		EntityType: entity.Type,
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Date:       date,
		Timeframe:  db.TimeframeDaily,
	}
	rec.SetValues(sources.Normalize(source, raw))

	_, err := h.store.Upsert(ctx, []db.PerformanceMetric{rec})
	return err
}

// TryCapture is Capture for callers that must not fail because of it:
// errors are logged and dropped.
func (h *Hook) TryCapture(ctx context.Context, accountID uint, source db.SourceType, sourceID string, entity Entity, date time.Time, raw map[string]float64) {
	if err := h.Capture(ctx, accountID, source, sourceID, entity, date, raw); err != nil {
		h.log.Warn("capture failed",
			"account_id", accountID,
			"source", source,
			"date", date.Format(time.DateOnly),
			"error", err,
		)
	}
}
