package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 500

var uniqueColumns = []clause.Column{
	{Name: "account_id"},
	{Name: "source_type"},
	{Name: "source_id"},
	{Name: "entity_type"},
	{Name: "entity_id"},
	{Name: "date"},
	{Name: "timeframe"},
}

// Columns replaced when a tuple already exists. created_at is left alone.
var mutableColumns = []string{
	"entity_name",
	"metrics",
	"impressions",
	"clicks",
	"spend",
	"conversions",
	"updated_at",
}

// UpsertResult counts how a batch resolved against existing rows.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

func (r UpsertResult) Total() int { return r.Inserted + r.Updated }

// QueryFilter narrows Query. Start and End are required and inclusive;
// empty strings leave a dimension unfiltered.
type QueryFilter struct {
	SourceType SourceType
	SourceID   string
	EntityType string
	EntityID   string
	Timeframe  Timeframe
	Start      time.Time
	End        time.Time
}

// Coverage is the known date range of daily rows for an account/source.
type Coverage struct {
	MinDate  time.Time `json:"min_date"`
	MaxDate  time.Time `json:"max_date"`
	RowCount int64     `json:"row_count"`
}

// Contains reports whether day falls inside the covered range.
func (c Coverage) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(c.MinDate) && !d.After(c.MaxDate)
}

// Store owns reads and idempotent writes of performance_metrics.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Upsert writes the batch atomically. Each record replaces the row with
// the same uniqueness tuple or is inserted when none exists. Duplicate
// tuples inside one batch collapse to the last occurrence.
func (s *Store) Upsert(ctx context.Context, records []PerformanceMetric) (UpsertResult, error) {
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	batch, err := prepareBatch(records)
	if err != nil {
		return UpsertResult{}, err
	}

	var res UpsertResult
	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := existingKeys(tx, batch)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].CreatedAt = now
			batch[i].UpdatedAt = now
			if _, ok := existing[batch[i].key()]; ok {
				res.Updated++
			} else {
				res.Inserted++
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   uniqueColumns,
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).CreateInBatches(&batch, upsertBatchSize).Error
	})
	if err != nil {
		return UpsertResult{}, storageErr("upsert", err)
	}
	return res, nil
}

func prepareBatch(records []PerformanceMetric) ([]PerformanceMetric, error) {
	batch := make([]PerformanceMetric, 0, len(records))
	index := make(map[key]int, len(records))
	for i := range records {
		rec := records[i]
		rec.ID = 0
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		k := rec.key()
		if pos, ok := index[k]; ok {
			batch[pos] = rec
			continue
		}
		index[k] = len(batch)
		batch = append(batch, rec)
	}
	return batch, nil
}

// existingKeys loads the tuples of the batch that are already stored.
func existingKeys(tx *gorm.DB, batch []PerformanceMetric) (map[key]struct{}, error) {
	type scope struct {
		AccountID  uint
		SourceType SourceType
	}
	type span struct{ min, max time.Time }

	spans := make(map[scope]*span)
	for i := range batch {
		sc := scope{batch[i].AccountID, batch[i].SourceType}
		sp, ok := spans[sc]
		if !ok {
			spans[sc] = &span{batch[i].Date, batch[i].Date}
			continue
		}
		if batch[i].Date.Before(sp.min) {
			sp.min = batch[i].Date
		}
		if batch[i].Date.After(sp.max) {
			sp.max = batch[i].Date
		}
	}

	out := make(map[key]struct{})
	for sc, sp := range spans {
		var rows []PerformanceMetric
		err := tx.Model(&PerformanceMetric{}).
			Select("account_id", "source_type", "source_id", "entity_type", "entity_id", "date", "timeframe").
			Where("account_id = ? AND source_type = ? AND date >= ? AND date <= ?", sc.AccountID, sc.SourceType, sp.min, sp.max).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].key()] = struct{}{}
		}
	}
	return out, nil
}

// Query returns the account's records matching f, ordered by date, then
// source_type, then entity_id.
func (s *Store) Query(ctx context.Context, accountID uint, f QueryFilter) ([]PerformanceMetric, error) {
	if f.Start.IsZero() || f.End.IsZero() {
		return nil, fmt.Errorf("%w: query needs a start and end date", ErrInvalidRecord)
	}
	start, end := Day(f.Start), Day(f.End)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRecord, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	q := s.db.WithContext(ctx).Model(&PerformanceMetric{}).
		Where("account_id = ?", accountID).
		Where("date >= ? AND date <= ?", start, end)
	if f.SourceType != "" {
		q = q.Where("source_type = ?", f.SourceType)
	}
	if f.SourceID != "" {
		q = q.Where("source_id = ?", f.SourceID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Timeframe != "" {
		q = q.Where("timeframe = ?", f.Timeframe)
	}

	out := make([]PerformanceMetric, 0)
	if err := q.Order("date ASC, source_type ASC, entity_id ASC, id ASC").Find(&out).Error; err != nil {
		return nil, storageErr("query", err)
	}
	return out, nil
}

// Coverage reports the daily date range stored for an account/source, or
// ErrNoData when nothing is stored.
func (s *Store) Coverage(ctx context.Context, accountID uint, source SourceType) (Coverage, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&PerformanceMetric{}).
			Where("account_id = ? AND source_type = ? AND timeframe = ?", accountID, source, TimeframeDaily)
	}

	var count int64
	if err := base().Count(&count).Error; err != nil {
		return Coverage{}, storageErr("coverage", err)
	}
	if count == 0 {
		return Coverage{}, ErrNoData
	}

	var first, last PerformanceMetric
	if err := base().Select("date").Order("date ASC").Limit(1).Take(&first).Error; err != nil {
		return Coverage{}, coverageErr(err)
	}
	if err := base().Select("date").Order("date DESC").Limit(1).Take(&last).Error; err != nil {
		return Coverage{}, coverageErr(err)
	}
	return Coverage{MinDate: Day(first.Date), MaxDate: Day(last.Date), RowCount: count}, nil
}

func coverageErr(err error) error {
	// rows vanished between count and read (external purge)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoData
	}
	return storageErr("coverage", err)
}
