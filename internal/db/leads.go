package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// LeadStore reads the CRM leads table.
type LeadStore struct {
	db *gorm.DB
}

func NewLeadStore(db *gorm.DB) *LeadStore {
	return &LeadStore{db: db}
}

// DailyLeadCounts groups the account's leads for source by UTC calendar day
// for days in [start, end]. Days without leads are absent from the map.
func (s *LeadStore) DailyLeadCounts(ctx context.Context, accountID uint, source string, start, end time.Time) (map[time.Time]int64, error) {
	from := Day(start)
	until := Day(end).AddDate(0, 0, 1)

	// Grouped in Go: DATE() returns different types across drivers.
	var createdAt []time.Time
	err := s.db.WithContext(ctx).Model(&Lead{}).
		Where("account_id = ? AND source = ? AND created_at >= ? AND created_at < ?", accountID, source, from, until).
		Pluck("created_at", &createdAt).Error
	if err != nil {
		return nil, storageErr("lead counts", err)
	}

	out := make(map[time.Time]int64)
	for _, t := range createdAt {
		out[Day(t.UTC())]++
	}
	return out, nil
}
