package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// PurgeBefore deletes performance rows dated strictly before cutoff and
// returns how many were removed. The backfill core never calls it; only
// the scheduler does, when a retention window is configured.
func PurgeBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("date < ?", Day(cutoff)).Delete(&PerformanceMetric{})
	if res.Error != nil {
		return 0, storageErr("purge", res.Error)
	}
	return res.RowsAffected, nil
}
