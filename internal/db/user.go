package db

import (
	"time"
)

// User is an operator allowed to trigger backfills and imports through
// the admin endpoints. The bootstrap admin (from env) is created as a row
// in this table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	IsAdmin bool `gorm:"default:false"`
}
