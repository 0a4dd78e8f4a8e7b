package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// APIKey authenticates the rest of the application when it posts live data
// to the capture endpoint. Each key is scoped to one account.
type APIKey struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// AccountID is the tenant whose data this key may write.
	AccountID uint `gorm:"index;not null"`

	// Name is a user-friendly identifier for this key (e.g. "dashboard").
	Name string `gorm:"size:128;not null"`

	// Key is the actual bearer token value (stored as-is, should be unique).
	Key string `gorm:"uniqueIndex;size:255;not null"`

	// Active indicates whether this key is currently enabled.
	Active bool `gorm:"default:true"`
}

// ActiveAPIKey looks up an enabled key by its token. It returns
// gorm.ErrRecordNotFound when the token is unknown or disabled.
func ActiveAPIKey(ctx context.Context, db *gorm.DB, token string) (*APIKey, error) {
	var key APIKey
	err := db.WithContext(ctx).Where("key = ? AND active = ?", token, true).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, storageErr("api key lookup", err)
	}
	return &key, nil
}
