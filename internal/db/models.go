package db

import (
	"time"

	"gorm.io/datatypes"
)

// SourceType tags the external platform a record was pulled from.
type SourceType string

const (
	SourceGoogleAds       SourceType = "google_ads"
	SourceGoogleAnalytics SourceType = "google_analytics"
	SourceSearchConsole   SourceType = "search_console"
	SourceGLSA            SourceType = "glsa"
	SourceGMB             SourceType = "gmb"
	SourceFacebookAds     SourceType = "fbads"
)

// AllSources lists every supported source in the order backfills visit them.
var AllSources = []SourceType{
	SourceGoogleAds,
	SourceGoogleAnalytics,
	SourceSearchConsole,
	SourceGLSA,
	SourceGMB,
	SourceFacebookAds,
}

// Valid reports whether s is one of AllSources.
func (s SourceType) Valid() bool {
	for _, v := range AllSources {
		if s == v {
			return true
		}
	}
	return false
}

// Timeframe is the aggregation bucket of a record.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// Valid reports whether t is daily, weekly or monthly.
func (t Timeframe) Valid() bool {
	return t == TimeframeDaily || t == TimeframeWeekly || t == TimeframeMonthly
}

// Canonical metric keys that are also promoted to typed columns.
const (
	KeyImpressions = "impressions"
	KeyClicks      = "clicks"
	KeySpend       = "spend"
	KeyConversions = "conversions"
)

// PerformanceMetric is one observation for an (account, source, entity,
// date, timeframe) tuple. Absent source and entity identifiers are stored
// as empty strings so the unique index treats them as equal.
type PerformanceMetric struct {
	ID uint `gorm:"primaryKey"`

	AccountID  uint       `gorm:"not null;uniqueIndex:idx_perf_metric_unique,priority:1;index:idx_perf_account_source_date,priority:1"`
	SourceType SourceType `gorm:"size:32;not null;uniqueIndex:idx_perf_metric_unique,priority:2;index:idx_perf_account_source_date,priority:2;index:idx_perf_source_entity_date,priority:1"`
	SourceID   string     `gorm:"size:255;not null;default:'';uniqueIndex:idx_perf_metric_unique,priority:3"`
	EntityType string     `gorm:"size:32;not null;default:'';uniqueIndex:idx_perf_metric_unique,priority:4;index:idx_perf_source_entity_date,priority:2"`
	EntityID   string     `gorm:"size:255;not null;default:'';uniqueIndex:idx_perf_metric_unique,priority:5"`
	Date       time.Time  `gorm:"type:date;not null;uniqueIndex:idx_perf_metric_unique,priority:6;index:idx_perf_account_source_date,priority:3;index:idx_perf_source_entity_date,priority:3"`
	Timeframe  Timeframe  `gorm:"size:16;not null;default:daily;uniqueIndex:idx_perf_metric_unique,priority:7"`

	EntityName string `gorm:"size:512;not null;default:''"`

	// Metrics holds every source-specific value, already normalised to
	// dollars and 0-100 percentages.
	Metrics datatypes.JSONType[map[string]float64] `gorm:"not null"`

	Impressions *int64
	Clicks      *int64
	Spend       *float64 `gorm:"type:decimal(10,2)"`
	Conversions *float64 `gorm:"type:decimal(14,4)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PerformanceMetric) TableName() string {
	return "performance_metrics"
}

// Values returns the metrics mapping. The returned map must not be
// mutated; use SetValues to replace it.
func (m *PerformanceMetric) Values() map[string]float64 {
	v := m.Metrics.Data()
	if v == nil {
		return map[string]float64{}
	}
	return v
}

// SetValues replaces the metrics mapping and re-derives promoted columns.
func (m *PerformanceMetric) SetValues(values map[string]float64) {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	m.Metrics = datatypes.NewJSONType(cp)
	m.syncPromoted()
}

// Lead is a row of the CRM leads table. GLSA has no reporting API, so its
// daily performance is derived from leads tagged source = "glsa".
type Lead struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index:idx_leads_account_source_created,priority:3"`

	AccountID uint   `gorm:"not null;index:idx_leads_account_source_created,priority:1"`
	Source    string `gorm:"size:32;not null;index:idx_leads_account_source_created,priority:2"`

	Name  string `gorm:"size:255"`
	Phone string `gorm:"size:64"`
}

// ConnectionStatus is the lifecycle state of a platform connection.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionRevoked ConnectionStatus = "revoked"
)

// SourceConnection records that an account has connected a platform. The
// OAuth flow that fills it lives outside this service; AccessToken is kept
// sealed with the configured token key.
type SourceConnection struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	AccountID  uint       `gorm:"not null;uniqueIndex:idx_source_connection,priority:1"`
	SourceType SourceType `gorm:"size:32;not null;uniqueIndex:idx_source_connection,priority:2"`

	// ResourceID is the customer ID, property ID, site URL or ad account.
	ResourceID      string `gorm:"size:255"`
	LoginCustomerID string `gorm:"size:64"`

	AccessToken string     `gorm:"type:text"`
	ExpiresAt   *time.Time
	Status      ConnectionStatus `gorm:"size:16;not null;default:active"`
}
