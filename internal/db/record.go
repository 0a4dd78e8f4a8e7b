package db

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidRecord = errors.New("invalid performance record")

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RoundCents rounds a dollar amount to whole cents.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Column limits: counts are bigint, spend decimal(10,2) and conversions
// decimal(14,4).
const (
	maxSpend       = 1e8
	maxConversions = 1e10
)

// countInRange reports whether v fits a non-negative int64 count.
func countInRange(v float64) bool {
	return v >= 0 && v < math.MaxInt64
}

// syncPromoted derives the typed columns from the metrics mapping. A
// promoted column is nil whenever its canonical key is absent. Counts that
// do not fit the column are left unconverted for Validate to reject.
func (m *PerformanceMetric) syncPromoted() {
	values := m.Metrics.Data()

	m.Impressions = nil
	m.Clicks = nil
	m.Spend = nil
	m.Conversions = nil

	if v, ok := values[KeyImpressions]; ok && countInRange(v) {
		n := int64(math.Round(v))
		values[KeyImpressions] = float64(n)
		m.Impressions = &n
	}
	if v, ok := values[KeyClicks]; ok && countInRange(v) {
		n := int64(math.Round(v))
		values[KeyClicks] = float64(n)
		m.Clicks = &n
	}
	if v, ok := values[KeySpend]; ok {
		s := RoundCents(v)
		values[KeySpend] = s
		m.Spend = &s
	}
	if v, ok := values[KeyConversions]; ok {
		// decimal(14,4) column
		c := math.Round(v*1e4) / 1e4
		values[KeyConversions] = c
		m.Conversions = &c
	}
}

// Normalize puts a record into its stored shape: UTC day, default daily
// timeframe, and promoted columns consistent with the metrics mapping.
func (m *PerformanceMetric) Normalize() {
	m.Date = Day(m.Date)
	if m.Timeframe == "" {
		m.Timeframe = TimeframeDaily
	}
	m.SetValues(m.Values())
}

// Validate reports whether the record can be stored.
func (m *PerformanceMetric) Validate() error {
	switch {
	case m.AccountID == 0:
		return fmt.Errorf("%w: account_id is required", ErrInvalidRecord)
	case !m.SourceType.Valid():
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidRecord, m.SourceType)
	case !m.Timeframe.Valid():
		return fmt.Errorf("%w: unknown timeframe %q", ErrInvalidRecord, m.Timeframe)
	case m.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	values := m.Values()
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: metric %q is not finite", ErrInvalidRecord, k)
		}
	}
	for _, k := range []string{KeyImpressions, KeyClicks} {
		if v, ok := values[k]; ok && !countInRange(v) {
			return fmt.Errorf("%w: %s %v is not a non-negative 64-bit count", ErrInvalidRecord, k, v)
		}
	}
	if v, ok := values[KeySpend]; ok && math.Abs(v) >= maxSpend {
		return fmt.Errorf("%w: spend %v out of range", ErrInvalidRecord, v)
	}
	if v, ok := values[KeyConversions]; ok && math.Abs(v) >= maxConversions {
		return fmt.Errorf("%w: conversions %v out of range", ErrInvalidRecord, v)
	}
	return nil
}

// key is the uniqueness tuple of a record.
type key struct {
	AccountID  uint
	SourceType SourceType
	SourceID   string
	EntityType string
	EntityID   string
	Date       string
	Timeframe  Timeframe
}

func (m *PerformanceMetric) key() key {
	return key{
		AccountID:  m.AccountID,
		SourceType: m.SourceType,
		SourceID:   m.SourceID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Date:       Day(m.Date).Format(time.DateOnly),
		Timeframe:  m.Timeframe,
	}
}
