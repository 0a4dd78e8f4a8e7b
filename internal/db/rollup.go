package db

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Metrics summed across the days of a period. Ratios are recomputed from
// the sums; any other key is averaged over the days that carry it.
var additiveKeys = map[string]struct{}{
	KeyImpressions:     {},
	KeyClicks:          {},
	KeySpend:           {},
	KeyConversions:     {},
	"conversion_value": {},
	"reach":            {},
	"leads":            {},
	"phone_calls":      {},
	"sessions":         {},
	"pageviews":        {},
	"goal_completions": {},
}

// PeriodStart returns the anchor date of the bucket containing t: Monday
// for weekly, the 1st for monthly, the day itself for daily.
func PeriodStart(tf Timeframe, t time.Time) time.Time {
	d := Day(t)
	switch tf {
	case TimeframeWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case TimeframeMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// PeriodEnd is the last day of the bucket anchored at start.
func PeriodEnd(tf Timeframe, start time.Time) time.Time {
	switch tf {
	case TimeframeWeekly:
		return start.AddDate(0, 0, 6)
	case TimeframeMonthly:
		return start.AddDate(0, 1, -1)
	default:
		return start
	}
}

// Rollup builds weekly or monthly records for the period containing
// periodStart from the stored daily rows of every account. Records go
// through Upsert, so re-running a period replaces its rollups.
func (s *Store) Rollup(ctx context.Context, tf Timeframe, periodStart time.Time) (UpsertResult, error) {
	if tf != TimeframeWeekly && tf != TimeframeMonthly {
		return UpsertResult{}, fmt.Errorf("%w: cannot roll up into %q", ErrInvalidRecord, tf)
	}
	start := PeriodStart(tf, periodStart)
	end := PeriodEnd(tf, start)

	var accounts []uint
	if err := s.db.WithContext(ctx).Model(&PerformanceMetric{}).
		Where("timeframe = ? AND date >= ? AND date <= ?", TimeframeDaily, start, end).
		Distinct().Pluck("account_id", &accounts).Error; err != nil {
		return UpsertResult{}, storageErr("rollup accounts", err)
	}

	var total UpsertResult
	for _, accountID := range accounts {
		daily, err := s.Query(ctx, accountID, QueryFilter{Timeframe: TimeframeDaily, Start: start, End: end})
		if err != nil {
			return total, err
		}
		res, err := s.Upsert(ctx, rollupRecords(tf, start, daily))
		if err != nil {
			return total, err
		}
		total.Inserted += res.Inserted
		total.Updated += res.Updated
	}
	return total, nil
}

func rollupRecords(tf Timeframe, anchor time.Time, daily []PerformanceMetric) []PerformanceMetric {
	type group struct {
		AccountID  uint
		SourceType SourceType
		SourceID   string
		EntityType string
		EntityID   string
	}
	type acc struct {
		name   string
		sums   map[string]float64
		counts map[string]int
	}

	groups := make(map[group]*acc)
	for i := range daily {
		r := &daily[i]
		g := group{r.AccountID, r.SourceType, r.SourceID, r.EntityType, r.EntityID}
		a, ok := groups[g]
		if !ok {
			a = &acc{sums: map[string]float64{}, counts: map[string]int{}}
			groups[g] = a
		}
		if r.EntityName != "" {
			a.name = r.EntityName
		}
		for k, v := range r.Values() {
			a.sums[k] += v
			a.counts[k]++
		}
	}

	out := make([]PerformanceMetric, 0, len(groups))
	for g, a := range groups {
		values := make(map[string]float64, len(a.sums))
		for k, v := range a.sums {
			if _, ok := additiveKeys[k]; ok {
				values[k] = v
				continue
			}
			values[k] = v / float64(a.counts[k])
		}
		recomputeRatios(values)

		rec := PerformanceMetric{
			AccountID:  g.AccountID,
			SourceType: g.SourceType,
			SourceID:   g.SourceID,
			EntityType: g.EntityType,
			EntityID:   g.EntityID,
			EntityName: a.name,
			Date:       anchor,
			Timeframe:  tf,
		}
		rec.SetValues(values)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceType != out[j].SourceType {
			return out[i].SourceType < out[j].SourceType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// recomputeRatios overwrites averaged ratios with values derived from the
// summed totals when those totals are present.
func recomputeRatios(v map[string]float64) {
	impressions, hasImpr := v[KeyImpressions]
	clicks, hasClicks := v[KeyClicks]
	spend, hasSpend := v[KeySpend]

	if _, ok := v["ctr"]; ok && hasImpr && hasClicks && impressions > 0 {
		v["ctr"] = round2(clicks / impressions * 100)
	}
	if _, ok := v["cpc"]; ok && hasSpend && hasClicks && clicks > 0 {
		v["cpc"] = round2(spend / clicks)
	}
	if _, ok := v["cpm"]; ok && hasSpend && hasImpr && impressions > 0 {
		v["cpm"] = round2(spend / impressions * 1000)
	}
}
