package db

import (
	"context"
	"math"
	"time"
)

// Summary aggregates the promoted columns over a filtered range.
type Summary struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	Conversions float64   `json:"conversions"`
	CTR         float64   `json:"ctr"`
	CPC         float64   `json:"cpc"`
	CPA         float64   `json:"cpa"`
	Days        int       `json:"days"`
}

// Summary totals the records matching f. An empty range yields a zero
// summary, not an error.
func (s *Store) Summary(ctx context.Context, accountID uint, f QueryFilter) (Summary, error) {
	if f.Timeframe == "" {
		f.Timeframe = TimeframeDaily
	}
	rows, err := s.Query(ctx, accountID, f)
	if err != nil {
		return Summary{}, err
	}
	return summarize(Day(f.Start), Day(f.End), rows), nil
}

func summarize(start, end time.Time, rows []PerformanceMetric) Summary {
	sum := Summary{Start: start, End: end}
	days := make(map[time.Time]struct{})
	for i := range rows {
		r := &rows[i]
		days[Day(r.Date)] = struct{}{}
		if r.Impressions != nil {
			sum.Impressions += *r.Impressions
		}
		if r.Clicks != nil {
			sum.Clicks += *r.Clicks
		}
		if r.Spend != nil {
			sum.Spend += *r.Spend
		}
		if r.Conversions != nil {
			sum.Conversions += *r.Conversions
		}
	}
	sum.Days = len(days)
	sum.Spend = RoundCents(sum.Spend)
	if sum.Impressions > 0 {
		sum.CTR = round2(float64(sum.Clicks) / float64(sum.Impressions) * 100)
	}
	if sum.Clicks > 0 {
		sum.CPC = round2(sum.Spend / float64(sum.Clicks))
	}
	if sum.Conversions > 0 {
		sum.CPA = round2(sum.Spend / sum.Conversions)
	}
	return sum
}

// TrendPoint is one dated value of a single metric. Value is nil when the
// record does not carry the metric.
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// Trend extracts one metric per record in date order.
func (s *Store) Trend(ctx context.Context, accountID uint, f QueryFilter, metric string) ([]TrendPoint, error) {
	if f.Timeframe == "" {
		f.Timeframe = TimeframeDaily
	}
	rows, err := s.Query(ctx, accountID, f)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, 0, len(rows))
	for i := range rows {
		p := TrendPoint{Date: Day(rows[i].Date)}
		if v, ok := rows[i].Values()[metric]; ok {
			val := v
			p.Value = &val
		}
		out = append(out, p)
	}
	return out, nil
}

// PeriodComparison is a simple period-over-period delta.
type PeriodComparison struct {
	Current Summary            `json:"current"`
	Prior   Summary            `json:"prior"`
	Change  map[string]float64 `json:"change"`
	Percent map[string]float64 `json:"percent"`
}

// ComparePeriods computes absolute and percent change for every summary
// field. A zero prior value reports 100% growth, or 0 when both are zero.
func ComparePeriods(current, prior Summary) PeriodComparison {
	cur := summaryFields(current)
	pri := summaryFields(prior)
	out := PeriodComparison{
		Current: current,
		Prior:   prior,
		Change:  make(map[string]float64, len(cur)),
		Percent: make(map[string]float64, len(cur)),
	}
	for k, c := range cur {
		p := pri[k]
		out.Change[k] = round2(c - p)
		switch {
		case p != 0:
			out.Percent[k] = round2((c - p) / p * 100)
		case c == 0:
			out.Percent[k] = 0
		default:
			out.Percent[k] = 100
		}
	}
	return out
}

// PriorRange returns the range of equal length immediately before
// [start, end].
func PriorRange(start, end time.Time) (time.Time, time.Time) {
	start, end = Day(start), Day(end)
	days := int(end.Sub(start).Hours()/24) + 1
	return start.AddDate(0, 0, -days), start.AddDate(0, 0, -1)
}

// YearAgoRange shifts [start, end] back one calendar year.
func YearAgoRange(start, end time.Time) (time.Time, time.Time) {
	return Day(start).AddDate(-1, 0, 0), Day(end).AddDate(-1, 0, 0)
}

func summaryFields(s Summary) map[string]float64 {
	return map[string]float64{
		KeyImpressions: float64(s.Impressions),
		KeyClicks:      float64(s.Clicks),
		KeySpend:       s.Spend,
		KeyConversions: s.Conversions,
		"ctr":          s.CTR,
		"cpc":          s.CPC,
		"cpa":          s.CPA,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
