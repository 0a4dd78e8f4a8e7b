package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "fieldsprout/internal/db"
)

// defaultRangeDays is used when a request names neither start nor days.
const defaultRangeDays = 30

// PerformanceReader is the read side of db.Store used by the query endpoints.
type PerformanceReader interface {
	Query(ctx context.Context, accountID uint, f dbpkg.QueryFilter) ([]dbpkg.PerformanceMetric, error)
	Summary(ctx context.Context, accountID uint, f dbpkg.QueryFilter) (dbpkg.Summary, error)
	Trend(ctx context.Context, accountID uint, f dbpkg.QueryFilter, metric string) ([]dbpkg.TrendPoint, error)
}

type performanceRow struct {
	Date        string             `json:"date"`
	Source      dbpkg.SourceType   `json:"source"`
	SourceID    string             `json:"source_id,omitempty"`
	EntityType  string             `json:"entity_type,omitempty"`
	EntityID    string             `json:"entity_id,omitempty"`
	EntityName  string             `json:"entity_name,omitempty"`
	Timeframe   dbpkg.Timeframe    `json:"timeframe"`
	Impressions *int64             `json:"impressions"`
	Clicks      *int64             `json:"clicks"`
	Spend       *float64           `json:"spend"`
	Conversions *float64           `json:"conversions"`
	Metrics     map[string]float64 `json:"metrics"`
}

// parseRange reads "start"/"end" (YYYY-MM-DD) or "days" (int) from the
// query. end defaults to today (UTC); without start the range covers the
// last days days, 30 by default.
func parseRange(ctx *fasthttp.RequestCtx, now time.Time) (start, end time.Time, err error) {
	end = dbpkg.Day(now.UTC())
	if e := string(ctx.QueryArgs().Peek("end")); e != "" {
		if end, err = parseDay(e); err != nil {
			return
		}
	}
	if s := string(ctx.QueryArgs().Peek("start")); s != "" {
		start, err = parseDay(s)
		return
	}
	days := defaultRangeDays
	if d := string(ctx.QueryArgs().Peek("days")); d != "" {
		if n, convErr := strconv.Atoi(d); convErr == nil && n > 0 {
			days = n
		}
	}
	start = end.AddDate(0, 0, -(days - 1))
	return
}

func parseFilter(ctx *fasthttp.RequestCtx, now time.Time) (dbpkg.QueryFilter, error) {
	start, end, err := parseRange(ctx, now)
	if err != nil {
		return dbpkg.QueryFilter{}, err
	}
	src, err := sourceArg(ctx)
	if err != nil {
		return dbpkg.QueryFilter{}, err
	}
	args := ctx.QueryArgs()
	return dbpkg.QueryFilter{
		SourceType: src,
		SourceID:   string(args.Peek("source_id")),
		EntityType: string(args.Peek("entity_type")),
		EntityID:   string(args.Peek("entity_id")),
		Timeframe:  dbpkg.Timeframe(args.Peek("timeframe")),
		Start:      start,
		End:        end,
	}, nil
}

// PerformanceQuery serves GET /v1/performance.
func PerformanceQuery(store PerformanceReader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		f, err := parseFilter(ctx, time.Now())
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		rows, err := store.Query(ctx, account, f)
		if err != nil {
			storeErr(ctx, err)
			return
		}

		out := make([]performanceRow, 0, len(rows))
		for i := range rows {
			r := &rows[i]
			out = append(out, performanceRow{
				Date:        r.Date.UTC().Format(time.DateOnly),
				Source:      r.SourceType,
				SourceID:    r.SourceID,
				EntityType:  r.EntityType,
				EntityID:    r.EntityID,
				EntityName:  r.EntityName,
				Timeframe:   r.Timeframe,
				Impressions: r.Impressions,
				Clicks:      r.Clicks,
				Spend:       r.Spend,
				Conversions: r.Conversions,
				Metrics:     r.Values(),
			})
		}
		jsonResponse(ctx, map[string]any{
			"account_id": account,
			"start":      f.Start.Format(time.DateOnly),
			"end":        f.End.Format(time.DateOnly),
			"records":    out,
		})
	}
}

// PerformanceSummary serves GET /v1/performance/summary. compare=prior
// adds the preceding range of equal length, compare=yoy the same range a
// year earlier.
func PerformanceSummary(store PerformanceReader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		f, err := parseFilter(ctx, time.Now())
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		var priorStart, priorEnd time.Time
		compare := string(ctx.QueryArgs().Peek("compare"))
		switch compare {
		case "":
		case "prior":
			priorStart, priorEnd = dbpkg.PriorRange(f.Start, f.End)
		case "yoy":
			priorStart, priorEnd = dbpkg.YearAgoRange(f.Start, f.End)
		default:
			errResponse(ctx, fasthttp.StatusBadRequest, "compare must be prior or yoy")
			return
		}

		current, err := store.Summary(ctx, account, f)
		if err != nil {
			storeErr(ctx, err)
			return
		}
		if compare == "" {
			jsonResponse(ctx, current)
			return
		}

		pf := f
		pf.Start, pf.End = priorStart, priorEnd
		prior, err := store.Summary(ctx, account, pf)
		if err != nil {
			storeErr(ctx, err)
			return
		}
		jsonResponse(ctx, dbpkg.ComparePeriods(current, prior))
	}
}

// PerformanceTrend serves GET /v1/performance/trend: one metric per record
// in date order.
func PerformanceTrend(store PerformanceReader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		metric := string(ctx.QueryArgs().Peek("metric"))
		if metric == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "metric required")
			return
		}
		f, err := parseFilter(ctx, time.Now())
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		points, err := store.Trend(ctx, account, f, metric)
		if err != nil {
			storeErr(ctx, err)
			return
		}
		type point struct {
			Date  string   `json:"date"`
			Value *float64 `json:"value"`
		}
		out := make([]point, 0, len(points))
		for _, p := range points {
			out = append(out, point{Date: p.Date.Format(time.DateOnly), Value: p.Value})
		}
		jsonResponse(ctx, map[string]any{
			"account_id": account,
			"metric":     metric,
			"points":     out,
		})
	}
}
