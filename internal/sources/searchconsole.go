package sources

import (
	"context"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"fieldsprout/internal/db"
)

const searchConsoleRowLimit = 25000

// SearchConsoleClient reads date-dimensioned search analytics for a site.
type SearchConsoleClient interface {
	QueryDaily(ctx context.Context, creds Credentials, start, end time.Time) ([]*searchconsole.ApiDataRow, error)
}

// SearchConsoleAdapter emits one site-level record per day.
type SearchConsoleAdapter struct {
	Client SearchConsoleClient
}

func NewSearchConsoleAdapter(c SearchConsoleClient) *SearchConsoleAdapter {
	return &SearchConsoleAdapter{Client: c}
}

func (a *SearchConsoleAdapter) Source() db.SourceType { return db.SourceSearchConsole }

func (a *SearchConsoleAdapter) Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error) {
	if creds.ResourceID == "" {
		return nil, NewError(db.SourceSearchConsole, KindNotConnected, "no site url on connection")
	}
	rows, err := a.Client.QueryDaily(ctx, creds, start, end)
	if err != nil {
		return nil, AsError(db.SourceSearchConsole, err)
	}

	out := make([]db.PerformanceMetric, 0, len(rows))
	for _, row := range rows {
		if row == nil || len(row.Keys) == 0 {
			continue
		}
		day, err := time.Parse(time.DateOnly, row.Keys[0])
		if err != nil {
			continue
		}
		raw := map[string]float64{
			db.KeyImpressions: row.Impressions,
			db.KeyClicks:      row.Clicks,
			"ctr":             row.Ctr,
			"position":        row.Position,
		}
		out = append(out, record(creds, db.SourceSearchConsole, day, "", "", "", raw))
	}
	return out, nil
}

// SearchConsoleAPIClient calls the Search Console API, paging by
// StartRow until a short page comes back.
type SearchConsoleAPIClient struct {
	Options []option.ClientOption
}

func (c *SearchConsoleAPIClient) QueryDaily(ctx context.Context, creds Credentials, start, end time.Time) ([]*searchconsole.ApiDataRow, error) {
	svc, err := searchconsole.NewService(ctx, googleOptions(creds, c.Options)...)
	if err != nil {
		return nil, wrapErr(db.SourceSearchConsole, KindTransient, err)
	}

	var out []*searchconsole.ApiDataRow
	for startRow := int64(0); ; startRow += searchConsoleRowLimit {
		req := &searchconsole.SearchAnalyticsQueryRequest{
			StartDate:  start.Format(time.DateOnly),
			EndDate:    end.Format(time.DateOnly),
			Dimensions: []string{"date"},
			RowLimit:   searchConsoleRowLimit,
			StartRow:   startRow,
		}
		resp, err := svc.Searchanalytics.Query(creds.ResourceID, req).Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, requestErr(db.SourceSearchConsole, ctx.Err())
			}
			return nil, AsError(db.SourceSearchConsole, err)
		}
		out = append(out, resp.Rows...)
		if len(resp.Rows) < searchConsoleRowLimit {
			return out, nil
		}
	}
}
