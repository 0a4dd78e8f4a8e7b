package sources

import (
	"context"
	"strconv"
	"strings"
	"time"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"fieldsprout/internal/db"
)

// AnalyticsClient runs the daily GA4 report for a property.
type AnalyticsClient interface {
	RunDailyReport(ctx context.Context, creds Credentials, start, end time.Time) (*analyticsdata.RunReportResponse, error)
}

// GA4 metric name -> canonical key.
var analyticsMetrics = []struct {
	api, key string
}{
	{"sessions", "sessions"},
	{"screenPageViews", "pageviews"},
	{"bounceRate", "bounce_rate"},
	{"averageSessionDuration", "avg_session_duration"},
	{"keyEvents", "goal_completions"},
	{"engagementRate", "engagement_rate"},
	{"totalUsers", "users"},
}

// AnalyticsAdapter emits one property-level record per day.
type AnalyticsAdapter struct {
	Client AnalyticsClient
}

func NewAnalyticsAdapter(c AnalyticsClient) *AnalyticsAdapter {
	return &AnalyticsAdapter{Client: c}
}

func (a *AnalyticsAdapter) Source() db.SourceType { return db.SourceGoogleAnalytics }

func (a *AnalyticsAdapter) Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error) {
	if creds.ResourceID == "" {
		return nil, NewError(db.SourceGoogleAnalytics, KindNotConnected, "no property id on connection")
	}
	creds.ResourceID = strings.TrimPrefix(creds.ResourceID, "properties/")

	resp, err := a.Client.RunDailyReport(ctx, creds, start, end)
	if err != nil {
		return nil, AsError(db.SourceGoogleAnalytics, err)
	}
	if resp == nil {
		return nil, nil
	}

	names := make([]string, 0, len(analyticsMetrics))
	if len(resp.MetricHeaders) > 0 {
		for _, h := range resp.MetricHeaders {
			names = append(names, h.Name)
		}
	} else {
		for _, m := range analyticsMetrics {
			names = append(names, m.api)
		}
	}
	keyFor := make(map[string]string, len(analyticsMetrics))
	for _, m := range analyticsMetrics {
		keyFor[m.api] = m.key
	}

	out := make([]db.PerformanceMetric, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if row == nil || len(row.DimensionValues) == 0 {
			continue
		}
		day, err := time.Parse("20060102", row.DimensionValues[0].Value)
		if err != nil {
			continue
		}
		raw := make(map[string]float64, len(row.MetricValues))
		for i, mv := range row.MetricValues {
			if i >= len(names) || mv == nil {
				break
			}
			key, ok := keyFor[names[i]]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(mv.Value, 64)
			if err != nil {
				continue
			}
			raw[key] = v
		}
		out = append(out, record(creds, db.SourceGoogleAnalytics, day, "", "", "", raw))
	}
	return out, nil
}

// AnalyticsAPIClient calls the GA4 Data API.
type AnalyticsAPIClient struct {
	// Options are appended to every service constructed, e.g. an endpoint
	// override.
	Options []option.ClientOption
}

func (c *AnalyticsAPIClient) RunDailyReport(ctx context.Context, creds Credentials, start, end time.Time) (*analyticsdata.RunReportResponse, error) {
	svc, err := analyticsdata.NewService(ctx, googleOptions(creds, c.Options)...)
	if err != nil {
		return nil, wrapErr(db.SourceGoogleAnalytics, KindTransient, err)
	}

	metrics := make([]*analyticsdata.Metric, 0, len(analyticsMetrics))
	for _, m := range analyticsMetrics {
		metrics = append(metrics, &analyticsdata.Metric{Name: m.api})
	}
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{
			StartDate: start.Format(time.DateOnly),
			EndDate:   end.Format(time.DateOnly),
		}},
		Dimensions: []*analyticsdata.Dimension{{Name: "date"}},
		Metrics:    metrics,
		Limit:      100000,
	}
	resp, err := svc.Properties.RunReport("properties/"+creds.ResourceID, req).Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return nil, requestErr(db.SourceGoogleAnalytics, ctx.Err())
		}
		return nil, AsError(db.SourceGoogleAnalytics, err)
	}
	return resp, nil
}
