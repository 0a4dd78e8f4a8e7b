package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"fieldsprout/internal/db"
)

// GoogleAdsRow is one row of a searchStream result as returned by the
// REST API.
type GoogleAdsRow struct {
	Campaign struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"campaign"`
	Segments struct {
		Date string `json:"date"`
	} `json:"segments"`
	Metrics struct {
		Impressions      Number `json:"impressions"`
		Clicks           Number `json:"clicks"`
		CostMicros       Number `json:"costMicros"`
		Conversions      Number `json:"conversions"`
		ConversionsValue Number `json:"conversionsValue"`
		Ctr              Number `json:"ctr"`
		AverageCpc       Number `json:"averageCpc"`
	} `json:"metrics"`
}

// GoogleAdsBatch is one element of the searchStream response array.
type GoogleAdsBatch struct {
	Results []GoogleAdsRow `json:"results"`
}

// GoogleAdsClient runs a GAQL query against a customer.
type GoogleAdsClient interface {
	SearchStream(ctx context.Context, creds Credentials, query string) ([]GoogleAdsBatch, error)
}

const googleAdsDailyQuery = `SELECT campaign.id, campaign.name, segments.date, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value, metrics.ctr, metrics.average_cpc FROM campaign WHERE segments.date BETWEEN '%s' AND '%s' AND campaign.status != 'REMOVED' ORDER BY segments.date`

// GoogleAdsAdapter emits one record per campaign per day.
type GoogleAdsAdapter struct {
	Client GoogleAdsClient
}

func NewGoogleAdsAdapter(c GoogleAdsClient) *GoogleAdsAdapter {
	return &GoogleAdsAdapter{Client: c}
}

func (a *GoogleAdsAdapter) Source() db.SourceType { return db.SourceGoogleAds }

func (a *GoogleAdsAdapter) Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error) {
	if creds.ResourceID == "" {
		return nil, NewError(db.SourceGoogleAds, KindNotConnected, "no customer id on connection")
	}
	creds.ResourceID = digitsOnly(creds.ResourceID)

	query := fmt.Sprintf(googleAdsDailyQuery, start.Format(time.DateOnly), end.Format(time.DateOnly))
	batches, err := a.Client.SearchStream(ctx, creds, query)
	if err != nil {
		return nil, AsError(db.SourceGoogleAds, err)
	}

	var out []db.PerformanceMetric
	for _, b := range batches {
		for _, row := range b.Results {
			day, err := time.Parse(time.DateOnly, row.Segments.Date)
			if err != nil {
				continue
			}
			m := row.Metrics
			raw := map[string]float64{
				db.KeyImpressions:    m.Impressions.Float(),
				db.KeyClicks:         m.Clicks.Float(),
				"cost_micros":        m.CostMicros.Float(),
				db.KeyConversions:    m.Conversions.Float(),
				"conversion_value":   m.ConversionsValue.Float(),
				"ctr":                m.Ctr.Float(),
				"average_cpc_micros": m.AverageCpc.Float(),
			}
			out = append(out, record(creds, db.SourceGoogleAds, day, "campaign", row.Campaign.ID, row.Campaign.Name, raw))
		}
	}
	return out, nil
}

// GoogleAdsHTTPClient calls the Google Ads REST searchStream endpoint.
type GoogleAdsHTTPClient struct {
	http           *resty.Client
	developerToken string
	version        string
}

const googleAdsBaseURL = "https://googleads.googleapis.com"

func NewGoogleAdsHTTPClient(developerToken, version string, timeout time.Duration) *GoogleAdsHTTPClient {
	return &GoogleAdsHTTPClient{
		http: resty.New().
			SetBaseURL(googleAdsBaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		developerToken: developerToken,
		version:        version,
	}
}

// SetBaseURL points the client at another host.
func (c *GoogleAdsHTTPClient) SetBaseURL(u string) *GoogleAdsHTTPClient {
	c.http.SetBaseURL(u)
	return c
}

func (c *GoogleAdsHTTPClient) SearchStream(ctx context.Context, creds Credentials, query string) ([]GoogleAdsBatch, error) {
	if creds.AccessToken == "" {
		return nil, NewError(db.SourceGoogleAds, KindNotConnected, "missing access token")
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetHeader("developer-token", c.developerToken).
		SetBody(map[string]string{"query": query})
	if creds.LoginCustomerID != "" {
		req.SetHeader("login-customer-id", digitsOnly(creds.LoginCustomerID))
	}

	var out []GoogleAdsBatch
	resp, err := req.SetResult(&out).
		Post(fmt.Sprintf("/%s/customers/%s/googleAds:searchStream", c.version, digitsOnly(creds.ResourceID)))
	if err != nil {
		return nil, requestErr(db.SourceGoogleAds, err)
	}
	if resp.IsError() {
		return nil, statusErr(db.SourceGoogleAds, resp.StatusCode(), resp.String())
	}
	return out, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
