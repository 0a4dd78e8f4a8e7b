package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"fieldsprout/internal/db"
)

// FacebookAction is one entry of the insights "actions" list.
type FacebookAction struct {
	ActionType string `json:"action_type"`
	Value      Number `json:"value"`
}

// FacebookInsight is one campaign-day row of the Marketing API insights
// edge. Spend is already in the ad account currency; ctr is a percentage.
type FacebookInsight struct {
	CampaignID   string           `json:"campaign_id"`
	CampaignName string           `json:"campaign_name"`
	DateStart    string           `json:"date_start"`
	Spend        Number           `json:"spend"`
	Impressions  Number           `json:"impressions"`
	Clicks       Number           `json:"clicks"`
	Reach        Number           `json:"reach"`
	CPC          Number           `json:"cpc"`
	CPM          Number           `json:"cpm"`
	CTR          Number           `json:"ctr"`
	Actions      []FacebookAction `json:"actions"`
}

// FacebookClient reads daily campaign insights for an ad account.
type FacebookClient interface {
	AdAccounts(ctx context.Context, creds Credentials) ([]string, error)
	Insights(ctx context.Context, creds Credentials, start, end time.Time) ([]FacebookInsight, error)
}

var facebookLeadActions = map[string]struct{}{
	"lead":                           {},
	"onsite_conversion.lead_grouped": {},
}

// FacebookAdsAdapter emits one record per campaign per day.
type FacebookAdsAdapter struct {
	Client FacebookClient
}

func NewFacebookAdsAdapter(c FacebookClient) *FacebookAdsAdapter {
	return &FacebookAdsAdapter{Client: c}
}

func (a *FacebookAdsAdapter) Source() db.SourceType { return db.SourceFacebookAds }

func (a *FacebookAdsAdapter) Fetch(ctx context.Context, creds Credentials, start, end time.Time) ([]db.PerformanceMetric, error) {
	if creds.ResourceID == "" {
		accounts, err := a.Client.AdAccounts(ctx, creds)
		if err != nil {
			return nil, AsError(db.SourceFacebookAds, err)
		}
		if len(accounts) == 0 {
			return nil, NewError(db.SourceFacebookAds, KindNotConnected, "no ad accounts visible to token")
		}
		creds.ResourceID = accounts[0]
	}

	rows, err := a.Client.Insights(ctx, creds, start, end)
	if err != nil {
		return nil, AsError(db.SourceFacebookAds, err)
	}

	out := make([]db.PerformanceMetric, 0, len(rows))
	for _, row := range rows {
		day, err := time.Parse(time.DateOnly, row.DateStart)
		if err != nil {
			continue
		}
		var leads float64
		for _, act := range row.Actions {
			if _, ok := facebookLeadActions[act.ActionType]; ok {
				leads += act.Value.Float()
			}
		}
		raw := map[string]float64{
			db.KeySpend:       row.Spend.Float(),
			db.KeyImpressions: row.Impressions.Float(),
			db.KeyClicks:      row.Clicks.Float(),
			"reach":           row.Reach.Float(),
			"cpc":             row.CPC.Float(),
			"cpm":             row.CPM.Float(),
			"ctr":             row.CTR.Float(),
			"leads":           leads,
			db.KeyConversions: leads,
		}
		out = append(out, record(creds, db.SourceFacebookAds, day, "campaign", row.CampaignID, row.CampaignName, raw))
	}
	return out, nil
}

// FacebookHTTPClient talks to the Graph API with resty, following paging
// cursors until exhausted.
type FacebookHTTPClient struct {
	http *resty.Client
}

const facebookBaseURL = "https://graph.facebook.com"

func NewFacebookHTTPClient(version string, timeout time.Duration) *FacebookHTTPClient {
	return &FacebookHTTPClient{
		http: resty.New().
			SetBaseURL(facebookBaseURL + "/" + strings.Trim(version, "/")).
			SetTimeout(timeout),
	}
}

// SetBaseURL points the client at another host, version included.
func (c *FacebookHTTPClient) SetBaseURL(u string) *FacebookHTTPClient {
	c.http.SetBaseURL(u)
	return c
}

type facebookPage[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type facebookErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *FacebookHTTPClient) AdAccounts(ctx context.Context, creds Credentials) ([]string, error) {
	type account struct {
		ID string `json:"id"`
	}
	pages, err := fetchPages[account](ctx, c.http, "/me/adaccounts", map[string]string{
		"access_token": creds.AccessToken,
		"fields":       "id",
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pages))
	for _, a := range pages {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (c *FacebookHTTPClient) Insights(ctx context.Context, creds Credentials, start, end time.Time) ([]FacebookInsight, error) {
	if creds.AccessToken == "" {
		return nil, NewError(db.SourceFacebookAds, KindNotConnected, "missing access token")
	}
	timeRange, _ := json.Marshal(map[string]string{
		"since": start.Format(time.DateOnly),
		"until": end.Format(time.DateOnly),
	})
	return fetchPages[FacebookInsight](ctx, c.http, "/"+adAccountPath(creds.ResourceID)+"/insights", map[string]string{
		"access_token":   creds.AccessToken,
		"time_range":     string(timeRange),
		"time_increment": "1",
		"level":          "campaign",
		"fields":         "campaign_id,campaign_name,spend,impressions,clicks,reach,actions,cpc,cpm,ctr",
		"limit":          "500",
	})
}

func fetchPages[T any](ctx context.Context, hc *resty.Client, path string, params map[string]string) ([]T, error) {
	var out []T
	next := path
	first := true
	for next != "" {
		var page facebookPage[T]
		req := hc.R().SetContext(ctx).SetResult(&page)
		if first {
			req.SetQueryParams(params)
		}
		resp, err := req.Get(next)
		if err != nil {
			return nil, requestErr(db.SourceFacebookAds, err)
		}
		if resp.IsError() {
			return nil, facebookErr(resp)
		}
		out = append(out, page.Data...)
		next = page.Paging.Next
		first = false
	}
	return out, nil
}

// facebookErr classifies Graph API errors by their error code first, since
// most of them arrive as HTTP 400.
func facebookErr(resp *resty.Response) *Error {
	var body facebookErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error.Code != 0 {
		msg := fmt.Sprintf("graph error %d: %s", body.Error.Code, body.Error.Message)
		switch body.Error.Code {
		case 190, 102:
			return NewError(db.SourceFacebookAds, KindAuthExpired, msg)
		case 4, 17, 32, 613, 80004:
			return NewError(db.SourceFacebookAds, KindRateLimited, msg)
		default:
			return NewError(db.SourceFacebookAds, kindForStatus(resp.StatusCode()), msg)
		}
	}
	return statusErr(db.SourceFacebookAds, resp.StatusCode(), resp.String())
}

func adAccountPath(id string) string {
	if strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}
