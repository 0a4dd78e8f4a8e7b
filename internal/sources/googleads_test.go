package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/db"
)

type stubAdsClient struct {
	batches []GoogleAdsBatch
	err     error
	query   string
	creds   Credentials
}

func (s *stubAdsClient) SearchStream(_ context.Context, creds Credentials, query string) ([]GoogleAdsBatch, error) {
	s.query = query
	s.creds = creds
	return s.batches, s.err
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

const adsPayload = `[{"results":[
 {"campaign":{"id":"11","name":"Spring"},"segments":{"date":"2024-01-05"},
  "metrics":{"impressions":"1000","clicks":"40","costMicros":"2500000","conversions":3.5,"ctr":0.04,"averageCpc":62500}},
 {"campaign":{"id":"12","name":"Brand"},"segments":{"date":"2024-01-05"},
  "metrics":{"impressions":"10","clicks":"1","costMicros":"990000","conversions":0}}
]}]`

func TestGoogleAdsAdapterConvertsMicros(t *testing.T) {
	var batches []GoogleAdsBatch
	require.NoError(t, json.Unmarshal([]byte(adsPayload), &batches))
	client := &stubAdsClient{batches: batches}

	recs, err := NewGoogleAdsAdapter(client).Fetch(context.Background(),
		Credentials{AccountID: 7, ResourceID: "123-456-7890", AccessToken: "tok"},
		day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Contains(t, client.query, "BETWEEN '2024-01-01' AND '2024-01-31'")
	assert.Equal(t, "1234567890", client.creds.ResourceID)

	r := recs[0]
	assert.Equal(t, uint(7), r.AccountID)
	assert.Equal(t, db.SourceGoogleAds, r.SourceType)
	assert.Equal(t, "1234567890", r.SourceID)
	assert.Equal(t, "campaign", r.EntityType)
	assert.Equal(t, "11", r.EntityID)
	assert.Equal(t, "Spring", r.EntityName)
	require.NotNil(t, r.Spend)
	assert.Equal(t, 2.5, *r.Spend)
	assert.EqualValues(t, 1000, *r.Impressions)
	assert.EqualValues(t, 40, *r.Clicks)
	assert.Equal(t, 3.5, *r.Conversions)
	assert.InDelta(t, 4.0, r.Values()["ctr"], 1e-9)
	assert.InDelta(t, 0.0625, r.Values()["cpc"], 1e-9)
	assert.InDelta(t, 0.99, *recs[1].Spend, 1e-9)
}

func TestGoogleAdsAdapterSpendFromMicros(t *testing.T) {
	var row GoogleAdsRow
	row.Segments.Date = "2024-02-01"
	row.Campaign.ID = "1"
	row.Metrics.CostMicros = 25_000_000
	client := &stubAdsClient{batches: []GoogleAdsBatch{{Results: []GoogleAdsRow{row}}}}

	recs, err := NewGoogleAdsAdapter(client).Fetch(context.Background(),
		Credentials{AccountID: 1, ResourceID: "1"}, day("2024-02-01"), day("2024-02-01"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 25.00, *recs[0].Spend)
	assert.Equal(t, 25.00, recs[0].Values()[db.KeySpend])
}

func TestGoogleAdsAdapterRequiresCustomer(t *testing.T) {
	_, err := NewGoogleAdsAdapter(&stubAdsClient{}).Fetch(context.Background(), Credentials{AccountID: 1}, day("2024-01-01"), day("2024-01-02"))
	assert.Equal(t, KindNotConnected, KindOf(err))
}

func TestGoogleAdsHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v17/customers/1234567890/googleAds:searchStream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "dev", r.Header.Get("developer-token"))
		assert.Equal(t, "999", r.Header.Get("login-customer-id"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, strings.HasPrefix(body["query"], "SELECT"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(adsPayload))
	}))
	defer srv.Close()

	c := NewGoogleAdsHTTPClient("dev", "v17", 5*time.Second).SetBaseURL(srv.URL)
	batches, err := c.SearchStream(context.Background(), Credentials{
		ResourceID:      "123-456-7890",
		AccessToken:     "tok",
		LoginCustomerID: "9-9-9",
	}, "SELECT campaign.id FROM campaign")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Results, 2)
	assert.Equal(t, 2_500_000.0, batches[0].Results[0].Metrics.CostMicros.Float())
}

func TestGoogleAdsHTTPClientClassifiesStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:       KindAuthExpired,
		http.StatusForbidden:          KindAuthExpired,
		http.StatusTooManyRequests:    KindRateLimited,
		http.StatusServiceUnavailable: KindTransient,
		http.StatusBadRequest:         KindTransient,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":1,"message":"nope"}}`))
		}))
		c := NewGoogleAdsHTTPClient("dev", "v17", 5*time.Second).SetBaseURL(srv.URL)
		_, err := c.SearchStream(context.Background(), Credentials{ResourceID: "1", AccessToken: "tok"}, "SELECT 1")
		srv.Close()

		var ae *Error
		require.ErrorAs(t, err, &ae, "status %d", status)
		assert.Equal(t, want, ae.Kind, "status %d", status)
		assert.Equal(t, db.SourceGoogleAds, ae.Source)
	}
}

func TestGoogleAdsHTTPClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewGoogleAdsHTTPClient("dev", "v17", time.Second).SetBaseURL(url)
	_, err := c.SearchStream(context.Background(), Credentials{ResourceID: "1", AccessToken: "tok"}, "SELECT 1")
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindTransient, ae.Kind)
	assert.True(t, ae.RetryLater())
}
