package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsprout/internal/db"
)

type stubFacebookClient struct {
	accounts []string
	rows     []FacebookInsight
	err      error
	gotCreds Credentials
}

func (s *stubFacebookClient) AdAccounts(context.Context, Credentials) ([]string, error) {
	return s.accounts, nil
}

func (s *stubFacebookClient) Insights(_ context.Context, creds Credentials, _, _ time.Time) ([]FacebookInsight, error) {
	s.gotCreds = creds
	return s.rows, s.err
}

func TestFacebookAdapterMapsInsights(t *testing.T) {
	var rows []FacebookInsight
	require.NoError(t, json.Unmarshal([]byte(`[
		{"campaign_id":"55","campaign_name":"Leads","date_start":"2024-03-01","spend":"25.00",
		 "impressions":"2000","clicks":"35","reach":"1500","ctr":"1.75","cpc":"0.71","cpm":"12.5",
		 "actions":[{"action_type":"lead","value":"3"},{"action_type":"onsite_conversion.lead_grouped","value":"2"},{"action_type":"link_click","value":"35"}]}
	]`), &rows))
	client := &stubFacebookClient{accounts: []string{"act_42"}, rows: rows}

	recs, err := NewFacebookAdsAdapter(client).Fetch(context.Background(), Credentials{AccountID: 3, AccessToken: "tok"}, day("2024-03-01"), day("2024-03-01"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "act_42", client.gotCreds.ResourceID)
	r := recs[0]
	assert.Equal(t, "act_42", r.SourceID)
	assert.Equal(t, "campaign", r.EntityType)
	assert.Equal(t, "55", r.EntityID)
	assert.Equal(t, 25.0, *r.Spend)
	assert.EqualValues(t, 2000, *r.Impressions)
	assert.Equal(t, 5.0, *r.Conversions)
	v := r.Values()
	assert.Equal(t, 1500.0, v["reach"])
	assert.Equal(t, 5.0, v["leads"])
	assert.Equal(t, 1.75, v["ctr"])
}

func TestFacebookAdapterNoAdAccounts(t *testing.T) {
	_, err := NewFacebookAdsAdapter(&stubFacebookClient{}).Fetch(context.Background(), Credentials{AccountID: 3, AccessToken: "tok"}, day("2024-03-01"), day("2024-03-01"))
	assert.Equal(t, KindNotConnected, KindOf(err))
}

func TestFacebookHTTPClientFollowsPaging(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("after") {
		case "":
			assert.Equal(t, "/v20.0/act_42/insights", r.URL.Path)
			assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
			assert.Equal(t, "campaign", r.URL.Query().Get("level"))
			assert.JSONEq(t, `{"since":"2024-03-01","until":"2024-03-02"}`, r.URL.Query().Get("time_range"))
			fmt.Fprintf(w, `{"data":[{"campaign_id":"1","date_start":"2024-03-01","spend":"1.00"}],
				"paging":{"next":"%s/v20.0/act_42/insights?access_token=tok&after=abc"}}`, srv.URL)
		case "abc":
			_, _ = w.Write([]byte(`{"data":[{"campaign_id":"1","date_start":"2024-03-02","spend":"2.00"}],"paging":{}}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
	}))
	defer srv.Close()

	c := NewFacebookHTTPClient("v20.0", 5*time.Second).SetBaseURL(srv.URL + "/v20.0")
	rows, err := c.Insights(context.Background(), Credentials{ResourceID: "42", AccessToken: "tok"}, day("2024-03-01"), day("2024-03-02"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-02", rows[1].DateStart)
	assert.Equal(t, 2.0, rows[1].Spend.Float())
}

func TestFacebookHTTPClientClassifiesGraphErrors(t *testing.T) {
	cases := []struct {
		status int
		code   int
		want   Kind
	}{
		{http.StatusBadRequest, 190, KindAuthExpired},
		{http.StatusBadRequest, 17, KindRateLimited},
		{http.StatusForbidden, 613, KindRateLimited},
		{http.StatusBadRequest, 100, KindTransient},
		{http.StatusInternalServerError, 2, KindTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			fmt.Fprintf(w, `{"error":{"message":"boom","type":"OAuthException","code":%d}}`, tc.code)
		}))
		c := NewFacebookHTTPClient("v20.0", 5*time.Second).SetBaseURL(srv.URL)
		_, err := c.Insights(context.Background(), Credentials{ResourceID: "act_1", AccessToken: "tok"}, day("2024-03-01"), day("2024-03-01"))
		srv.Close()

		var ae *Error
		require.ErrorAs(t, err, &ae, "code %d", tc.code)
		assert.Equal(t, tc.want, ae.Kind, "code %d", tc.code)
		assert.Equal(t, db.SourceFacebookAds, ae.Source)
	}
}

func TestFacebookHTTPClientAdAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/adaccounts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"act_1"},{"id":"act_2"}]}`))
	}))
	defer srv.Close()

	ids, err := NewFacebookHTTPClient("v20.0", time.Second).SetBaseURL(srv.URL).AdAccounts(context.Background(), Credentials{AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, []string{"act_1", "act_2"}, ids)
}
