package handlers

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"fieldsprout/internal/config"
	dbpkg "fieldsprout/internal/db"
	"fieldsprout/internal/db/dbtest"
	httpctx "fieldsprout/internal/http/ctx"
)

func adminCtx(method, uri, form string) *fasthttp.RequestCtx {
	ctx := newCtx(method, uri, []byte(form), "application/x-www-form-urlencoded")
	httpctx.SetUser(ctx, &dbpkg.User{ID: 1, Username: "admin", IsAdmin: true})
	return ctx
}

func TestAPIKeyLifecycle(t *testing.T) {
	gdb := dbtest.Open(t)

	ctx := adminCtx("POST", "/admin/apikeys", "name=dashboard&account_id=9")
	CreateAPIKey(gdb)(ctx)
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	var created apiKeyView
	decode(t, ctx, &created)
	assert.True(t, strings.HasPrefix(created.Key, "fs_"))
	assert.Equal(t, uint(9), created.AccountID)

	found, err := dbpkg.ActiveAPIKey(ctx, gdb, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	ctx = adminCtx("GET", "/admin/apikeys?account_id=9", "")
	ListAPIKeys(gdb)(ctx)
	var listed struct {
		Keys []apiKeyView `json:"api_keys"`
	}
	decode(t, ctx, &listed)
	require.Len(t, listed.Keys, 1)
	assert.Empty(t, listed.Keys[0].Key)

	ctx = adminCtx("POST", "/admin/apikeys/x/active", "active=false")
	ctx.SetUserValue("id", "1")
	SetActiveAPIKey(gdb)(ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	_, err = dbpkg.ActiveAPIKey(ctx, gdb, created.Key)
	assert.Error(t, err)

	ctx = adminCtx("DELETE", "/admin/apikeys/1", "")
	ctx.SetUserValue("id", "1")
	DeleteAPIKey(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = adminCtx("DELETE", "/admin/apikeys/1", "")
	ctx.SetUserValue("id", "1")
	DeleteAPIKey(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestCreateAPIKeyValidation(t *testing.T) {
	gdb := dbtest.Open(t)

	ctx := adminCtx("POST", "/admin/apikeys", "name=dashboard")
	CreateAPIKey(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = adminCtx("POST", "/admin/apikeys", "name=dashboard&account_id=abc")
	CreateAPIKey(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestUserManagement(t *testing.T) {
	gdb := dbtest.Open(t)
	cfg := &config.Config{AdminUser: "root"}
	require.NoError(t, gdb.Create(&dbpkg.User{Username: "root", PasswordHash: "x", IsAdmin: true}).Error)

	ctx := adminCtx("POST", "/admin/users", "username=ops&password=s3cret&is_admin=true")
	CreateUser(gdb)(ctx)
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	var created userView
	decode(t, ctx, &created)
	assert.True(t, created.IsAdmin)

	ctx = adminCtx("POST", "/admin/users", "username=ops&password=other")
	CreateUser(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = adminCtx("POST", "/admin/users/1/reset-password", "password=new")
	ctx.SetUserValue("id", "1")
	ResetPassword(gdb, cfg)(ctx)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = adminCtx("POST", "/admin/users/2/reset-password", "password=new")
	ctx.SetUserValue("id", "2")
	ResetPassword(gdb, cfg)(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = adminCtx("DELETE", "/admin/users/2", "")
	ctx.SetUserValue("id", "2")
	DeleteUser(gdb, cfg)(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = adminCtx("GET", "/admin/users", "")
	ListUsers(gdb)(ctx)
	var listed struct {
		Users []userView `json:"users"`
	}
	decode(t, ctx, &listed)
	require.Len(t, listed.Users, 1)
	assert.Equal(t, "root", listed.Users[0].Username)
}

func TestMetricsHandlerFiltersBySource(t *testing.T) {
	reg := prometheus.NewRegistry()
	records := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "records_total", Help: "x"}, []string{"source"})
	up := prometheus.NewGauge(prometheus.GaugeOpts{Name: "up", Help: "x"})
	reg.MustRegister(records, up)
	records.WithLabelValues("google_ads").Add(3)
	records.WithLabelValues("fbads").Add(4)
	up.Set(1)

	ctx := newCtx("GET", "/metrics?source=google_ads", nil, "")
	MetricsHandler(reg)(ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	body := string(ctx.Response.Body())
	assert.Contains(t, body, `records_total{source="google_ads"} 3`)
	assert.NotContains(t, body, "fbads")
	assert.Contains(t, body, "up 1")

	ctx = newCtx("GET", "/metrics", nil, "")
	MetricsHandler(reg)(ctx)
	assert.Contains(t, string(ctx.Response.Body()), "fbads")
}

func TestCaptureCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, InitPrometheusMetrics(reg))
	t.Cleanup(func() { captureRequests, captureMetrics = nil, nil })

	CaptureHandler(&stubCapturer{})(captureCtx(`{"source":"search_console","metrics":{"clicks":1,"impressions":9}}`))
	CaptureHandler(&stubCapturer{})(captureCtx(`{"source":"bing","metrics":{"clicks":1}}`))

	assert.Equal(t, 1.0, testutil.ToFloat64(captureRequests.WithLabelValues("search_console", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(captureRequests.WithLabelValues("", "invalid")))
}
