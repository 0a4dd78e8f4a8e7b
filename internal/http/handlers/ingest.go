package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"fieldsprout/internal/capture"
	dbpkg "fieldsprout/internal/db"
	httpctx "fieldsprout/internal/http/ctx"
	"fieldsprout/internal/sources"
)

var (
	captureRequests *prometheus.CounterVec
	captureMetrics  *prometheus.HistogramVec
)

// InitPrometheusMetrics registers the capture endpoint collectors on reg.
func InitPrometheusMetrics(reg prometheus.Registerer) error {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldsprout",
			Name:      "capture_requests_total",
			Help:      "Capture requests by source and outcome.",
		},
		[]string{"source", "status"},
	)
	size := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fieldsprout",
			Name:      "capture_metric_keys",
			Help:      "Number of metric keys carried by accepted captures.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		},
		[]string{"source"},
	)
	for _, c := range []prometheus.Collector{requests, size} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	captureRequests, captureMetrics = requests, size
	return nil
}

// Capturer stores one live observation; satisfied by *capture.Hook.
type Capturer interface {
	Capture(ctx context.Context, accountID uint, source dbpkg.SourceType, sourceID string, entity capture.Entity, date time.Time, raw map[string]float64) error
}

type captureRequest struct {
	Source   dbpkg.SourceType `json:"source"`
	SourceID string           `json:"source_id"`
	capture.Entity
	Date    string                    `json:"date"`
	Metrics map[string]sources.Number `json:"metrics"`
}

// CaptureHandler serves POST /v1/capture. The account comes from the API
// key; date defaults to today (UTC).
func CaptureHandler(hook Capturer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ak, ok := httpctx.APIKeyFromCtx(ctx)
		if !ok {
			errResponse(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			return
		}

		var payload captureRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			countCapture(payload.Source, "invalid")
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if !payload.Source.Valid() {
			countCapture("", "invalid")
			errResponse(ctx, fasthttp.StatusBadRequest, "unknown source")
			return
		}
		if len(payload.Metrics) == 0 {
			countCapture(payload.Source, "invalid")
			errResponse(ctx, fasthttp.StatusBadRequest, "no metrics provided")
			return
		}

		date := dbpkg.Day(time.Now().UTC())
		if payload.Date != "" {
			d, err := parseDay(payload.Date)
			if err != nil {
				countCapture(payload.Source, "invalid")
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			date = d
		}

		raw := make(map[string]float64, len(payload.Metrics))
		for k, v := range payload.Metrics {
			raw[k] = v.Float()
		}

		err := hook.Capture(ctx, ak.AccountID, payload.Source, payload.SourceID, payload.Entity, date, raw)
		if err != nil {
			if errors.Is(err, dbpkg.ErrInvalidRecord) {
				countCapture(payload.Source, "invalid")
			} else {
				countCapture(payload.Source, "error")
			}
			storeErr(ctx, err)
			return
		}

		countCapture(payload.Source, "accepted")
		if captureMetrics != nil {
			captureMetrics.WithLabelValues(string(payload.Source)).Observe(float64(len(raw)))
		}
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		jsonResponse(ctx, map[string]any{
			"status":     "accepted",
			"account_id": ak.AccountID,
			"date":       date.Format(time.DateOnly),
		})
	}
}

func countCapture(source dbpkg.SourceType, status string) {
	if captureRequests == nil {
		return
	}
	captureRequests.WithLabelValues(string(source), status).Inc()
}
