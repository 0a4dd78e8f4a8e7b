package handlers

import (
	"context"
	"strconv"

	"github.com/valyala/fasthttp"

	"fieldsprout/internal/backfill"
)

// Backfiller is the orchestrator surface the admin endpoints drive.
type Backfiller interface {
	Backfill(ctx context.Context, accountID uint, months int, force bool) (*backfill.Report, error)
	Check(ctx context.Context, accountID uint) ([]backfill.SourceCoverage, error)
}

// BackfillHandler serves POST /admin/backfill. It runs synchronously and
// answers with the report; a storage failure turns the status into 500
// while still returning the report.
func BackfillHandler(orch Backfiller, defaultMonths int) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}

		months := defaultMonths
		if m := string(ctx.QueryArgs().Peek("months")); m != "" {
			n, err := strconv.Atoi(m)
			if err != nil || n < 1 {
				errResponse(ctx, fasthttp.StatusBadRequest, "months must be a positive integer")
				return
			}
			months = n
		}

		force := false
		if f := string(ctx.QueryArgs().Peek("force")); f != "" {
			v, err := strconv.ParseBool(f)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "force must be true or false")
				return
			}
			force = v
		}

		report, err := orch.Backfill(ctx, account, months, force)
		if report == nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			jsonResponse(ctx, map[string]any{"report": report, "error": err.Error()})
			return
		}
		jsonResponse(ctx, map[string]any{"report": report})
	}
}

// CheckHandler serves GET /admin/check.
func CheckHandler(orch Backfiller) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		sources, err := orch.Check(ctx, account)
		if err != nil {
			storeErr(ctx, err)
			return
		}
		jsonResponse(ctx, map[string]any{"account_id": account, "sources": sources})
	}
}
