package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"fieldsprout/internal/connections"
	dbpkg "fieldsprout/internal/db"
)

type ConnectionStore interface {
	Save(ctx context.Context, c connections.Connection) error
	Revoke(ctx context.Context, accountID uint, source dbpkg.SourceType) error
}

// HistoricalPuller starts a background single-source backfill when the
// source lacks recent data; satisfied by *backfill.Orchestrator.
type HistoricalPuller interface {
	PullIfStale(ctx context.Context, accountID uint, source dbpkg.SourceType, months int) (bool, error)
}

type connectionRequest struct {
	AccountID       uint             `json:"account_id"`
	Source          dbpkg.SourceType `json:"source"`
	ResourceID      string           `json:"resource_id"`
	LoginCustomerID string           `json:"login_customer_id"`
	AccessToken     string           `json:"access_token"`
	ExpiresAt       *time.Time       `json:"expires_at"`
}

// SaveConnection serves POST /admin/connections. After storing the
// connection it starts a months-long historical pull for the source unless
// recent data already exists.
func SaveConnection(store ConnectionStore, puller HistoricalPuller, months int) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req connectionRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		switch {
		case req.AccountID == 0:
			errResponse(ctx, fasthttp.StatusBadRequest, "account_id required")
			return
		case !req.Source.Valid():
			errResponse(ctx, fasthttp.StatusBadRequest, "unknown source")
			return
		case req.AccessToken == "":
			errResponse(ctx, fasthttp.StatusBadRequest, "access_token required")
			return
		}

		err := store.Save(ctx, connections.Connection{
			AccountID:       req.AccountID,
			Source:          req.Source,
			ResourceID:      req.ResourceID,
			LoginCustomerID: req.LoginCustomerID,
			AccessToken:     req.AccessToken,
			ExpiresAt:       req.ExpiresAt,
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to save connection")
			return
		}

		body := map[string]any{
			"status":     "connected",
			"account_id": req.AccountID,
			"source":     req.Source,
		}
		started, err := puller.PullIfStale(ctx, req.AccountID, req.Source, months)
		body["historical_pull"] = started
		if err != nil {
			body["historical_pull_error"] = err.Error()
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, body)
	}
}

// RevokeConnection serves DELETE /admin/connections/{source}?account_id=.
func RevokeConnection(store ConnectionStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		raw, _ := ctx.UserValue("source").(string)
		source := dbpkg.SourceType(raw)
		if !source.Valid() {
			errResponse(ctx, fasthttp.StatusBadRequest, "unknown source")
			return
		}
		if err := store.Revoke(ctx, account, source); err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to revoke connection")
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}
