package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "fieldsprout/internal/db"
	httpctx "fieldsprout/internal/http/ctx"
	"fieldsprout/internal/logger"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	return user, true
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(log *logger.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			log.Info("request",
				"method", string(ctx.Method()),
				"path", string(ctx.Path()),
				"status", ctx.Response.StatusCode(),
				"duration", time.Since(start),
				"ip", ctx.RemoteAddr().String(),
			)
		}
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// storeErr maps store errors to a status: invalid input 400, missing data
// 404, anything else 500.
func storeErr(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, dbpkg.ErrInvalidRecord):
		errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, dbpkg.ErrNoData):
		errResponse(ctx, fasthttp.StatusNotFound, err.Error())
	default:
		errResponse(ctx, fasthttp.StatusInternalServerError, "storage error")
	}
}

// accountID reads the required account_id query argument. It writes a 400
// and returns false when the value is missing or not a positive integer.
func accountID(ctx *fasthttp.RequestCtx) (uint, bool) {
	raw := string(ctx.QueryArgs().Peek("account_id"))
	if raw == "" {
		errResponse(ctx, fasthttp.StatusBadRequest, "account_id required")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid account_id")
		return 0, false
	}
	return uint(id), true
}

// sourceArg reads an optional source argument. An unknown source is
// reported as an error; an absent one is "".
func sourceArg(ctx *fasthttp.RequestCtx) (dbpkg.SourceType, error) {
	raw := string(ctx.QueryArgs().Peek("source"))
	if raw == "" {
		return "", nil
	}
	src := dbpkg.SourceType(raw)
	if !src.Valid() {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return src, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// idParam parses the {id} route parameter.
func idParam(ctx *fasthttp.RequestCtx) (uint, bool) {
	idStr, ok := ctx.UserValue("id").(string)
	if !ok {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid ID")
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid ID")
		return 0, false
	}
	return uint(id), true
}
