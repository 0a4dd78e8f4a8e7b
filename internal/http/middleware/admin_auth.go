package middleware

import (
	"bytes"
	"encoding/base64"
	"errors"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "fieldsprout/internal/db"
	httpctx "fieldsprout/internal/http/ctx"
)

// AdminAuth checks HTTP basic credentials against admin users and sets the
// user on the context.
func AdminAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := basicAuth(ctx)
			if !ok {
				unauthorized(ctx)
				return
			}

			var user dbpkg.User
			if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					unauthorized(ctx)
					return
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
				unauthorized(ctx)
				return
			}
			if !user.IsAdmin {
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBodyString("admin access required")
				return
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}

func basicAuth(ctx *fasthttp.RequestCtx) (string, string, bool) {
	auth := ctx.Request.Header.Peek("Authorization")
	const prefix = "Basic "
	if len(auth) < len(prefix) || !bytes.EqualFold(auth[:len(prefix)], []byte(prefix)) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(auth[len(prefix):])))
	if err != nil {
		return "", "", false
	}
	user, pass, ok := bytes.Cut(raw, []byte(":"))
	if !ok || len(user) == 0 {
		return "", "", false
	}
	return string(user), string(pass), true
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="fieldsprout"`)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString("unauthorized")
}
