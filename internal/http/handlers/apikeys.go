package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "fieldsprout/internal/db"
)

type apiKeyView struct {
	ID        uint   `json:"id"`
	AccountID uint   `json:"account_id"`
	Name      string `json:"name"`
	Key       string `json:"key,omitempty"`
	Active    bool   `json:"active"`
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "fs_" + base64.URLEncoding.EncodeToString(b), nil
}

// CreateAPIKey issues a capture key for one account. The token is only
// shown in this response.
func CreateAPIKey(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		name := string(ctx.PostArgs().Peek("name"))
		accountStr := string(ctx.PostArgs().Peek("account_id"))
		if name == "" || accountStr == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name and account_id required")
			return
		}
		account, err := strconv.ParseUint(accountStr, 10, 32)
		if err != nil || account == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid account_id")
			return
		}

		if _, ok := MustUser(ctx); !ok {
			return
		}
		key, err := generateAPIKey()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to generate API key")
			return
		}

		apiKey := &dbpkg.APIKey{
			AccountID: uint(account),
			Name:      name,
			Key:       key,
			Active:    true,
		}
		if err := db.WithContext(ctx).Create(apiKey).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create API key")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, apiKeyView{
			ID:        apiKey.ID,
			AccountID: apiKey.AccountID,
			Name:      apiKey.Name,
			Key:       apiKey.Key,
			Active:    apiKey.Active,
		})
	}
}

// ListAPIKeys lists keys, optionally for one account, without their tokens.
func ListAPIKeys(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := db.WithContext(ctx).Order("id")
		if ctx.QueryArgs().Has("account_id") {
			account, ok := accountID(ctx)
			if !ok {
				return
			}
			q = q.Where("account_id = ?", account)
		}

		var keys []dbpkg.APIKey
		if err := q.Find(&keys).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list API keys")
			return
		}
		out := make([]apiKeyView, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyView{ID: k.ID, AccountID: k.AccountID, Name: k.Name, Active: k.Active})
		}
		jsonResponse(ctx, map[string]any{"api_keys": out})
	}
}

func DeleteAPIKey(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := idParam(ctx)
		if !ok {
			return
		}

		var apiKey dbpkg.APIKey
		if err := db.WithContext(ctx).First(&apiKey, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "API key not found")
			return
		}
		if err := db.WithContext(ctx).Delete(&apiKey).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete API key")
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}

func SetActiveAPIKey(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := idParam(ctx)
		if !ok {
			return
		}
		activeStr := string(ctx.PostArgs().Peek("active"))
		if activeStr != "true" && activeStr != "false" {
			errResponse(ctx, fasthttp.StatusBadRequest, "active (true|false) required")
			return
		}
		active := activeStr == "true"

		var apiKey dbpkg.APIKey
		if err := db.WithContext(ctx).First(&apiKey, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "API key not found")
			return
		}
		if err := db.WithContext(ctx).Model(&apiKey).Update("active", active).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update API key")
			return
		}
		jsonResponse(ctx, apiKeyView{ID: apiKey.ID, AccountID: apiKey.AccountID, Name: apiKey.Name, Active: active})
	}
}
