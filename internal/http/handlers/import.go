package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/valyala/fasthttp"

	"fieldsprout/internal/baseline"
)

// maxImportBytes bounds an uploaded baseline file.
const maxImportBytes = 16 << 20

// ImportCSVHandler serves POST /admin/import/csv. The file is taken from
// the multipart field "file" or, failing that, the raw request body.
func ImportCSVHandler(store baseline.Upserter) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		src, err := sourceArg(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		if src == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "source required")
			return
		}
		sourceID := string(ctx.QueryArgs().Peek("source_id"))

		body, err := uploadedFile(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		res, err := baseline.ImportCSV(ctx, store, account, src, sourceID, body)
		if err != nil {
			if errors.Is(err, baseline.ErrNoDateColumn) {
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			storeErr(ctx, err)
			return
		}
		jsonResponse(ctx, res)
	}
}

// ImportMonthlyHandler serves POST /admin/import/monthly with a JSON array
// of baseline.MonthlyRow.
func ImportMonthlyHandler(store baseline.Upserter) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		account, ok := accountID(ctx)
		if !ok {
			return
		}
		src, err := sourceArg(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		if src == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "source required")
			return
		}

		var rows []baseline.MonthlyRow
		if err := json.Unmarshal(ctx.PostBody(), &rows); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body, want an array of {year, month, metrics}")
			return
		}
		if len(rows) == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no rows provided")
			return
		}

		res, err := baseline.ImportMonthly(ctx, store, account, src, string(ctx.QueryArgs().Peek("source_id")), rows)
		if err != nil {
			storeErr(ctx, err)
			return
		}
		jsonResponse(ctx, res)
	}
}

// ImportTemplate serves the example CSV an operator fills in.
func ImportTemplate() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("text/csv; charset=utf-8")
		ctx.Response.Header.Set("Content-Disposition", `attachment; filename="baseline.csv"`)
		ctx.SetBodyString(baseline.Template())
	}
}

func uploadedFile(ctx *fasthttp.RequestCtx) (io.Reader, error) {
	if fh, err := ctx.FormFile("file"); err == nil {
		if fh.Size > maxImportBytes {
			return nil, errors.New("file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}

	body := ctx.PostBody()
	if len(body) == 0 {
		return nil, errors.New("empty upload")
	}
	if len(body) > maxImportBytes {
		return nil, errors.New("file too large")
	}
	return bytes.NewReader(body), nil
}
