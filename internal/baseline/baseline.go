// Package baseline imports historical metrics an operator already has in
// spreadsheets, for periods the platforms can no longer serve.
package baseline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fieldsprout/internal/db"
	"fieldsprout/internal/sources"
)

type Upserter interface {
	Upsert(ctx context.Context, records []db.PerformanceMetric) (db.UpsertResult, error)
}

// Result summarises an import. Errors holds one message per rejected row;
// rejected rows do not stop the rest of the file.
type Result struct {
	Imported int             `json:"imported"`
	Errors   []string        `json:"errors,omitempty"`
	Upsert   db.UpsertResult `json:"upsert"`
}

var ErrNoDateColumn = errors.New("csv header must contain a date column")

// Columns with a fixed meaning. Every other column is a metric.
const (
	colDate       = "date"
	colEntityType = "entity_type"
	colEntityID   = "entity_id"
	colEntityName = "entity_name"
)

// ImportCSV reads daily rows from r. The header names the columns; "date"
// (YYYY-MM-DD) is required, entity_type/entity_id/entity_name are
// optional, and the rest are metric values in dollars and 0-100
// percentages. Lines starting with # are ignored. Accepted rows are
// written in a single batch.
func ImportCSV(ctx context.Context, store Upserter, accountID uint, source db.SourceType, sourceID string, r io.Reader) (Result, error) {
	var res Result
	if !source.Valid() {
		return res, fmt.Errorf("%w: unknown source_type %q", db.ErrInvalidRecord, source)
	}

	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return res, ErrNoDateColumn
	}
	if err != nil {
		return res, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	dateIdx := -1
	for i, h := range header {
		if h == colDate {
			dateIdx = i
		}
	}
	if dateIdx < 0 {
		return res, ErrNoDateColumn
	}

	var records []db.PerformanceMetric
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		line, _ := reader.FieldPos(0)
		rec, err := parseRow(header, dateIdx, row)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		rec.AccountID = accountID
		rec.SourceType = source
		rec.SourceID = sourceID
		records = append(records, rec)
	}

	if len(records) == 0 {
		return res, nil
	}
	up, err := store.Upsert(ctx, records)
	if err != nil {
		return res, err
	}
	res.Imported = len(records)
	res.Upsert = up
	return res, nil
}

func parseRow(header []string, dateIdx int, row []string) (db.PerformanceMetric, error) {
	var rec db.PerformanceMetric
	if dateIdx >= len(row) {
		return rec, errors.New("missing date")
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(row[dateIdx]))
	if err != nil {
		return rec, fmt.Errorf("bad date %q", row[dateIdx])
	}
	rec.Date = date
	rec.Timeframe = db.TimeframeDaily

	raw := make(map[string]float64)
	for i, cell := range row {
		if i >= len(header) || i == dateIdx {
			continue
		}
		cell = strings.TrimSpace(cell)
		switch header[i] {
		case colEntityType:
			rec.EntityType = cell
			continue
		case colEntityID:
			rec.EntityID = cell
			continue
		case colEntityName:
			rec.EntityName = cell
			continue
		case "":
			continue
		}
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(cell, "$"), ",", ""), 64)
		if err != nil {
			return rec, fmt.Errorf("column %s: %q is not a number", header[i], cell)
		}
		raw[header[i]] = v
	}
	if len(raw) == 0 {
		return rec, errors.New("no metric values")
	}
	// spreadsheet values are already in canonical units; only aliases apply
	rec.SetValues(sources.Normalize("", raw))
	return rec, nil
}

// MonthlyRow is one month of aggregate metrics entered by hand.
type MonthlyRow struct {
	Year    int                `json:"year"`
	Month   int                `json:"month"`
	Metrics map[string]float64 `json:"metrics"`
}

// ImportMonthly stores monthly aggregates anchored on the first of each
// month. Rows with an invalid month or no metrics are reported and
// skipped.
func ImportMonthly(ctx context.Context, store Upserter, accountID uint, source db.SourceType, sourceID string, rows []MonthlyRow) (Result, error) {
	var res Result
	records := make([]db.PerformanceMetric, 0, len(rows))
	for _, m := range rows {
		if m.Month < 1 || m.Month > 12 || m.Year < 1 {
			res.Errors = append(res.Errors, fmt.Sprintf("%04d-%02d: invalid month", m.Year, m.Month))
			continue
		}
		if len(m.Metrics) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%04d-%02d: no metrics", m.Year, m.Month))
			continue
		}
		rec := db.PerformanceMetric{
			AccountID:  accountID,
			SourceType: source,
			SourceID:   sourceID,
			Date:       time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC),
			Timeframe:  db.TimeframeMonthly,
		}
		rec.SetValues(sources.Normalize("", m.Metrics))
		records = append(records, rec)
	}
	if len(records) == 0 {
		return res, nil
	}
	up, err := store.Upsert(ctx, records)
	if err != nil {
		return res, err
	}
	res.Imported = len(records)
	res.Upsert = up
	return res, nil
}

// Template is an example CSV for ImportCSV.
func Template() string {
	return `date,impressions,clicks,spend,conversions
2024-01-01,10000,500,250.50,25
2024-01-02,12000,600,300.00,30
2024-01-03,11000,550,275.25,28
# Add your historical data below
# Date format: YYYY-MM-DD
# Spend in dollars (not cents or micros)
# Add any additional metric columns as needed
`
}
