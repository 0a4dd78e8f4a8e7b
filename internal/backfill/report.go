package backfill

import (
	"time"

	"fieldsprout/internal/db"
	"fieldsprout/internal/sources"
)

// Status is the outcome of one source within a backfill.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ErrorKindStorage marks a source whose fetched records could not be
// committed.
const ErrorKindStorage sources.Kind = "storage"

// Window is an inclusive date range requested from an adapter.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// SourceResult is the per-source entry of a Report.
type SourceResult struct {
	Source     db.SourceType `json:"source"`
	Status     Status        `json:"status"`
	Records    int           `json:"records"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Windows    []Window      `json:"windows,omitempty"`
	Note       string        `json:"note,omitempty"`
	ErrorKind  sources.Kind  `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	RetryLater bool          `json:"retry_later,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// Report summarises one backfill call. It is returned even when some
// sources failed.
type Report struct {
	RunID         string         `json:"run_id"`
	AccountID     uint           `json:"account_id"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	Force         bool           `json:"force"`
	Sources       []SourceResult `json:"sources"`
	Attempted     int            `json:"attempted"`
	TotalImported int            `json:"total_imported"`
	Inserted      int            `json:"inserted"`
	Updated       int            `json:"updated"`
}

// Result returns the entry for source, if the report has one.
func (r *Report) Result(source db.SourceType) (SourceResult, bool) {
	for _, s := range r.Sources {
		if s.Source == source {
			return s, true
		}
	}
	return SourceResult{}, false
}

// Failed lists sources that ended in StatusError.
func (r *Report) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Status == StatusError {
			out = append(out, s)
		}
	}
	return out
}

func (r *Report) tally() {
	r.Attempted = len(r.Sources)
	r.Inserted, r.Updated = 0, 0
	for _, s := range r.Sources {
		r.Inserted += s.Inserted
		r.Updated += s.Updated
	}
	r.TotalImported = r.Inserted + r.Updated
}
