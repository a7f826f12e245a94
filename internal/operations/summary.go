package operations

import (
	"time"

	"github.com/kebairia/sqlbak/internal/database"
)

// Outcome records the result of one attempted database backup.
type Outcome struct {
	Target      database.Target `json:"target"`
	Succeeded   bool            `json:"succeeded"`
	ErrorDetail string          `json:"error,omitempty"`
	Key         string          `json:"key,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	DurationMS  int64           `json:"duration_ms"`
	SizeBytes   int64           `json:"size_bytes,omitempty"`
}

// RunSummary aggregates the outcomes of one full backup cycle.
type RunSummary struct {
	Total    int       `json:"total"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// Summarize folds per-database outcomes into a RunSummary. Pure; the
// counters exist nowhere else.
func Summarize(outcomes []Outcome) RunSummary {
	s := RunSummary{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.Succeeded {
			s.Failed++
		}
	}
	return s
}
