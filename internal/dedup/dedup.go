// Package dedup collapses rows that share a business key (normalized domain
// or email) under a configurable policy.
package dedup

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// Policy decides which of several rows with the same key survives.
type Policy string

const (
	// FirstSeen keeps the earliest row in input order.
	FirstSeen Policy = "first-seen"
	// HighestScore keeps the row with the highest fit score; ties go to the
	// earliest row.
	HighestScore Policy = "highest-score"
)

// ParsePolicy validates a configured policy name. Empty means FirstSeen.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", FirstSeen:
		return FirstSeen, nil
	case HighestScore:
		return HighestScore, nil
	}
	return "", resilience.NewFatalConfigError(fmt.Sprintf("unknown dedup policy %q", s), nil)
}

// Key returns the dedup key for an already-normalized domain and email. The
// domain wins when both are present. An empty key means the row is never
// deduplicated.
func Key(domain, email string) string {
	switch {
	case domain != "":
		return "domain:" + domain
	case email != "":
		return "email:" + email
	}
	return ""
}

// KeyOf returns the dedup key of a row.
func KeyOf(r model.Row) string {
	return Key(r.Domain, r.Email)
}

// Removal records a row dropped as a duplicate.
type Removal struct {
	RowIndex     int    `yaml:"row_index" json:"row_index"`
	KeptRowIndex int    `yaml:"kept_row_index" json:"kept_row_index"`
	Key          string `yaml:"key" json:"key"`
	Reason       string `yaml:"reason" json:"reason"`
}

// Result is the outcome of Apply.
type Result struct {
	Rows    []model.Row
	Removed []Removal
}

// Apply deduplicates rows, which must be in input order. The surviving rows
// keep that order, and no two of them share a non-empty key. Keyless rows
// always survive.
func Apply(rows []model.Row, policy Policy) Result {
	keep := make([]bool, len(rows))
	winner := make(map[string]int) // key -> position in rows
	var removed []Removal

	for i, r := range rows {
		key := KeyOf(r)
		if key == "" {
			keep[i] = true
			continue
		}
		w, seen := winner[key]
		if !seen {
			winner[key] = i
			keep[i] = true
			continue
		}

		if policy == HighestScore && r.Derived.FitScore > rows[w].Derived.FitScore {
			reason := fmt.Sprintf("duplicate %s: row %d has a higher fit score (%d > %d)",
				key, r.Record.RowIndex, r.Derived.FitScore, rows[w].Derived.FitScore)
			removed = append(removed, Removal{
				RowIndex:     rows[w].Record.RowIndex,
				KeptRowIndex: r.Record.RowIndex,
				Key:          key,
				Reason:       reason,
			})
			keep[w] = false
			keep[i] = true
			winner[key] = i
			continue
		}

		reason := fmt.Sprintf("duplicate %s: first seen at row %d", key, rows[w].Record.RowIndex)
		if policy == HighestScore {
			reason = fmt.Sprintf("duplicate %s: row %d has an equal or higher fit score", key, rows[w].Record.RowIndex)
		}
		removed = append(removed, Removal{
			RowIndex:     r.Record.RowIndex,
			KeptRowIndex: rows[w].Record.RowIndex,
			Key:          key,
			Reason:       reason,
		})
	}

	out := make([]model.Row, 0, len(rows)-len(removed))
	for i, r := range rows {
		if keep[i] {
			out = append(out, r)
		}
	}

	// A row displaced under HighestScore may itself have displaced an
	// earlier one, so the final winner is resolved only now.
	for i := range removed {
		removed[i].KeptRowIndex = rows[winner[removed[i].Key]].Record.RowIndex
	}
	for _, rm := range removed {
		zap.L().Info("dedup: row dropped",
			zap.Int("row_index", rm.RowIndex),
			zap.Int("kept_row_index", rm.KeptRowIndex),
			zap.String("reason", rm.Reason),
		)
	}
	return Result{Rows: out, Removed: removed}
}
