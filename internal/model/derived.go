package model

import "strconv"

// FitScore is the 0/1/2 qualification output of the scorer.
type FitScore int

const (
	FitNone     FitScore = 0 // not a fit
	FitPossible FitScore = 1 // possible fit
	FitStrong   FitScore = 2 // strong fit
)

// Valid reports whether s is one of the three defined levels.
func (s FitScore) Valid() bool {
	return s >= FitNone && s <= FitStrong
}

func (s FitScore) String() string {
	return strconv.Itoa(int(s))
}

// EnrichmentStatus describes what happened to a row at the enrichment stage.
type EnrichmentStatus string

const (
	EnrichmentSkipped   EnrichmentStatus = "skipped"   // not routed to the adapter
	EnrichmentSucceeded EnrichmentStatus = "succeeded" // batch returned a clean response
	EnrichmentFailed    EnrichmentStatus = "failed"    // batch exhausted retries, fallback applied
	EnrichmentNotRun    EnrichmentStatus = "not_run"   // run aborted before the batch was dispatched
)

// EnrichmentResult is the per-row payload returned by the enrichment adapter.
type EnrichmentResult struct {
	Status        EnrichmentStatus `json:"status" yaml:"status"`
	FitScore      *FitScore        `json:"fit_score,omitempty" yaml:"fit_score,omitempty"`
	Reasoning     string           `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Industry      string           `json:"industry,omitempty" yaml:"industry,omitempty"`
	EmployeeCount string           `json:"employee_count,omitempty" yaml:"employee_count,omitempty"`
	Summary       string           `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// DerivedFields holds everything the pipeline computes for a record. A value
// is assigned once; re-runs build a fresh DerivedFields instead of patching.
type DerivedFields struct {
	NormalizedCompany  string
	NormalizedLocation string
	FitScore           FitScore
	ScoreReasoning     string
	Enrichment         *EnrichmentResult
}

// Row pairs an input record with its derived fields. It is the unit the
// deduplicator and the output merger work on.
type Row struct {
	Record  Record
	Derived DerivedFields
	Domain  string
	Email   string
}
