package output

import (
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadbatch/internal/dedup"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/fsutil"
	"github.com/sells-group/leadbatch/internal/model"
)

// RowError is a row-level validation problem listed in the manifest.
type RowError struct {
	RowIndex int    `yaml:"row_index" json:"row_index"`
	Reason   string `yaml:"reason" json:"reason"`
}

// BatchSummary counts batches by outcome.
type BatchSummary struct {
	Total     int   `yaml:"total" json:"total"`
	Succeeded int   `yaml:"succeeded" json:"succeeded"`
	Resumed   []int `yaml:"resumed,omitempty" json:"resumed,omitempty"`
	FailedIDs []int `yaml:"failed_ids,omitempty" json:"failed_ids,omitempty"`
	NotRunIDs []int `yaml:"not_run_ids,omitempty" json:"not_run_ids,omitempty"`
}

// Manifest is the sidecar summary written next to the output file.
type Manifest struct {
	RunID       string    `yaml:"run_id" json:"run_id"`
	ExecutionID string    `yaml:"execution_id,omitempty" json:"execution_id,omitempty"`
	Input       string    `yaml:"input" json:"input"`
	Output      string    `yaml:"output" json:"output"`
	StartedAt   time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at" json:"finished_at"`

	RowsIn  int `yaml:"rows_in" json:"rows_in"`
	RowsOut int `yaml:"rows_out" json:"rows_out"`

	DedupPolicy   string          `yaml:"dedup_policy" json:"dedup_policy"`
	DedupRemovals int             `yaml:"dedup_removals" json:"dedup_removals"`
	DedupDropped  []dedup.Removal `yaml:"dedup_dropped,omitempty" json:"dedup_dropped,omitempty"`

	ValidationErrors int        `yaml:"validation_errors" json:"validation_errors"`
	InvalidRows      []RowError `yaml:"invalid_rows,omitempty" json:"invalid_rows,omitempty"`

	EnrichmentEnabled bool                  `yaml:"enrichment_enabled" json:"enrichment_enabled"`
	FailedBatches     int                   `yaml:"failed_batches" json:"failed_batches"`
	Batches           BatchSummary          `yaml:"batches" json:"batches"`
	Enrichment        *enrich.StatsSnapshot `yaml:"enrichment,omitempty" json:"enrichment,omitempty"`
	EnrichmentStatus  map[string]int        `yaml:"enrichment_status,omitempty" json:"enrichment_status,omitempty"`

	ScoreDistribution map[string]int `yaml:"score_distribution" json:"score_distribution"`

	Cancelled   bool   `yaml:"cancelled" json:"cancelled"`
	Aborted     bool   `yaml:"aborted" json:"aborted"`
	FatalReason string `yaml:"fatal_reason,omitempty" json:"fatal_reason,omitempty"`
}

// Tally fills the score distribution and enrichment status counts from the
// rows being written.
func (m *Manifest) Tally(rows []model.Row) {
	m.RowsOut = len(rows)
	m.ScoreDistribution = map[string]int{"0": 0, "1": 0, "2": 0}
	if m.EnrichmentEnabled {
		m.EnrichmentStatus = make(map[string]int)
	}
	for _, r := range rows {
		m.ScoreDistribution[strconv.Itoa(int(r.Derived.FitScore))]++
		if m.EnrichmentStatus == nil {
			continue
		}
		status := model.EnrichmentSkipped
		if r.Derived.Enrichment != nil {
			status = r.Derived.Enrichment.Status
		}
		m.EnrichmentStatus[string(status)]++
	}
}

// ManifestPath is where the manifest for outputPath is written.
func ManifestPath(outputPath string) string {
	return outputPath + ".manifest.yaml"
}

// WriteManifest writes m as YAML to path atomically.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "output: encode manifest")
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return eris.Wrapf(err, "output: write manifest %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "output: decode manifest %s", path)
	}
	return &m, nil
}
