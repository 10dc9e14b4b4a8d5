package ingest

import (
	"context"

	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/record"
)

// Importer handles one annotation source format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file and returns its observations, all attributed to
	// group. Row-level problems come back as diagnostics; the error is
	// reserved for failures that make the whole file unreadable.
	Import(ctx context.Context, path, group string) ([]record.Observation, []diag.Diagnostic, error)
}

// Job is one file to import for one group.
type Job struct {
	Source string
	Group  string
	Path   string
}

// Batch holds every observation of one group, in file then line order.
type Batch struct {
	Group        string
	Observations []record.Observation
}

// Result summarizes an ingestion run.
type Result struct {
	FilesScanned  int
	FilesImported int
	FilesSkipped  int
	Observations  int
	Batches       []Batch
	Diagnostics   []diag.Diagnostic
}

// Add merges another Result's counters and diagnostics into this one.
// Batches are not merged.
func (r *Result) Add(other *Result) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.Observations += other.Observations
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
}

// DefaultMaxFileSize is 512MB; InterProScan outputs for large proteomes are
// well below this.
const DefaultMaxFileSize = 512 * 1024 * 1024
