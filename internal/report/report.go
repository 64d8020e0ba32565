// Package report records the outcome of one pipeline run as a JSON document
// for operators and downstream monitoring.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"eds/internal/batch"
	"eds/internal/merge"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Report is the full outcome of one run.
type Report struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Batch      *batch.Result  `json:"batch,omitempty"`
	Merge      []merge.Record `json:"merge,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewRunID returns a sortable, collision-safe run identifier.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Writer persists reports under a reports directory: latest.json is
// overwritten on every run, and each run is archived once by its id.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer { return &Writer{dir: dir} }

// Write persists the report. Callers treat a write failure as advisory:
// reporting must never undo or mask a completed merge.
func (w *Writer) Write(r *Report) error {
	archiveDir := filepath.Join(w.dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("report: create %s: %w", archiveDir, err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode run %s: %w", r.RunID, err)
	}
	data = append(data, '\n')

	if err := writeAtomic(filepath.Join(w.dir, "latest.json"), data); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(archiveDir, r.RunID+".json"), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: stage %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: publish %s: %w", path, err)
	}
	return nil
}
