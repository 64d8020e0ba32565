// Package metrics is the pipeline's instrumentation seam. Core code emits
// counters and histograms through package-level helpers; the process wires a
// concrete backend (or none) at startup.
package metrics

import "sync"

// Labels are free-form metric dimensions (table, status, kind).
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Canonical metric names emitted by the pipeline.
const (
	DocumentsTotal     = "eds_documents_total"      // labels: status (ok, skipped)
	RowsExtractedTotal = "eds_rows_extracted_total" // labels: table
	RowsAddedTotal     = "eds_rows_added_total"     // labels: table
	WarningsTotal      = "eds_warnings_total"       // labels: kind (coercion, document, mirror, report)
	RunDurationSeconds = "eds_run_duration_seconds" // labels: status
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Passing nil restores the nop
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush forces the installed backend to submit buffered observations.
func Flush() error {
	return current().Flush()
}
