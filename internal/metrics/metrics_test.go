package metrics

import (
	"sync"
	"testing"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	flushes  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = append(r.samples[name], value)
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func TestSetBackend_RoutesObservations(t *testing.T) {
	rec := newRecordingBackend()
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(DocumentsTotal, 2, Labels{"status": "ok"})
	IncCounter(DocumentsTotal, 1, Labels{"status": "ok"})
	ObserveHistogram(RunDurationSeconds, 0.25, Labels{"status": "ok"})
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := rec.counters[DocumentsTotal]; got != 3 {
		t.Fatalf("counter %s = %v, want 3", DocumentsTotal, got)
	}
	if got := rec.samples[RunDurationSeconds]; len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("histogram %s = %v, want [0.25]", RunDurationSeconds, got)
	}
	if rec.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", rec.flushes)
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	rec := newRecordingBackend()
	SetBackend(rec)
	SetBackend(nil)

	IncCounter(RowsAddedTotal, 5, Labels{"table": "mvt"})
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}

	if got := rec.counters[RowsAddedTotal]; got != 0 {
		t.Fatalf("detached backend still received %v", got)
	}
	if rec.flushes != 0 {
		t.Fatalf("detached backend flushed %d times", rec.flushes)
	}
}
