// Package pipeline composes one ingest run: stage a batch from the input
// documents, merge it into the store, mirror the store to SQL when
// configured, and record the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"eds/internal/batch"
	"eds/internal/mapping"
	"eds/internal/merge"
	"eds/internal/metrics"
	"eds/internal/report"
	"eds/internal/storage"
	"eds/internal/table"
)

// Logger is the minimal logging seam; *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Config holds everything one run needs. Mirror.Kind empty disables
// mirroring.
type Config struct {
	MappingPath string
	InputDir    string
	StoreDir    string
	ReportsDir  string
	KeysPath    string

	Mirror storage.Config
}

// Runner executes ingest runs for a fixed configuration.
type Runner struct {
	cfg Config
	log Logger
	now func() time.Time
}

// New returns a Runner. A nil logger disables logging.
func New(cfg Config, log Logger) *Runner {
	if log == nil {
		log = nopLogger{}
	}
	return &Runner{cfg: cfg, log: log, now: time.Now}
}

// Run performs one full ingest run and returns its report.
//
// Failure semantics follow the store's append-only contract:
//   - configuration problems fail before anything touches the store
//   - unreadable input documents are warnings, never failures
//   - a merge failure is partial: tables merged before it stay merged and
//     the report says which
//   - mirror and report-write failures never fail the run
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	started := r.now()
	rep := &report.Report{
		RunID:     report.NewRunID(started),
		StartedAt: started,
		Status:    report.StatusOK,
	}

	cfg, reg, keys, err := r.load()
	if err != nil {
		return r.finish(rep, err)
	}

	builder := batch.New(cfg, reg, r.log)
	bres, err := builder.Build(ctx, r.cfg.InputDir, "")
	if err != nil {
		return r.finish(rep, err)
	}
	defer os.RemoveAll(bres.Dir)
	rep.Batch = bres

	r.countBatch(bres)

	engine := merge.New(keys, r.log)
	records, err := engine.Merge(ctx, r.cfg.StoreDir, bres.Dir, reg.Tables())
	rep.Merge = records
	for _, rec := range records {
		metrics.IncCounter(metrics.RowsAddedTotal, float64(rec.AddedRows), metrics.Labels{"table": rec.Table})
	}
	if err != nil {
		var merr *merge.Error
		if errors.As(err, &merr) && len(merr.Records) > 0 {
			rep.Status = report.StatusPartial
		}
		return r.finish(rep, err)
	}

	r.mirror(ctx, reg.Tables())

	return r.finish(rep, nil)
}

// load reads the mapping configuration and merge keys. Any failure here is
// fatal and happens before the store is touched.
func (r *Runner) load() (*mapping.Config, *mapping.Registry, mapping.UniqueKeys, error) {
	cfg, err := mapping.LoadFile(r.cfg.MappingPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pipeline: configuration: %w", err)
	}

	keys := mapping.DefaultKeys()
	if r.cfg.KeysPath != "" {
		keys, err = mapping.LoadKeysFile(r.cfg.KeysPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pipeline: configuration: %w", err)
		}
	}

	return cfg, mapping.NewRegistry(cfg), keys, nil
}

func (r *Runner) countBatch(bres *batch.Result) {
	metrics.IncCounter(metrics.DocumentsTotal, float64(bres.Stats.ResourcesSeen-bres.Stats.ResourcesSkipped), metrics.Labels{"status": "ok"})
	metrics.IncCounter(metrics.DocumentsTotal, float64(bres.Stats.ResourcesSkipped), metrics.Labels{"status": "skipped"})
	metrics.IncCounter(metrics.WarningsTotal, float64(bres.Stats.CoercionWarnings), metrics.Labels{"kind": "coercion"})
	metrics.IncCounter(metrics.WarningsTotal, float64(len(bres.Warnings)), metrics.Labels{"kind": "document"})
	for tbl, n := range bres.Stats.RowsByTable {
		metrics.IncCounter(metrics.RowsExtractedTotal, float64(n), metrics.Labels{"table": tbl})
	}
}

// mirror replicates the post-merge store into the configured SQL backend.
// Every failure is logged and counted but never propagated.
func (r *Runner) mirror(ctx context.Context, tables []string) {
	if r.cfg.Mirror.Kind == "" {
		return
	}

	m, err := storage.NewMirror(ctx, r.cfg.Mirror)
	if err != nil {
		r.mirrorWarn("connect", err)
		return
	}
	defer m.Close()

	for _, name := range tables {
		t, err := table.ReadFile(r.cfg.StoreDir, name)
		if err != nil {
			r.mirrorWarn(name, err)
			continue
		}
		if t == nil {
			continue
		}
		spec := mirrorSpec(name, t)
		if err := m.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
			r.mirrorWarn(name, err)
			continue
		}
		if err := m.ReplaceTable(ctx, spec, mirrorRows(t)); err != nil {
			r.mirrorWarn(name, err)
		}
	}
}

func (r *Runner) mirrorWarn(what string, err error) {
	r.log.Printf("pipeline: mirror %s: %v", what, err)
	metrics.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"kind": "mirror"})
}

// finish stamps the report, persists it best-effort, and returns the run's
// outcome. A report write failure must never mask a completed merge, so it
// is logged and dropped here.
func (r *Runner) finish(rep *report.Report, runErr error) (*report.Report, error) {
	rep.FinishedAt = r.now()
	if runErr != nil {
		if rep.Status == report.StatusOK {
			rep.Status = report.StatusFailed
		}
		rep.Error = runErr.Error()
	}

	metrics.ObserveHistogram(metrics.RunDurationSeconds,
		rep.FinishedAt.Sub(rep.StartedAt).Seconds(), metrics.Labels{"status": rep.Status})

	if r.cfg.ReportsDir != "" {
		if err := report.NewWriter(r.cfg.ReportsDir).Write(rep); err != nil {
			r.log.Printf("pipeline: report write: %v", err)
			metrics.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"kind": "report"})
		}
	}

	return rep, runErr
}

// mirrorSpec derives SQL column kinds from the stored column contents.
// Mixed-kind columns mirror as text.
func mirrorSpec(name string, t *table.Table) storage.TableSpec {
	spec := storage.TableSpec{Name: name, Columns: make([]storage.ColumnSpec, len(t.Columns))}
	for i, col := range t.Columns {
		kind := storage.KindText
		if k, ok := t.ColumnKind(i); ok {
			switch k {
			case table.KindNumber:
				kind = storage.KindNumber
			case table.KindBool:
				kind = storage.KindBool
			}
		}
		spec.Columns[i] = storage.ColumnSpec{Name: col, Kind: kind}
	}
	return spec
}

func mirrorRows(t *table.Table) [][]any {
	rows := make([][]any, t.NumRows())
	for r := range t.Rows {
		row := make([]any, len(t.Columns))
		for c := range t.Columns {
			row[c] = t.Cell(r, c).Any()
		}
		rows[r] = row
	}
	return rows
}
