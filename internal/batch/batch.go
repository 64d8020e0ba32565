// Package batch stages one ingest run: it extracts rows from every input
// document, enriches and rebuilds the canonical tables, enforces the declared
// schemas, and writes the result to a staging directory for the merge step.
package batch

import (
	"context"
	"fmt"

	"eds/internal/enrich"
	"eds/internal/extract"
	"eds/internal/mapping"
	"eds/internal/rebuild"
	"eds/internal/table"
)

// Logger is the minimal logging seam; *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// TableSummary describes one staged table.
type TableSummary struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// Result reports what a batch build produced.
type Result struct {
	Dir            string                  `json:"batch_dir"`
	FilesProcessed int                     `json:"files_processed"`
	Tables         map[string]TableSummary `json:"tables"`
	EmptyTables    []string                `json:"empty_tables,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
	Stats          extract.Stats           `json:"stats"`
}

// Builder assembles staged batches from input documents.
type Builder struct {
	cfg       *mapping.Config
	reg       *mapping.Registry
	joiner    *enrich.Joiner
	rebuilder *rebuild.Rebuilder
	log       Logger
}

// New returns a Builder with the standard enrichment and rebuild behavior.
func New(cfg *mapping.Config, reg *mapping.Registry, log Logger) *Builder {
	if log == nil {
		log = nopLogger{}
	}
	return &Builder{
		cfg:       cfg,
		reg:       reg,
		joiner:    enrich.New(enrich.DefaultConfig()),
		rebuilder: rebuild.New(rebuild.DefaultSpecs()),
		log:       log,
	}
}

// Build reads every .json file under inputDir and stages the extracted
// tables under batchDir (a temporary directory when batchDir is empty).
//
// A file that cannot be read or decoded is recorded as a warning and
// skipped; it never fails the batch.
func (b *Builder) Build(ctx context.Context, inputDir, batchDir string) (*Result, error) {
	files, err := ScanInputDir(inputDir)
	if err != nil {
		return nil, err
	}

	ex := extract.New(b.cfg, b.reg)
	result := &Result{Tables: map[string]TableSummary{}}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := ReadDocumentFile(path)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			b.log.Printf("batch: skipping document: %v", err)
			continue
		}
		for _, doc := range docs {
			ex.Resource(doc)
		}
		result.FilesProcessed++
	}

	return b.finish(ex, batchDir, result)
}

// BuildDocuments stages a batch from resources already held in memory, for
// callers that receive bundles over a transport instead of a directory.
func (b *Builder) BuildDocuments(ctx context.Context, docs []map[string]any, batchDir string) (*Result, error) {
	ex := extract.New(b.cfg, b.reg)
	result := &Result{Tables: map[string]TableSummary{}}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ex.Resource(doc)
	}
	if len(docs) > 0 {
		result.FilesProcessed = 1
	}

	return b.finish(ex, batchDir, result)
}

// finish runs enrichment, canonical rebuild and schema enforcement, then
// writes every non-empty table to the staging directory. Empty tables are
// listed in the result instead of being written.
func (b *Builder) finish(ex *extract.Extractor, batchDir string, result *Result) (*Result, error) {
	dir, err := ensureDir(batchDir)
	if err != nil {
		return nil, err
	}
	result.Dir = dir

	tables := ex.Tables()
	b.joiner.Enrich(tables)
	b.rebuilder.Rebuild(tables)

	for _, name := range b.reg.Tables() {
		t := table.Enforce(tables[name], b.reg.Expected(name))
		if t.NumRows() == 0 {
			result.EmptyTables = append(result.EmptyTables, name)
			continue
		}
		if err := table.WriteFile(dir, name, t); err != nil {
			return nil, fmt.Errorf("batch: stage %s: %w", name, err)
		}
		result.Tables[name] = TableSummary{Rows: t.NumRows(), Columns: len(t.Columns)}
		b.log.Printf("batch: staged %s (%d rows, %d columns)", name, t.NumRows(), len(t.Columns))
	}

	result.Stats = ex.Stats()
	return result, nil
}
