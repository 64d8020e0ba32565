// Package storage mirrors the file-based warehouse into a SQL database for
// ad-hoc querying. The mirror is strictly derived data: the file store stays
// the source of truth, and a mirror failure never fails a run.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config selects a mirror backend.
//
// Kind must match a registered backend kind ("postgres", "sqlite", "mssql");
// DSN is passed through to the backend factory, validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Column kinds understood by every backend. Backends map them to their own
// column types.
const (
	KindText   = "text"
	KindNumber = "number"
	KindBool   = "bool"
)

// ColumnSpec is one mirrored column.
type ColumnSpec struct {
	Name string
	Kind string
}

// TableSpec is the shape of one mirrored table.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// Mirror is a backend-agnostic interface for mirroring warehouse tables.
// Each backend implements the semantics in its own idiomatic way (pgx
// CopyFrom, chunked placeholder inserts, etc).
type Mirror interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureTables creates the mirrored tables if they do not exist.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// ReplaceTable swaps a table's contents for the given rows in one
	// transaction. Row cells are nil for null, string, float64 or bool.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any) error
}

type mirrorFactory func(ctx context.Context, cfg Config) (Mirror, error)

var (
	mirrorMu        sync.RWMutex
	mirrorFactories = map[string]mirrorFactory{}
)

// RegisterMirror registers a mirror backend under a kind. Backend packages
// call it from init(); registering the same kind twice panics to fail fast
// on ambiguous backend selection.
func RegisterMirror(kind string, f mirrorFactory) {
	mirrorMu.Lock()
	defer mirrorMu.Unlock()

	if kind == "" {
		panic("storage: RegisterMirror called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterMirror called with nil factory")
	}
	if _, exists := mirrorFactories[kind]; exists {
		panic(fmt.Sprintf("storage: mirror factory already registered for kind=%q", kind))
	}

	mirrorFactories[kind] = f
}

// NewMirror constructs a Mirror using the registered backend factory.
func NewMirror(ctx context.Context, cfg Config) (Mirror, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing mirror kind")
	}

	mirrorMu.RLock()
	f := mirrorFactories[cfg.Kind]
	mirrorMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported mirror kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
