// Package merge appends new rows from a staged batch into the warehouse
// store. The store is append-only: rows whose unique key already exists in
// the store are dropped, everything else is appended, and nothing already
// stored is ever modified.
package merge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/xxh3"

	"eds/internal/mapping"
	"eds/internal/table"
)

// internalTables are batch-local working tables that never reach the store.
var internalTables = map[string]bool{"patient": true}

// keySep is the canonical key separator; it cannot appear in cell text that
// came from JSON, so joined keys are collision-free at the string level.
const keySep = "\x1f"

// Logger is the minimal logging seam; *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Record is the per-table merge arithmetic. AfterRows is always
// BeforeRows + AddedRows.
type Record struct {
	Table        string `json:"table"`
	BeforeRows   int    `json:"before_rows"`
	IncomingRows int    `json:"incoming_rows"`
	AddedRows    int    `json:"added_rows"`
	AfterRows    int    `json:"after_rows"`
}

// Error reports a merge that failed partway through. Records holds the
// tables already merged; the store reflects them, the failed table and
// everything after it are untouched.
type Error struct {
	Table   string
	Records []Record
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("merge: table %s: %v (%d tables merged before failure)", e.Table, e.Err, len(e.Records))
}

func (e *Error) Unwrap() error { return e.Err }

// Engine merges staged batches into a store directory.
type Engine struct {
	keys mapping.UniqueKeys
	log  Logger
}

// New returns an Engine deduplicating on the given per-table unique keys.
// Tables without an entry are merged append-only.
func New(keys mapping.UniqueKeys, log Logger) *Engine {
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{keys: keys, log: log}
}

// Merge folds every named table from batchDir into storeDir, holding the
// store lock for the whole run. Each table file is replaced atomically, so
// a failure leaves every table either fully merged or untouched.
func (e *Engine) Merge(ctx context.Context, storeDir, batchDir string, tables []string) ([]Record, error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("merge: create store %s: %w", storeDir, err)
	}
	lock, err := acquireLock(storeDir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	var records []Record
	for _, name := range tables {
		if internalTables[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return records, &Error{Table: name, Records: records, Err: err}
		}
		rec, err := e.mergeTable(storeDir, batchDir, name)
		if err != nil {
			return records, &Error{Table: name, Records: records, Err: err}
		}
		records = append(records, rec)
		e.log.Printf("merge: %s before=%d incoming=%d added=%d after=%d",
			rec.Table, rec.BeforeRows, rec.IncomingRows, rec.AddedRows, rec.AfterRows)
	}
	return records, nil
}

func (e *Engine) mergeTable(storeDir, batchDir, name string) (Record, error) {
	rec := Record{Table: name}

	incoming, err := table.ReadFile(batchDir, name)
	if err != nil {
		return rec, err
	}
	base, err := table.ReadFile(storeDir, name)
	if err != nil {
		return rec, err
	}
	rec.BeforeRows = base.NumRows()
	rec.AfterRows = rec.BeforeRows

	// Absent from the batch: nothing to do, report the store as-is.
	if incoming == nil {
		return rec, nil
	}
	rec.IncomingRows = incoming.NumRows()

	if base == nil {
		if err := table.WriteFile(storeDir, name, incoming); err != nil {
			return rec, err
		}
		rec.AddedRows = rec.IncomingRows
		rec.AfterRows = rec.IncomingRows
		return rec, nil
	}

	base, incoming = table.Align(base, incoming)
	added := e.appendNew(base, incoming, name)
	// Written back even when nothing was appended: alignment may have grown
	// the column union or cast a clashing column to text.
	if err := table.WriteFile(storeDir, name, base); err != nil {
		return rec, err
	}
	rec.AddedRows = added
	rec.AfterRows = rec.BeforeRows + added
	return rec, nil
}

// appendNew appends onto base every incoming row whose unique key is not
// already stored, returning the appended count. The seen set is built from
// the store only: duplicates inside one batch are kept, matching the
// append-only contract that a batch is taken as delivered.
func (e *Engine) appendNew(base, incoming *table.Table, name string) int {
	keyIdx := e.keyIndexes(base, name)
	if keyIdx == nil {
		for r := range incoming.Rows {
			base.AppendRow(incoming.Rows[r])
		}
		return incoming.NumRows()
	}

	seen := make(map[uint64]struct{}, base.NumRows())
	for r := range base.Rows {
		seen[rowKeyHash(base, r, keyIdx)] = struct{}{}
	}

	added := 0
	for r := range incoming.Rows {
		if _, dup := seen[rowKeyHash(incoming, r, keyIdx)]; dup {
			continue
		}
		base.AppendRow(incoming.Rows[r])
		added++
	}
	return added
}

// keyIndexes resolves the table's unique key columns against the aligned
// schema. A table with no declared key, or a key column missing from both
// sides, degrades to append-only.
func (e *Engine) keyIndexes(t *table.Table, name string) []int {
	cols := e.keys[name]
	if len(cols) == 0 {
		return nil
	}
	idx := make([]int, 0, len(cols))
	for _, c := range cols {
		i := t.ColumnIndex(c)
		if i < 0 {
			e.log.Printf("merge: %s: key column %s missing, falling back to append-only", name, c)
			return nil
		}
		idx = append(idx, i)
	}
	return idx
}

// rowKeyHash hashes the canonical key string of one row. Null key cells
// canonicalize to the empty string so a null and a missing cell compare
// equal, as the store's text-typed key columns require.
func rowKeyHash(t *table.Table, row int, keyIdx []int) uint64 {
	var sb strings.Builder
	for n, i := range keyIdx {
		if n > 0 {
			sb.WriteString(keySep)
		}
		v := t.Cell(row, i)
		if !v.IsNull() {
			sb.WriteString(v.String())
		}
	}
	return xxh3.HashString(sb.String())
}
