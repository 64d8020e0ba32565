package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Ext is the extension of every table file in a batch or store directory.
const Ext = ".table.json"

// FileName returns the file name for a table inside a directory.
func FileName(table string) string { return table + Ext }

// tableFile is the on-disk shape: an explicit column list plus row tuples of
// native JSON scalars. Using a document (rather than JSONL) keeps column
// order authoritative and makes partial writes detectable.
type tableFile struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// ReadFile loads a table file. A missing file returns (nil, nil) so callers
// can treat "absent" distinctly from "present with zero rows".
func ReadFile(dir, table string) (*Table, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName(table)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}

	var tf tableFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse table %s: %w", table, err)
	}

	t := &Table{Columns: tf.Columns, Rows: tf.Rows}
	for r := range t.Rows {
		if len(t.Rows[r]) > len(t.Columns) {
			return nil, fmt.Errorf("parse table %s: row %d wider than columns", table, r)
		}
	}
	return t, nil
}

// WriteFile persists a table atomically: it writes a temp file in the target
// directory and renames it over the destination. Readers never observe a
// half-written table, and a crash leaves the previous file intact.
func WriteFile(dir, table string, t *Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write table %s: %w", table, err)
	}

	b, err := json.Marshal(tableFile{Columns: t.Columns, Rows: t.Rows})
	if err != nil {
		return fmt.Errorf("encode table %s: %w", table, err)
	}

	tmp, err := os.CreateTemp(dir, "."+table+".*")
	if err != nil {
		return fmt.Errorf("write table %s: %w", table, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write table %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write table %s: %w", table, err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, FileName(table))); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write table %s: %w", table, err)
	}
	return nil
}

// ListTables returns the table names present in a directory, sorted by the
// directory listing order of os.ReadDir (lexicographic).
func ListTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tables: %w", err)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(Ext) || name[len(name)-len(Ext):] != Ext {
			continue
		}
		out = append(out, name[:len(name)-len(Ext)])
	}
	return out, nil
}
