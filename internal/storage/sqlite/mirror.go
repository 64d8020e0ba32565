package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"eds/internal/storage"
)

// Mirror implements storage.Mirror for SQLite.
//
// SQLite column affinity is loose, so number and bool kinds map to REAL and
// INTEGER for readable queries; values round-trip regardless.
type Mirror struct {
	db *sql.DB
}

func init() {
	storage.RegisterMirror("sqlite", New)
}

// New creates a SQLite-backed Mirror.
func New(ctx context.Context, cfg storage.Config) (storage.Mirror, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Mirror{db: db}, nil
}

// Close closes the database handle.
func (m *Mirror) Close() { _ = m.db.Close() }

// EnsureTables creates mirrored tables if they do not exist.
func (m *Mirror) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, err := m.db.ExecContext(ctx, createSQL(t)); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceTable swaps the table contents in one transaction. Inserts are
// chunked to stay under SQLite's bound-parameter limit.
func (m *Mirror) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(spec.Name)); err != nil {
		return fmt.Errorf("sqlite: clear %s: %w", spec.Name, err)
	}

	if err := insertChunked(ctx, tx, spec, rows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit %s: %w", spec.Name, err)
	}
	return nil
}

func insertChunked(ctx context.Context, tx *sql.Tx, spec storage.TableSpec, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	ncols := len(spec.Columns)
	// Keep well below the historical 999-variable limit.
	chunk := 900 / ncols
	if chunk < 1 {
		chunk = 1
	}

	cols := make([]string, ncols)
	for i, c := range spec.Columns {
		cols[i] = sqlIdent(c.Name)
	}
	rowPH := "(" + strings.TrimRight(strings.Repeat("?,", ncols), ",") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", sqlIdent(spec.Name), strings.Join(cols, ", "))

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, len(batch)*ncols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(rowPH)
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("sqlite: insert into %s: %w", spec.Name, err)
		}
	}
	return nil
}

func createSQL(t storage.TableSpec) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(columnType(c.Kind))
	}
	b.WriteString(")")
	return b.String()
}

func columnType(kind string) string {
	switch kind {
	case storage.KindNumber:
		return "REAL"
	case storage.KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
