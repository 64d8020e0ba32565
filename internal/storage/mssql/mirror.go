package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"eds/internal/storage"
)

// Mirror implements storage.Mirror for Microsoft SQL Server.
//
// SQL Server caps a statement at 2100 bound parameters, so replacement
// inserts are chunked accordingly.
type Mirror struct {
	db *sql.DB
}

func init() {
	storage.RegisterMirror("mssql", New)
}

// New creates a SQL Server-backed Mirror and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Mirror, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
		q := fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL %s",
			strings.ReplaceAll(t.Name, "'", "''"),
			createSQL(t),
		)
		if _, err := m.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceTable swaps the table contents in one transaction.
func (m *Mirror) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(spec.Name)); err != nil {
		return fmt.Errorf("mssql: clear %s: %w", spec.Name, err)
	}

	if err := insertChunked(ctx, tx, spec, rows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit %s: %w", spec.Name, err)
	}
	return nil
}

func insertChunked(ctx context.Context, tx *sql.Tx, spec storage.TableSpec, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	ncols := len(spec.Columns)
	chunk := 2000 / ncols
	if chunk < 1 {
		chunk = 1
	}

	cols := make([]string, ncols)
	for i, c := range spec.Columns {
		cols[i] = sqlIdent(c.Name)
	}
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
		p := 1
		for i, row := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for j := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "@p%d", p)
				p++
			}
			b.WriteString(")")
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("mssql: insert into %s: %w", spec.Name, err)
		}
	}
	return nil
}

func createSQL(t storage.TableSpec) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
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
		return "FLOAT"
	case storage.KindBool:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

func sqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
