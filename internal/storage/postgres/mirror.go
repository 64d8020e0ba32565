package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eds/internal/storage"
)

// Mirror implements storage.Mirror for Postgres using a pgx pool. Table
// replacement runs DELETE + CopyFrom inside one transaction, so readers
// never observe a half-replaced table.
type Mirror struct {
	pool *pgxpool.Pool
}

func init() {
	storage.RegisterMirror("postgres", New)
}

// New creates a Postgres-backed Mirror.
func New(ctx context.Context, cfg storage.Config) (storage.Mirror, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Mirror{pool: pool}, nil
}

// Close closes the connection pool.
func (m *Mirror) Close() { m.pool.Close() }

// EnsureTables creates mirrored tables if they do not exist.
func (m *Mirror) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, err := m.pool.Exec(ctx, createSQL(t)); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceTable swaps the table contents in one transaction.
func (m *Mirror) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+sqlIdent(spec.Name)); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", spec.Name, err)
	}

	if len(rows) > 0 {
		cols := make([]string, len(spec.Columns))
		for i, c := range spec.Columns {
			cols[i] = c.Name
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{spec.Name}, cols, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres: copy into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", spec.Name, err)
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
		return "DOUBLE PRECISION"
	case storage.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
