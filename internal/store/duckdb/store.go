package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlscout/sqlscout/internal/store"
)

// Store executes read-only queries against a DuckDB database file. The
// connection is opened with access_mode=read_only so the engine itself
// rejects any write, regardless of what the SQL gate let through.
type Store struct {
	db   *sql.DB
	path string
}

type Config struct {
	Path         string
	MaxOpenConns int
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("duckdb", cfg.Path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("%w: open duckdb %q: %v", store.ErrUnavailable, cfg.Path, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping duckdb %q: %v", store.ErrUnavailable, cfg.Path, err)
	}
	return &Store{db: db, path: cfg.Path}, nil
}

func (s *Store) Introspect(ctx context.Context, sampleRows int) ([]store.Table, error) {
	names, err := s.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", store.ErrUnavailable, err)
	}

	tables := make([]store.Table, 0, len(names))
	for _, name := range names {
		columns, err := s.listColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: describe table %q: %v", store.ErrUnavailable, name, err)
		}
		table := store.Table{Name: name, Columns: columns}
		if sampleRows > 0 {
			rows, err := s.sample(ctx, name, sampleRows)
			if err != nil {
				return nil, fmt.Errorf("%w: sample table %q: %v", store.ErrUnavailable, name, err)
			}
			table.SampleRows = rows
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (s *Store) listTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) listColumns(ctx context.Context, table string) ([]store.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'main' AND table_name = ?
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []store.Column
	for rows.Next() {
		var column store.Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (s *Store) sample(ctx context.Context, table string, limit int) ([][]any, error) {
	result, err := s.query(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT "+strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (s *Store) Execute(ctx context.Context, sqlText string, rowLimit int) (store.Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return store.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	limited := sqlText
	if rowLimit > 0 {
		// Fetch one extra row so truncation can be reported instead of
		// silently clipping at exactly the ceiling.
		limited = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit+1)
	}

	result, err := s.query(ctx, limited)
	if err != nil {
		return store.Result{}, err
	}
	if rowLimit > 0 && len(result.Rows) > rowLimit {
		result.Rows = result.Rows[:rowLimit]
		result.Truncated = true
	}
	result.RowCount = len(result.Rows)
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Store) query(ctx context.Context, sqlText string) (store.Result, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return store.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return store.Result{}, fmt.Errorf("query columns: %w", err)
	}

	collected := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return store.Result{}, fmt.Errorf("scan row: %w", err)
		}
		collected = append(collected, store.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return store.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return store.Result{Columns: columns, Rows: collected}, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
