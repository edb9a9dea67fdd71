package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sqlscout/sqlscout/internal/store"
)

// Store executes read-only queries against a Postgres database. Every session
// runs with default_transaction_read_only=on, so the server refuses writes
// even if the SQL gate upstream were bypassed.
type Store struct {
	db *sql.DB
}

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store dsn is required")
	}

	dsn, err := forceReadOnly(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", store.ErrUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", store.ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests; the handle is assumed to
// already enforce read-only sessions.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
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
			result, err := s.query(ctx, "SELECT * FROM "+quoteIdent(name)+" LIMIT "+strconv.Itoa(sampleRows))
			if err != nil {
				return nil, fmt.Errorf("%w: sample table %q: %v", store.ErrUnavailable, name, err)
			}
			table.SampleRows = result.Rows
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (s *Store) listTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
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
WHERE table_schema = 'public' AND table_name = $1
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

func (s *Store) Execute(ctx context.Context, sqlText string, rowLimit int) (store.Result, error) {
	sqlText = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sqlText), ";"))
	if sqlText == "" {
		return store.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	limited := sqlText
	if rowLimit > 0 {
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

func forceReadOnly(dsn string) (string, error) {
	if strings.Contains(dsn, "://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		values := parsed.Query()
		values.Set("default_transaction_read_only", "on")
		parsed.RawQuery = values.Encode()
		return parsed.String(), nil
	}
	// Keyword/value DSN form.
	if strings.Contains(dsn, "default_transaction_read_only") {
		return dsn, nil
	}
	return dsn + " default_transaction_read_only=on", nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
