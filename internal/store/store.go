// Package store defines the boundary to the relational store the service
// answers questions against. Implementations must open their connections in a
// read-only mode so that the store itself refuses writes, independently of the
// SQL gate upstream.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the store cannot be opened or reached.
// Nothing in the pipeline can proceed without a schema, so callers treat it
// as fatal for the request.
var ErrUnavailable = errors.New("store unavailable")

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name       string   `json:"table_name"`
	Columns    []Column `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
}

type Store interface {
	// Introspect enumerates all user tables with their columns and up to
	// sampleRows example rows per table, in a stable order.
	Introspect(ctx context.Context, sampleRows int) ([]Table, error)

	// Execute runs one read-only statement. rowLimit caps the returned rows;
	// when the underlying result set exceeds it the result is truncated and
	// flagged, never failed.
	Execute(ctx context.Context, sql string, rowLimit int) (Result, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// NormalizeValues converts driver-specific scan values into JSON-friendly
// ones. []byte columns come back as strings so responses stay readable.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
