// Package export encodes query results for download. CSV is the lowest
// common denominator; Parquet keeps column types for downstream tools.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlscout/sqlscout/internal/store"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ContentType returns the MIME type served for a format, or false when the
// format is unknown.
func ContentType(format string) (string, bool) {
	switch format {
	case FormatCSV:
		return "text/csv", true
	case FormatParquet:
		return "application/vnd.apache.parquet", true
	default:
		return "", false
	}
}

// Encode writes result in the given format to w.
func Encode(w io.Writer, format string, result store.Result) error {
	switch format {
	case FormatCSV:
		return EncodeCSV(w, result)
	case FormatParquet:
		return EncodeParquet(w, result)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func EncodeCSV(w io.Writer, result store.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		if len(row) != len(result.Columns) {
			return fmt.Errorf("row has %d values, want %d", len(row), len(result.Columns))
		}
		for i, value := range row {
			record[i] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// EncodeParquet infers a column type from the first non-nil value seen in
// each column; columns that never carry a value are written as strings.
func EncodeParquet(w io.Writer, result store.Result) error {
	if len(result.Columns) == 0 {
		return fmt.Errorf("result has no columns")
	}

	fields := make(parquet.Group, len(result.Columns))
	for i, column := range result.Columns {
		fields[column] = parquet.Optional(leafNode(firstValue(result.Rows, i)))
	}
	schema := parquet.NewSchema("result", fields)

	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) != len(result.Columns) {
			return fmt.Errorf("row has %d values, want %d", len(row), len(result.Columns))
		}
		record := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			record[column] = parquetValue(row[i], fields[column])
		}
		rows = append(rows, record)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]any](buf, schema)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write parquet output: %w", err)
	}
	return nil
}

func firstValue(rows [][]any, index int) any {
	for _, row := range rows {
		if index < len(row) && row[index] != nil {
			return row[index]
		}
	}
	return nil
}

func leafNode(value any) parquet.Node {
	switch value.(type) {
	case int, int32, int64:
		return parquet.Int(64)
	case float32, float64:
		return parquet.Leaf(parquet.DoubleType)
	case bool:
		return parquet.Leaf(parquet.BooleanType)
	case time.Time:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

// parquetValue coerces a scanned value to match the node chosen for its
// column. Mixed-type columns degrade to the first value's type.
func parquetValue(value any, node parquet.Node) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case float32:
		return float64(typed)
	case []byte:
		return string(typed)
	case int64, float64, bool, time.Time, string:
		return typed
	default:
		return formatValue(typed)
	}
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}
