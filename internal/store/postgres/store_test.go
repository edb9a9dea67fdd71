package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func assertExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestIntrospectBuildsOrderedSchema(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`)).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("product_name", "text").
			AddRow("quantity", "integer"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"product_name", "quantity"}).
			AddRow("widget", int64(2)))

	tables, err := s.Introspect(context.Background(), 2)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("tables = %d", len(tables))
	}
	if tables[0].Columns[1].Type != "integer" {
		t.Fatalf("column type = %q", tables[0].Columns[1].Type)
	}
	if len(tables[0].SampleRows) != 1 {
		t.Fatalf("sample rows = %d", len(tables[0].SampleRows))
	}
	assertExpectations(t, mock)
}

func TestIntrospectSurfacesStoreUnavailable(t *testing.T) {
	s, mock := newStoreMock(t)
	mock.ExpectQuery("information_schema.tables").WillReturnError(errors.New("connection refused"))

	_, err := s.Introspect(context.Background(), 0)
	if err == nil || !strings.Contains(err.Error(), "store unavailable") {
		t.Fatalf("err = %v", err)
	}
	assertExpectations(t, mock)
}

func TestExecuteWrapsQueryWithRowCeiling(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM (SELECT product_name FROM orders) AS q LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"product_name"}).
			AddRow("a").AddRow("b").AddRow("c"))

	result, err := s.Execute(context.Background(), "SELECT product_name FROM orders;", 2)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if !result.Truncated {
		t.Fatal("expected truncated result")
	}
	if result.Rows[0][0] != "a" {
		t.Fatalf("first row = %#v", result.Rows[0])
	}
	assertExpectations(t, mock)
}

func TestExecuteNormalizesByteColumns(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM (SELECT email FROM customers) AS q LIMIT 11`)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow([]byte("a@example.com")))

	result, err := s.Execute(context.Background(), "SELECT email FROM customers", 10)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != "a@example.com" {
		t.Fatalf("value = %#v", result.Rows[0][0])
	}
	assertExpectations(t, mock)
}

func TestForceReadOnlyURLAndKeywordForms(t *testing.T) {
	url, err := forceReadOnly("postgres://u:p@localhost:5432/db?sslmode=disable")
	if err != nil {
		t.Fatalf("forceReadOnly() error = %v", err)
	}
	if !strings.Contains(url, "default_transaction_read_only=on") {
		t.Fatalf("url = %q", url)
	}

	kv, err := forceReadOnly("host=localhost dbname=db")
	if err != nil {
		t.Fatalf("forceReadOnly() error = %v", err)
	}
	if !strings.HasSuffix(kv, "default_transaction_read_only=on") {
		t.Fatalf("dsn = %q", kv)
	}
}
