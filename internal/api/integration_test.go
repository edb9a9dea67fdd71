package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlscout/sqlscout/internal/explain"
	"github.com/sqlscout/sqlscout/internal/nl2sql"
	"github.com/sqlscout/sqlscout/internal/pipeline"
	"github.com/sqlscout/sqlscout/internal/schema"
	duckstore "github.com/sqlscout/sqlscout/internal/store/duckdb"
)

// The integration test wires a real DuckDB file, the schema cache, the gate
// and the pipeline behind the HTTP handler, with only the generation backend
// replaced by a local HTTP stub.

func seedIntegrationDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integration.db")
	db, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer func() { _ = db.Close() }()

	statements := []string{
		`CREATE TABLE order_items (product_name VARCHAR, quantity INTEGER, unit_price DOUBLE)`,
		`INSERT INTO order_items VALUES
			('Laptop Pro', 2, 1199.99),
			('Mouse', 10, 24.99),
			('Laptop Pro', 1, 1199.99)`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
	}
	return path
}

func stubOllama(t *testing.T, sqlText string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": sqlText})
	}))
	t.Cleanup(server.Close)
	return server
}

func newIntegrationHandler(t *testing.T, backendSQL string) http.Handler {
	t.Helper()

	st, err := duckstore.Open(context.Background(), duckstore.Config{Path: seedIntegrationDB(t)})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	backend := stubOllama(t, backendSQL)
	generator, err := nl2sql.NewOllamaGenerator(nl2sql.Config{
		BaseURL: backend.URL,
		Model:   "codellama:7b",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	cache := schema.NewCache(st, 3, time.Minute)
	pipe := pipeline.New(cache, generator, st, explain.New(nil), nil, pipeline.Options{
		RowLimit:       100,
		ExecuteTimeout: 5 * time.Second,
	})

	return NewHandler(testConfig(t), Dependencies{
		Pipeline:  pipe,
		Schema:    cache,
		Readiness: st.HealthCheck,
	})
}

func TestIntegrationQuestionToRows(t *testing.T) {
	h := newIntegrationHandler(t, "```sql\nSELECT product_name, SUM(quantity * unit_price) AS revenue FROM order_items GROUP BY product_name ORDER BY revenue DESC\n```")

	rr := postQuery(t, h, `{"question":"revenue per product"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	var body queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.RowCount != 2 {
		t.Fatalf("row_count = %d, body=%s", body.RowCount, rr.Body.String())
	}
	if body.Rows[0][0] != "Laptop Pro" {
		t.Fatalf("first row = %#v", body.Rows[0])
	}
	if body.ExplanationSource != "template" {
		t.Fatalf("explanation_source = %q", body.ExplanationSource)
	}
	if !strings.Contains(body.Explanation, "order_items") {
		t.Fatalf("explanation = %q", body.Explanation)
	}
}

func TestIntegrationUnsafeStatementNeverExecutes(t *testing.T) {
	h := newIntegrationHandler(t, "DELETE FROM order_items")

	rr := postQuery(t, h, `{"question":"clear the table"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	verify := postQuery(t, newIntegrationHandler(t, "SELECT COUNT(*) AS n FROM order_items"), `{"question":"how many rows"}`)
	var body queryResponse
	if err := json.Unmarshal(verify.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Rows) != 1 {
		t.Fatalf("rows = %#v", body.Rows)
	}
}

func TestIntegrationSchemaEndpointServesSnapshot(t *testing.T) {
	h := newIntegrationHandler(t, "SELECT 1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body schemaResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Tables) != 1 || body.Tables[0].Name != "order_items" {
		t.Fatalf("tables = %#v", body.Tables)
	}
	if !strings.Contains(body.SchemaText, "Table: order_items") {
		t.Fatalf("schema_text = %q", body.SchemaText)
	}
}

func TestIntegrationReadiness(t *testing.T) {
	h := newIntegrationHandler(t, "SELECT 1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}
