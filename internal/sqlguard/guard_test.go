package sqlguard

import (
	"errors"
	"strings"
	"testing"
)

func mustReject(t *testing.T, rawText string) *RejectionError {
	t.Helper()
	_, err := Validate(rawText)
	if err == nil {
		t.Fatalf("Validate(%q) accepted, want rejection", rawText)
	}
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("err = %T, want *RejectionError", err)
	}
	return rejection
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	vq, err := Validate("SELECT product_name, SUM(quantity * unit_price) AS revenue FROM orders GROUP BY product_name ORDER BY revenue DESC LIMIT 5;")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !strings.HasPrefix(vq.SQL(), "SELECT") {
		t.Fatalf("SQL() = %q", vq.SQL())
	}
	if strings.HasSuffix(vq.SQL(), ";") {
		t.Fatalf("terminator not stripped: %q", vq.SQL())
	}
	if vq.Kind() != "select" {
		t.Fatalf("Kind() = %q", vq.Kind())
	}
}

func TestValidateAcceptsCTE(t *testing.T) {
	_, err := Validate("WITH totals AS (SELECT customer_id, COUNT(*) AS n FROM orders GROUP BY customer_id) SELECT * FROM totals")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateExtractsFromMarkdownFence(t *testing.T) {
	raw := "Here is the query you asked for:\n\n```sql\nSELECT *\nFROM orders\nLIMIT 10;\n```\nLet me know if you need anything else."
	vq, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if vq.SQL() != "SELECT * FROM orders LIMIT 10" {
		t.Fatalf("SQL() = %q", vq.SQL())
	}
}

func TestValidateExtractsFromSurroundingProse(t *testing.T) {
	raw := "Sure! The following statement answers that.\nSELECT country, COUNT(*) AS customers\nFROM customers\nGROUP BY country\n\nThis groups customers by country."
	vq, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.Contains(vq.SQL(), "groups customers") {
		t.Fatalf("prose leaked into SQL: %q", vq.SQL())
	}
}

func TestValidateRejectsDropStatement(t *testing.T) {
	rejection := mustReject(t, "DROP TABLE orders;")
	if rejection.Keyword != "DROP" {
		t.Fatalf("Keyword = %q, want DROP", rejection.Keyword)
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	rejection := mustReject(t, "SELECT * FROM orders; DELETE FROM orders;")
	if !strings.Contains(rejection.Reason, "multiple statements") {
		t.Fatalf("Reason = %q", rejection.Reason)
	}
}

func TestValidateRejectsNonSelectLeadingKeyword(t *testing.T) {
	for _, raw := range []string{
		"insert into orders values (1)",
		"Update orders SET status = 'done'",
		"EXPLAIN SELECT * FROM orders",
	} {
		rejection := mustReject(t, raw)
		if rejection.Reason == "" {
			t.Fatalf("empty reason for %q", raw)
		}
	}
}

func TestValidateRejectsDenylistedKeywordAfterSelect(t *testing.T) {
	cases := map[string]string{
		"SELECT 1; DROP TABLE orders":                    "DROP",
		"SELECT * FROM orders WHERE id IN (DELETE FROM orders RETURNING id)": "DELETE",
		"SELECT 1 UNION SELECT 2 FROM pragma_database_list(); PRAGMA writable_schema=1": "PRAGMA",
		"SELECT set_config('x', 'y', false) SET x = 1":   "SET",
		"SELECT 1 INTO COPY":                             "COPY",
	}
	for raw, keyword := range cases {
		rejection := mustReject(t, raw)
		if rejection.Keyword != keyword && !strings.Contains(rejection.Reason, "multiple statements") {
			t.Fatalf("Validate(%q): keyword = %q, want %q (reason %q)", raw, rejection.Keyword, keyword, rejection.Reason)
		}
	}
}

func TestValidateAllowsKeywordsInsideStringLiterals(t *testing.T) {
	vq, err := Validate("SELECT * FROM orders WHERE status = 'DROP SHIPPED; DELETE LATER'")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !strings.Contains(vq.SQL(), "DROP SHIPPED") {
		t.Fatalf("SQL() = %q", vq.SQL())
	}
}

func TestValidateAllowsKeywordsInsideQuotedIdentifiers(t *testing.T) {
	if _, err := Validate(`SELECT "drop count" FROM stats`); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateStripsCommentsBeforeScanning(t *testing.T) {
	vq, err := Validate("SELECT 1 -- just one\nFROM orders")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.Contains(vq.SQL(), "--") {
		t.Fatalf("comment survived: %q", vq.SQL())
	}

	// Keywords cannot hide inside comments, and a separator inside a comment
	// is not a statement boundary.
	if _, err := Validate("SELECT 1 /* ; DROP TABLE orders */ FROM orders"); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	mustReject(t, "SELECT 1 /* unterminated")
}

func TestValidateKeepsTailAfterInlineComment(t *testing.T) {
	vq, err := Validate("SELECT name FROM users WHERE active = 1 -- only active\nORDER BY name LIMIT 5")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if vq.SQL() != "SELECT name FROM users WHERE active = 1 ORDER BY name LIMIT 5" {
		t.Fatalf("SQL() = %q", vq.SQL())
	}
}

func TestValidatePreservesWhitespaceInsideLiterals(t *testing.T) {
	vq, err := Validate("SELECT *\nFROM   orders\nWHERE note = 'two  spaces'")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if vq.SQL() != "SELECT * FROM orders WHERE note = 'two  spaces'" {
		t.Fatalf("SQL() = %q", vq.SQL())
	}
}

func TestValidateRejectsUnterminatedLiteral(t *testing.T) {
	rejection := mustReject(t, "SELECT * FROM orders WHERE status = 'open")
	if !strings.Contains(rejection.Reason, "unterminated") {
		t.Fatalf("Reason = %q", rejection.Reason)
	}
}

func TestValidateRejectsPureProse(t *testing.T) {
	rejection := mustReject(t, "I am sorry, I cannot answer that question.")
	if rejection.Reason == "" {
		t.Fatal("expected a reason")
	}
}

func TestValidateRejectsEmptyInput(t *testing.T) {
	mustReject(t, "")
	mustReject(t, "```sql\n```")
}

func TestExtractPrefersFirstStatement(t *testing.T) {
	got := Extract("SELECT 1\n\nSELECT 2")
	if got != "SELECT 1" {
		t.Fatalf("Extract() = %q", got)
	}
}
