// Package explain derives a short plain-language summary of a validated
// query. Explanation is best-effort: when the generation backend is not
// configured or fails, a deterministic clause template answers instead, so
// an explanation can never fail the request.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/nl2sql"
)

type Explainer struct {
	generator nl2sql.Generator
}

// New builds an Explainer. generator may be nil, in which case only the
// template path is used.
func New(generator nl2sql.Generator) *Explainer {
	return &Explainer{generator: generator}
}

// Explain returns a summary of sqlText and whether it came from the backend.
func (e *Explainer) Explain(ctx context.Context, sqlText string) (string, bool) {
	if e.generator != nil {
		result, err := e.generator.Generate(ctx, nl2sql.BuildExplainPrompt(sqlText))
		if err == nil {
			if text := strings.TrimSpace(result.Text); text != "" {
				return text, true
			}
		}
	}
	return Template(sqlText), false
}

// Template renders the deterministic fallback, keyed on the query's clauses.
func Template(sqlText string) string {
	words := fields(sqlText)
	tables := tableNames(words)

	var b strings.Builder
	b.WriteString("Retrieves rows")
	switch len(tables) {
	case 0:
	case 1:
		fmt.Fprintf(&b, " from %s", tables[0])
	default:
		fmt.Fprintf(&b, " from %s joined with %s", tables[0], strings.Join(tables[1:], ", "))
	}
	if containsWord(words, "WHERE") {
		b.WriteString(", filtered by the given conditions")
	}
	if containsSequence(words, "GROUP", "BY") {
		b.WriteString(", grouped and aggregated")
	}
	if containsSequence(words, "ORDER", "BY") {
		b.WriteString(", sorted")
	}
	if limit, ok := limitValue(words); ok {
		fmt.Fprintf(&b, ", limited to %s rows", limit)
	}
	b.WriteString(".")
	return b.String()
}

func fields(sqlText string) []string {
	return strings.Fields(sqlText)
}

// tableNames collects the identifiers following FROM and JOIN, skipping
// subqueries.
func tableNames(words []string) []string {
	var tables []string
	seen := map[string]struct{}{}
	for i, word := range words {
		upper := strings.ToUpper(word)
		if upper != "FROM" && upper != "JOIN" {
			continue
		}
		if i+1 >= len(words) {
			continue
		}
		name := strings.Trim(words[i+1], `(),;"`)
		if name == "" || strings.HasPrefix(words[i+1], "(") {
			continue
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

func containsWord(words []string, target string) bool {
	for _, word := range words {
		if strings.EqualFold(word, target) {
			return true
		}
	}
	return false
}

func containsSequence(words []string, first, second string) bool {
	for i := 0; i+1 < len(words); i++ {
		if strings.EqualFold(words[i], first) && strings.EqualFold(words[i+1], second) {
			return true
		}
	}
	return false
}

func limitValue(words []string) (string, bool) {
	for i, word := range words {
		if strings.EqualFold(word, "LIMIT") && i+1 < len(words) {
			value := strings.Trim(words[i+1], ",;)")
			if value != "" {
				return value, true
			}
		}
	}
	return "", false
}
