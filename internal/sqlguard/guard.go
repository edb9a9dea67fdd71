// Package sqlguard isolates the SQL statement from generated text and
// enforces the read-only policy. It is a syntactic gate, not a parser: the
// statement is tokenized just enough to tell string literals, quoted
// identifiers and comments apart from top-level keywords, and anything it
// cannot classify is rejected. The read-only store connection backs this gate
// up; neither layer trusts the other.
package sqlguard

import (
	"fmt"
	"strings"
)

// ValidatedQuery is a statement that passed the gate. It is the only thing
// the executor accepts, and it can only be built here.
type ValidatedQuery struct {
	sql string
}

func (q ValidatedQuery) SQL() string { return q.sql }

// Kind reports the statement kind. The gate only ever admits read
// statements, so this is always "select" (WITH...SELECT included).
func (q ValidatedQuery) Kind() string { return "select" }

// RejectionError explains why generated text was refused. The offending SQL
// is carried along so callers can show it to the user.
type RejectionError struct {
	Reason  string
	Keyword string
	SQL     string
}

func (e *RejectionError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("unsafe query: %s (%s)", e.Reason, e.Keyword)
	}
	return "unsafe query: " + e.Reason
}

var denylist = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"DROP":     {},
	"ALTER":    {},
	"CREATE":   {},
	"ATTACH":   {},
	"PRAGMA":   {},
	"REPLACE":  {},
	"TRUNCATE": {},
	// Store-changing verbs reachable from DuckDB SQL.
	"COPY":    {},
	"EXPORT":  {},
	"INSTALL": {},
	"LOAD":    {},
	"SET":     {},
}

// Validate extracts the first SQL-looking statement from rawText and runs it
// through the read-only gate, returning a ValidatedQuery or a
// *RejectionError.
func Validate(rawText string) (ValidatedQuery, error) {
	candidate := Extract(rawText)
	if candidate == "" {
		return ValidatedQuery{}, &RejectionError{Reason: "no SQL statement found in generated text"}
	}

	stripped, ok := stripComments(candidate)
	if !ok {
		return ValidatedQuery{}, &RejectionError{Reason: "unterminated comment or string literal", SQL: candidate}
	}
	normalized := normalizeWhitespace(stripped)
	for strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}
	if normalized == "" {
		return ValidatedQuery{}, &RejectionError{Reason: "statement is empty after normalization", SQL: candidate}
	}

	tokens, ok := topLevelTokens(normalized)
	if !ok {
		return ValidatedQuery{}, &RejectionError{Reason: "unterminated string literal", SQL: normalized}
	}
	if tokens.moreStatements {
		return ValidatedQuery{}, &RejectionError{Reason: "multiple statements are not allowed", SQL: normalized}
	}
	if len(tokens.words) == 0 {
		return ValidatedQuery{}, &RejectionError{Reason: "statement has no leading keyword", SQL: normalized}
	}
	if leading := tokens.words[0]; leading != "SELECT" && leading != "WITH" {
		return ValidatedQuery{}, &RejectionError{
			Reason:  "only SELECT statements are allowed",
			Keyword: leading,
			SQL:     normalized,
		}
	}
	for _, word := range tokens.words {
		if _, denied := denylist[word]; denied {
			return ValidatedQuery{}, &RejectionError{
				Reason:  "forbidden keyword",
				Keyword: word,
				SQL:     normalized,
			}
		}
	}

	return ValidatedQuery{sql: normalized}, nil
}

var statementKeywords = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "ATTACH", "PRAGMA", "REPLACE", "TRUNCATE"}

// Extract isolates the first contiguous SQL-looking statement from model
// output: fenced blocks win, otherwise scanning starts at the first line that
// opens with a statement keyword and stops at the first blank line. Mutating
// statements are extracted too, so the gate can name the offending keyword
// instead of reporting that no SQL was found. Line boundaries are preserved:
// a -- comment must stay bounded by its own line, flattening happens only
// after comments are stripped.
func Extract(rawText string) string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return ""
	}

	if fenced, ok := extractFence(text); ok {
		text = fenced
	}

	lines := strings.Split(text, "\n")
	var collected []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(collected) == 0 {
			if startsWithStatementKeyword(line) {
				collected = append(collected, line)
			}
			continue
		}
		if line == "" {
			break
		}
		collected = append(collected, line)
	}
	if len(collected) == 0 {
		// No recognizable opening keyword; hand the whole text to the gate
		// so the rejection names what was actually generated.
		return text
	}
	return strings.Join(collected, "\n")
}

func extractFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		// Drop the language tag on the opening fence line.
		if tag := strings.TrimSpace(rest[:newline]); tag == "" || isWord(tag) {
			rest = rest[newline+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

func startsWithStatementKeyword(line string) bool {
	upper := strings.ToUpper(line)
	for _, keyword := range statementKeywords {
		if strings.HasPrefix(upper, keyword) {
			remainder := upper[len(keyword):]
			if remainder == "" || !isWordByte(remainder[0]) {
				return true
			}
		}
	}
	return false
}

// stripComments removes -- line comments and /* */ block comments, honoring
// string literals. Returns false when a block comment or literal never
// closes.
func stripComments(sqlText string) (string, bool) {
	var b strings.Builder
	i := 0
	for i < len(sqlText) {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"':
			end, ok := scanQuoted(sqlText, i)
			if !ok {
				return "", false
			}
			b.WriteString(sqlText[i:end])
			i = end
		case c == '-' && i+1 < len(sqlText) && sqlText[i+1] == '-':
			for i < len(sqlText) && sqlText[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			b.WriteByte(' ')
			i += 2 + end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), true
}

type tokenScan struct {
	words          []string
	moreStatements bool
}

// topLevelTokens collects uppercase word tokens appearing outside string
// literals and quoted identifiers, and reports whether a statement separator
// occurs before the end.
func topLevelTokens(sqlText string) (tokenScan, bool) {
	var scan tokenScan
	i := 0
	for i < len(sqlText) {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"':
			end, ok := scanQuoted(sqlText, i)
			if !ok {
				return tokenScan{}, false
			}
			i = end
		case c == ';':
			if strings.TrimSpace(sqlText[i+1:]) != "" {
				scan.moreStatements = true
			}
			i++
		case isWordByte(c):
			start := i
			for i < len(sqlText) && isWordByte(sqlText[i]) {
				i++
			}
			scan.words = append(scan.words, strings.ToUpper(sqlText[start:i]))
		default:
			i++
		}
	}
	return scan, true
}

// scanQuoted returns the index just past a quoted region starting at i,
// handling doubled-quote escapes.
func scanQuoted(sqlText string, i int) (int, bool) {
	quote := sqlText[i]
	i++
	for i < len(sqlText) {
		if sqlText[i] == quote {
			if i+1 < len(sqlText) && sqlText[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// normalizeWhitespace flattens line structure into single spaces without
// touching the content of string literals or quoted identifiers. Runs once
// comments are gone; an unterminated quote is passed through untouched for
// the tokenizer to reject.
func normalizeWhitespace(sqlText string) string {
	var b strings.Builder
	pendingSpace := false
	i := 0
	for i < len(sqlText) {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"':
			end, ok := scanQuoted(sqlText, i)
			if !ok {
				if pendingSpace && b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(sqlText[i:])
				return b.String()
			}
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteString(sqlText[i:end])
			i = end
		case c == ' ' || c == '\n' || c == '\r' || c == '\t':
			pendingSpace = true
			i++
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return s != ""
}
