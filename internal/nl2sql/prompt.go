package nl2sql

import (
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/schema"
)

// BuildSQLPrompt renders the instruction payload for SQL generation. It is a
// pure function of the schema text and the question; the question is
// neutralized so it cannot smuggle extra instructions through fencing or
// newline tricks. That hardening is best-effort, which is why the output is
// still routed through the SQL gate and a read-only connection.
func BuildSQLPrompt(schemaText, question string) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert. Convert the question below into exactly one read-only SQL query.\n\n")
	b.WriteString(strings.TrimRight(schemaText, "\n"))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only the tables and columns listed above.\n")
	b.WriteString("- Output a single SELECT (or WITH ... SELECT) statement and nothing else.\n")
	b.WriteString("- Never use INSERT, UPDATE, DELETE, DROP, ALTER, CREATE or any other statement kind.\n")
	b.WriteString("- Prefer explicit column names and meaningful aliases.\n")
	b.WriteString("- For revenue calculations, multiply quantity by unit_price.\n")
	b.WriteString("- No markdown, no explanation, no comments.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nSQL query:", schema.Neutralize(question))
	return b.String()
}

// BuildExplainPrompt asks the backend to summarize what a validated query
// does, in one or two plain sentences.
func BuildExplainPrompt(sql string) string {
	var b strings.Builder
	b.WriteString("Explain in one or two plain sentences what the following SQL query returns. ")
	b.WriteString("Address a non-technical reader. Do not repeat the SQL.\n\n")
	b.WriteString(strings.TrimSpace(sql))
	return b.String()
}
