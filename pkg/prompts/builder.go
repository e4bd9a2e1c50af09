// Package prompts builds the one-shot prompts sent to the completion oracle.
// Builders only format strings; they never execute anything.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Scope detection response tokens.
const (
	TokenInScope    = "IN_SCOPE"
	TokenOutOfScope = "OUT_OF_SCOPE"
)

// DefaultSampleRows is the number of sample rows shown per table.
const DefaultSampleRows = 2

// DialectHint tells the oracle which SQL flavour to write.
type DialectHint struct {
	Key         string // "sqlite" or "postgres"; selects dialect-specific examples
	Name        string // e.g. "SQLite"
	CurrentDate string // expression for the current date, e.g. date('now')
}

// TableSample holds sample rows for one table.
type TableSample struct {
	Table string
	Rows  []map[string]any
}

// Builder assembles prompts from a fixed vocabulary. It holds no mutable
// state and is safe for concurrent use.
type Builder struct {
	vocab      *Vocabulary
	sampleRows int
}

// NewBuilder creates a builder. A nil vocabulary uses DefaultVocabulary.
func NewBuilder(vocab *Vocabulary) *Builder {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Builder{vocab: vocab, sampleRows: DefaultSampleRows}
}

// BuildScopeDetectionPrompt asks the oracle to answer IN_SCOPE or OUT_OF_SCOPE.
func (b *Builder) BuildScopeDetectionPrompt(question string) string {
	var prompt strings.Builder

	prompt.WriteString("You are a scope detection system for a database query assistant.\n\n")
	prompt.WriteString("The database contains:\n")
	writeBullets(&prompt, b.vocab.ScopeDomains)

	prompt.WriteString(fmt.Sprintf("\nUSER QUESTION: %s\n\n", question))
	prompt.WriteString("TASK:\nDetermine if this question is related to any data in the database.\n\n")

	prompt.WriteString("EXAMPLES OF IN-SCOPE QUESTIONS:\n")
	for _, ex := range b.vocab.InScopeExamples {
		prompt.WriteString(fmt.Sprintf("- %q ✓%s\n", ex.Question, noteSuffix(ex.Note)))
	}
	prompt.WriteString("\nEXAMPLES OF OUT-OF-SCOPE QUESTIONS:\n")
	for _, ex := range b.vocab.OutOfScopeExamples {
		prompt.WriteString(fmt.Sprintf("- %q ✗%s\n", ex.Question, noteSuffix(ex.Note)))
	}

	prompt.WriteString("\nRespond with ONLY one of these two words:\n")
	prompt.WriteString(fmt.Sprintf("- %s (if the question relates to database contents)\n", TokenInScope))
	prompt.WriteString(fmt.Sprintf("- %s (if the question is unrelated to database contents)\n\n", TokenOutOfScope))
	prompt.WriteString("Your response:")

	return prompt.String()
}

// BuildTextToSQLPrompt embeds the full schema, sample rows and worked
// examples, and asks for raw SQL or the OUT_OF_SCOPE token.
func (b *Builder) BuildTextToSQLPrompt(question, schema string, samples []TableSample, dialect DialectHint) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are a data analyst with access to a %s database containing:\n", dialect.Name))
	writeBullets(&prompt, b.vocab.DataDomains)

	prompt.WriteString("\nDATABASE SCHEMA (ALL TABLES):\n")
	prompt.WriteString(schema)
	prompt.WriteString("\n\nSAMPLE DATA FROM EACH TABLE:\n")
	prompt.WriteString(b.formatSamples(samples))

	prompt.WriteString("\n\nEXAMPLE QUERIES:\n")
	for _, ex := range b.vocab.examplesFor(dialect.Key) {
		prompt.WriteString(fmt.Sprintf("- %q → %s\n", ex.Question, ex.SQL))
	}

	prompt.WriteString("\nCONSTRAINTS:\n")
	prompt.WriteString("- ONLY generate SELECT queries (no INSERT, UPDATE, DELETE, DROP, ALTER)\n")
	prompt.WriteString("- Use proper JOINs, WHERE clauses, and LIMIT\n")
	prompt.WriteString("- Return calculations with meaningful column aliases\n")
	prompt.WriteString("- You can query ANY table in the database\n")
	prompt.WriteString("- For percentage calculations, multiply by 100.0 for proper float division\n")
	prompt.WriteString(fmt.Sprintf("- Use %s for current date comparisons\n", dialect.CurrentDate))

	prompt.WriteString(fmt.Sprintf("\nUSER QUESTION: %s\n\n", question))
	prompt.WriteString("TASK:\n")
	prompt.WriteString("1. Determine which table(s) the question relates to\n")
	prompt.WriteString("2. Generate a safe SQL query to answer it\n")
	prompt.WriteString(fmt.Sprintf("3. If the question is completely unrelated to the database contents (e.g., \"What's the weather?\"), respond with: %s\n\n", TokenOutOfScope))
	prompt.WriteString("Generate ONLY the SQL query with no explanation, markdown formatting, or extra text. Just the raw SQL query.")

	return prompt.String()
}

// BuildConfidencePrompt asks for a single number in [0,1].
func (b *Builder) BuildConfidencePrompt(question, sqlQuery string, results []map[string]any) string {
	var prompt strings.Builder

	prompt.WriteString("You are evaluating the quality of a text-to-SQL system's response.\n\n")
	prompt.WriteString(fmt.Sprintf("USER QUESTION: %s\n\n", question))
	prompt.WriteString(fmt.Sprintf("GENERATED SQL: %s\n\n", sqlQuery))
	prompt.WriteString(fmt.Sprintf("RESULTS: %s\n\n", toJSON(results, false)))

	prompt.WriteString("TASK:\nRate your confidence that this SQL query correctly and completely answers the user's question.\n\n")

	prompt.WriteString("CONSIDERATIONS:\n")
	prompt.WriteString("- Does the query target the right tables and columns?\n")
	prompt.WriteString("- Are the results meaningful and complete?\n")
	prompt.WriteString("- Could the question be ambiguous or require clarification?\n")
	prompt.WriteString("- Are there edge cases or nuances the query might miss?\n")
	prompt.WriteString("- Does the result set appear to answer what was asked?\n\n")

	prompt.WriteString("CONFIDENCE SCALE:\n")
	prompt.WriteString("- 0.9-1.0: Very confident - clear question with accurate, complete results\n")
	prompt.WriteString("- 0.7-0.89: Confident - minor ambiguity or potential edge cases\n")
	prompt.WriteString("- 0.5-0.69: Moderate confidence - some uncertainty in interpretation\n")
	prompt.WriteString("- 0.0-0.49: Low confidence - likely needs human review\n\n")

	prompt.WriteString("Respond with ONLY a single number between 0.0 and 1.0 representing your confidence score.\n")
	prompt.WriteString("Do not include any explanation, just the number.\n\n")
	prompt.WriteString("Confidence score:")

	return prompt.String()
}

// BuildResultsToNLPrompt asks for a short natural-language answer.
func (b *Builder) BuildResultsToNLPrompt(question, sqlQuery string, results []map[string]any) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You generated this SQL query:\n%s\n\n", sqlQuery))
	prompt.WriteString(fmt.Sprintf("The query returned these results:\n%s\n\n", toJSON(results, true)))
	prompt.WriteString(fmt.Sprintf("The user's original question was: %s\n\n", question))

	prompt.WriteString("TASK:\nProvide a clear, concise answer to the user's question based on these results.\n\n")

	prompt.WriteString("FORMATTING GUIDELINES:\n")
	prompt.WriteString("- Use currency formatting for monetary values (e.g., \"$5.2M\" or \"$5,200,000\")\n")
	prompt.WriteString("- Use percentages with 1-2 decimal places (e.g., \"25.5%\" or \"65%\")\n")
	prompt.WriteString("- For dates, use readable formats (e.g., \"Q3 2024\" or \"September 2024\")\n")
	prompt.WriteString("- If comparing multiple values, use bullet points or numbered lists\n")
	prompt.WriteString("- If the results are empty, politely explain that no matching data was found\n")
	prompt.WriteString("- Keep the response concise (2-4 sentences maximum unless listing multiple items)\n")
	prompt.WriteString("- Do not mention the SQL query or technical details unless asked\n\n")
	prompt.WriteString("Generate your natural language response:")

	return prompt.String()
}

// formatSamples renders each table's rows as indented JSON, or a
// placeholder when the table is empty.
func (b *Builder) formatSamples(samples []TableSample) string {
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		if len(s.Rows) == 0 {
			parts = append(parts, fmt.Sprintf("%s: (no sample data)", s.Table))
			continue
		}
		rows := s.Rows
		if len(rows) > b.sampleRows {
			rows = rows[:b.sampleRows]
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", s.Table, toJSON(rows, true)))
	}
	return strings.Join(parts, "\n\n")
}

// FormatResults renders rows as indented JSON for fallback answers.
func FormatResults(rows []map[string]any) string {
	return toJSON(rows, true)
}

// toJSON serializes rows without HTML escaping. A nil slice renders as [].
func toJSON(rows []map[string]any, indent bool) string {
	if rows == nil {
		rows = []map[string]any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(rows); err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeBullets(sb *strings.Builder, items []string) {
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}

func noteSuffix(note string) string {
	if note == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", note)
}
