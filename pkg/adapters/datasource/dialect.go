package datasource

import (
	"strconv"
	"strings"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/prompts"
	sqlpkg "github.com/dealdesk-inc/dealdesk-engine/pkg/sql"
)

// Dialect identifies the SQL flavour of a store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DisplayName returns the human-readable engine name used in prompts.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectPostgres:
		return "PostgreSQL"
	case DialectSQLite:
		return "SQLite"
	default:
		return string(d)
	}
}

// CurrentDateExpr returns the expression for today's date.
func (d Dialect) CurrentDateExpr() string {
	if d == DialectPostgres {
		return "CURRENT_DATE"
	}
	return "date('now')"
}

// PromptHint describes the dialect to the SQL generation prompt.
func (d Dialect) PromptHint() prompts.DialectHint {
	return prompts.DialectHint{
		Key:         string(d),
		Name:        d.DisplayName(),
		CurrentDate: d.CurrentDateExpr(),
	}
}

// Rebind rewrites "?" placeholders into the dialect's native form. Only
// PostgreSQL needs rewriting ($1, $2, ...). Question marks inside string
// literals, quoted identifiers and comments are left untouched. Text that
// cannot be tokenized is returned unchanged for the driver to reject.
func (d Dialect) Rebind(sqlText string) string {
	if d != DialectPostgres || !strings.Contains(sqlText, "?") {
		return sqlText
	}

	tokens, err := sqlpkg.Tokenize(sqlText)
	if err != nil {
		return sqlText
	}

	var b strings.Builder
	b.Grow(len(sqlText) + 8)
	last, n := 0, 0
	for _, tok := range tokens {
		if !tok.IsSymbol('?') {
			continue
		}
		n++
		b.WriteString(sqlText[last:tok.Pos])
		b.WriteString("$" + strconv.Itoa(n))
		last = tok.Pos + len(tok.Text)
	}
	b.WriteString(sqlText[last:])
	return b.String()
}
