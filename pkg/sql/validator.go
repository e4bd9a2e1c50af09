// Package sql provides SQL validation utilities.
package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuery indicates the candidate SQL is empty or whitespace only.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotSelect indicates the statement is not a SELECT (optionally prefixed by WITH).
	ErrNotSelect = errors.New("only SELECT statements are permitted")

	// ErrSuspiciousComment indicates a comment that carries a statement separator or
	// a mutation keyword.
	ErrSuspiciousComment = errors.New("comment contains statement text")

	// ErrAmbiguousLiteral indicates a string literal whose extent depends on the
	// database engine: dollar-quoted strings, and E'...' strings using
	// backslash escapes.
	ErrAmbiguousLiteral = errors.New("dollar-quoted and backslash-escaped string literals are not permitted")
)

// ForbiddenKeywordError reports a mutation or DDL keyword found as a standalone token.
type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("forbidden keyword %s", e.Keyword)
}

// forbiddenKeywords are rejected wherever they appear as a bare word.
// PRAGMA is included because it can change connection state.
var forbiddenKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"REPLACE":  true,
	"ATTACH":   true,
	"PRAGMA":   true,
}

// IsForbiddenKeyword reports whether word is a mutation/DDL keyword.
func IsForbiddenKeyword(word string) bool {
	return forbiddenKeywords[strings.ToUpper(word)]
}

// ValidationResult contains the sanitized SQL or the reason it was rejected.
type ValidationResult struct {
	SanitizedSQL string
	Error        error
}

// Valid reports whether the statement passed every check.
func (r ValidationResult) Valid() bool {
	return r.Error == nil
}

// Reason returns the rejection reason, or "" for a valid result.
func (r ValidationResult) Reason() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// ValidateSelect gates a generated SQL string before execution.
//
// Checks run in order and the first failure wins:
//  1. reject empty input
//  2. strip markdown code fences
//  3. reject literals whose extent differs between SQLite and PostgreSQL
//  4. reject mutation/DDL keywords appearing as words outside literals and
//     comments, or inside [bracketed] identifiers
//  5. reject more than one statement
//  6. require the statement to start with SELECT or WITH, and a WITH chain to end in SELECT
//  7. reject comments that carry separators or mutation keywords
//
// The function is pure and idempotent: validating SanitizedSQL again yields the same result.
func ValidateSelect(candidate string) ValidationResult {
	sqlQuery := strings.TrimSpace(candidate)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	sqlQuery = StripCodeFences(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	tokens, err := Tokenize(sqlQuery)
	if err != nil {
		return ValidationResult{Error: err}
	}

	if err := checkLiterals(tokens); err != nil {
		return ValidationResult{Error: err}
	}

	if err := checkForbiddenKeywords(tokens); err != nil {
		return ValidationResult{Error: err}
	}

	if err := detectMultipleStatements(tokens); err != nil {
		return ValidationResult{Error: err}
	}

	if err := checkStatementKind(tokens); err != nil {
		return ValidationResult{Error: err}
	}

	if err := checkComments(tokens); err != nil {
		return ValidationResult{Error: err}
	}

	return ValidationResult{SanitizedSQL: stripTrailingSemicolon(sqlQuery)}
}

// StripCodeFences removes a surrounding ``` block (with optional language tag).
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag line, e.g. "sql\n"
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, " \t(*") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// checkLiterals rejects string forms that one engine reads differently from
// the other. An E'...' string without backslashes ends where a plain literal
// would, so it is allowed.
func checkLiterals(tokens []Token) error {
	for _, t := range tokens {
		if t.IsDollarQuoted() || (t.IsEscapeString() && strings.ContainsRune(t.Text, '\\')) {
			return ErrAmbiguousLiteral
		}
	}
	return nil
}

func checkForbiddenKeywords(tokens []Token) error {
	for _, t := range tokens {
		switch {
		case t.Kind == TokenWord && forbiddenKeywords[t.Upper()]:
			return &ForbiddenKeywordError{Keyword: t.Upper()}
		case t.Kind == TokenQuotedIdent && !strings.HasPrefix(t.Text, `"`):
			if err := checkEngineSpecificIdent(t.Text); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectMultipleStatements fails when a semicolon outside literals is followed
// by anything other than comments. A single trailing semicolon is allowed.
func detectMultipleStatements(tokens []Token) error {
	sig := significant(tokens)
	for i, t := range sig {
		if t.IsSymbol(';') && i != len(sig)-1 {
			return ErrMultipleStatements
		}
	}
	return nil
}

func checkStatementKind(tokens []Token) error {
	sig := significant(tokens)
	if len(sig) == 0 {
		return ErrEmptyQuery
	}

	first := sig[0]
	switch {
	case first.IsWord("SELECT"):
		return nil
	case first.IsWord("WITH"):
		// The CTE bodies sit inside parentheses; the statement they feed must
		// be a SELECT at depth zero.
		depth := 0
		for _, t := range sig[1:] {
			switch {
			case t.IsSymbol('('):
				depth++
			case t.IsSymbol(')'):
				depth--
			case depth == 0 && t.IsWord("SELECT"):
				return nil
			}
		}
		return ErrNotSelect
	default:
		return ErrNotSelect
	}
}

func checkComments(tokens []Token) error {
	for _, t := range tokens {
		if t.Kind != TokenComment {
			continue
		}
		body := t.CommentBody()
		if strings.Contains(body, ";") {
			return ErrSuspiciousComment
		}
		inner, err := Tokenize(body)
		if err != nil {
			// Unbalanced quotes inside a comment are not SQL we can reason about.
			return ErrSuspiciousComment
		}
		for _, it := range inner {
			if it.Kind == TokenWord && forbiddenKeywords[it.Upper()] {
				return ErrSuspiciousComment
			}
		}
	}
	return nil
}

// checkEngineSpecificIdent inspects [bracket] and `backtick` identifiers.
// PostgreSQL reads brackets as array subscripts and backticks as operator
// characters, so their content is SQL there and may not hide statement text
// or open a literal.
func checkEngineSpecificIdent(text string) error {
	inner := text[1 : len(text)-1]
	if strings.Contains(inner, ";") {
		return ErrMultipleStatements
	}
	if strings.ContainsAny(inner, "'\"`$") {
		return ErrAmbiguousLiteral
	}
	for _, w := range strings.FieldsFunc(inner, func(r rune) bool { return !isWordPart(r) }) {
		if forbiddenKeywords[strings.ToUpper(w)] {
			return &ForbiddenKeywordError{Keyword: strings.ToUpper(w)}
		}
	}
	return nil
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
