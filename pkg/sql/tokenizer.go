package sql

import (
	"errors"
	"strings"
	"unicode"
)

// TokenKind classifies a lexical SQL token.
type TokenKind int

const (
	TokenWord        TokenKind = iota // keyword or bare identifier
	TokenQuotedIdent                  // "ident", `ident` or [ident]
	TokenString                       // 'literal', E'escaped' or $tag$dollar quoted$tag$
	TokenNumber
	TokenSymbol  // punctuation and operators, one rune per token
	TokenComment // -- line or /* block */
)

// Token is a single lexical unit of a SQL statement.
type Token struct {
	Kind TokenKind
	Text string // raw source text, including quotes and comment markers
	Pos  int    // byte offset in the source
}

// Upper returns the token text upper-cased. Only meaningful for words.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsWord reports whether the token is the given keyword (case-insensitive).
func (t Token) IsWord(keyword string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, keyword)
}

// IsSymbol reports whether the token is the given punctuation rune.
func (t Token) IsSymbol(r rune) bool {
	return t.Kind == TokenSymbol && t.Text == string(r)
}

// IsDollarQuoted reports whether the token is a PostgreSQL $tag$...$tag$ string.
func (t Token) IsDollarQuoted() bool {
	return t.Kind == TokenString && strings.HasPrefix(t.Text, "$")
}

// IsEscapeString reports whether the token is a PostgreSQL E'...' string,
// where backslash escapes the next character.
func (t Token) IsEscapeString() bool {
	return t.Kind == TokenString && (strings.HasPrefix(t.Text, "E'") || strings.HasPrefix(t.Text, "e'"))
}

// CommentBody returns the comment text without its markers.
func (t Token) CommentBody() string {
	if t.Kind != TokenComment {
		return ""
	}
	body := t.Text
	if strings.HasPrefix(body, "--") {
		return body[2:]
	}
	body = strings.TrimPrefix(body, "/*")
	return strings.TrimSuffix(body, "*/")
}

var (
	ErrUnterminatedString  = errors.New("unterminated string literal")
	ErrUnterminatedIdent   = errors.New("unterminated quoted identifier")
	ErrUnterminatedComment = errors.New("unterminated block comment")
)

// Tokenize splits SQL text into tokens, tracking quote and comment state so
// that keywords inside literals or comments are never reported as words.
//
// Plain string literals only escape quotes by doubling them, as in SQLite and
// standard-conforming PostgreSQL. PostgreSQL E'...' strings also honour
// backslash escapes, and $$...$$ or $tag$...$tag$ strings run to the matching
// tag. Both are lexed as TokenString so that text inside them never surfaces
// as words.
func Tokenize(sqlText string) ([]Token, error) {
	var tokens []Token
	runes := []rune(sqlText)
	// byte offsets for each rune index
	offsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += len(string(r))
	}
	offsets[len(runes)] = off

	emit := func(kind TokenKind, start, end int) {
		tokens = append(tokens, Token{
			Kind: kind,
			Text: string(runes[start:end]),
			Pos:  offsets[start],
		})
	}

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			start := i
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			emit(TokenComment, start, i)

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			start := i
			i += 2
			closed := false
			for i+1 < len(runes) {
				if runes[i] == '*' && runes[i+1] == '/' {
					i += 2
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, ErrUnterminatedComment
			}
			emit(TokenComment, start, i)

		case r == '\'':
			end, ok := scanQuoted(runes, i, '\'')
			if !ok {
				return nil, ErrUnterminatedString
			}
			emit(TokenString, i, end)
			i = end

		case r == '"' || r == '`':
			end, ok := scanQuoted(runes, i, r)
			if !ok {
				return nil, ErrUnterminatedIdent
			}
			emit(TokenQuotedIdent, i, end)
			i = end

		case r == '[':
			start := i
			for i < len(runes) && runes[i] != ']' {
				i++
			}
			if i == len(runes) {
				return nil, ErrUnterminatedIdent
			}
			i++
			emit(TokenQuotedIdent, start, i)

		case (r == 'E' || r == 'e') && i+1 < len(runes) && runes[i+1] == '\'':
			end, ok := scanEscapeString(runes, i+1)
			if !ok {
				return nil, ErrUnterminatedString
			}
			emit(TokenString, i, end)
			i = end

		case r == '$' && dollarTag(runes, i) != "":
			end, ok := scanDollarQuoted(runes, i, dollarTag(runes, i))
			if !ok {
				return nil, ErrUnterminatedString
			}
			emit(TokenString, i, end)
			i = end

		case isWordStart(r):
			start := i
			for i < len(runes) && isWordPart(runes[i]) {
				i++
			}
			emit(TokenWord, start, i)

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i = scanNumber(runes, i)
			emit(TokenNumber, start, i)

		default:
			emit(TokenSymbol, i, i+1)
			i++
		}
	}

	return tokens, nil
}

// scanQuoted returns the index just past the closing quote. A doubled quote
// character inside the literal is an escaped quote.
func scanQuoted(runes []rune, start int, quote rune) (int, bool) {
	i := start + 1
	for i < len(runes) {
		if runes[i] == quote {
			if i+1 < len(runes) && runes[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// scanEscapeString returns the index just past an E'...' literal whose
// opening quote is at start. Backslash escapes the following character and a
// doubled quote is an escaped quote.
func scanEscapeString(runes []rune, start int) (int, bool) {
	i := start + 1
	for i < len(runes) {
		switch {
		case runes[i] == '\\':
			i += 2
		case runes[i] == '\'' && i+1 < len(runes) && runes[i+1] == '\'':
			i += 2
		case runes[i] == '\'':
			return i + 1, true
		default:
			i++
		}
	}
	return 0, false
}

// dollarTag returns the opening delimiter of a dollar-quoted string at i, such
// as "$$" or "$body$", or "" when i does not start one. Positional
// parameters like $1 are not tags.
func dollarTag(runes []rune, i int) string {
	j := i + 1
	if j < len(runes) && runes[j] == '$' {
		return "$$"
	}
	if j >= len(runes) || !isWordStart(runes[j]) {
		return ""
	}
	for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
		j++
	}
	if j < len(runes) && runes[j] == '$' {
		return string(runes[i : j+1])
	}
	return ""
}

// scanDollarQuoted returns the index just past the closing tag.
func scanDollarQuoted(runes []rune, start int, tag string) (int, bool) {
	body := string(runes[start+len([]rune(tag)):])
	idx := strings.Index(body, tag)
	if idx < 0 {
		return 0, false
	}
	return start + len([]rune(tag)) + len([]rune(body[:idx])) + len([]rune(tag)), true
}

// scanNumber consumes a decimal, exponent or 0x-prefixed hex literal. Letters
// that do not belong to the literal start a new word token.
func scanNumber(runes []rune, i int) int {
	if runes[i] == '0' && i+2 < len(runes) && (runes[i+1] == 'x' || runes[i+1] == 'X') && isHexDigit(runes[i+2]) {
		i += 2
		for i < len(runes) && isHexDigit(runes[i]) {
			i++
		}
		return i
	}
	for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
		i++
	}
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			i = j
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
		}
	}
	return i
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// significant filters out comment tokens.
func significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind != TokenComment {
			out = append(out, t)
		}
	}
	return out
}
