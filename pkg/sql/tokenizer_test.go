package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize(`SELECT 'a;b', "c" FROM t -- note`)
	require.NoError(t, err)

	kinds := make([]TokenKind, len(tokens))
	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		kinds[i] = tok.Kind
		texts[i] = tok.Text
	}

	assert.Equal(t, []TokenKind{
		TokenWord, TokenString, TokenSymbol, TokenQuotedIdent, TokenWord, TokenWord, TokenComment,
	}, kinds)
	assert.Equal(t, []string{"SELECT", "'a;b'", ",", `"c"`, "FROM", "t", "-- note"}, texts)
}

func TestTokenize_Literals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  TokenKind
		text  string
	}{
		{"doubled quote escape", "'it''s'", TokenString, "'it''s'"},
		{"backtick identifier", "`order`", TokenQuotedIdent, "`order`"},
		{"bracket identifier", "[drop]", TokenQuotedIdent, "[drop]"},
		{"decimal", "12.50", TokenNumber, "12.50"},
		{"leading dot decimal", ".5", TokenNumber, ".5"},
		{"exponent", "1e-3", TokenNumber, "1e-3"},
		{"hex", "0x1F", TokenNumber, "0x1F"},
		{"block comment", "/* x */", TokenComment, "/* x */"},
		{"identifier with digits", "q1_2024", TokenWord, "q1_2024"},
		{"dollar quoted", "$$it's; DELETE$$", TokenString, "$$it's; DELETE$$"},
		{"tagged dollar quoted", "$fn$ a $$ b $fn$", TokenString, "$fn$ a $$ b $fn$"},
		{"escape string", `E'it\'s'`, TokenString, `E'it\'s'`},
		{"lower-case escape string", `e'a\\'`, TokenString, `e'a\\'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			require.NoError(t, err)
			require.Len(t, tokens, 1)
			assert.Equal(t, tt.kind, tokens[0].Kind)
			assert.Equal(t, tt.text, tokens[0].Text)
		})
	}
}

func TestTokenize_NumberDoesNotSwallowKeyword(t *testing.T) {
	tokens, err := Tokenize("1DROP")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenNumber, tokens[0].Kind)
	assert.True(t, tokens[1].IsWord("drop"))
}

func TestTokenize_BackslashIsNotAnEscape(t *testing.T) {
	tokens, err := Tokenize(`SELECT 'a\' ; DROP TABLE t; --'`)
	require.NoError(t, err)

	var words []string
	for _, tok := range tokens {
		if tok.Kind == TokenWord {
			words = append(words, tok.Upper())
		}
	}
	assert.Contains(t, words, "DROP")
}

func TestTokenize_PostgresLiteralsHideTheirContent(t *testing.T) {
	tokens, err := Tokenize(`SELECT $$'$$, E'\' ; DELETE FROM deals; --' FROM t WHERE x = $1`)
	require.NoError(t, err)

	var words []string
	var strs []Token
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenWord:
			words = append(words, tok.Upper())
		case TokenString:
			strs = append(strs, tok)
		}
	}
	assert.Equal(t, []string{"SELECT", "FROM", "T", "WHERE", "X"}, words)
	require.Len(t, strs, 2)
	assert.True(t, strs[0].IsDollarQuoted())
	assert.True(t, strs[1].IsEscapeString())
	assert.False(t, strs[1].IsDollarQuoted())
}

func TestTokenize_PositionalParameterIsNotDollarQuote(t *testing.T) {
	tokens, err := Tokenize("SELECT $1, $2")
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.NotEqual(t, TokenString, tok.Kind, tok.Text)
	}
}

func TestTokenize_Errors(t *testing.T) {
	_, err := Tokenize("SELECT 'open")
	assert.ErrorIs(t, err, ErrUnterminatedString)

	_, err = Tokenize(`SELECT "open`)
	assert.ErrorIs(t, err, ErrUnterminatedIdent)

	_, err = Tokenize("SELECT [open")
	assert.ErrorIs(t, err, ErrUnterminatedIdent)

	_, err = Tokenize("SELECT /* open")
	assert.ErrorIs(t, err, ErrUnterminatedComment)

	_, err = Tokenize("SELECT $tag$ open $other$")
	assert.ErrorIs(t, err, ErrUnterminatedString)

	_, err = Tokenize(`SELECT E'open\'`)
	assert.ErrorIs(t, err, ErrUnterminatedString)
}

func TestTokenize_BytePositions(t *testing.T) {
	tokens, err := Tokenize("SELECT 'é' , x")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, 0, tokens[0].Pos)
	assert.Equal(t, 7, tokens[1].Pos)
	assert.Equal(t, 12, tokens[2].Pos)
	assert.Equal(t, 14, tokens[3].Pos)
}

func TestToken_CommentBody(t *testing.T) {
	assert.Equal(t, " note", Token{Kind: TokenComment, Text: "-- note"}.CommentBody())
	assert.Equal(t, " x ", Token{Kind: TokenComment, Text: "/* x */"}.CommentBody())
	assert.Equal(t, "", Token{Kind: TokenWord, Text: "SELECT"}.CommentBody())
}
