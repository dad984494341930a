package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, t := range tokens {
		types[i] = t.Type
	}
	return types
}

func TestTokenize_Basic(t *testing.T) {
	tokens := Tokenize("SELECT o.amount, COUNT(*) FROM orders o WHERE o.amount >= 10.5;")

	assert.Equal(t, []TokenType{
		Ident, Ident, Dot, Ident, Comma, Ident, LParen, Star, RParen,
		Ident, Ident, Ident, Ident, Ident, Dot, Ident, Operator, Number, Semicolon,
	}, tokenTypes(tokens))
	assert.Equal(t, ">=", tokens[16].Literal)
	assert.Equal(t, "10.5", tokens[17].Literal)
}

func TestTokenize_PositionsCoverSource(t *testing.T) {
	src := "SELECT  amount\nFROM orders"
	tokens := Tokenize(src)
	require.Len(t, tokens, 4)

	runes := []rune(src)
	for _, tok := range tokens {
		assert.Equal(t, tok.Literal, string(runes[tok.Pos:tok.End]))
	}
}

func TestTokenize_Comments(t *testing.T) {
	tokens := Tokenize("SELECT 1 -- trailing\n/* block\n comment */ # hash\nFROM x")
	require.Len(t, tokens, 4)
	assert.Equal(t, "FROM", tokens[2].Literal)
}

func TestTokenize_StringLiteral(t *testing.T) {
	tokens := Tokenize("SELECT 'it''s', 'unterminated")
	require.Len(t, tokens, 4)
	assert.Equal(t, String, tokens[1].Type)
	assert.Equal(t, "it's", tokens[1].Literal)
	assert.Equal(t, String, tokens[3].Type)
	assert.Equal(t, "unterminated", tokens[3].Literal)
}

func TestTokenize_QuotedIdentifiers(t *testing.T) {
	tokens := Tokenize("SELECT \"Order Total\", `SELECT` FROM t")
	require.Len(t, tokens, 6)

	assert.Equal(t, Ident, tokens[1].Type)
	assert.True(t, tokens[1].Quoted)
	assert.Equal(t, "Order Total", tokens[1].Literal)

	assert.True(t, tokens[3].Quoted)
	assert.Empty(t, tokens[3].Keyword(), "a quoted identifier is never a keyword")
	assert.True(t, tokens[0].Is("SELECT"))
}

func TestTokenize_ParamsAndOperators(t *testing.T) {
	tokens := Tokenize("a = $1 AND b <> ? AND c::date || 'x'")
	var ops, params []string
	for _, tok := range tokens {
		switch tok.Type {
		case Operator:
			ops = append(ops, tok.Literal)
		case Param:
			params = append(params, tok.Literal)
		}
	}
	assert.Equal(t, []string{"=", "<>", "::", "||"}, ops)
	assert.Equal(t, []string{"$1", "?"}, params)
}

func TestTokenize_Numbers(t *testing.T) {
	for _, src := range []string{"42", "3.14", ".5", "1e10", "2.5E-3"} {
		tokens := Tokenize(src)
		require.Len(t, tokens, 1, src)
		assert.Equal(t, Number, tokens[0].Type, src)
		assert.Equal(t, src, tokens[0].Literal)
	}
}

func TestTokenType_String(t *testing.T) {
	assert.Equal(t, "Ident", Ident.String())
	assert.Equal(t, "Unknown", TokenType(99).String())
}
