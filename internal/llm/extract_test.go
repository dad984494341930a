package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "SELECT id FROM orders", "SELECT id FROM orders"},
		{"fenced sql", "Here you go:\n```sql\nSELECT id FROM orders;\n```\nEnjoy", "SELECT id FROM orders"},
		{"fenced no language", "```\nSELECT 1\n```", "SELECT 1"},
		{"upper fence tag", "```SQL\nSELECT 1\n```", "SELECT 1"},
		{"inline backticks", "`SELECT id FROM orders`", "SELECT id FROM orders"},
		{"leading prose", "Sure. The query is: select id from orders; -- done", "select id from orders"},
		{"second statement dropped", "SELECT 1; DROP TABLE orders;", "SELECT 1"},
		{"no select", "  I cannot answer that  ", "I cannot answer that"},
		{"empty", "   ", ""},
		{"word boundary", "PRESELECTED; SELECT 2", "SELECT 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.reply))
		})
	}
}

func TestIsInsufficient(t *testing.T) {
	assert.True(t, IsInsufficient("INSUFFICIENT_INFORMATION"))
	assert.True(t, IsInsufficient("  INSUFFICIENT_INFORMATION\n"))
	assert.True(t, IsInsufficient("```\nINSUFFICIENT_INFORMATION\n```"))
	assert.False(t, IsInsufficient("SELECT 'INSUFFICIENT_INFORMATION'"))
	assert.False(t, IsInsufficient("insufficient information"))
}

func TestNormalizeClarification(t *testing.T) {
	for _, reply := range []string{
		"NO_CLARIFICATION_NEEDED",
		"No clarification needed.",
		"no",
		"None!",
		"`NO_CLARIFICATION_NEEDED`",
		"no further questions",
		"```\nanything\n```",
	} {
		question, needed := NormalizeClarification(reply)
		assert.False(t, needed, reply)
		assert.Empty(t, question, reply)
	}

	question, needed := NormalizeClarification("  Which metric should rank the stores?  ")
	assert.True(t, needed)
	assert.Equal(t, "Which metric should rank the stores?", question)

	question, needed = NormalizeClarification("Nothing about time was given. Which `period`?")
	assert.True(t, needed)
	assert.Equal(t, "Nothing about time was given. Which period?", question)
}
