package llm

import (
	"regexp"
	"strings"
)

var (
	sqlFencePattern = regexp.MustCompile("(?i)```(?:sql)?\\n([\\s\\S]*?)```")
	anyFencePattern = regexp.MustCompile("```[\\s\\S]*?```")
	selectPattern   = regexp.MustCompile(`(?i)\bSELECT\b`)
)

var noClarificationReplies = map[string]bool{
	"no clarification needed": true,
	"no":                      true,
	"none":                    true,
	"no clarification":        true,
	"no_clarification_needed": true,
}

// ExtractSQL pulls a single statement out of a model reply: the body of a
// fenced block if present, stripped of backticks, starting at the first
// SELECT and cut at the first semicolon. Replies without SELECT come back
// trimmed but otherwise untouched.
func ExtractSQL(reply string) string {
	s := strings.TrimSpace(reply)
	if s == "" {
		return ""
	}

	if m := sqlFencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = strings.ReplaceAll(s, "`", "")

	loc := selectPattern.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	s = s[loc[0]:]

	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// IsInsufficient reports whether the reply is the unanswerable sentinel,
// before or after cleanup.
func IsInsufficient(reply string) bool {
	return strings.TrimSpace(reply) == SentinelInsufficient || ExtractSQL(reply) == SentinelInsufficient
}

// NormalizeClarification maps the many ways a model says "no" onto the
// no-clarification verdict. It returns the cleaned question and whether one
// is needed.
func NormalizeClarification(reply string) (string, bool) {
	s := anyFencePattern.ReplaceAllString(reply, "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "`", ""))

	lowered := strings.TrimRight(strings.ToLower(s), ".!?")
	if lowered == "" || noClarificationReplies[lowered] || strings.HasPrefix(lowered, "no ") {
		return "", false
	}
	return s, true
}
