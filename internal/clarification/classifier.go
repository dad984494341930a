package clarification

import (
	"strings"
	"unicode"
)

// AnswerClassifier decides whether a follow-up turn answers the pending
// clarification question.
type AnswerClassifier interface {
	IsAnswer(text string) bool
}

// HeuristicClassifier treats a turn as an answer if it starts with a
// preposition cue, contains a metric or time term, or is a short phrase with
// a numeral. Terms match as substrings of the lower-cased text.
//
// The heuristic can mistake an unrelated new question for an answer, e.g.
// "show orders by city" contains "orders".
type HeuristicClassifier struct {
	Prefixes      []string
	MetricTerms   []string
	TimeTerms     []string
	MaxShortWords int
}

// NewHeuristicClassifier returns the classifier with the standard vocabulary
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{
		Prefixes:      []string{"by ", "for ", "in ", "last ", "the last "},
		MetricTerms:   []string{"revenue", "order", "orders", "return", "returns", "return rate", "total revenue", "number of orders"},
		TimeTerms:     []string{"last", "month", "months", "year", "years", "day", "days", "week", "weeks", "since"},
		MaxShortWords: 6,
	}
}

// IsAnswer implements AnswerClassifier
func (h *HeuristicClassifier) IsAnswer(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}

	for _, p := range h.Prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, terms := range [][]string{h.MetricTerms, h.TimeTerms} {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}

	words := strings.Fields(lower)
	if len(words) <= h.MaxShortWords {
		for _, w := range words {
			if isDigits(w) {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ClassifierFunc adapts a function to AnswerClassifier
type ClassifierFunc func(text string) bool

// IsAnswer implements AnswerClassifier
func (f ClassifierFunc) IsAnswer(text string) bool {
	return f(text)
}

// DefaultAmbiguityMarkers are the superlatives that make a query ambiguous
var DefaultAmbiguityMarkers = []string{"top", "highest", "best", "most"}

// AmbiguityDetector flags queries whose words include an ambiguity marker
type AmbiguityDetector struct {
	markers map[string]bool
}

// NewAmbiguityDetector creates a detector. With no markers the defaults are used.
func NewAmbiguityDetector(markers ...string) *AmbiguityDetector {
	if len(markers) == 0 {
		markers = DefaultAmbiguityMarkers
	}
	d := &AmbiguityDetector{markers: make(map[string]bool, len(markers))}
	for _, m := range markers {
		d.markers[strings.ToLower(m)] = true
	}
	return d
}

// Ambiguous reports whether any whole word of query is a marker
func (d *AmbiguityDetector) Ambiguous(query string) bool {
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if d.markers[strings.TrimFunc(w, unicode.IsPunct)] {
			return true
		}
	}
	return false
}
