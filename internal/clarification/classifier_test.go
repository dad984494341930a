package clarification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicClassifier_IsAnswer(t *testing.T) {
	c := NewHeuristicClassifier()

	tests := []struct {
		text string
		want bool
	}{
		{"by total revenue", true},
		{"For the north region", true},
		{"in march", true},
		{"the last quarter", true},
		{"number of orders", true},
		{"return rate please", true},
		{"since january", true},
		{"past 6 weeks", true},
		{"top 5", true},
		{"customer names", false},
		{"show me all the stores and their cities", false},
		{"1 2 3 4 5 6 7", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsAnswer(tt.text), tt.text)
	}
}

func TestHeuristicClassifier_KnownMisclassification(t *testing.T) {
	// A new question that mentions orders still reads as an answer
	assert.True(t, NewHeuristicClassifier().IsAnswer("show orders by city"))
}

func TestAmbiguityDetector(t *testing.T) {
	d := NewAmbiguityDetector()

	assert.True(t, d.Ambiguous("Show top stores"))
	assert.True(t, d.Ambiguous("which customers spend the MOST?"))
	assert.True(t, d.Ambiguous("best, please"))
	assert.False(t, d.Ambiguous("stop stores"))
	assert.False(t, d.Ambiguous("total revenue per store"))
	assert.False(t, d.Ambiguous(""))

	custom := NewAmbiguityDetector("Largest")
	assert.True(t, custom.Ambiguous("the largest store"))
	assert.False(t, custom.Ambiguous("top store"))
}
