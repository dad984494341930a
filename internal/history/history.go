// Package history remembers validated question/SQL pairs so similar past
// questions can be shown to the generator as examples.
package history

import (
	"context"
	"math"
	"strings"
	"time"
)

const (
	// DefaultMinSimilarity is the cosine similarity below which an entry is not an example
	DefaultMinSimilarity = 0.8
	// DefaultExamples is how many examples a prompt gets
	DefaultExamples = 3
)

// Example is a past question and the SQL that answered it
type Example struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	SQL        string    `json:"sql"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// normalizeQuery is the uniqueness key for stored questions
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// cosine returns the cosine similarity of a and b, or 0 when either is empty
// or their lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
