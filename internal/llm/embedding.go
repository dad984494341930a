package llm

import (
	"context"
	"math"
	"strings"
)

// EmbeddingDim is the vector size produced by SimpleEmbedder. It must match
// the vector column in the query history migration.
const EmbeddingDim = 384

var analyticsKeywords = []string{
	"revenue", "sales", "amount", "total", "sum", "count", "average", "avg",
	"max", "min", "order", "orders", "customer", "customers", "store", "stores",
	"product", "products", "city", "region", "country", "category", "month",
	"monthly", "week", "weekly", "year", "yearly", "day", "daily", "quarter",
	"last", "top", "highest", "lowest", "best", "worst", "most", "least",
	"per", "by", "each", "group", "trend", "growth", "compare", "rank",
	"list", "show", "how many", "number of", "between", "since", "before", "after",
}

// SimpleEmbedder derives a deterministic feature vector from the text. It is
// good enough to find near-duplicate questions without an embedding model.
type SimpleEmbedder struct{}

// NewSimpleEmbedder creates an embedder
func NewSimpleEmbedder() *SimpleEmbedder {
	return &SimpleEmbedder{}
}

// Embed returns a unit-length vector of EmbeddingDim features
func (e *SimpleEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return createSimpleEmbedding(text), nil
}

func createSimpleEmbedding(text string) []float32 {
	embedding := make([]float32, EmbeddingDim)

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return embedding
	}

	// 0-36: character frequencies
	charCounts := make(map[rune]int)
	for _, char := range text {
		charCounts[char]++
	}
	chars := "abcdefghijklmnopqrstuvwxyz0123456789 "
	for i, char := range chars {
		if count, exists := charCounts[char]; exists {
			embedding[i] = float32(count) / float32(len(text))
		}
	}

	// 50+: analytics vocabulary
	words := " " + strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ") + " "
	for i, keyword := range analyticsKeywords {
		if strings.Contains(words, " "+keyword+" ") {
			embedding[i+50] = 1.0
		}
	}

	// 150+: length and structure
	embedding[150] = float32(len(text)) / 1000.0
	embedding[151] = float32(strings.Count(text, " ")) / float32(len(text))
	embedding[152] = float32(strings.Count(text, "?"))

	var magnitude float64
	for _, val := range embedding {
		magnitude += float64(val) * float64(val)
	}
	if magnitude > 0 {
		norm := float32(1 / math.Sqrt(magnitude))
		for i := range embedding {
			embedding[i] *= norm
		}
	}

	return embedding
}
