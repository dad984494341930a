package history

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder puts a 1 in the slot of each known word
type wordEmbedder struct {
	vocab []string
	err   error
}

func (w wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if w.err != nil {
		return nil, w.err
	}
	v := make([]float32, len(w.vocab))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, known := range w.vocab {
			if word == known {
				v[i] = 1
			}
		}
	}
	return v, nil
}

var vocab = wordEmbedder{vocab: []string{"revenue", "store", "city", "customers", "month", "orders"}}

func TestMemoryStore_SimilarOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(vocab).WithMinSimilarity(0.5)

	require.NoError(t, s.Record(ctx, "revenue by store city", "SELECT 1"))
	require.NoError(t, s.Record(ctx, "revenue by store", "SELECT 2"))
	require.NoError(t, s.Record(ctx, "customers per month", "SELECT 3"))

	got, err := s.Similar(ctx, "revenue by store", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SELECT 2", got[0].SQL)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.Equal(t, "SELECT 1", got[1].SQL)
	assert.NotEmpty(t, got[0].ID)
}

func TestMemoryStore_RecordReplacesSameQuestion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(vocab)

	require.NoError(t, s.Record(ctx, "Revenue by store", "SELECT 1"))
	require.NoError(t, s.Record(ctx, "  revenue   BY store ", "SELECT 2"))
	assert.Equal(t, 1, s.Len())

	got, err := s.Similar(ctx, "revenue by store", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SELECT 2", got[0].SQL)
	assert.Equal(t, "Revenue by store", got[0].Query)
}

func TestMemoryStore_Limit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(vocab).WithMinSimilarity(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, fmt.Sprintf("orders %d", i), "SELECT 1"))
	}

	got, err := s.Similar(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultExamples)
}

func TestMemoryStore_EmptyResultIsNotNil(t *testing.T) {
	got, err := NewMemoryStore(vocab).Similar(context.Background(), "orders", 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryStore_EmbedderError(t *testing.T) {
	s := NewMemoryStore(wordEmbedder{err: fmt.Errorf("model offline")})
	assert.Error(t, s.Record(context.Background(), "q", "SELECT 1"))
	_, err := s.Similar(context.Background(), "q", 1)
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}
