package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	example   Example
	embedding []float32
}

// MemoryStore keeps history in process. Entries are lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	embedder      Embedder
	entries       map[string]*memoryEntry
	minSimilarity float64
	now           func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder:      embedder,
		entries:       make(map[string]*memoryEntry),
		minSimilarity: DefaultMinSimilarity,
		now:           time.Now,
	}
}

// WithMinSimilarity overrides the similarity threshold
func (s *MemoryStore) WithMinSimilarity(min float64) *MemoryStore {
	s.minSimilarity = min
	return s
}

// Record stores or replaces the SQL for query
func (s *MemoryStore) Record(ctx context.Context, query, sql string) error {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	key := normalizeQuery(query)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.example.SQL = sql
		e.embedding = embedding
		return nil
	}
	s.entries[key] = &memoryEntry{
		example: Example{
			ID:        uuid.New().String(),
			Query:     query,
			SQL:       sql,
			CreatedAt: s.now(),
		},
		embedding: embedding,
	}
	return nil
}

// Similar returns up to limit examples at or above the similarity threshold,
// most similar first.
func (s *MemoryStore) Similar(ctx context.Context, query string, limit int) ([]Example, error) {
	if limit <= 0 {
		limit = DefaultExamples
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	matches := make([]Example, 0)
	for _, e := range s.entries {
		sim := cosine(embedding, e.embedding)
		if sim < s.minSimilarity {
			continue
		}
		ex := e.example
		ex.Similarity = sim
		matches = append(matches, ex)
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Query < matches[j].Query
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Len returns the number of stored questions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
