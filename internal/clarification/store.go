package clarification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const statePrefix = "conversation:"

// Store persists conversation state per session ID
type Store interface {
	// Load returns the session's state, or a fresh idle state if there is none
	Load(ctx context.Context, sessionID string) (*ConversationState, error)
	Save(ctx context.Context, sessionID string, state *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	state     *ConversationState
	expiresAt time.Time
}

// MemoryStore keeps state in process memory. Entries expire after the TTL;
// a zero TTL keeps them forever.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load implements Store
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return NewConversationState(), nil
	}
	if s.ttl > 0 && s.now().After(e.expiresAt) {
		delete(s.entries, sessionID)
		return NewConversationState(), nil
	}
	return e.state.Clone(), nil
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, sessionID string, state *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sessionID] = memoryEntry{
		state:     state.Clone(),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Len returns the number of stored sessions, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisStore keeps state as JSON in Redis with a sliding expiry
type RedisStore struct {
	redis  *redis.Client
	expiry time.Duration
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(redisClient *redis.Client, expiry time.Duration) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		expiry: expiry,
	}
}

// Load implements Store
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	data, err := s.redis.Get(ctx, statePrefix+sessionID).Result()
	if err == redis.Nil {
		return NewConversationState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}

	state := NewConversationState()
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	if state.ResolvedContext == nil {
		state.ResolvedContext = make(map[string]string)
	}
	return state, nil
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, sessionID string, state *ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	if err := s.redis.Set(ctx, statePrefix+sessionID, data, s.expiry).Err(); err != nil {
		return fmt.Errorf("failed to store conversation state: %w", err)
	}
	return nil
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, statePrefix+sessionID).Err()
}
