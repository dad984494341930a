// Package clarification tracks the single outstanding ambiguous question of a
// conversation and decides whether a follow-up turn answers it.
package clarification

import (
	"sort"
	"strings"
	"time"
)

// Phase is the state of a conversation's clarification machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingClarification
)

func (p Phase) String() string {
	if p == PhaseAwaitingClarification {
		return "awaiting_clarification"
	}
	return "idle"
}

// Context keys recorded after a clarification is resolved
const (
	ContextLastClarification = "last_clarification"
	ContextLastMergedQuery   = "last_merged_query"
)

// PendingClarification is an ambiguous query waiting for the user's answer
type PendingClarification struct {
	OriginalQuery string `json:"original_query"`
	Question      string `json:"question"`
}

// ConversationState is the per-session clarification state. It is not safe
// for concurrent use; callers serialise access per session.
type ConversationState struct {
	Pending         *PendingClarification `json:"pending,omitempty"`
	ResolvedContext map[string]string     `json:"resolved_context,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewConversationState returns an idle state
func NewConversationState() *ConversationState {
	return &ConversationState{ResolvedContext: make(map[string]string)}
}

// Phase reports whether a clarification is outstanding
func (s *ConversationState) Phase() Phase {
	if s.HasPending() {
		return PhaseAwaitingClarification
	}
	return PhaseIdle
}

// HasPending reports whether a clarification is outstanding
func (s *ConversationState) HasPending() bool {
	return s.Pending != nil
}

// PendingQuestion returns the outstanding question, or ""
func (s *ConversationState) PendingQuestion() string {
	if s.Pending == nil {
		return ""
	}
	return s.Pending.Question
}

// IsSamePending reports whether query repeats the pending query, ignoring
// case and whitespace.
func (s *ConversationState) IsSamePending(query string) bool {
	if s.Pending == nil {
		return false
	}
	return normalize(query) == normalize(s.Pending.OriginalQuery)
}

// SetPending replaces any outstanding clarification
func (s *ConversationState) SetPending(query, question string) {
	s.Pending = &PendingClarification{OriginalQuery: query, Question: question}
	s.touch()
}

// Reset discards the outstanding clarification
func (s *ConversationState) Reset() {
	s.Pending = nil
	s.touch()
}

// Resolve merges the pending query with the answer, clears the pending entry
// and records the answer in the resolved context. It returns the merged query.
func (s *ConversationState) Resolve(answer string) string {
	if s.Pending == nil {
		return answer
	}
	answer = strings.TrimSpace(answer)
	merged := s.Pending.OriginalQuery + " " + answer
	s.Pending = nil

	if s.ResolvedContext == nil {
		s.ResolvedContext = make(map[string]string)
	}
	s.ResolvedContext[ContextLastClarification] = answer
	s.ResolvedContext[ContextLastMergedQuery] = merged
	s.touch()
	return merged
}

// ApplyContext appends the resolved context to a fresh query as
// "<query>. Context: k: v ...". Keys are emitted in sorted order.
func (s *ConversationState) ApplyContext(query string) string {
	if len(s.ResolvedContext) == 0 {
		return query
	}
	keys := make([]string, 0, len(s.ResolvedContext))
	for k := range s.ResolvedContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+s.ResolvedContext[k])
	}
	return query + ". Context: " + strings.Join(parts, " ")
}

// Clone returns a deep copy
func (s *ConversationState) Clone() *ConversationState {
	out := &ConversationState{UpdatedAt: s.UpdatedAt}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	out.ResolvedContext = make(map[string]string, len(s.ResolvedContext))
	for k, v := range s.ResolvedContext {
		out.ResolvedContext[k] = v
	}
	return out
}

func (s *ConversationState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
