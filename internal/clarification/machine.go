package clarification

// Fixed texts shared with the pipeline
const (
	AmbiguityQuestion = "Top by which metric (total revenue, number of orders, or return rate)?"
	DefaultFill       = "by total revenue in the last 30 days"
	DefaultsGuard     = "(apply defaults only; DO NOT add extra filters or invent values)"
)

// TransitionKind is what Advance decided for one turn
type TransitionKind int

const (
	// TransitionProceed: no clarification outstanding, Query is fresh input
	TransitionProceed TransitionKind = iota
	// TransitionAsk: a new clarification is pending, Question must be returned
	TransitionAsk
	// TransitionRepeat: the pending query was repeated, Question is re-emitted
	TransitionRepeat
	// TransitionMerged: the turn answered the pending question, Query is merged
	TransitionMerged
	// TransitionDefaulted: defaults were filled in instead of asking
	TransitionDefaulted
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionAsk:
		return "ask"
	case TransitionRepeat:
		return "repeat"
	case TransitionMerged:
		return "merged"
	case TransitionDefaulted:
		return "defaulted"
	default:
		return "proceed"
	}
}

// Transition is the result of applying one user turn to a conversation
type Transition struct {
	Kind     TransitionKind
	Question string
	// Query is the text to generate SQL from; empty for Ask and Repeat
	Query string
	// Discarded is set when a pending clarification was dropped because the
	// turn was an unrelated new query
	Discarded bool
}

// Resolved reports whether Query is final and the clarifier must be skipped
func (t Transition) Resolved() bool {
	return t.Kind == TransitionMerged || t.Kind == TransitionDefaulted
}

// NeedsClarification reports whether the turn ends with a question
func (t Transition) NeedsClarification() bool {
	return t.Kind == TransitionAsk || t.Kind == TransitionRepeat
}

// Machine applies user turns to a ConversationState. Strict machines always
// ask instead of filling defaults.
type Machine struct {
	Strict     bool
	Detector   *AmbiguityDetector
	Classifier AnswerClassifier
	Question   string
}

// NewMachine creates a machine with the standard detector and classifier
func NewMachine(strict bool) *Machine {
	return &Machine{
		Strict:     strict,
		Detector:   NewAmbiguityDetector(),
		Classifier: NewHeuristicClassifier(),
		Question:   AmbiguityQuestion,
	}
}

// Advance applies query to state and returns the transition. allowDefaults
// only has an effect on non-strict machines.
func (m *Machine) Advance(state *ConversationState, query string, allowDefaults bool) Transition {
	if state.HasPending() {
		if state.IsSamePending(query) {
			return Transition{Kind: TransitionRepeat, Question: state.PendingQuestion()}
		}
		if m.Classifier.IsAnswer(query) {
			return Transition{Kind: TransitionMerged, Query: state.Resolve(query)}
		}
		state.Reset()
		t := m.fresh(state, query, allowDefaults)
		t.Discarded = true
		return t
	}
	return m.fresh(state, query, allowDefaults)
}

func (m *Machine) fresh(state *ConversationState, query string, allowDefaults bool) Transition {
	if !m.Detector.Ambiguous(query) {
		return Transition{Kind: TransitionProceed, Query: query}
	}
	return m.RequireClarification(state, query, m.Question, allowDefaults)
}

// RequireClarification handles a question raised for query, either by the
// ambiguity heuristic or an external clarifier: it sets the pending entry,
// or fills defaults when the machine is not strict and defaults are allowed.
func (m *Machine) RequireClarification(state *ConversationState, query, question string, allowDefaults bool) Transition {
	if !m.Strict && allowDefaults {
		return Transition{Kind: TransitionDefaulted, Query: WithDefaults(query)}
	}
	state.SetPending(query, question)
	return Transition{Kind: TransitionAsk, Question: question}
}

// WithDefaults appends the default fill and its guard instruction
func WithDefaults(query string) string {
	return query + " " + DefaultFill + " " + DefaultsGuard
}
