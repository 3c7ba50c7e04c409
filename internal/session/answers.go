package session

import (
	"sort"
	"sync"

	"github.com/kalambet/intake/internal/questionnaire"
)

// Answers is the mutable answer store of one session. Values are stored
// exactly as given; coercion happens when they are validated or mapped.
type Answers struct {
	mu     sync.RWMutex
	values map[string]questionnaire.Value
}

func NewAnswers() *Answers {
	return &Answers{values: make(map[string]questionnaire.Value)}
}

// Set records an answer. Setting the zero Value removes it.
func (a *Answers) Set(questionID string, v questionnaire.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.IsZero() {
		delete(a.values, questionID)
		return
	}
	a.values[questionID] = v
}

func (a *Answers) Get(questionID string) (questionnaire.Value, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[questionID]
	return v, ok
}

func (a *Answers) Delete(questionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.values, questionID)
}

func (a *Answers) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.values)
}

// Reset discards every answer.
func (a *Answers) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values = make(map[string]questionnaire.Value)
}

// Snapshot returns an immutable copy of the current answers.
func (a *Answers) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	values := make(map[string]questionnaire.Value, len(a.values))
	for k, v := range a.values {
		values[k] = v
	}
	return Snapshot{values: values}
}

// Snapshot is a point-in-time, read-only view of Answers.
type Snapshot struct {
	values map[string]questionnaire.Value
}

func (s Snapshot) Get(questionID string) (questionnaire.Value, bool) {
	v, ok := s.values[questionID]
	return v, ok
}

func (s Snapshot) Len() int { return len(s.values) }

// IDs returns the answered question ids in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Map returns a copy of the snapshot as a plain answer map.
func (s Snapshot) Map() questionnaire.AnswerMap {
	out := make(questionnaire.AnswerMap, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
