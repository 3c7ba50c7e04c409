package questionnaire

// Answers is a read-only view of the answer set.
type Answers interface {
	Get(questionID string) (Value, bool)
}

// AnswerMap is the plain map implementation of Answers.
type AnswerMap map[string]Value

func (m AnswerMap) Get(questionID string) (Value, bool) {
	v, ok := m[questionID]
	return v, ok
}

// IsVisible decides whether q is currently presented. A question without
// visible_if is always visible; one whose trigger is unanswered never is.
func IsVisible(q Question, answers Answers) bool {
	if q.VisibleIf == nil {
		return true
	}
	trigger, ok := answers.Get(q.VisibleIf.QuestionID)
	if !ok || trigger.IsZero() {
		return false
	}
	return q.VisibleIf.Matches(trigger)
}

// Matches applies the rule's operator to the trigger answer.
// Unknown operators never match.
func (r VisibilityRule) Matches(trigger Value) bool {
	switch r.Operator {
	case OpLess, OpGreater:
		a, ok := trigger.Float()
		if !ok {
			return false
		}
		b, ok := r.Value.Float()
		if !ok {
			return false
		}
		if r.Operator == OpLess {
			return a < b
		}
		return a > b
	case OpEqual:
		return trigger.Equal(r.Value)
	case OpNotEqual:
		return !trigger.Equal(r.Value)
	case OpIn:
		for _, v := range r.Values {
			if trigger.Equal(v) {
				return true
			}
			// A multiselect trigger matches when any selection is listed.
			if s, ok := v.Str(); ok && trigger.Contains(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Live returns the answers of the questions that are visible right now.
// Questions are walked in document order so a hidden trigger also hides
// everything depending on it, whatever stale answer it still holds.
func Live(cfg *Config, answers Answers) AnswerMap {
	live := make(AnswerMap)
	for _, s := range cfg.Sections {
		for _, q := range s.Questions {
			if !IsVisible(q, live) {
				continue
			}
			if v, ok := answers.Get(q.ID); ok && !v.IsZero() {
				live[q.ID] = v
			}
		}
	}
	return live
}

// VisibleQuestions filters a section down to the questions currently shown.
func VisibleQuestions(section Section, answers Answers) []Question {
	out := make([]Question, 0, len(section.Questions))
	for _, q := range section.Questions {
		if IsVisible(q, answers) {
			out = append(out, q)
		}
	}
	return out
}
