package session

import "github.com/kalambet/intake/internal/questionnaire"

// Step is the outcome of a forward transition.
type Step int

const (
	// StepBlocked means the current section has errors; the index is unchanged.
	StepBlocked Step = iota
	// StepAdvanced means the index moved to the next section.
	StepAdvanced
	// StepSubmit means the last section validated and the submit path starts.
	StepSubmit
)

func (s Step) String() string {
	switch s {
	case StepBlocked:
		return "blocked"
	case StepAdvanced:
		return "advanced"
	case StepSubmit:
		return "submit"
	}
	return "unknown"
}

// Navigator owns the current section index. Sections are visited in order;
// the terminal submitted state is entered with MarkSubmitted.
type Navigator struct {
	index     int
	total     int
	submitted bool
}

func NewNavigator(total int) *Navigator {
	return &Navigator{total: total}
}

func (n *Navigator) Index() int      { return n.index }
func (n *Navigator) Total() int      { return n.total }
func (n *Navigator) Last() bool      { return n.index == n.total-1 }
func (n *Navigator) Submitted() bool { return n.submitted }

// Next moves forward only when errs is empty. From the last section it
// reports StepSubmit without changing the index.
func (n *Navigator) Next(errs questionnaire.FieldErrors) (Step, error) {
	if n.submitted {
		return StepBlocked, ErrComplete
	}
	if len(errs) > 0 {
		return StepBlocked, nil
	}
	if n.Last() {
		return StepSubmit, nil
	}
	n.index++
	return StepAdvanced, nil
}

// Previous moves back one section without validating. It reports whether
// the index changed.
func (n *Navigator) Previous() (bool, error) {
	if n.submitted {
		return false, ErrComplete
	}
	if n.index == 0 {
		return false, nil
	}
	n.index--
	return true, nil
}

func (n *Navigator) MarkSubmitted() { n.submitted = true }

func (n *Navigator) Reset() {
	n.index = 0
	n.submitted = false
}

// Progress returns the 1-based position of the current section and the
// completion percentage it represents.
func (n *Navigator) Progress() (current int, percent float64) {
	if n.total == 0 {
		return 0, 0
	}
	if n.submitted {
		return n.total, 100
	}
	current = n.index + 1
	return current, float64(current) / float64(n.total) * 100
}
