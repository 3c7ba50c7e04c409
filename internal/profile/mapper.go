package profile

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/intake/internal/questionnaire"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultDerivedFlags apply when the questionnaire declares none: the organic
// label status collapses to true for certified or in-conversion farms.
var DefaultDerivedFlags = []questionnaire.DerivedFlag{
	{Field: "label_bio", QuestionID: "label_bio", TrueValues: []string{"certifie", "conversion"}},
}

// Mapper builds profiles. Identity and time generation are the only
// non-deterministic parts and are injected here; Project is pure.
type Mapper struct {
	clock Clock
	newID func() string
}

func NewMapper() *Mapper {
	return &Mapper{clock: realClock{}, newID: NewID}
}

// NewMapperWith creates a Mapper with a custom clock and id generator (for testing).
func NewMapperWith(clock Clock, newID func() string) *Mapper {
	return &Mapper{clock: clock, newID: newID}
}

// NewID returns a fresh profile identifier.
func NewID() string {
	return "profil_" + uuid.NewString()
}

// Build projects answers and stamps the result with a new id and timestamp.
func (m *Mapper) Build(cfg *questionnaire.Config, answers questionnaire.Answers) *Profile {
	return &Profile{
		ID:        m.newID(),
		CreatedAt: m.clock.Now().UTC().Truncate(time.Millisecond),
		Fields:    Project(cfg, answers),
	}
}

// Project maps every visible, answered question listed in the mapping to its
// target field, then adds the derived flags. Hidden questions, unanswered
// questions and questions outside the mapping never produce a key.
func Project(cfg *questionnaire.Config, answers questionnaire.Answers) map[string]any {
	live := questionnaire.Live(cfg, answers)
	out := make(map[string]any, len(cfg.Mapping)+1)

	for qid, field := range cfg.Mapping {
		v, ok := live[qid]
		if !ok || v.Empty() {
			continue
		}
		q, _ := cfg.Question(qid)
		out[field] = coerce(q, v)
	}

	flags := cfg.Metadata.DerivedFlags
	if len(flags) == 0 {
		flags = DefaultDerivedFlags
	}
	for _, f := range flags {
		out[f.Field] = flagValue(f, live)
	}
	return out
}

// coerce converts an answer to the wire type of its question: numbers are
// float64, multiselects are []string, everything else keeps its scalar form.
func coerce(q questionnaire.Question, v questionnaire.Value) any {
	switch q.Type {
	case questionnaire.TypeNumber:
		if f, ok := v.Float(); ok {
			return f
		}
	case questionnaire.TypeMultiSelect:
		if items := v.Items(); items != nil {
			return items
		}
	}
	return v.Interface()
}

func flagValue(f questionnaire.DerivedFlag, live questionnaire.AnswerMap) bool {
	v, ok := live[f.QuestionID]
	if !ok {
		return false
	}
	if s, ok := v.Str(); ok {
		return slices.Contains(f.TrueValues, s)
	}
	for _, item := range v.Items() {
		if slices.Contains(f.TrueValues, item) {
			return true
		}
	}
	if b, ok := v.Flag(); ok {
		return b && slices.Contains(f.TrueValues, "true")
	}
	return false
}
