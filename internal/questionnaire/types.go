// Package questionnaire holds the runtime-configurable form model: the
// questionnaire document, its loader, and the pure visibility and validation
// rules that are evaluated against a snapshot of answers.
package questionnaire

import (
	"regexp"
	"strings"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	TypeSelect      QuestionType = "select"
	TypeMultiSelect QuestionType = "multiselect"
	TypeNumber      QuestionType = "number"
	TypeRadio       QuestionType = "radio"
	TypeText        QuestionType = "text"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeSelect, TypeMultiSelect, TypeNumber, TypeRadio, TypeText:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type pick from declared options.
func (t QuestionType) HasOptions() bool {
	switch t {
	case TypeSelect, TypeMultiSelect, TypeRadio:
		return true
	}
	return false
}

// Option is one choice of a select, multiselect or radio question.
type Option struct {
	Value Value  `json:"value"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
}

// Validation holds the per-type constraints of a question.
// Min and Max apply to numbers, Pattern and ErrorMessage to text.
type Validation struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	re *regexp.Regexp
}

// Regexp returns the compiled pattern, compiling it on demand when the
// document was not built through Parse.
func (v *Validation) Regexp() (*regexp.Regexp, error) {
	if v.re != nil {
		return v.re, nil
	}
	return regexp.Compile(v.Pattern)
}

type Question struct {
	ID            string          `json:"id"`
	Type          QuestionType    `json:"type"`
	Label         string          `json:"label"`
	HelpText      string          `json:"help_text,omitempty"`
	Required      bool            `json:"required,omitempty"`
	Options       []Option        `json:"options,omitempty"`
	Validation    *Validation     `json:"validation,omitempty"`
	MinSelections int             `json:"min_selections,omitempty"`
	MaxSelections int             `json:"max_selections,omitempty"`
	VisibleIf     *VisibilityRule `json:"visible_if,omitempty"`
}

// HasOption reports whether v is one of the question's declared option values.
func (q Question) HasOption(v Value) bool {
	for _, o := range q.Options {
		if o.Value.Equal(v) {
			return true
		}
	}
	return false
}

// OptionLabel returns the label of the option whose value equals v.
func (q Question) OptionLabel(v Value) string {
	for _, o := range q.Options {
		if o.Value.Equal(v) {
			return o.Label
		}
	}
	return v.String()
}

type Section struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Importance  string     `json:"importance,omitempty"`
	Questions   []Question `json:"questions"`
}

// Has reports whether the question belongs to the section.
func (s Section) Has(questionID string) bool {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

// Critical reports whether the section is flagged as important.
func (s Section) Critical() bool {
	switch strings.ToLower(strings.TrimSpace(s.Importance)) {
	case "critique", "critical":
		return true
	}
	return false
}

// Operator is a visibility comparison.
type Operator string

const (
	OpLess     Operator = "<"
	OpGreater  Operator = ">"
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpIn       Operator = "in"
)

func (o Operator) Valid() bool {
	switch o {
	case OpLess, OpGreater, OpEqual, OpNotEqual, OpIn:
		return true
	}
	return false
}

// VisibilityRule makes a question depend on the answer to another question.
// Value is the operand of <, >, == and !=; Values is the set for "in".
type VisibilityRule struct {
	QuestionID string   `json:"question_id"`
	Operator   Operator `json:"operator"`
	Value      Value    `json:"value,omitzero"`
	Values     []Value  `json:"values,omitempty"`
}

// Relation is the predicate of a cross-field rule.
type Relation string

const (
	RelLess         Relation = "<"
	RelLessEqual    Relation = "<="
	RelGreater      Relation = ">"
	RelGreaterEqual Relation = ">="
	RelEqual        Relation = "=="
	RelNotEqual     Relation = "!="
)

func (r Relation) Valid() bool {
	switch r {
	case RelLess, RelLessEqual, RelGreater, RelGreaterEqual, RelEqual, RelNotEqual:
		return true
	}
	return false
}

// CrossFieldRule relates the answers of two or more questions. With more than
// two fields the relation must hold between each adjacent pair. A violation is
// reported on Anchor, which defaults to the first field.
//
// Rules may be written as an expression in Rule ("sau_bio <= sau_totale");
// Parse fills Fields and Operator from it.
type CrossFieldRule struct {
	ID           string   `json:"id,omitempty"`
	Rule         string   `json:"rule,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	Operator     Relation `json:"operator,omitempty"`
	Anchor       string   `json:"anchor,omitempty"`
	ErrorMessage string   `json:"error_message"`

	// home is the field that comes last in document order, set by Validate.
	home string
}

// AnchorID is the question the rule's error is attached to.
func (r CrossFieldRule) AnchorID() string {
	if r.Anchor != "" {
		return r.Anchor
	}
	if len(r.Fields) > 0 {
		return r.Fields[0]
	}
	return ""
}

// HomeID is the question whose section checks the rule: the field that
// comes last in document order, so every field has been presented by then.
// Rules built outside Parse fall back to the anchor.
func (r CrossFieldRule) HomeID() string {
	if r.home != "" {
		return r.home
	}
	return r.AnchorID()
}

type ValidationRules struct {
	CrossField []CrossFieldRule `json:"cross_field,omitempty"`
}

// DerivedFlag collapses a categorical answer into a boolean profile field:
// Field is true iff the answer to QuestionID is one of TrueValues.
type DerivedFlag struct {
	Field      string   `json:"field"`
	QuestionID string   `json:"question_id"`
	TrueValues []string `json:"true_values"`
}

type Metadata struct {
	Version              string        `json:"version,omitempty"`
	EstimatedTimeMinutes float64       `json:"estimated_time_minutes,omitempty"`
	DerivedFlags         []DerivedFlag `json:"derived_flags,omitempty"`
}

const defaultEstimatedMinutes = 5

// EstimatedMinutes returns the declared duration, or 5 when none is declared.
func (m Metadata) EstimatedMinutes() float64 {
	if m.EstimatedTimeMinutes <= 0 {
		return defaultEstimatedMinutes
	}
	return m.EstimatedTimeMinutes
}

// Config is a questionnaire document. It must be treated as read-only once
// loaded: sessions share one *Config.
type Config struct {
	Sections        []Section         `json:"sections"`
	Mapping         map[string]string `json:"mapping"`
	ValidationRules ValidationRules   `json:"validation_rules"`
	Metadata        Metadata          `json:"metadata"`

	index map[string]position
}

type position struct {
	section  int
	question int
}

// Question looks up a question by id.
func (c *Config) Question(id string) (Question, bool) {
	if c.index != nil {
		p, ok := c.index[id]
		if !ok {
			return Question{}, false
		}
		return c.Sections[p.section].Questions[p.question], true
	}
	for _, s := range c.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// SectionOf returns the index of the section holding question id.
func (c *Config) SectionOf(id string) (int, bool) {
	if c.index != nil {
		p, ok := c.index[id]
		return p.section, ok
	}
	for i, s := range c.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return i, true
			}
		}
	}
	return 0, false
}

// CrossFieldRules returns the document's cross-field rules.
func (c *Config) CrossFieldRules() []CrossFieldRule {
	return c.ValidationRules.CrossField
}

// QuestionCount is the number of questions across all sections.
func (c *Config) QuestionCount() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Questions)
	}
	return n
}
