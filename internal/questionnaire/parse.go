package questionnaire

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// envelope is the wrapper some config endpoints put around the document.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Config  json.RawMessage `json:"config"`
}

type rawSection struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Titre       string     `json:"titre"`
	Description string     `json:"description"`
	Importance  string     `json:"importance"`
	Questions   []Question `json:"questions"`
}

type rawConfig struct {
	Sections        []rawSection      `json:"sections"`
	Mapping         map[string]string `json:"mapping"`
	LegacyMapping   map[string]string `json:"mapping_to_profil_v2"`
	ValidationRules ValidationRules   `json:"validation_rules"`
	Metadata        Metadata          `json:"metadata"`
}

// Parse decodes and validates a questionnaire document. It accepts either the
// bare document or an envelope of the form {"status":"success","config":{...}}.
func Parse(data []byte) (*Config, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	if _, wrapped := top["config"]; wrapped {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decoding envelope: %w", err)
		}
		if env.Status != "" && env.Status != "success" {
			return nil, fmt.Errorf("source reported status %q: %s", env.Status, env.Message)
		}
		data = env.Config
	} else if status, ok := top["status"]; ok {
		var s string
		_ = json.Unmarshal(status, &s)
		if s != "" && s != "success" {
			var env envelope
			_ = json.Unmarshal(data, &env)
			return nil, fmt.Errorf("source reported status %q: %s", s, env.Message)
		}
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if raw.Sections == nil {
		return nil, errors.New(`missing required key "sections"`)
	}
	mapping := raw.Mapping
	if mapping == nil {
		mapping = raw.LegacyMapping
	}
	if mapping == nil {
		return nil, errors.New(`missing required key "mapping"`)
	}

	cfg := &Config{
		Sections:        make([]Section, 0, len(raw.Sections)),
		Mapping:         mapping,
		ValidationRules: raw.ValidationRules,
		Metadata:        raw.Metadata,
	}
	for _, rs := range raw.Sections {
		title := rs.Title
		if title == "" {
			title = rs.Titre
		}
		cfg.Sections = append(cfg.Sections, Section{
			ID:          rs.ID,
			Title:       title,
			Description: rs.Description,
			Importance:  rs.Importance,
			Questions:   rs.Questions,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the document's structural invariants, normalizes rule
// expressions, compiles patterns and builds the question index. Every problem
// found is reported.
//
// A visible_if must reference a question that appears earlier in document
// order, which rules out forward references and dependency cycles. Unknown
// operators are rejected here rather than interpreted at runtime.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Sections) == 0 {
		fail("document has no sections")
	}

	index := make(map[string]position)
	for si := range c.Sections {
		s := &c.Sections[si]
		if len(s.Questions) == 0 {
			fail("section %d (%q) has no questions", si, s.ID)
		}
		for qi := range s.Questions {
			q := &s.Questions[qi]
			if q.ID == "" {
				fail("section %q: question %d has no id", s.ID, qi)
				continue
			}
			if _, dup := index[q.ID]; dup {
				fail("duplicate question id %q", q.ID)
				continue
			}
			for _, e := range validateQuestion(q) {
				errs = append(errs, fmt.Errorf("question %q: %w", q.ID, e))
			}
			if q.VisibleIf != nil {
				for _, e := range c.validateRule(q.VisibleIf, index) {
					errs = append(errs, fmt.Errorf("question %q: visible_if: %w", q.ID, e))
				}
			}
			index[q.ID] = position{section: si, question: qi}
		}
	}

	for qid := range c.Mapping {
		if _, ok := index[qid]; !ok {
			fail("mapping references unknown question %q", qid)
		}
	}

	for i := range c.ValidationRules.CrossField {
		r := &c.ValidationRules.CrossField[i]
		if err := normalizeCrossField(r); err != nil {
			fail("cross_field rule %d: %v", i, err)
			continue
		}
		r.home = ""
		last := position{section: -1, question: -1}
		for _, f := range r.Fields {
			p, ok := index[f]
			if !ok {
				fail("cross_field rule %d references unknown question %q", i, f)
				continue
			}
			if p.after(last) {
				last, r.home = p, f
			}
		}
		if !slices.Contains(r.Fields, r.AnchorID()) {
			fail("cross_field rule %d: anchor %q is not one of its fields", i, r.AnchorID())
		}
	}

	for i, d := range c.Metadata.DerivedFlags {
		if d.Field == "" {
			fail("derived flag %d has no field", i)
		}
		if _, ok := index[d.QuestionID]; !ok {
			fail("derived flag %q references unknown question %q", d.Field, d.QuestionID)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.index = index
	return nil
}

func validateQuestion(q *Question) []error {
	var errs []error
	if !q.Type.Valid() {
		return []error{fmt.Errorf("unknown type %q", q.Type)}
	}
	if q.Type.HasOptions() && len(q.Options) == 0 {
		errs = append(errs, fmt.Errorf("%s question needs options", q.Type))
	}
	for i, o := range q.Options {
		if o.Value.IsZero() || o.Value.Kind() == KindSet {
			errs = append(errs, fmt.Errorf("option %d has no scalar value", i))
		}
		if q.Type == TypeMultiSelect && o.Value.Kind() != KindText {
			errs = append(errs, fmt.Errorf("multiselect option %d must be a string", i))
		}
	}
	if q.MinSelections < 0 || q.MaxSelections < 0 {
		errs = append(errs, errors.New("selection bounds must not be negative"))
	}
	if q.MinSelections > 0 && q.MaxSelections > 0 && q.MinSelections > q.MaxSelections {
		errs = append(errs, fmt.Errorf("min_selections %d exceeds max_selections %d", q.MinSelections, q.MaxSelections))
	}
	if v := q.Validation; v != nil {
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			errs = append(errs, fmt.Errorf("validation min %v exceeds max %v", *v.Min, *v.Max))
		}
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid pattern: %w", err))
			} else {
				v.re = re
			}
		}
	}
	return errs
}

// validateRule checks a visibility rule against the questions seen so far.
func (c *Config) validateRule(r *VisibilityRule, seen map[string]position) []error {
	if !r.Operator.Valid() {
		return []error{fmt.Errorf("unknown operator %q", r.Operator)}
	}
	p, ok := seen[r.QuestionID]
	if !ok {
		if _, later := c.lookupLinear(r.QuestionID); later {
			return []error{fmt.Errorf("forward reference to %q", r.QuestionID)}
		}
		return []error{fmt.Errorf("unknown question %q", r.QuestionID)}
	}
	trigger := c.Sections[p.section].Questions[p.question]

	var operands []Value
	switch r.Operator {
	case OpIn:
		if len(r.Values) == 0 {
			return []error{errors.New(`operator "in" needs values`)}
		}
		operands = r.Values
	case OpLess, OpGreater:
		if _, ok := r.Value.Float(); !ok {
			return []error{fmt.Errorf("operator %q needs a numeric value", r.Operator)}
		}
		return nil
	default:
		if r.Value.IsZero() {
			return []error{fmt.Errorf("operator %q needs a value", r.Operator)}
		}
		operands = []Value{r.Value}
	}

	if !trigger.Type.HasOptions() {
		return nil
	}
	var errs []error
	for _, v := range operands {
		if !trigger.HasOption(v) {
			errs = append(errs, fmt.Errorf("value %q is not an option of %q", v.String(), trigger.ID))
		}
	}
	return errs
}

func (p position) after(o position) bool {
	if p.section != o.section {
		return p.section > o.section
	}
	return p.question > o.question
}

func (c *Config) lookupLinear(id string) (Question, bool) {
	for _, s := range c.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// normalizeCrossField fills Fields and Operator from an expression such as
// "a <= b" or "a <= b <= c".
func normalizeCrossField(r *CrossFieldRule) error {
	if len(r.Fields) == 0 && r.Rule != "" {
		tokens := strings.Fields(r.Rule)
		if len(tokens) < 3 || len(tokens)%2 == 0 {
			return fmt.Errorf("cannot parse expression %q", r.Rule)
		}
		op := Relation(tokens[1])
		for i := 1; i < len(tokens); i += 2 {
			if Relation(tokens[i]) != op {
				return fmt.Errorf("mixed operators in %q", r.Rule)
			}
		}
		for i := 0; i < len(tokens); i += 2 {
			r.Fields = append(r.Fields, tokens[i])
		}
		if r.Operator == "" {
			r.Operator = op
		}
	}
	if len(r.Fields) < 2 {
		return errors.New("needs at least two fields")
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	if r.ErrorMessage == "" {
		return errors.New("missing error_message")
	}
	return nil
}
