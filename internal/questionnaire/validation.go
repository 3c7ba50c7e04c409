package questionnaire

import (
	"fmt"
	"strconv"
)

const (
	MsgRequired        = "this field is required"
	MsgNotNumber       = "value must be a number"
	MsgInvalidFormat   = "invalid format"
	MsgInvalidOption   = "value is not one of the proposed options"
	MsgInvalidValue    = "invalid value for this question"
	MsgUnsupportedType = "unsupported question type"
)

// ValidateSection checks the visible questions of one section: required-ness
// first, then per-type constraints, then the cross-field rules whose home
// question (see CrossFieldRule.HomeID) belongs to this section. A rule
// violation is reported on the anchor when it is shown in this section and on
// the home question otherwise.
//
// Pass the live answers (see Live) so stale answers of hidden questions are
// never considered.
func ValidateSection(section Section, answers Answers, rules []CrossFieldRule) FieldErrors {
	errs := make(FieldErrors)
	visible := make(map[string]bool, len(section.Questions))

	for _, q := range section.Questions {
		if !IsVisible(q, answers) {
			continue
		}
		visible[q.ID] = true

		v, _ := answers.Get(q.ID)
		if q.Required && v.Empty() {
			errs[q.ID] = MsgRequired
			continue
		}
		if v.Blank() {
			continue
		}
		if msg := checkAnswer(q, v); msg != "" {
			errs[q.ID] = msg
		}
	}

	for _, r := range rules {
		target := r.AnchorID()
		if !visible[target] {
			target = r.HomeID()
		}
		if !visible[target] || !section.Has(r.HomeID()) {
			continue
		}
		if _, already := errs[target]; already {
			continue
		}
		if r.Violated(answers) {
			errs[target] = r.ErrorMessage
		}
	}
	return errs
}

// checkAnswer applies the per-type constraints of q to a present answer.
func checkAnswer(q Question, v Value) string {
	switch q.Type {
	case TypeNumber:
		return checkNumber(q, v)
	case TypeText:
		return checkText(q, v)
	case TypeMultiSelect:
		return checkSelection(q, v)
	case TypeSelect, TypeRadio:
		if !q.HasOption(v) {
			return MsgInvalidOption
		}
		return ""
	default:
		return MsgUnsupportedType
	}
}

func checkNumber(q Question, v Value) string {
	f, ok := v.Float()
	if !ok {
		return MsgNotNumber
	}
	if q.Validation == nil {
		return ""
	}
	if lo := q.Validation.Min; lo != nil && f < *lo {
		return fmt.Sprintf("value must be greater than or equal to %s", formatFloat(*lo))
	}
	if hi := q.Validation.Max; hi != nil && f > *hi {
		return fmt.Sprintf("value must be less than or equal to %s", formatFloat(*hi))
	}
	return ""
}

func checkText(q Question, v Value) string {
	s, ok := v.Str()
	if !ok {
		return MsgInvalidValue
	}
	if q.Validation == nil || q.Validation.Pattern == "" {
		return ""
	}
	re, err := q.Validation.Regexp()
	if err == nil && re.MatchString(s) {
		return ""
	}
	if q.Validation.ErrorMessage != "" {
		return q.Validation.ErrorMessage
	}
	return MsgInvalidFormat
}

func checkSelection(q Question, v Value) string {
	if v.Kind() != KindSet {
		return MsgInvalidValue
	}
	for _, item := range v.Items() {
		if !q.HasOption(Text(item)) {
			return MsgInvalidOption
		}
	}
	n := v.Len()
	if q.MinSelections > 0 && n < q.MinSelections {
		return fmt.Sprintf("select at least %d option(s)", q.MinSelections)
	}
	if q.MaxSelections > 0 && n > q.MaxSelections {
		return fmt.Sprintf("select at most %d option(s)", q.MaxSelections)
	}
	return ""
}

// Violated reports whether every field of the rule is answered and the
// relation fails for some adjacent pair. Unanswered or incomparable fields
// leave the rule unevaluated.
func (r CrossFieldRule) Violated(answers Answers) bool {
	values := make([]Value, 0, len(r.Fields))
	for _, f := range r.Fields {
		v, ok := answers.Get(f)
		if !ok || v.Blank() {
			return false
		}
		values = append(values, v)
	}
	for i := 0; i+1 < len(values); i++ {
		holds, ok := r.Operator.Holds(values[i], values[i+1])
		if !ok {
			return false
		}
		if !holds {
			return true
		}
	}
	return false
}

// Holds compares a and b numerically when both are numeric. Equality
// relations fall back to structural equality for other kinds.
func (r Relation) Holds(a, b Value) (holds, ok bool) {
	x, okA := a.Float()
	y, okB := b.Float()
	if okA && okB {
		switch r {
		case RelLess:
			return x < y, true
		case RelLessEqual:
			return x <= y, true
		case RelGreater:
			return x > y, true
		case RelGreaterEqual:
			return x >= y, true
		case RelEqual:
			return x == y, true
		case RelNotEqual:
			return x != y, true
		}
		return false, false
	}
	switch r {
	case RelEqual:
		return a.Equal(b), true
	case RelNotEqual:
		return !a.Equal(b), true
	}
	return false, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
