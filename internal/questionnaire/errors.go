package questionnaire

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigError is returned when a questionnaire document cannot be fetched or
// is structurally invalid. No partial Config accompanies it.
type ConfigError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("questionnaire config")
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s)", e.Source)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FieldErrors maps a question id to a user-facing message.
// An empty map means the validated section is valid.
type FieldErrors map[string]string

// IDs returns the erroring question ids in sorted order.
func (f FieldErrors) IDs() []string {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy.
func (f FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ValidationError blocks the forward transition out of a section.
type ValidationError struct {
	SectionID string
	Fields    FieldErrors
}

func NewValidationError(sectionID string, fields FieldErrors) *ValidationError {
	return &ValidationError{SectionID: sectionID, Fields: fields.Clone()}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("section %q has %d invalid field(s): %s",
		e.SectionID, len(e.Fields), strings.Join(e.Fields.IDs(), ", "))
}
