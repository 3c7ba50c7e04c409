package questionnaire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindText
	KindBool
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an answer or a rule operand: a number, a string, a boolean, or an
// unordered set of strings. The zero Value is "absent".
//
// Values are immutable; Set copies its input and Items returns a copy.
type Value struct {
	kind Kind
	num  float64
	text string
	flag bool
	set  []string
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Set builds a set value. Duplicates are dropped, first occurrence order is kept.
func Set(items ...string) Value {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !slices.Contains(out, it) {
			out = append(out, it)
		}
	}
	return Value{kind: KindSet, set: out}
}

func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is absent.
func (v Value) IsZero() bool { return v.kind == KindNone }

// Blank reports whether v is absent or an empty string.
func (v Value) Blank() bool {
	return v.kind == KindNone || (v.kind == KindText && v.text == "")
}

// Empty reports whether v counts as unanswered for a required question.
func (v Value) Empty() bool {
	return v.Blank() || (v.kind == KindSet && len(v.set) == 0)
}

// Float returns v as a number. Text is parsed; other kinds are not numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Str returns the text of a text value.
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Flag returns the boolean of a bool value.
func (v Value) Flag() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

// Items returns a copy of the members of a set value, nil for other kinds.
func (v Value) Items() []string {
	if v.kind != KindSet {
		return nil
	}
	return slices.Clone(v.set)
}

// Len is the number of members of a set value.
func (v Value) Len() int { return len(v.set) }

// Contains reports whether a set value has item as a member.
func (v Value) Contains(item string) bool {
	return v.kind == KindSet && slices.Contains(v.set, item)
}

// Equal is structural equality. Kinds must match; sets compare unordered.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	case KindSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for _, it := range v.set {
			if !slices.Contains(o.set, it) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface returns the plain Go form used on the wire:
// nil, float64, string, bool or []string.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.flag
	case KindSet:
		return slices.Clone(v.set)
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindSet:
		return "[" + strings.Join(v.set, ", ") + "]"
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindSet && v.set == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON/YAML scalar or string list into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case []string:
		return Set(t...), nil
	case []any:
		items := make([]string, 0, len(t))
		for i, el := range t {
			s, ok := el.(string)
			if !ok {
				return Value{}, fmt.Errorf("set element %d is %T, want string", i, el)
			}
			items = append(items, s)
		}
		return Set(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported answer type %T", x)
	}
}
