package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVisibleWithoutRule(t *testing.T) {
	q := Question{ID: "q", Type: TypeText}
	for _, answers := range []AnswerMap{
		nil,
		{},
		{"q": Text("x")},
		{"other": Number(1), "q": Value{}},
	} {
		assert.True(t, IsVisible(q, answers))
	}
}

func TestIsVisibleUnansweredTrigger(t *testing.T) {
	rules := []VisibilityRule{
		{QuestionID: "t", Operator: OpLess, Value: Number(10)},
		{QuestionID: "t", Operator: OpGreater, Value: Number(10)},
		{QuestionID: "t", Operator: OpEqual, Value: Text("x")},
		{QuestionID: "t", Operator: OpNotEqual, Value: Text("x")},
		{QuestionID: "t", Operator: OpIn, Values: []Value{Text("x")}},
	}
	for _, r := range rules {
		t.Run(string(r.Operator), func(t *testing.T) {
			q := Question{ID: "q", Type: TypeText, VisibleIf: &r}
			assert.False(t, IsVisible(q, AnswerMap{}))
			assert.False(t, IsVisible(q, AnswerMap{"t": Value{}}))
		})
	}
}

func TestVisibilityOperators(t *testing.T) {
	tests := []struct {
		name    string
		rule    VisibilityRule
		trigger Value
		want    bool
	}{
		{"greater true", VisibilityRule{Operator: OpGreater, Value: Number(10)}, Number(20), true},
		{"greater false", VisibilityRule{Operator: OpGreater, Value: Number(10)}, Number(5), false},
		{"greater boundary", VisibilityRule{Operator: OpGreater, Value: Number(10)}, Number(10), false},
		{"greater numeric text", VisibilityRule{Operator: OpGreater, Value: Number(10)}, Text("12"), true},
		{"greater non-numeric", VisibilityRule{Operator: OpGreater, Value: Number(10)}, Text("many"), false},
		{"less true", VisibilityRule{Operator: OpLess, Value: Number(40)}, Number(25), true},
		{"less bool", VisibilityRule{Operator: OpLess, Value: Number(40)}, Bool(true), false},
		{"equal bool", VisibilityRule{Operator: OpEqual, Value: Bool(true)}, Bool(true), true},
		{"equal bool mismatch", VisibilityRule{Operator: OpEqual, Value: Bool(true)}, Bool(false), false},
		{"equal kinds differ", VisibilityRule{Operator: OpEqual, Value: Number(20)}, Text("20"), false},
		{"not equal", VisibilityRule{Operator: OpNotEqual, Value: Text("aucun")}, Text("certifie"), true},
		{"not equal same", VisibilityRule{Operator: OpNotEqual, Value: Text("aucun")}, Text("aucun"), false},
		{"in scalar", VisibilityRule{Operator: OpIn, Values: []Value{Text("a"), Text("b")}}, Text("b"), true},
		{"in scalar miss", VisibilityRule{Operator: OpIn, Values: []Value{Text("a"), Text("b")}}, Text("c"), false},
		{"in multiselect overlap", VisibilityRule{Operator: OpIn, Values: []Value{Text("a"), Text("b")}}, Set("z", "b"), true},
		{"in multiselect disjoint", VisibilityRule{Operator: OpIn, Values: []Value{Text("a")}}, Set("z"), false},
		{"unknown operator", VisibilityRule{Operator: "~=", Value: Text("x")}, Text("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.QuestionID = "t"
			q := Question{ID: "q", Type: TypeText, VisibleIf: &rule}
			assert.Equal(t, tt.want, IsVisible(q, AnswerMap{"t": tt.trigger}))
		})
	}
}

func TestIsVisibleIdempotent(t *testing.T) {
	cfg := loadFixture(t)
	q, _ := cfg.Question("annees_installation")
	answers := AnswerMap{"installation_recente": Bool(true)}

	first := IsVisible(q, answers)
	second := IsVisible(q, answers)
	assert.True(t, first)
	assert.Equal(t, first, second)
}

func TestLiveHidesTransitively(t *testing.T) {
	cfg := mustParse(t, `{"sections":[{"id":"s","title":"S","questions":[
		{"id":"a","type":"radio","label":"A","options":[{"value":"yes","label":"Yes"},{"value":"no","label":"No"}]},
		{"id":"b","type":"number","label":"B","visible_if":{"question_id":"a","operator":"==","value":"yes"}},
		{"id":"c","type":"text","label":"C","visible_if":{"question_id":"b","operator":">","value":3}}
	]}],"mapping":{}}`)

	answers := AnswerMap{"a": Text("yes"), "b": Number(5), "c": Text("kept")}
	live := Live(cfg, answers)
	assert.Len(t, live, 3)

	// b keeps a stale answer after a flips; c must disappear with it.
	answers["a"] = Text("no")
	live = Live(cfg, answers)
	assert.Equal(t, AnswerMap{"a": Text("no")}, live)
}

func TestVisibleQuestions(t *testing.T) {
	cfg := loadFixture(t)
	farm := section(t, cfg, "exploitation")

	ids := func(qs []Question) []string {
		out := make([]string, 0, len(qs))
		for _, q := range qs {
			out = append(out, q.ID)
		}
		return out
	}

	assert.Equal(t,
		[]string{"sau_totale", "sau_bio", "label_bio", "productions"},
		ids(VisibleQuestions(farm, AnswerMap{"productions": Set("cereales")})))
	assert.Equal(t,
		[]string{"sau_totale", "sau_bio", "label_bio", "productions", "cheptel"},
		ids(VisibleQuestions(farm, AnswerMap{"productions": Set("cereales", "elevage_ovin")})))
}
