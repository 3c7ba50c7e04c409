package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/storage"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decode[map[string]string](t, rr)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer nope"},
		{"wrong scheme", "Basic " + testToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/questionnaire", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			body := decode[errorBody](t, rr)
			if body.Error.Type != "authentication_error" {
				t.Errorf("error type = %q", body.Error.Type)
			}
		})
	}
}

func TestBearerAuthEmptyTokenRejectsAll(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with empty token")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestGetQuestionnaire(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/questionnaire", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	view := decode[QuestionnaireView](t, rr)

	if view.Version != "1.2" || view.EstimatedMinutes != 3 || view.QuestionCount != 4 {
		t.Errorf("metadata = %+v", view)
	}
	if len(view.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(view.Sections))
	}
	one := view.Sections[0]
	if !one.Critical {
		t.Error("section one should be critical")
	}
	if !strings.Contains(one.DescriptionHTML, "<strong>where</strong>") {
		t.Errorf("description_html = %q", one.DescriptionHTML)
	}
	if strings.Contains(one.DescriptionHTML, "<script>") {
		t.Errorf("raw HTML leaked into description_html: %q", one.DescriptionHTML)
	}
	if got := one.Questions[0].HelpHTML; !strings.Contains(got, "<em>hectares</em>") {
		t.Errorf("help_html = %q", got)
	}
	if len(view.Sections[1].Questions) != 3 {
		t.Errorf("questionnaire view must list hidden questions too, got %d", len(view.Sections[1].Questions))
	}
	if !view.Sections[1].Questions[0].Conditional {
		t.Error("q2 should be flagged conditional")
	}
}

func TestSessionHappyPath(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body)
	}
	view := decode[SessionView](t, rr)
	if view.ID == "" || view.SectionIndex != 0 || view.SectionCount != 2 {
		t.Fatalf("unexpected session view %+v", view)
	}
	base := "/sessions/" + view.ID

	rr = env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body = %s", rr.Code, rr.Body)
	}
	view = decode[SessionView](t, rr)
	if a := view.Section.Questions[0].Answer; a == nil || !a.Equal(questionnaire.Number(5)) {
		t.Errorf("q1 answer = %v, want 5", a)
	}

	rr = env.do(t, http.MethodPost, base+"/next", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("next status = %d, body = %s", rr.Code, rr.Body)
	}
	step := decode[stepResponse](t, rr)
	if step.Step != "advanced" || step.Session.SectionIndex != 1 {
		t.Fatalf("step = %q index = %d", step.Step, step.Session.SectionIndex)
	}
	for _, q := range step.Session.Section.Questions {
		if q.ID == "q2" {
			t.Error("q2 must be hidden when q1 <= 10")
		}
	}

	rr = env.do(t, http.MethodPut, base+"/answers/tags", `{"value": ["a"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("tags status = %d, body = %s", rr.Code, rr.Body)
	}

	rr = env.do(t, http.MethodPost, base+"/next", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rr.Code, rr.Body)
	}
	step = decode[stepResponse](t, rr)
	if step.Step != "submit" || !step.Session.Complete {
		t.Fatalf("step = %q complete = %v", step.Step, step.Session.Complete)
	}
	if step.Session.Result == nil || step.Session.Result.Total != 2 {
		t.Fatalf("result = %+v", step.Session.Result)
	}
	profileID := step.Session.ProfileID
	if !strings.HasPrefix(profileID, "profil_") {
		t.Errorf("profile id = %q", profileID)
	}

	rr = env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 6}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("answer after completion status = %d, want 409", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/submissions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	list := decode[submissionList](t, rr)
	if list.Total != 1 || len(list.Submissions) != 1 {
		t.Fatalf("submissions = %+v", list)
	}
	if got := list.Submissions[0]; got.ID != profileID || got.Status != storage.StatusCompleted || got.EligibleAides != 1 {
		t.Errorf("submission = %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/submissions/"+profileID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("show status = %d", rr.Code)
	}
	sub := decode[SubmissionView](t, rr)
	if sub.Profile == nil || sub.Profile.ID != profileID {
		t.Errorf("profile = %+v", sub.Profile)
	}
	if sub.Profile != nil {
		if first, _ := sub.Profile.Get("first"); first != 5.0 {
			t.Errorf("first = %v, want 5", first)
		}
	}
	if sub.Result == nil || len(sub.Result.Entries) != 2 {
		t.Errorf("result = %+v", sub.Result)
	}
}

func TestNextValidationError(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))

	rr := env.do(t, http.MethodPost, "/sessions/"+view.ID+"/next", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	body := decode[errorBody](t, rr)
	if body.Error.Type != "validation_error" || body.Error.SectionID != "one" {
		t.Errorf("error = %+v", body.Error)
	}
	if body.Error.Fields["q1"] != questionnaire.MsgRequired {
		t.Errorf("fields = %v", body.Error.Fields)
	}

	got := decode[SessionView](t, env.do(t, http.MethodGet, "/sessions/"+view.ID, ""))
	if got.SectionIndex != 0 || got.Section.Questions[0].Error != questionnaire.MsgRequired {
		t.Errorf("session after blocked next = %+v", got)
	}

	env.do(t, http.MethodPut, "/sessions/"+view.ID+"/answers/q1", `{"value": 900}`)
	rr = env.do(t, http.MethodPost, "/sessions/"+view.ID+"/next", "")
	body = decode[errorBody](t, rr)
	if !strings.Contains(body.Error.Fields["q1"], "500") {
		t.Errorf("q1 error = %q, want max bound message", body.Error.Fields["q1"])
	}
}

func TestSetAnswerErrors(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))
	base := "/sessions/" + view.ID

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"malformed body", base + "/answers/q1", `{`, http.StatusBadRequest},
		{"missing value", base + "/answers/q1", `{}`, http.StatusBadRequest},
		{"unsupported value", base + "/answers/q1", `{"value": {"a": 1}}`, http.StatusBadRequest},
		{"unknown question", base + "/answers/nope", `{"value": 1}`, http.StatusNotFound},
		{"not an option", base + "/answers/q2", `{"value": "z"}`, http.StatusBadRequest},
		{"wrong kind", base + "/answers/tags", `{"value": 3}`, http.StatusBadRequest},
		{"unknown session", "/sessions/missing/answers/q1", `{"value": 1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body)
			}
		})
	}
}

func TestClearAnswer(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))
	base := "/sessions/" + view.ID

	env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 12}`)
	rr := env.do(t, http.MethodPut, base+"/answers/q1", `{"value": null}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decode[SessionView](t, rr); len(got.Answers) != 0 {
		t.Errorf("answers = %v, want none", got.Answers)
	}

	env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 12}`)
	rr = env.do(t, http.MethodDelete, base+"/answers/q1", "")
	if got := decode[SessionView](t, rr); len(got.Answers) != 0 {
		t.Errorf("answers after DELETE = %v, want none", got.Answers)
	}
}

func TestPreviousAndReset(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))
	base := "/sessions/" + view.ID

	env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 20}`)
	env.do(t, http.MethodPost, base+"/next", "")

	rr := env.do(t, http.MethodPost, base+"/previous", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("previous status = %d", rr.Code)
	}
	got := decode[SessionView](t, rr)
	if got.SectionIndex != 0 {
		t.Errorf("section index = %d, want 0", got.SectionIndex)
	}
	if _, ok := got.Answers["q1"]; !ok {
		t.Error("previous must keep answers")
	}

	rr = env.do(t, http.MethodPost, base+"/reset", "")
	got = decode[SessionView](t, rr)
	if got.SectionIndex != 0 || len(got.Answers) != 0 {
		t.Errorf("after reset = %+v", got)
	}
}

func TestSubmissionFailureAndRetry(t *testing.T) {
	env := newTestEnv(t)
	env.submitter.errs = []error{&matching.SubmissionError{
		ProfileID:  "ignored",
		StatusCode: http.StatusServiceUnavailable,
		Reason:     matching.ReasonStatus,
	}}

	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))
	base := "/sessions/" + view.ID
	env.do(t, http.MethodPut, base+"/answers/q1", `{"value": 20}`)
	env.do(t, http.MethodPost, base+"/next", "")
	env.do(t, http.MethodPut, base+"/answers/q2", `{"value": "x"}`)

	rr := env.do(t, http.MethodPost, base+"/next", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %s)", rr.Code, rr.Body)
	}
	body := decode[errorBody](t, rr)
	if body.Error.Type != "submission_error" || body.Error.Retryable == nil || !*body.Error.Retryable {
		t.Errorf("error = %+v", body.Error)
	}

	state := decode[SessionView](t, env.do(t, http.MethodGet, base, ""))
	if state.Complete || state.LastError == "" || state.ProfileID == "" {
		t.Fatalf("state after failure = %+v", state)
	}
	failedID := state.ProfileID

	rr = env.do(t, http.MethodPost, base+"/submit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body = %s", rr.Code, rr.Body)
	}
	state = decode[SessionView](t, rr)
	if !state.Complete || state.ProfileID != failedID {
		t.Errorf("retry must complete with the same profile, got %+v", state)
	}
	if env.submitter.calls != 2 {
		t.Errorf("submit calls = %d, want 2", env.submitter.calls)
	}

	rr = env.do(t, http.MethodPost, base+"/submit", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("submit after completion status = %d, want 409", rr.Code)
	}
}

func TestSubmitBeforeComplete(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))

	rr := env.do(t, http.MethodPost, "/sessions/"+view.ID+"/submit", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestConfigFailure(t *testing.T) {
	env := newTestEnv(t)
	env.loader.err = &questionnaire.ConfigError{Source: "test", Reason: "fetch failed"}

	for _, path := range []string{"/sessions", "/questionnaire"} {
		method := http.MethodPost
		if path == "/questionnaire" {
			method = http.MethodGet
		}
		rr := env.do(t, method, path, "")
		if rr.Code != http.StatusBadGateway {
			t.Errorf("%s status = %d, want 502", path, rr.Code)
		}
		if body := decode[errorBody](t, rr); body.Error.Type != "config_error" {
			t.Errorf("%s error type = %q", path, body.Error.Type)
		}
	}
	if env.registry.Len() != 0 {
		t.Errorf("no session must be created without a config, got %d", env.registry.Len())
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	view := decode[SessionView](t, env.do(t, http.MethodPost, "/sessions", ""))

	if rr := env.do(t, http.MethodDelete, "/sessions/"+view.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/sessions/"+view.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/sessions/"+view.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rr.Code)
	}
}

func TestSubmissionNotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/submissions/profil_missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSubmissionsWithoutStore(t *testing.T) {
	h := NewHandler(Deps{
		Configs: NewConfigCache(&staticLoader{cfg: testConfig(t)}, 0),
		Token:   testToken,
	})
	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=1000", 100},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/submissions?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
