package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/profile"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

const testToken = "test-token"

const testDoc = `{
  "sections": [
    {"id": "one", "title": "One", "description": "Tell us **where** you farm. <script>alert(1)</script>",
     "importance": "CRITIQUE",
     "questions": [
      {"id": "q1", "type": "number", "label": "Q1", "help_text": "In _hectares_.", "required": true,
       "validation": {"min": 0, "max": 500}}
    ]},
    {"id": "two", "title": "Two", "questions": [
      {"id": "q2", "type": "select", "label": "Q2", "required": true,
       "options": [{"value": "x", "label": "X"}, {"value": "y", "label": "Y"}],
       "visible_if": {"question_id": "q1", "operator": ">", "value": 10}},
      {"id": "tags", "type": "multiselect", "label": "Tags",
       "options": [{"value": "a", "label": "A"}, {"value": "b", "label": "B"}]},
      {"id": "note", "type": "text", "label": "Note"}
    ]}
  ],
  "mapping": {"q1": "first", "q2": "second", "tags": "tags", "note": "note"},
  "metadata": {"version": "1.2", "estimated_time_minutes": 3}
}`

func testConfig(t *testing.T) *questionnaire.Config {
	t.Helper()
	cfg, err := questionnaire.Parse([]byte(testDoc))
	if err != nil {
		t.Fatalf("parsing test document: %v", err)
	}
	return cfg
}

// staticLoader serves a fixed document or error and counts loads.
type staticLoader struct {
	cfg   *questionnaire.Config
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (l *staticLoader) Load(ctx context.Context) (*questionnaire.Config, error) {
	l.calls.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.cfg, nil
}

// scriptedSubmitter fails with the queued errors, then succeeds.
type scriptedSubmitter struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedSubmitter) Submit(ctx context.Context, p *profile.Profile) (*matching.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &matching.Result{
		Total:    2,
		Eligible: 1,
		Entries: []matching.Entry{
			{ProgramID: "aide-1", Score: 90, Eligible: true, Program: matching.Program{Title: "Aide 1"}},
			{ProgramID: "aide-2", Score: 45, Program: matching.Program{Title: "Aide 2"}},
		},
		ProfileID: p.ID,
	}, nil
}

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	registry  *session.Registry
	submitter *scriptedSubmitter
	loader    *staticLoader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sub := &scriptedSubmitter{}
	loader := &staticLoader{cfg: testConfig(t)}
	registry := session.NewRegistry(session.Options{Submitter: sub, Recorder: store})
	h := NewHandler(Deps{
		Sessions: registry,
		Configs:  NewConfigCache(loader, 0),
		Store:    store,
		Token:    testToken,
	})
	return &testEnv{handler: h, store: store, registry: registry, submitter: sub, loader: loader}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Message   string            `json:"message"`
		Type      string            `json:"type"`
		SectionID string            `json:"section_id"`
		Fields    map[string]string `json:"fields"`
		Retryable *bool             `json:"retryable"`
	} `json:"error"`
}
