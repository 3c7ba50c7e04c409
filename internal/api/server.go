// Package api exposes questionnaire sessions over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

const maxAnswerBodySize = 64 << 10 // 64KB

// SubmissionStore is the read side of the submission history.
type SubmissionStore interface {
	ListSubmissions(ctx context.Context, limit, offset int) ([]storage.Submission, error)
	CountSubmissions(ctx context.Context) (int, error)
	GetSubmission(ctx context.Context, id string) (storage.Submission, error)
}

type Deps struct {
	Sessions *session.Registry
	Configs  *ConfigCache
	Store    SubmissionStore // optional; history routes answer 404 without it
	Token    string
}

// NewHandler returns the intake REST API. Everything but /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/questionnaire", handleGetQuestionnaire(deps))

		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Delete("/sessions/{id}", handleDeleteSession(deps))
		r.Put("/sessions/{id}/answers/{question_id}", handleSetAnswer(deps))
		r.Delete("/sessions/{id}/answers/{question_id}", handleClearAnswer(deps))
		r.Post("/sessions/{id}/next", handleNext(deps))
		r.Post("/sessions/{id}/previous", handlePrevious(deps))
		r.Post("/sessions/{id}/reset", handleReset(deps))
		r.Post("/sessions/{id}/submit", handleSubmit(deps))

		r.Get("/submissions", handleListSubmissions(deps))
		r.Get("/submissions/{id}", handleGetSubmission(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetQuestionnaire(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := deps.Configs.Get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newQuestionnaireView(cfg))
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := deps.Configs.Get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		s := deps.Sessions.Create(cfg)
		slog.Debug("session created", "session_id", s.ID())
		writeJSON(w, http.StatusCreated, newSessionView(s.State()))
	}
}

// withSession resolves the {id} URL parameter before calling fn.
func withSession(deps Deps, fn func(w http.ResponseWriter, r *http.Request, s *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, s)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type answerRequest struct {
	Value json.RawMessage `json:"value"`
}

func handleSetAnswer(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAnswerBodySize)
		defer r.Body.Close()

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Value) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value is required")
			return
		}
		var v questionnaire.Value
		if err := json.Unmarshal(req.Value, &v); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid value: %v", err)
			return
		}

		if err := s.SetAnswer(chi.URLParam(r, "question_id"), v); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

func handleClearAnswer(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.ClearAnswer(chi.URLParam(r, "question_id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

type stepResponse struct {
	Step    string      `json:"step"`
	Session SessionView `json:"session"`
}

func handleNext(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		step, err := s.Next(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stepResponse{Step: step.String(), Session: newSessionView(s.State())})
	})
}

func handlePrevious(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.Previous(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

func handleReset(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		s.Reset()
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

func handleSubmit(deps Deps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if _, err := s.Submit(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s.State()))
	})
}

type submissionList struct {
	Total       int              `json:"total"`
	Submissions []SubmissionView `json:"submissions"`
}

func handleListSubmissions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "submission history is disabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		subs, err := deps.Store.ListSubmissions(r.Context(), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list submissions: %v", err)
			return
		}
		total, err := deps.Store.CountSubmissions(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count submissions: %v", err)
			return
		}

		out := submissionList{Total: total, Submissions: make([]SubmissionView, 0, len(subs))}
		for _, sub := range subs {
			out.Submissions = append(out.Submissions, newSubmissionView(sub))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetSubmission(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "submission history is disabled")
			return
		}
		sub, err := deps.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "submission not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get submission: %v", err)
			return
		}

		view := newSubmissionView(sub)
		if view.Profile, err = sub.Profile(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		if view.Result, err = sub.Result(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
