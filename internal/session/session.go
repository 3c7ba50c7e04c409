// Package session drives one pass through a questionnaire: it owns the answer
// store and the section index, gates forward moves on validation, and guards
// the single in-flight submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/profile"
	"github.com/kalambet/intake/internal/questionnaire"
)

var (
	ErrNotFound            = errors.New("session not found")
	ErrBusy                = errors.New("session is busy")
	ErrComplete            = errors.New("session already submitted")
	ErrUnknownQuestion     = errors.New("unknown question")
	ErrInvalidAnswer       = errors.New("invalid answer")
	ErrDuplicateSubmission = errors.New("a submission is already in flight")
	ErrNotReady            = errors.New("questionnaire is not complete")
	ErrStaleResult         = errors.New("session changed during submission, result discarded")
)

// Submitter sends a built profile to the matching service.
type Submitter interface {
	Submit(ctx context.Context, p *profile.Profile) (*matching.Result, error)
}

// Recorder keeps a history of submissions. Implemented by storage.Store.
type Recorder interface {
	RecordPending(ctx context.Context, sessionID string, p *profile.Profile) error
	RecordResult(ctx context.Context, profileID string, res *matching.Result) error
	RecordFailure(ctx context.Context, profileID string, cause error) error
}

type EventKind string

const (
	EventAnswerChanged    EventKind = "answer_changed"
	EventSectionChanged   EventKind = "section_changed"
	EventSubmitted        EventKind = "submitted"
	EventSubmissionFailed EventKind = "submission_failed"
	EventReset            EventKind = "reset"
)

// Event notifies a presentation layer after a state transition.
type Event struct {
	Kind       EventKind
	SessionID  string
	Section    int
	QuestionID string
	ProfileID  string
	Err        error
}

type Options struct {
	Mapper    *profile.Mapper
	Submitter Submitter
	Recorder  Recorder
	OnEvent   func(Event)
}

// Session is safe for concurrent use; operations are serialized and the
// matching call is the only one that runs without holding the lock.
type Session struct {
	id     string
	cfg    *questionnaire.Config
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	answers    *Answers
	nav        *Navigator
	errors     questionnaire.FieldErrors
	busy       bool
	built      *profile.Profile
	result     *matching.Result
	lastErr    error
	generation uint64
}

// New starts a session over cfg. cfg is shared and never modified.
func New(id string, cfg *questionnaire.Config, opts Options) *Session {
	if opts.Mapper == nil {
		opts.Mapper = profile.NewMapper()
	}
	return &Session{
		id:      id,
		cfg:     cfg,
		opts:    opts,
		logger:  slog.Default().With("session_id", id),
		answers: NewAnswers(),
		nav:     NewNavigator(len(cfg.Sections)),
		errors:  make(questionnaire.FieldErrors),
	}
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Config() *questionnaire.Config { return s.cfg }

// SetAnswer records one answer and clears the error shown for it. The value
// must fit the question's type; option questions only accept declared options.
func (s *Session) SetAnswer(questionID string, v questionnaire.Value) error {
	q, ok := s.cfg.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	if err := checkKind(q, v); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.writable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.answers.Set(questionID, v)
	delete(s.errors, questionID)
	s.built = nil
	s.lastErr = nil
	section := s.nav.Index()
	s.mu.Unlock()

	s.emit(Event{Kind: EventAnswerChanged, SessionID: s.id, Section: section, QuestionID: questionID})
	return nil
}

// ClearAnswer removes an answer.
func (s *Session) ClearAnswer(questionID string) error {
	return s.SetAnswer(questionID, questionnaire.Value{})
}

func (s *Session) writable() error {
	if s.nav.Submitted() {
		return ErrComplete
	}
	if s.busy {
		return ErrBusy
	}
	return nil
}

func checkKind(q questionnaire.Question, v questionnaire.Value) error {
	if v.IsZero() {
		return nil
	}
	bad := func() error {
		return fmt.Errorf("%w: %s question %q cannot take a %s", ErrInvalidAnswer, q.Type, q.ID, v.Kind())
	}
	switch q.Type {
	case questionnaire.TypeNumber:
		if v.Kind() != questionnaire.KindNumber && v.Kind() != questionnaire.KindText {
			return bad()
		}
	case questionnaire.TypeText:
		if v.Kind() != questionnaire.KindText {
			return bad()
		}
	case questionnaire.TypeMultiSelect:
		if v.Kind() != questionnaire.KindSet {
			return bad()
		}
		for _, item := range v.Items() {
			if !q.HasOption(questionnaire.Text(item)) {
				return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidAnswer, item, q.ID)
			}
		}
	case questionnaire.TypeSelect, questionnaire.TypeRadio:
		if !v.Blank() && !q.HasOption(v) {
			return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidAnswer, v.String(), q.ID)
		}
	}
	return nil
}

// Next validates the current section against the live answers. Errors are
// kept for display and returned as a *questionnaire.ValidationError. From the
// last section a successful validation builds the profile and submits it.
func (s *Session) Next(ctx context.Context) (Step, error) {
	s.mu.Lock()
	if err := s.writable(); err != nil {
		s.mu.Unlock()
		return StepBlocked, err
	}

	section := s.cfg.Sections[s.nav.Index()]
	snap := s.answers.Snapshot()
	live := questionnaire.Live(s.cfg, snap)
	errs := questionnaire.ValidateSection(section, live, s.cfg.CrossFieldRules())
	s.errors = errs

	step, err := s.nav.Next(errs)
	if err != nil {
		s.mu.Unlock()
		return step, err
	}

	switch step {
	case StepBlocked:
		s.mu.Unlock()
		s.logger.Debug("section blocked", "section", section.ID, "errors", len(errs))
		return step, questionnaire.NewValidationError(section.ID, errs)
	case StepAdvanced:
		index := s.nav.Index()
		s.mu.Unlock()
		s.emit(Event{Kind: EventSectionChanged, SessionID: s.id, Section: index})
		return step, nil
	}

	s.built = s.opts.Mapper.Build(s.cfg, snap)
	p, gen, err := s.beginSubmitLocked()
	s.mu.Unlock()
	if err != nil {
		return StepSubmit, err
	}

	_, err = s.send(ctx, p, gen)
	return StepSubmit, err
}

// Previous goes back one section. It never validates.
func (s *Session) Previous() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	moved, err := s.nav.Previous()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if moved {
		s.errors = make(questionnaire.FieldErrors)
		s.built = nil
		s.lastErr = nil
	}
	index := s.nav.Index()
	s.mu.Unlock()

	if moved {
		s.emit(Event{Kind: EventSectionChanged, SessionID: s.id, Section: index})
	}
	return nil
}

// Submit sends the built profile again. A caller uses it to retry after a
// *matching.SubmissionError from the last Next: the same profile is resent. A second call while one is in flight fails
// with ErrDuplicateSubmission without touching the network.
func (s *Session) Submit(ctx context.Context) (*matching.Result, error) {
	s.mu.Lock()
	p, gen, err := s.beginSubmitLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.send(ctx, p, gen)
}

// beginSubmitLocked marks the session busy and returns the profile to send
// with the generation it belongs to. s.mu must be held.
func (s *Session) beginSubmitLocked() (*profile.Profile, uint64, error) {
	switch {
	case s.nav.Submitted():
		return nil, 0, ErrComplete
	case s.busy:
		return nil, 0, ErrDuplicateSubmission
	case s.built == nil:
		return nil, 0, ErrNotReady
	case s.opts.Submitter == nil:
		return nil, 0, errors.New("no submitter configured")
	}
	s.busy = true
	s.lastErr = nil
	return s.built, s.generation, nil
}

// send performs the matching call without holding the lock, then applies
// the outcome unless the session moved on in the meantime.
func (s *Session) send(ctx context.Context, p *profile.Profile, gen uint64) (*matching.Result, error) {
	s.record(func(r Recorder) error { return r.RecordPending(ctx, s.id, p) })
	s.logger.Info("submitting profile", "profile_id", p.ID)

	res, err := s.opts.Submitter.Submit(ctx, p)

	if err != nil {
		s.record(func(r Recorder) error { return r.RecordFailure(ctx, p.ID, err) })
	} else {
		s.record(func(r Recorder) error { return r.RecordResult(ctx, p.ID, res) })
	}

	s.mu.Lock()
	if s.generation != gen || s.built == nil || s.built.ID != p.ID {
		s.mu.Unlock()
		s.logger.Info("discarding stale submission result", "profile_id", p.ID)
		return nil, ErrStaleResult
	}
	s.busy = false
	if err != nil {
		s.lastErr = err
		index := s.nav.Index()
		s.mu.Unlock()
		s.logger.Warn("submission failed", "profile_id", p.ID, "error", err)
		s.emit(Event{Kind: EventSubmissionFailed, SessionID: s.id, Section: index, ProfileID: p.ID, Err: err})
		return nil, err
	}
	s.result = res
	s.nav.MarkSubmitted()
	index := s.nav.Index()
	s.mu.Unlock()

	s.emit(Event{Kind: EventSubmitted, SessionID: s.id, Section: index, ProfileID: p.ID})
	return res, nil
}

// Reset empties the answers and returns to the first section. A submission
// still in flight is abandoned: its result will be discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.answers.Reset()
	s.nav.Reset()
	s.errors = make(questionnaire.FieldErrors)
	s.busy = false
	s.built = nil
	s.result = nil
	s.lastErr = nil
	s.generation++
	s.mu.Unlock()

	s.emit(Event{Kind: EventReset, SessionID: s.id})
}

func (s *Session) record(fn func(Recorder) error) {
	if s.opts.Recorder == nil {
		return
	}
	if err := fn(s.opts.Recorder); err != nil {
		s.logger.Warn("recording submission", "error", err)
	}
}

func (s *Session) emit(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

// State is a consistent, read-only view of a session.
type State struct {
	ID           string
	SectionIndex int
	SectionCount int
	Section      questionnaire.Section
	Visible      []questionnaire.Question
	Answers      questionnaire.AnswerMap
	Errors       questionnaire.FieldErrors
	Busy         bool
	Complete     bool
	Progress     float64
	ProfileID    string
	Result       *matching.Result
	LastError    error
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.answers.Snapshot()
	section := s.cfg.Sections[s.nav.Index()]
	_, pct := s.nav.Progress()
	st := State{
		ID:           s.id,
		SectionIndex: s.nav.Index(),
		SectionCount: s.nav.Total(),
		Section:      section,
		Visible:      questionnaire.VisibleQuestions(section, questionnaire.Live(s.cfg, snap)),
		Answers:      snap.Map(),
		Errors:       s.errors.Clone(),
		Busy:         s.busy,
		Complete:     s.nav.Submitted(),
		Progress:     pct,
		Result:       s.result,
		LastError:    s.lastErr,
	}
	if s.built != nil {
		st.ProfileID = s.built.ID
	}
	return st
}

// Profile returns the profile built from the last section, if any.
func (s *Session) Profile() *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.built
}
