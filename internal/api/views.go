package api

import (
	"bytes"
	"html"
	"time"

	"github.com/yuin/goldmark"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/profile"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

// Raw HTML in documents is omitted by goldmark's default renderer.
var markdown = goldmark.New()

func renderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}

type QuestionView struct {
	ID            string                     `json:"id"`
	Type          questionnaire.QuestionType `json:"type"`
	Label         string                     `json:"label"`
	HelpText      string                     `json:"help_text,omitempty"`
	HelpHTML      string                     `json:"help_html,omitempty"`
	Required      bool                       `json:"required"`
	Options       []questionnaire.Option     `json:"options,omitempty"`
	Validation    *questionnaire.Validation  `json:"validation,omitempty"`
	MinSelections int                        `json:"min_selections,omitempty"`
	MaxSelections int                        `json:"max_selections,omitempty"`
	Conditional   bool                       `json:"conditional,omitempty"`
	Answer        *questionnaire.Value       `json:"answer,omitempty"`
	Error         string                     `json:"error,omitempty"`
}

type SectionView struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	DescriptionHTML string         `json:"description_html,omitempty"`
	Critical        bool           `json:"critical"`
	Questions       []QuestionView `json:"questions"`
}

func newQuestionView(q questionnaire.Question) QuestionView {
	return QuestionView{
		ID:            q.ID,
		Type:          q.Type,
		Label:         q.Label,
		HelpText:      q.HelpText,
		HelpHTML:      renderMarkdown(q.HelpText),
		Required:      q.Required,
		Options:       q.Options,
		Validation:    q.Validation,
		MinSelections: q.MinSelections,
		MaxSelections: q.MaxSelections,
		Conditional:   q.VisibleIf != nil,
	}
}

func newSectionView(s questionnaire.Section, questions []questionnaire.Question) SectionView {
	v := SectionView{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		DescriptionHTML: renderMarkdown(s.Description),
		Critical:        s.Critical(),
		Questions:       make([]QuestionView, 0, len(questions)),
	}
	for _, q := range questions {
		v.Questions = append(v.Questions, newQuestionView(q))
	}
	return v
}

// QuestionnaireView is the whole document as served by GET /questionnaire.
type QuestionnaireView struct {
	Version          string        `json:"version,omitempty"`
	EstimatedMinutes float64       `json:"estimated_time_minutes"`
	QuestionCount    int           `json:"question_count"`
	Sections         []SectionView `json:"sections"`
}

func newQuestionnaireView(cfg *questionnaire.Config) QuestionnaireView {
	v := QuestionnaireView{
		Version:          cfg.Metadata.Version,
		EstimatedMinutes: cfg.Metadata.EstimatedMinutes(),
		QuestionCount:    cfg.QuestionCount(),
		Sections:         make([]SectionView, 0, len(cfg.Sections)),
	}
	for _, s := range cfg.Sections {
		v.Sections = append(v.Sections, newSectionView(s, s.Questions))
	}
	return v
}

// SessionView is a session's state as served by the API. Section only lists
// the questions visible right now.
type SessionView struct {
	ID           string                    `json:"id"`
	SectionIndex int                       `json:"section_index"`
	SectionCount int                       `json:"section_count"`
	Section      SectionView               `json:"section"`
	Answers      questionnaire.AnswerMap   `json:"answers"`
	Errors       questionnaire.FieldErrors `json:"errors"`
	Busy         bool                      `json:"busy"`
	Complete     bool                      `json:"complete"`
	Progress     float64                   `json:"progress"`
	ProfileID    string                    `json:"profile_id,omitempty"`
	Result       *matching.Result          `json:"result,omitempty"`
	LastError    string                    `json:"last_error,omitempty"`
}

func newSessionView(st session.State) SessionView {
	v := SessionView{
		ID:           st.ID,
		SectionIndex: st.SectionIndex,
		SectionCount: st.SectionCount,
		Section:      newSectionView(st.Section, st.Visible),
		Answers:      st.Answers,
		Errors:       st.Errors,
		Busy:         st.Busy,
		Complete:     st.Complete,
		Progress:     st.Progress,
		ProfileID:    st.ProfileID,
		Result:       st.Result,
	}
	if v.Answers == nil {
		v.Answers = questionnaire.AnswerMap{}
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
	}
	for i := range v.Section.Questions {
		q := &v.Section.Questions[i]
		if a, ok := st.Answers[q.ID]; ok {
			q.Answer = &a
		}
		q.Error = st.Errors[q.ID]
	}
	return v
}

// SubmissionView is one row of the submission history.
type SubmissionView struct {
	ID            string           `json:"id"`
	SessionID     string           `json:"session_id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Status        string           `json:"status"`
	Error         string           `json:"error,omitempty"`
	TotalAides    int              `json:"total_aides"`
	EligibleAides int              `json:"aides_eligibles"`
	Profile       *profile.Profile `json:"profile,omitempty"`
	Result        *matching.Result `json:"result,omitempty"`
}

func newSubmissionView(sub storage.Submission) SubmissionView {
	return SubmissionView{
		ID:            sub.ID,
		SessionID:     sub.SessionID,
		CreatedAt:     sub.CreatedAt,
		UpdatedAt:     sub.UpdatedAt,
		Status:        sub.Status,
		Error:         sub.Error,
		TotalAides:    sub.TotalAides,
		EligibleAides: sub.EligibleAides,
	}
}
