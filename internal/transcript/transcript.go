// Package transcript turns a submitted session into a printable record.
package transcript

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
)

// ErrNotSubmitted is returned for a session that is still open.
var ErrNotSubmitted = errors.New("session not submitted")

// Status is the outcome of one question.
type Status string

const (
	StatusCorrect     Status = "correct"
	StatusWrong       Status = "wrong"
	StatusUnattempted Status = "unattempted"
)

// Row is one question of the transcript. Question, Passage, Options and
// Solution hold rendered HTML for the transcript language; the *Text fields
// hold the same content as plain text.
type Row struct {
	Number       int      `json:"number"`
	Question     string   `json:"question"`
	QuestionText string   `json:"question_text"`
	Passage      string   `json:"passage,omitempty"`
	Options      []string `json:"options"`
	OptionsText  []string `json:"options_text"`
	Selected     *int     `json:"selected"`
	Correct      *int     `json:"correct"`
	Solution     string   `json:"solution,omitempty"`
	SolutionText string   `json:"solution_text,omitempty"`
	Status       Status   `json:"status"`
	Review       bool     `json:"review"`
	TimeSpent    float64  `json:"time_spent_seconds"`
}

// Transcript is the full record of a submitted session.
type Transcript struct {
	SessionID   string            `json:"session_id"`
	TestName    string            `json:"test_name"`
	Language    richtext.Language `json:"language"`
	Reason      exam.SubmitReason `json:"reason"`
	StartedAt   time.Time         `json:"started_at"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Result      exam.Result       `json:"result"`
	Rows        []Row             `json:"rows"`
}

// Build assembles the transcript of a submitted session in lang.
func Build(id string, s *exam.Session, lang richtext.Language) (*Transcript, error) {
	result, ok := s.Result()
	if !ok {
		return nil, ErrNotSubmitted
	}

	cfg := s.Config()
	name := cfg.NameDisplay
	if name == "" {
		name = cfg.TestName
	}

	view := s.View()
	t := &Transcript{
		SessionID:   id,
		TestName:    name,
		Language:    lang,
		Reason:      view.Reason,
		StartedAt:   s.StartedAt(),
		SubmittedAt: s.SubmittedAt(),
		Result:      result,
	}

	questions := s.Questions()
	answers := s.Answers()
	spent := s.TimeSpent()
	review := view.Review

	t.Rows = make([]Row, len(questions))
	for i, q := range questions {
		r := Row{
			Number:       i + 1,
			Question:     richtext.Render(q.Question, lang),
			QuestionText: richtext.Text(q.Question, lang),
			Options:      make([]string, len(q.Options)),
			OptionsText:  make([]string, len(q.Options)),
			Review:       review[i],
			TimeSpent:    math.Round(spent[i]*10) / 10,
		}
		if q.CorrectOptionID != nil {
			c := *q.CorrectOptionID
			r.Correct = &c
		}
		if q.Comp != "" {
			r.Passage = richtext.Render(q.Comp, lang)
		}
		if q.Solution != "" {
			r.Solution = richtext.Render(q.Solution, lang)
			r.SolutionText = richtext.Text(q.Solution, lang)
		}
		for k, opt := range q.Options {
			r.Options[k] = richtext.Render(opt, lang)
			r.OptionsText[k] = richtext.Text(opt, lang)
		}

		switch a := answers[i]; {
		case a == exam.Unanswered:
			r.Status = StatusUnattempted
		case q.IsCorrect(a):
			r.Selected = &a
			r.Status = StatusCorrect
		default:
			r.Selected = &a
			r.Status = StatusWrong
		}
		t.Rows[i] = r
	}
	return t, nil
}

// optionLabel turns an option index into A, B, C... or "-" when absent.
func optionLabel(i *int) string {
	if i == nil || *i < 0 {
		return "-"
	}
	if *i < 26 {
		return string(rune('A' + *i))
	}
	return "#" + strconv.Itoa(*i+1)
}
