package exam

import (
	"fmt"

	"github.com/stemsi/exstem-mocktest/internal/richtext"
)

// State is the lifecycle position of a session.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitted  State = "SUBMITTED"
)

// SubmitReason tells a user submission apart from a timeout.
type SubmitReason string

const (
	ReasonManual  SubmitReason = "manual"
	ReasonTimeout SubmitReason = "timeout"
)

// GridStatus is the visual state of one navigation grid cell.
type GridStatus string

const (
	GridUnattempted GridStatus = "unattempted"
	GridAnswered    GridStatus = "answered"
	GridReviewed    GridStatus = "reviewed"
	// GridCorrect and GridWrong only appear after submission.
	GridCorrect GridStatus = "correct"
	GridWrong   GridStatus = "wrong"
)

// GridCell describes one question in the navigation grid.
type GridCell struct {
	Index    int        `json:"index"`
	Status   GridStatus `json:"status"`
	Current  bool       `json:"current"`
	Answered bool       `json:"answered"`
	Reviewed bool       `json:"reviewed"`
}

// QuestionView is the current question resolved to the active language.
// Correct and Solution are only filled after submission.
type QuestionView struct {
	Index    int      `json:"index"`
	Number   int      `json:"number"`
	Total    int      `json:"total"`
	Question string   `json:"question"`
	Passage  string   `json:"passage,omitempty"`
	Options  []string `json:"options"`
	Selected *int     `json:"selected"`
	Review   bool     `json:"review"`
	Correct  *int     `json:"correct,omitempty"`
	Solution string   `json:"solution,omitempty"`
}

// View is a read-only snapshot of a session for presentation adapters.
type View struct {
	State            State             `json:"state"`
	Reason           SubmitReason      `json:"reason,omitempty"`
	Config           Config            `json:"config"`
	Language         richtext.Language `json:"language"`
	Current          QuestionView      `json:"current"`
	Grid             []GridCell        `json:"grid"`
	Answers          []*int            `json:"answers"`
	Review           []bool            `json:"review"`
	TimeSpent        []float64         `json:"time_spent_seconds"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Remaining        string            `json:"remaining"`
	AnsweredCount    int               `json:"answered_count"`
	ReviewCount      int               `json:"review_count"`
	Result           *Result           `json:"result,omitempty"`
}

// Presenter is the rendering side of a session. Calls happen after the
// session lock is released, so a presenter may read the session back.
type Presenter interface {
	RenderQuestion(QuestionView)
	RenderGrid([]GridCell)
	RenderClock(remainingSeconds int)
	RenderResult(Result)
}

// NopPresenter discards every render call.
type NopPresenter struct{}

func (NopPresenter) RenderQuestion(QuestionView) {}
func (NopPresenter) RenderGrid([]GridCell)       {}
func (NopPresenter) RenderClock(int)             {}
func (NopPresenter) RenderResult(Result)         {}

// FormatRemaining renders a countdown as M:SS.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// questionView must be called with s.mu held.
func (s *Session) questionView(i int) QuestionView {
	q := &s.questions[i]
	lang := s.lang
	v := QuestionView{
		Index:    i,
		Number:   i + 1,
		Total:    len(s.questions),
		Question: richtext.Render(q.Question, lang),
		Options:  make([]string, len(q.Options)),
		Review:   s.review[i],
	}
	if q.Comp != "" {
		v.Passage = richtext.Render(q.Comp, lang)
	}
	for k, opt := range q.Options {
		v.Options[k] = richtext.Render(opt, lang)
	}
	if a := s.answers[i]; a != Unanswered {
		v.Selected = &a
	}
	if s.state == StateSubmitted {
		if q.CorrectOptionID != nil {
			c := *q.CorrectOptionID
			v.Correct = &c
		}
		if q.Solution != "" {
			v.Solution = richtext.Render(q.Solution, lang)
		}
	}
	return v
}

// grid must be called with s.mu held.
func (s *Session) grid() []GridCell {
	cells := make([]GridCell, len(s.questions))
	submitted := s.state == StateSubmitted
	for i := range s.questions {
		answered := s.answers[i] != Unanswered
		c := GridCell{
			Index:    i,
			Current:  i == s.current,
			Answered: answered,
			Reviewed: s.review[i],
		}
		switch {
		case submitted && !answered:
			c.Status = GridUnattempted
		case submitted && s.questions[i].IsCorrect(s.answers[i]):
			c.Status = GridCorrect
		case submitted:
			c.Status = GridWrong
		case s.review[i]:
			c.Status = GridReviewed
		case answered:
			c.Status = GridAnswered
		default:
			c.Status = GridUnattempted
		}
		cells[i] = c
	}
	return cells
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot() View {
	v := View{
		State:            s.state,
		Reason:           s.reason,
		Config:           s.cfg,
		Language:         s.lang,
		Current:          s.questionView(s.current),
		Grid:             s.grid(),
		Answers:          make([]*int, len(s.answers)),
		Review:           append([]bool(nil), s.review...),
		TimeSpent:        append([]float64(nil), s.timeSpent...),
		RemainingSeconds: s.remaining,
		Remaining:        FormatRemaining(s.remaining),
	}
	for i, a := range s.answers {
		if a != Unanswered {
			a := a
			v.Answers[i] = &a
			v.AnsweredCount++
		}
		if s.review[i] {
			v.ReviewCount++
		}
	}
	if s.state == StateSubmitted {
		r := s.result
		v.Result = &r
	}
	return v
}
