// Package exam implements the exam session state machine: navigation,
// answer and review bookkeeping, per-question timing, the countdown and
// scoring. Rendering is delegated to a Presenter.
package exam

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
)

// ErrNoQuestions is returned when a session is built from an empty paper.
var ErrNoQuestions = errors.New("exam has no questions")

// TickPeriod is the countdown resolution.
const TickPeriod = time.Second

// Session is one attempt at a test. All methods are safe for concurrent use;
// triggers are applied in the order they acquire the session lock.
type Session struct {
	mu sync.Mutex

	cfg       Config
	questions []Question
	warnings  []IntegrityWarning

	state     State
	reason    SubmitReason
	current   int
	answers   []int
	review    []bool
	timeSpent []float64
	remaining int
	lang      richtext.Language
	result    Result

	startedAt   time.Time
	lastFocus   time.Time
	submittedAt time.Time
	cancelTick  func()

	clock     Clock
	presenter Presenter
	onSubmit  func(Result, SubmitReason)
	log       zerolog.Logger
}

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Session) { s.clock = c } }

// WithPresenter sets the rendering adapter.
func WithPresenter(p Presenter) Option { return func(s *Session) { s.presenter = p } }

// WithLogger sets the logger used for integrity warnings and lifecycle events.
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithLanguage sets the initial content language.
func WithLanguage(l richtext.Language) Option { return func(s *Session) { s.lang = l } }

// WithOnSubmit registers a hook fired once, after the session is submitted.
func WithOnSubmit(fn func(Result, SubmitReason)) Option {
	return func(s *Session) { s.onSubmit = fn }
}

// NewSession builds a session over questions. A nil cfg is replaced by
// DefaultConfig. Questions with an out-of-range answer key are logged and kept.
func NewSession(cfg *Config, questions []Question, opts ...Option) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	s := &Session{
		questions: questions,
		state:     StateNotStarted,
		clock:     SystemClock(),
		presenter: NopPresenter{},
		lang:      richtext.English,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}

	if cfg != nil {
		s.cfg = *cfg
	} else {
		s.cfg = DefaultConfig(len(questions))
	}

	n := len(questions)
	s.answers = make([]int, n)
	for i := range s.answers {
		s.answers[i] = Unanswered
	}
	s.review = make([]bool, n)
	s.timeSpent = make([]float64, n)
	s.remaining = s.cfg.DurationMinutes * 60

	now := s.clock.Now()
	s.startedAt = now
	s.lastFocus = now

	s.warnings = CheckIntegrity(questions)
	for _, w := range s.warnings {
		s.log.Warn().
			Int("question", w.QuestionIndex+1).
			Int("correct_option_id", w.CorrectOptionID).
			Int("options", w.OptionCount).
			Msg("correct_option_id out of range, question can never score")
	}

	return s, nil
}

// Start begins the countdown. It is a no-op unless the session has not
// started yet.
func (s *Session) Start(sched Scheduler) {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	s.startedAt = now
	s.lastFocus = now
	s.remaining = s.cfg.DurationMinutes * 60
	s.state = StateInProgress
	s.cancelTick = sched.Every(TickPeriod, s.Tick)

	q, grid, remaining := s.questionView(s.current), s.grid(), s.remaining
	s.mu.Unlock()

	s.log.Info().Int("questions", len(s.questions)).Int("remaining_seconds", remaining).Msg("Session started")
	s.presenter.RenderQuestion(q)
	s.presenter.RenderGrid(grid)
	s.presenter.RenderClock(remaining)
}

// Navigate moves to question target. Time on the question being left is
// flushed first; an out-of-range target is then ignored.
func (s *Session) Navigate(target int) {
	s.mu.Lock()
	moved := s.navigateLocked(target)
	s.renderAfterMove(moved)
}

// Next moves one question forward; a no-op on the last question.
func (s *Session) Next() { s.step(1) }

// Prev moves one question back; a no-op on the first question.
func (s *Session) Prev() { s.step(-1) }

func (s *Session) step(delta int) {
	s.mu.Lock()
	target := s.current + delta
	moved := false
	if target >= 0 && target < len(s.questions) {
		moved = s.navigateLocked(target)
	}
	s.renderAfterMove(moved)
}

// navigateLocked must be called with s.mu held.
func (s *Session) navigateLocked(target int) bool {
	if target == s.current {
		return false
	}
	s.flushLocked(s.clock.Now())
	if target < 0 || target >= len(s.questions) {
		return false
	}
	s.current = target
	return true
}

// renderAfterMove releases s.mu.
func (s *Session) renderAfterMove(moved bool) {
	if !moved {
		s.mu.Unlock()
		return
	}
	q, grid := s.questionView(s.current), s.grid()
	s.mu.Unlock()

	s.presenter.RenderQuestion(q)
	s.presenter.RenderGrid(grid)
}

// flushLocked adds the time since the last focus change to the current
// question. Time only accrues while the session is in progress.
func (s *Session) flushLocked(now time.Time) {
	if s.state == StateInProgress {
		if d := now.Sub(s.lastFocus).Seconds(); d > 0 {
			s.timeSpent[s.current] += d
		}
	}
	s.lastFocus = now
}

// SelectOption toggles option on question. Selecting the chosen option again
// clears it. Ignored after submission or for an invalid target.
func (s *Session) SelectOption(question, option int) {
	s.mu.Lock()
	if s.state == StateSubmitted || question < 0 || question >= len(s.questions) ||
		option < 0 || option >= len(s.questions[question].Options) {
		s.mu.Unlock()
		return
	}
	if s.answers[question] == option {
		s.answers[question] = Unanswered
	} else {
		s.answers[question] = option
	}
	s.renderAfterEdit(question)
}

// ToggleReview flips the marked-for-review flag of question.
func (s *Session) ToggleReview(question int) {
	s.mu.Lock()
	if s.state == StateSubmitted || question < 0 || question >= len(s.questions) {
		s.mu.Unlock()
		return
	}
	s.review[question] = !s.review[question]
	s.renderAfterEdit(question)
}

// renderAfterEdit releases s.mu.
func (s *Session) renderAfterEdit(question int) {
	var q *QuestionView
	if question == s.current {
		v := s.questionView(question)
		q = &v
	}
	grid := s.grid()
	s.mu.Unlock()

	if q != nil {
		s.presenter.RenderQuestion(*q)
	}
	s.presenter.RenderGrid(grid)
}

// SetLanguage switches the content language without touching other state.
func (s *Session) SetLanguage(lang richtext.Language) {
	s.mu.Lock()
	if s.lang == lang {
		s.mu.Unlock()
		return
	}
	s.lang = lang
	q := s.questionView(s.current)
	s.mu.Unlock()

	s.presenter.RenderQuestion(q)
}

// Tick advances the countdown by one second. Reaching zero submits the
// session with ReasonTimeout.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	s.remaining--
	if s.remaining > 0 {
		remaining := s.remaining
		s.mu.Unlock()
		s.presenter.RenderClock(remaining)
		return
	}

	s.remaining = 0
	r := s.submitLocked(ReasonTimeout)
	s.presenter.RenderClock(0)
	s.announceSubmit(r, ReasonTimeout)
}

// Submit ends the session and returns its result. Later calls return the
// same result without side effects.
func (s *Session) Submit() Result {
	s.mu.Lock()
	if s.state == StateSubmitted {
		r := s.result
		s.mu.Unlock()
		return r
	}
	r := s.submitLocked(ReasonManual)
	s.announceSubmit(r, ReasonManual)
	return r
}

// submitLocked must be called with s.mu held; it releases it.
func (s *Session) submitLocked(reason SubmitReason) Result {
	now := s.clock.Now()
	s.flushLocked(now)
	s.state = StateSubmitted
	s.reason = reason
	s.submittedAt = now
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	s.result = ComputeResult(s.questions, s.answers, s.cfg, now.Sub(s.startedAt))
	r := s.result
	s.mu.Unlock()
	return r
}

func (s *Session) announceSubmit(r Result, reason SubmitReason) {
	s.log.Info().
		Str("reason", string(reason)).
		Float64("score", r.Score).
		Int("correct", r.Correct).
		Int("incorrect", r.Incorrect).
		Int("unattempted", r.Unattempted).
		Msg("Session submitted")

	s.mu.Lock()
	q, grid := s.questionView(s.current), s.grid()
	s.mu.Unlock()

	s.presenter.RenderResult(r)
	s.presenter.RenderQuestion(q)
	s.presenter.RenderGrid(grid)
	if s.onSubmit != nil {
		s.onSubmit(r, reason)
	}
}

// Stop cancels the countdown without submitting, for sessions being discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Result returns the result and whether the session has been submitted.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateSubmitted
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the index of the presented question.
func (s *Session) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Answers returns a copy of the answer slots (Unanswered for none).
func (s *Session) Answers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.answers...)
}

// TimeSpent returns a copy of the per-question seconds.
func (s *Session) TimeSpent() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.timeSpent...)
}

// Remaining returns the countdown in seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Language returns the content language.
func (s *Session) Language() richtext.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// StartedAt is the moment timing began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// SubmittedAt is the moment of submission, zero before it.
func (s *Session) SubmittedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submittedAt
}

// Config returns the session config.
func (s *Session) Config() Config { return s.cfg }

// Questions returns the paper. Callers must not modify it.
func (s *Session) Questions() []Question { return s.questions }

// Warnings lists the integrity problems found at construction.
func (s *Session) Warnings() []IntegrityWarning { return s.warnings }
