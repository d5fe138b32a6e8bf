package exam

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/exstem-mocktest/internal/richtext"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPresenter struct {
	mu        sync.Mutex
	questions []QuestionView
	grids     int
	clocks    []int
	results   []Result
}

func (p *recordingPresenter) RenderQuestion(q QuestionView) {
	p.mu.Lock()
	p.questions = append(p.questions, q)
	p.mu.Unlock()
}

func (p *recordingPresenter) RenderGrid([]GridCell) {
	p.mu.Lock()
	p.grids++
	p.mu.Unlock()
}

func (p *recordingPresenter) RenderClock(remaining int) {
	p.mu.Lock()
	p.clocks = append(p.clocks, remaining)
	p.mu.Unlock()
}

func (p *recordingPresenter) RenderResult(r Result) {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}

func intPtr(n int) *int { return &n }

// makeQuestions builds n four-option questions whose correct answer is option 0.
func makeQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			Question:        "Q",
			Options:         []string{"A", "B", "C", "D"},
			CorrectOptionID: intPtr(0),
		}
	}
	return qs
}

func startedSession(t *testing.T, cfg *Config, n int) (*Session, *fakeClock, *ManualScheduler) {
	t.Helper()
	clk := newFakeClock()
	s, err := NewSession(cfg, makeQuestions(n), WithClock(clk))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sched := &ManualScheduler{}
	s.Start(sched)
	return s, clk, sched
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

func TestNewSession_NoQuestions(t *testing.T) {
	_, err := NewSession(nil, nil)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestNewSession_InitialState(t *testing.T) {
	s, err := NewSession(nil, makeQuestions(5))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.State() != StateNotStarted {
		t.Errorf("state = %s, want %s", s.State(), StateNotStarted)
	}
	if s.Current() != 0 {
		t.Errorf("current = %d, want 0", s.Current())
	}
	if s.Remaining() != 5*60 {
		t.Errorf("remaining = %d, want 300", s.Remaining())
	}
	for i, a := range s.Answers() {
		if a != Unanswered {
			t.Errorf("answers[%d] = %d, want unanswered", i, a)
		}
	}
	if got := len(s.TimeSpent()); got != 5 {
		t.Errorf("len(timeSpent) = %d, want 5", got)
	}
	if s.Language() != richtext.English {
		t.Errorf("language = %s, want en", s.Language())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(40)
	if cfg.DurationMinutes != 40 || cfg.TotalMarks != 40 || cfg.MarksPerQuestion != 1 || cfg.NegativeMarking != 0.25 {
		t.Errorf("DefaultConfig(40) = %+v", cfg)
	}

	cfg = DefaultConfig(0)
	if cfg.DurationMinutes != 34 || cfg.TotalMarks != 34 {
		t.Errorf("DefaultConfig(0) = %+v, want 34 minutes and marks", cfg)
	}

	s, err := NewSession(nil, makeQuestions(40))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Config() != DefaultConfig(40) {
		t.Errorf("session config = %+v, want default", s.Config())
	}
}

func TestStart_OnlyOnce(t *testing.T) {
	s, clk, sched := startedSession(t, nil, 3)
	if s.State() != StateInProgress {
		t.Fatalf("state = %s, want in progress", s.State())
	}
	if sched.Period() != TickPeriod {
		t.Errorf("tick period = %v, want %v", sched.Period(), TickPeriod)
	}

	sched.Fire(10)
	clk.Advance(10 * time.Second)
	started := s.StartedAt()

	s.Start(&ManualScheduler{})
	if s.Remaining() != 3*60-10 {
		t.Errorf("second Start reset the clock: remaining = %d", s.Remaining())
	}
	if !s.StartedAt().Equal(started) {
		t.Error("second Start moved the start timestamp")
	}
}

func TestNavigate_FlushesTime(t *testing.T) {
	s, clk, _ := startedSession(t, nil, 3)

	clk.Advance(5 * time.Second)
	s.Navigate(2)
	clk.Advance(3 * time.Second)
	s.Navigate(0)

	spent := s.TimeSpent()
	if spent[0] != 5 || spent[1] != 0 || spent[2] != 3 {
		t.Errorf("timeSpent = %v, want [5 0 3]", spent)
	}
	if s.Current() != 0 {
		t.Errorf("current = %d, want 0", s.Current())
	}
}

func TestNavigate_SameIndexIsNoop(t *testing.T) {
	s, clk, _ := startedSession(t, nil, 3)
	clk.Advance(4 * time.Second)
	s.Navigate(0)
	if got := s.TimeSpent()[0]; got != 0 {
		t.Errorf("timeSpent[0] = %v, want 0 (no flush)", got)
	}
}

func TestNavigate_OutOfRange(t *testing.T) {
	for _, target := range []int{-1, 3, 100} {
		s, clk, _ := startedSession(t, nil, 3)
		s.SelectOption(0, 2)
		s.ToggleReview(1)

		clk.Advance(7 * time.Second)
		s.Navigate(target)

		if s.Current() != 0 {
			t.Errorf("Navigate(%d): current = %d, want 0", target, s.Current())
		}
		if a := s.Answers(); a[0] != 2 || a[1] != Unanswered || a[2] != Unanswered {
			t.Errorf("Navigate(%d): answers changed: %v", target, a)
		}
		if v := s.View(); !v.Review[1] || v.Review[0] || v.Review[2] {
			t.Errorf("Navigate(%d): review flags changed: %v", target, v.Review)
		}
		if spent := s.TimeSpent(); spent[0] != 7 || spent[1] != 0 || spent[2] != 0 {
			t.Errorf("Navigate(%d): timeSpent = %v, want only the flush of question 0", target, spent)
		}
	}
}

func TestNextPrev_Boundaries(t *testing.T) {
	s, clk, _ := startedSession(t, nil, 2)

	clk.Advance(2 * time.Second)
	s.Prev()
	if s.Current() != 0 {
		t.Fatalf("Prev at first question moved to %d", s.Current())
	}
	if got := s.TimeSpent()[0]; got != 0 {
		t.Errorf("Prev at boundary flushed time: %v", got)
	}

	s.Next()
	if s.Current() != 1 {
		t.Fatalf("Next: current = %d, want 1", s.Current())
	}
	s.Next()
	if s.Current() != 1 {
		t.Errorf("Next at last question wrapped to %d", s.Current())
	}
	s.Prev()
	if s.Current() != 0 {
		t.Errorf("Prev: current = %d, want 0", s.Current())
	}
}

func TestSelectOption_Toggle(t *testing.T) {
	s, _, _ := startedSession(t, nil, 2)

	s.SelectOption(1, 3)
	if got := s.Answers()[1]; got != 3 {
		t.Fatalf("answers[1] = %d, want 3", got)
	}
	s.SelectOption(1, 2)
	if got := s.Answers()[1]; got != 2 {
		t.Fatalf("answers[1] = %d, want 2 after switching", got)
	}
	s.SelectOption(1, 2)
	if got := s.Answers()[1]; got != Unanswered {
		t.Errorf("answers[1] = %d, want cleared after selecting twice", got)
	}
}

func TestSelectOption_InvalidTargetIgnored(t *testing.T) {
	s, _, _ := startedSession(t, nil, 2)
	s.SelectOption(-1, 0)
	s.SelectOption(2, 0)
	s.SelectOption(0, 4)
	s.SelectOption(0, -1)
	for i, a := range s.Answers() {
		if a != Unanswered {
			t.Errorf("answers[%d] = %d, want unanswered", i, a)
		}
	}
}

func TestToggleReview(t *testing.T) {
	s, _, _ := startedSession(t, nil, 2)
	s.ToggleReview(1)
	if v := s.View(); !v.Review[1] || v.ReviewCount != 1 {
		t.Fatalf("review = %v count %d, want question 2 flagged", v.Review, v.ReviewCount)
	}
	s.ToggleReview(1)
	if v := s.View(); v.Review[1] {
		t.Error("second toggle did not clear the flag")
	}
	s.ToggleReview(9)
}

func TestSubmit_FreezesAndIsIdempotent(t *testing.T) {
	var calls []SubmitReason
	clk := newFakeClock()
	s, err := NewSession(nil, makeQuestions(4), WithClock(clk), WithOnSubmit(func(_ Result, r SubmitReason) {
		calls = append(calls, r)
	}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sched := &ManualScheduler{}
	s.Start(sched)

	s.SelectOption(0, 0)
	s.SelectOption(1, 1)
	s.ToggleReview(2)
	clk.Advance(90 * time.Second)

	first := s.Submit()
	if s.State() != StateSubmitted {
		t.Fatalf("state = %s, want submitted", s.State())
	}
	if sched.Active() {
		t.Error("countdown still registered after submit")
	}

	answers := s.Answers()
	review := s.View().Review
	for i := 0; i < 4; i++ {
		for k := 0; k < 4; k++ {
			s.SelectOption(i, k)
		}
		s.ToggleReview(i)
	}
	after := s.Answers()
	for i := range answers {
		if answers[i] != after[i] {
			t.Errorf("answers[%d] changed after submit: %d -> %d", i, answers[i], after[i])
		}
	}
	for i, r := range s.View().Review {
		if r != review[i] {
			t.Errorf("review[%d] changed after submit", i)
		}
	}

	clk.Advance(10 * time.Minute)
	second := s.Submit()
	if first != second {
		t.Errorf("second Submit = %+v, want %+v", second, first)
	}
	if len(calls) != 1 || calls[0] != ReasonManual {
		t.Errorf("OnSubmit calls = %v, want one manual", calls)
	}

	spent := s.TimeSpent()
	s.Navigate(3)
	if sum(s.TimeSpent()) != sum(spent) {
		t.Error("navigation after submit accumulated time")
	}
	if s.Current() != 3 {
		t.Error("navigation after submit should still move for review")
	}
}

func TestSubmit_FlushesCurrentQuestion(t *testing.T) {
	s, clk, _ := startedSession(t, nil, 3)
	clk.Advance(4 * time.Second)
	s.Navigate(1)
	clk.Advance(6 * time.Second)
	s.Submit()

	spent := s.TimeSpent()
	if spent[0] != 4 || spent[1] != 6 {
		t.Errorf("timeSpent = %v, want [4 6 0]", spent)
	}
}

func TestTick_ForcedSubmission(t *testing.T) {
	cfg := &Config{DurationMinutes: 1, TotalMarks: 5, MarksPerQuestion: 1, NegativeMarking: 0.25}
	clk := newFakeClock()
	p := &recordingPresenter{}
	var reasons []SubmitReason
	s, err := NewSession(cfg, makeQuestions(5), WithClock(clk), WithPresenter(p),
		WithOnSubmit(func(_ Result, r SubmitReason) { reasons = append(reasons, r) }))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sched := &ManualScheduler{}
	s.Start(sched)

	s.SelectOption(0, 0)
	s.SelectOption(1, 0)
	s.SelectOption(2, 3)

	for i := 0; i < 59; i++ {
		clk.Advance(time.Second)
		sched.Fire(1)
	}
	if s.State() != StateInProgress {
		t.Fatalf("submitted early with %d seconds left", s.Remaining())
	}
	if s.Remaining() != 1 {
		t.Fatalf("remaining = %d, want 1", s.Remaining())
	}

	clk.Advance(time.Second)
	sched.Fire(1)

	v := s.View()
	if v.State != StateSubmitted || v.Reason != ReasonTimeout {
		t.Fatalf("state = %s reason = %s, want submitted by timeout", v.State, v.Reason)
	}
	if v.Result == nil {
		t.Fatal("result missing after forced submission")
	}
	want := Result{Score: 1.75, TotalMarks: 5, Correct: 2, Incorrect: 1, Unattempted: 2, TimeTaken: 1}
	if *v.Result != want {
		t.Errorf("result = %+v, want %+v", *v.Result, want)
	}
	if sched.Active() {
		t.Error("countdown still registered after timeout")
	}
	if ran := sched.Fire(5); ran != 0 {
		t.Errorf("ticks after timeout ran %d times", ran)
	}
	if len(reasons) != 1 || reasons[0] != ReasonTimeout {
		t.Errorf("OnSubmit reasons = %v, want one timeout", reasons)
	}
	if len(p.results) != 1 {
		t.Errorf("RenderResult called %d times, want 1", len(p.results))
	}
	if last := p.clocks[len(p.clocks)-1]; last != 0 {
		t.Errorf("last rendered clock = %d, want 0", last)
	}

	if manual := s.Submit(); manual != want {
		t.Errorf("Submit after timeout = %+v, want the timeout result", manual)
	}
}

func TestTick_IgnoredBeforeStart(t *testing.T) {
	s, err := NewSession(nil, makeQuestions(2))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Tick()
	if s.Remaining() != 120 {
		t.Errorf("remaining = %d, want untouched 120", s.Remaining())
	}
}

func TestTimeAccounting_NeverExceedsElapsed(t *testing.T) {
	s, clk, sched := startedSession(t, nil, 6)
	start := clk.Now()

	steps := []struct {
		advance time.Duration
		target  int
	}{
		{1500 * time.Millisecond, 3},
		{0, 3},
		{2 * time.Second, 9},
		{700 * time.Millisecond, -2},
		{4 * time.Second, 5},
		{time.Second, 0},
		{3 * time.Second, 5},
		{250 * time.Millisecond, 1},
	}
	for i, st := range steps {
		clk.Advance(st.advance)
		sched.Fire(1)
		s.Navigate(st.target)
		elapsed := clk.Now().Sub(start).Seconds()
		if got := sum(s.TimeSpent()); got > elapsed+1e-9 {
			t.Fatalf("step %d: sum(timeSpent) = %v exceeds elapsed %v", i, got, elapsed)
		}
	}

	clk.Advance(2 * time.Second)
	s.Submit()
	elapsed := clk.Now().Sub(start).Seconds()
	got := sum(s.TimeSpent())
	if got > elapsed+1e-9 {
		t.Fatalf("after submit: sum(timeSpent) = %v exceeds elapsed %v", got, elapsed)
	}
	if elapsed-got > 1e-9 {
		t.Errorf("after submit: sum(timeSpent) = %v, want all %v seconds accounted", got, elapsed)
	}
}

func TestInvalidCorrectOptionID(t *testing.T) {
	qs := makeQuestions(2)
	qs[1].CorrectOptionID = intPtr(7)

	clk := newFakeClock()
	s, err := NewSession(nil, qs, WithClock(clk))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	w := s.Warnings()
	if len(w) != 1 || w[0].QuestionIndex != 1 || w[0].CorrectOptionID != 7 || w[0].OptionCount != 4 {
		t.Fatalf("warnings = %+v", w)
	}
	if !strings.Contains(w[0].String(), "question 2") {
		t.Errorf("warning text = %q", w[0].String())
	}

	s.Start(&ManualScheduler{})
	for k := 0; k < 4; k++ {
		s.SelectOption(1, k)
		if s.Answers()[1] != k {
			t.Fatalf("could not select option %d", k)
		}
		r := ComputeResult(s.Questions(), s.Answers(), s.Config(), 0)
		if r.Correct != 0 || r.Incorrect != 1 {
			t.Errorf("option %d on broken key scored %+v", k, r)
		}
	}
}

func TestSetLanguage_KeepsState(t *testing.T) {
	qs := []Question{{
		Question: `<span class="lang-en">Speed</span><span class="lang-hi">गति</span>`,
		Options:  []string{"1", "2"},
	}}
	p := &recordingPresenter{}
	s, err := NewSession(nil, qs, WithPresenter(p))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Start(&ManualScheduler{})
	s.SelectOption(0, 1)
	s.ToggleReview(0)

	s.SetLanguage(richtext.Hindi)
	v := s.View()
	if v.Language != richtext.Hindi {
		t.Fatalf("language = %s", v.Language)
	}
	if strings.Contains(v.Current.Question, "Speed") || !strings.Contains(v.Current.Question, "गति") {
		t.Errorf("question = %q, want only the Hindi variant", v.Current.Question)
	}
	if *v.Answers[0] != 1 || !v.Review[0] || v.State != StateInProgress {
		t.Errorf("language switch changed state: %+v", v)
	}
	last := p.questions[len(p.questions)-1]
	if !strings.Contains(last.Question, "गति") {
		t.Errorf("presenter not re-rendered in Hindi: %q", last.Question)
	}
}

func TestView_GridAndSolution(t *testing.T) {
	qs := makeQuestions(4)
	qs[0].Solution = "because"
	s, err := NewSession(nil, qs)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Start(&ManualScheduler{})
	s.SelectOption(0, 0)
	s.SelectOption(1, 2)
	s.ToggleReview(1)
	s.ToggleReview(2)

	v := s.View()
	want := []GridStatus{GridAnswered, GridReviewed, GridReviewed, GridUnattempted}
	for i, c := range v.Grid {
		if c.Status != want[i] {
			t.Errorf("grid[%d] = %s, want %s", i, c.Status, want[i])
		}
	}
	if !v.Grid[0].Current || v.Grid[1].Current {
		t.Error("current flag misplaced")
	}
	if v.Current.Correct != nil || v.Current.Solution != "" {
		t.Error("answer key leaked before submission")
	}

	s.Submit()
	v = s.View()
	want = []GridStatus{GridCorrect, GridWrong, GridUnattempted, GridUnattempted}
	for i, c := range v.Grid {
		if c.Status != want[i] {
			t.Errorf("after submit grid[%d] = %s, want %s", i, c.Status, want[i])
		}
	}
	if v.Current.Correct == nil || *v.Current.Correct != 0 || v.Current.Solution != "because" {
		t.Errorf("solution not revealed: %+v", v.Current)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{-3, "0:00"},
		{9, "0:09"},
		{65, "1:05"},
		{3600, "60:00"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.in); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConcurrentTriggers(t *testing.T) {
	s, _, sched := startedSession(t, nil, 10)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Navigate((g + i) % 10)
				s.SelectOption(i%10, g%4)
				s.ToggleReview(i % 10)
				sched.Fire(1)
				_ = s.View()
			}
		}(g)
	}
	wg.Wait()
	if n := len(s.Answers()); n != 10 {
		t.Errorf("len(answers) = %d", n)
	}
}
