package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/loader"
	"github.com/stemsi/exstem-mocktest/internal/model"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
	ws "github.com/stemsi/exstem-mocktest/internal/websocket"
)

// ─── Fakes ─────────────────────────────────────────────────────────────

const algebraPayload = `{
  "config": {"testName": "Algebra", "durationMinutes": 1, "totalMarks": 2, "marksPerQuestion": 1, "negativeMarking": 0.25},
  "questions": [
    {"question": "1+1", "options": ["1", "2"], "correct_option_id": 1},
    {"question": "2+2", "options": ["4", "5"], "correct_option_id": 0}
  ]
}`

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, source string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.data[source]
	if !ok {
		return nil, &loader.LoadError{Source: source, Err: loader.ErrFetch}
	}
	return []byte(d), nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return d, nil
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

type memResults struct {
	mu      sync.Mutex
	results []model.ExamResult
}

func (m *memResults) Enqueue(_ context.Context, r model.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func (m *memResults) Lookup(_ context.Context, id string) (*model.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.SessionID.String() == id {
			r := r
			return &r, nil
		}
	}
	return nil, ErrResultNotFound
}

func (m *memResults) all() []model.ExamResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ExamResult(nil), m.results...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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

func newCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.Entry{ID: "algebra", Title: "Algebra", Source: "algebra.json"},
		catalog.Entry{ID: "broken", Title: "Broken", Source: "broken.json"},
		catalog.Entry{ID: "offline", Title: "Offline", Source: "https://cdn.example.com/offline.json"},
		catalog.Entry{ID: "marathon", Title: "Marathon", Source: "marathon.json"},
	)
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{data: map[string]string{
		"algebra.json":  algebraPayload,
		"broken.json":   `{"config": {"durationMinutes": 5}}`,
		"marathon.json": `{
  "config": {"testName": "Marathon", "durationMinutes": 120, "totalMarks": 2, "marksPerQuestion": 1, "negativeMarking": 0},
  "questions": [
    {"question": "1+1", "options": ["1", "2"], "correct_option_id": 1},
    {"question": "2+2", "options": ["4", "5"], "correct_option_id": 0}
  ]
}`,
	}}
}

// ─── PaperService ──────────────────────────────────────────────────────

func TestPaperService_ReadThroughCache(t *testing.T) {
	fetcher := newFetcher()
	cache := newMemCache()
	svc := NewPaperService(newCatalog(), fetcher, cache, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		paper, entry, err := svc.Paper(context.Background(), "algebra")
		if err != nil {
			t.Fatalf("Paper: %v", err)
		}
		if entry.Title != "Algebra" || len(paper.Questions) != 2 {
			t.Fatalf("paper = %+v entry = %+v", paper, entry)
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
	if _, err := cache.Get(context.Background(), config.CacheKey.TestPayloadKey("algebra")); err != nil {
		t.Errorf("payload not cached: %v", err)
	}
}

func TestPaperService_Failures(t *testing.T) {
	fetcher := newFetcher()
	cache := newMemCache()
	svc := NewPaperService(newCatalog(), fetcher, cache, time.Minute, zerolog.Nop())
	ctx := context.Background()

	if _, _, err := svc.Paper(ctx, "physics"); !errors.Is(err, catalog.ErrTestNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}

	_, _, err := svc.Paper(ctx, "broken")
	if !errors.Is(err, loader.ErrMalformedPayload) {
		t.Errorf("broken: err = %v", err)
	}
	if _, err := cache.Get(ctx, config.CacheKey.TestPayloadKey("broken")); !errors.Is(err, ErrCacheMiss) {
		t.Error("rejected payload was cached")
	}

	_, _, err = svc.Paper(ctx, "offline")
	var le *loader.LoadError
	if !errors.As(err, &le) || le.Source != "https://cdn.example.com/offline.json" {
		t.Errorf("offline: err = %v", err)
	}
}

func TestPaperService_Summary(t *testing.T) {
	svc := NewPaperService(newCatalog(), newFetcher(), nil, 0, zerolog.Nop())
	sum, err := svc.Summary(context.Background(), "algebra")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.QuestionCount != 2 || sum.Config.TestName != "Algebra" || sum.TestID != "algebra" {
		t.Errorf("summary = %+v", sum)
	}
	if len(svc.List()) != 4 {
		t.Errorf("List = %d entries", len(svc.List()))
	}
}

func TestPaperService_Prewarm(t *testing.T) {
	fetcher := newFetcher()
	cache := newMemCache()
	svc := NewPaperService(newCatalog(), fetcher, cache, time.Minute, zerolog.Nop())

	if n := svc.Prewarm(context.Background()); n != 2 {
		t.Errorf("warmed = %d, want 2", n)
	}
	if fetcher.calls != 4 {
		t.Errorf("fetch calls after prewarm = %d, want 4", fetcher.calls)
	}
	if _, _, err := svc.Paper(context.Background(), "algebra"); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 4 {
		t.Errorf("warmed paper was fetched again: calls = %d", fetcher.calls)
	}
}

// ─── SessionService ────────────────────────────────────────────────────

type harness struct {
	svc     *SessionService
	sched   *exam.ManualScheduler
	clock   *fakeClock
	results *memResults
}

func newHarness() *harness {
	h := &harness{
		sched:   &exam.ManualScheduler{},
		clock:   &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		results: &memResults{},
	}
	papers := NewPaperService(newCatalog(), newFetcher(), nil, 0, zerolog.Nop())
	h.svc = NewSessionService(papers, h.results, h.sched, h.clock, time.Hour, zerolog.Nop())
	return h
}

func TestSessionService_Create(t *testing.T) {
	h := newHarness()
	live, err := h.svc.Create(context.Background(), "algebra", richtext.Hindi)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if live.Session.State() != exam.StateInProgress {
		t.Errorf("state = %s", live.Session.State())
	}
	if live.Session.Language() != richtext.Hindi {
		t.Errorf("language = %s", live.Session.Language())
	}
	if !h.sched.Active() || h.sched.Period() != exam.TickPeriod {
		t.Error("countdown not scheduled")
	}

	got, err := h.svc.Get(live.ID)
	if err != nil || got != live {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := h.svc.Get(uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get unknown: err = %v", err)
	}
	if h.svc.Count() != 1 {
		t.Errorf("Count = %d", h.svc.Count())
	}
}

func TestSessionService_CreateLoadFailure(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.Create(context.Background(), "broken", richtext.English); err == nil {
		t.Fatal("Create succeeded for a malformed payload")
	}
	if h.svc.Count() != 0 {
		t.Error("failed load left a session behind")
	}
}

func TestSessionService_SubmitRecordsResult(t *testing.T) {
	h := newHarness()
	live, err := h.svc.Create(context.Background(), "algebra", richtext.English)
	if err != nil {
		t.Fatal(err)
	}

	live.Session.SelectOption(0, 1)
	h.clock.Advance(20 * time.Second)
	live.Session.Submit()
	live.Session.Submit()

	recs := h.results.all()
	if len(recs) != 1 {
		t.Fatalf("recorded %d results, want 1", len(recs))
	}
	r := recs[0]
	if r.SessionID != live.ID || r.TestID != "algebra" || r.Reason != string(exam.ReasonManual) {
		t.Errorf("record = %+v", r)
	}
	if r.Score != 1 || r.Correct != 1 || r.Unattempted != 1 {
		t.Errorf("record score = %+v", r)
	}
	if !r.SubmittedAt.Equal(h.clock.Now()) {
		t.Errorf("SubmittedAt = %v", r.SubmittedAt)
	}

	stored, err := h.svc.StoredResult(context.Background(), live.ID)
	if err != nil || stored.Score != 1 {
		t.Errorf("StoredResult = %+v, %v", stored, err)
	}
}

func TestSessionService_TimeoutStreamsResult(t *testing.T) {
	h := newHarness()
	live, err := h.svc.Create(context.Background(), "algebra", richtext.English)
	if err != nil {
		t.Fatal(err)
	}
	events, cancel := live.Hub.Subscribe()
	defer cancel()

	h.clock.Advance(time.Minute)
	if n := h.sched.Fire(120); n != 60 {
		t.Errorf("ticks ran = %d, want 60", n)
	}

	var sawResult bool
	for len(events) > 0 {
		if _, ok := (<-events).(ws.ResultResponse); ok {
			sawResult = true
		}
	}
	if !sawResult {
		t.Error("no result event streamed")
	}

	recs := h.results.all()
	if len(recs) != 1 || recs[0].Reason != string(exam.ReasonTimeout) {
		t.Errorf("records = %+v", recs)
	}
}

func TestSessionService_Sweep(t *testing.T) {
	h := newHarness()
	done, _ := h.svc.Create(context.Background(), "algebra", richtext.English)
	done.Session.Submit()
	running, _ := h.svc.Create(context.Background(), "algebra", richtext.English)
	h.clock.Advance(50 * time.Minute)
	fresh, _ := h.svc.Create(context.Background(), "algebra", richtext.English)
	fresh.Session.Submit()
	h.clock.Advance(20 * time.Minute)

	events, _ := done.Hub.Subscribe()

	if n := h.svc.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, err := h.svc.Get(done.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle submitted session still live")
	}
	if _, err := h.svc.Get(fresh.ID); err != nil {
		t.Errorf("recently used session evicted: %v", err)
	}
	if _, err := h.svc.Get(running.ID); err != nil {
		t.Errorf("session with a running countdown evicted: %v", err)
	}
	if _, open := <-events; open {
		t.Error("evicted session hub still open")
	}
}

func TestSessionService_SweepKeepsLongPaperWorkedOverStream(t *testing.T) {
	h := newHarness()
	live, err := h.svc.Create(context.Background(), "marathon", richtext.English)
	if err != nil {
		t.Fatal(err)
	}

	// 61 minutes of countdown, answering only through stream actions, which
	// never go through Get.
	for minute := 0; minute < 61; minute++ {
		h.clock.Advance(time.Minute)
		if n := h.sched.Fire(60); n != 60 {
			t.Fatalf("minute %d: ticks ran = %d", minute, n)
		}
		if minute == 0 {
			h.svc.Touch(live)
			live.Session.SelectOption(0, 1)
		}
	}

	if n := h.svc.Sweep(); n != 0 {
		t.Fatalf("Sweep removed %d running sessions", n)
	}
	if live.Session.State() != exam.StateInProgress || live.Session.Remaining() != 3540 {
		t.Errorf("state %s remaining %d", live.Session.State(), live.Session.Remaining())
	}
	if !h.sched.Active() {
		t.Fatal("countdown cancelled by the sweep")
	}

	// The countdown still forces submission at zero.
	if n := h.sched.Fire(4000); n != 3540 {
		t.Errorf("ticks to timeout = %d, want 3540", n)
	}
	recs := h.results.all()
	if len(recs) != 1 || recs[0].Reason != string(exam.ReasonTimeout) || recs[0].Correct != 1 {
		t.Fatalf("records = %+v", recs)
	}

	h.clock.Advance(2 * time.Hour)
	if n := h.svc.Sweep(); n != 1 {
		t.Errorf("submitted idle session not swept: %d", n)
	}
}

func TestSessionService_TouchKeepsReviewAlive(t *testing.T) {
	h := newHarness()
	live, _ := h.svc.Create(context.Background(), "algebra", richtext.English)
	live.Session.Submit()

	h.clock.Advance(50 * time.Minute)
	h.svc.Touch(live)
	h.clock.Advance(20 * time.Minute)

	if n := h.svc.Sweep(); n != 0 {
		t.Errorf("touched session swept: %d", n)
	}
}

func TestSessionService_Shutdown(t *testing.T) {
	h := newHarness()
	_, _ = h.svc.Create(context.Background(), "algebra", richtext.English)
	h.svc.Shutdown()
	if h.svc.Count() != 0 || h.sched.Active() {
		t.Error("Shutdown left sessions running")
	}
}
