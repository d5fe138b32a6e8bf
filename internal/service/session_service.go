package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/loader"
	"github.com/stemsi/exstem-mocktest/internal/model"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
	ws "github.com/stemsi/exstem-mocktest/internal/websocket"
)

// ErrSessionNotFound is returned for unknown or evicted sessions.
var ErrSessionNotFound = errors.New("session not found")

// enqueueTimeout bounds the result hand-off to Redis after a submission.
const enqueueTimeout = 5 * time.Second

// PaperSource resolves a catalog id to a loaded paper.
type PaperSource interface {
	Paper(ctx context.Context, testID string) (*loader.Paper, catalog.Entry, error)
}

// LiveSession is a session served by this process.
type LiveSession struct {
	ID      uuid.UUID
	TestID  string
	Title   string
	Session *exam.Session
	Hub     *ws.Hub

	mu       sync.Mutex
	lastSeen time.Time
}

func (l *LiveSession) touch(now time.Time) {
	l.mu.Lock()
	l.lastSeen = now
	l.mu.Unlock()
}

func (l *LiveSession) idleSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// SessionService owns every live session. Sessions are independent; the
// registry lock only guards the map.
type SessionService struct {
	papers  PaperSource
	results ResultStore
	sched   exam.Scheduler
	clock   exam.Clock
	ttl     time.Duration
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*LiveSession
}

// NewSessionService creates a new SessionService. Sessions idle for longer
// than ttl are evicted by Sweep.
func NewSessionService(papers PaperSource, results ResultStore, sched exam.Scheduler, clock exam.Clock, ttl time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		papers:   papers,
		results:  results,
		sched:    sched,
		clock:    clock,
		ttl:      ttl,
		log:      log.With().Str("component", "session_service").Logger(),
		sessions: make(map[uuid.UUID]*LiveSession),
	}
}

// Create loads the test, builds a session in lang and starts its countdown.
func (s *SessionService) Create(ctx context.Context, testID string, lang richtext.Language) (*LiveSession, error) {
	paper, entry, err := s.papers.Paper(ctx, testID)
	if err != nil {
		return nil, err
	}

	live := &LiveSession{
		ID:       uuid.New(),
		TestID:   entry.ID,
		Title:    entry.Title,
		Hub:      ws.NewHub(),
		lastSeen: s.clock.Now(),
	}

	sessLog := s.log.With().
		Str("session_id", live.ID.String()).
		Str("test_id", entry.ID).
		Logger()

	cfg := paper.Config
	sess, err := exam.NewSession(&cfg, paper.Questions,
		exam.WithClock(s.clock),
		exam.WithPresenter(live.Hub),
		exam.WithLogger(sessLog),
		exam.WithLanguage(lang),
		exam.WithOnSubmit(func(r exam.Result, reason exam.SubmitReason) {
			s.record(live, r, reason)
		}),
	)
	if err != nil {
		return nil, err
	}
	live.Session = sess

	s.mu.Lock()
	s.sessions[live.ID] = live
	s.mu.Unlock()

	sess.Start(s.sched)
	return live, nil
}

// Touch marks a session active. Stream actions call it for every message.
func (s *SessionService) Touch(live *LiveSession) {
	live.touch(s.clock.Now())
}

// Get returns a live session and marks it active.
func (s *SessionService) Get(id uuid.UUID) (*LiveSession, error) {
	s.mu.RLock()
	live, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	live.touch(s.clock.Now())
	return live, nil
}

// StoredResult returns the result of a session that is no longer live.
func (s *SessionService) StoredResult(ctx context.Context, id uuid.UUID) (*model.ExamResult, error) {
	if s.results == nil {
		return nil, ErrResultNotFound
	}
	return s.results.Lookup(ctx, id.String())
}

// Count reports the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. A session whose countdown is still running is never evicted;
// it ends by submission or timeout.
func (s *SessionService) Sweep() int {
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	var stale []*LiveSession
	for id, live := range s.sessions {
		if live.Session.State() == exam.StateInProgress {
			continue
		}
		if live.idleSince().Before(cutoff) {
			stale = append(stale, live)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, live := range stale {
		live.Session.Stop()
		live.Hub.Close()
		s.log.Info().Str("session_id", live.ID.String()).Msg("Evicted idle session")
	}
	return len(stale)
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// Shutdown stops every countdown and disconnects every stream.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[uuid.UUID]*LiveSession)
	s.mu.Unlock()

	for _, live := range all {
		live.Session.Stop()
		live.Hub.Close()
	}
	s.log.Info().Int("sessions", len(all)).Msg("Session service stopped")
}

// record hands a submitted result to the result store. Failures are logged;
// the session itself keeps its result either way.
func (s *SessionService) record(live *LiveSession, r exam.Result, reason exam.SubmitReason) {
	if s.results == nil {
		return
	}
	sess := live.Session
	rec := model.ExamResult{
		SessionID:        live.ID,
		TestID:           live.TestID,
		Score:            r.Score,
		TotalMarks:       r.TotalMarks,
		Correct:          r.Correct,
		Incorrect:        r.Incorrect,
		Unattempted:      r.Unattempted,
		TimeTakenMinutes: r.TimeTaken,
		Reason:           string(reason),
		Language:         string(sess.Language()),
		StartedAt:        sess.StartedAt(),
		SubmittedAt:      sess.SubmittedAt(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := s.results.Enqueue(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("session_id", live.ID.String()).Msg("Result enqueue failed")
	}
}
