package exam

import (
	"sync"
	"time"
)

// Clock supplies the current time. Sessions use it for every timing decision.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

// Scheduler runs fn every period until the returned cancel func is called.
// Cancel must be safe to call more than once and from inside fn.
type Scheduler interface {
	Every(period time.Duration, fn func()) (cancel func())
}

// TickerScheduler drives callbacks from a time.Ticker on its own goroutine.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(period time.Duration, fn func()) func() {
	t := time.NewTicker(period)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// ManualScheduler fires registered callbacks only when Fire is called.
type ManualScheduler struct {
	mu     sync.Mutex
	fn     func()
	period time.Duration
	active bool
}

// Every implements Scheduler. A new registration replaces the previous one.
func (m *ManualScheduler) Every(period time.Duration, fn func()) func() {
	m.mu.Lock()
	m.fn = fn
	m.period = period
	m.active = true
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.active = false
			m.mu.Unlock()
		})
	}
}

// Fire invokes the callback n times, stopping early once it is cancelled.
// It returns how many times the callback ran.
func (m *ManualScheduler) Fire(n int) int {
	ran := 0
	for i := 0; i < n; i++ {
		m.mu.Lock()
		fn, active := m.fn, m.active
		m.mu.Unlock()
		if !active || fn == nil {
			break
		}
		fn()
		ran++
	}
	return ran
}

// Active reports whether a registration is live.
func (m *ManualScheduler) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Period is the interval of the live registration.
func (m *ManualScheduler) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}
