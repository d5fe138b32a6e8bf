package websocket

import (
	"sync"

	"github.com/stemsi/exstem-mocktest/internal/exam"
)

// subscriberBuffer holds a little over one minute of clock events.
const subscriberBuffer = 64

// Hub fans session render calls out to every connected stream. It is the
// exam.Presenter of a served session.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan interface{}
	next   int
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan interface{})}
}

// Subscribe registers a stream. Events arrive on the returned channel until
// cancel is called or the hub is closed, after which the channel is closed.
func (h *Hub) Subscribe() (<-chan interface{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan interface{}, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers reports the number of live streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.subs {
		delete(h.subs, id)
		close(c)
	}
}

// broadcast never blocks the session. A stream with a full buffer skips
// droppable events; any other event disconnects it, and the client resyncs
// from the snapshot sent on reconnect.
func (h *Hub) broadcast(v interface{}, droppable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.subs {
		select {
		case c <- v:
		default:
			if !droppable {
				delete(h.subs, id)
				close(c)
			}
		}
	}
}

func (h *Hub) RenderQuestion(q exam.QuestionView) {
	h.broadcast(QuestionResponse{Event: EventQuestion, Question: q}, false)
}

func (h *Hub) RenderGrid(g []exam.GridCell) {
	h.broadcast(GridResponse{Event: EventGrid, Grid: g}, false)
}

func (h *Hub) RenderClock(remaining int) {
	h.broadcast(ClockResponse{
		Event:            EventClock,
		RemainingSeconds: remaining,
		Remaining:        exam.FormatRemaining(remaining),
	}, true)
}

func (h *Hub) RenderResult(r exam.Result) {
	h.broadcast(ResultResponse{Event: EventResult, Result: r}, false)
}
