package websocket

import (
	"github.com/stemsi/exstem-mocktest/internal/exam"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionNavigate Action = "navigate"
	ActionSelect   Action = "select"
	ActionReview   Action = "review"
	ActionLanguage Action = "language"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload carries every action; fields unused by an action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	// Index is the navigation target, or Delta a relative step (+1/-1).
	Index *int `json:"index,omitempty"`
	Delta int  `json:"delta,omitempty"`
	// QuestionIndex and OptionIndex address select and review. Nil means
	// the client left the field out.
	QuestionIndex *int   `json:"question_index,omitempty"`
	OptionIndex   *int   `json:"option_index,omitempty"`
	Language      string `json:"language,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventQuestion Event = "question"
	EventGrid     Event = "grid"
	EventClock    Event = "clock"
	EventResult   Event = "result"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

type QuestionResponse struct {
	Event    Event             `json:"event"`
	Question exam.QuestionView `json:"question"`
}

type GridResponse struct {
	Event Event           `json:"event"`
	Grid  []exam.GridCell `json:"grid"`
}

// ClockResponse carries the countdown both as seconds and as M:SS.
type ClockResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Remaining        string `json:"remaining"`
}

type ResultResponse struct {
	Event  Event       `json:"event"`
	Result exam.Result `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
