package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is the persisted outcome of one submitted session.
type ExamResult struct {
	SessionID        uuid.UUID `json:"session_id"`
	TestID           string    `json:"test_id"`
	Score            float64   `json:"score"`
	TotalMarks       float64   `json:"total_marks"`
	Correct          int       `json:"correct"`
	Incorrect        int       `json:"incorrect"`
	Unattempted      int       `json:"unattempted"`
	TimeTakenMinutes int       `json:"time_taken_minutes"`
	Reason           string    `json:"reason"`
	Language         string    `json:"language"`
	StartedAt        time.Time `json:"started_at"`
	SubmittedAt      time.Time `json:"submitted_at"`
	// Attempts counts failed inserts while the result waits in the queue.
	Attempts int `json:"attempts,omitempty"`
}
