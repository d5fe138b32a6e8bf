package exam

import (
	"math"
	"time"
)

// Unanswered marks an answer slot with no selected option.
const Unanswered = -1

// Result is the scored outcome of a session.
type Result struct {
	Score       float64 `json:"score"`
	TotalMarks  float64 `json:"totalMarks"`
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	Unattempted int     `json:"unattempted"`
	// TimeTaken is the elapsed session time in whole minutes.
	TimeTaken int `json:"timeTaken"`
}

// ComputeResult scores answers against questions. answers[i] is an option
// index or Unanswered. Negative totals are reported as 0.
func ComputeResult(questions []Question, answers []int, cfg Config, elapsed time.Duration) Result {
	r := Result{TotalMarks: cfg.TotalMarks}
	var score float64

	for i := range questions {
		u := Unanswered
		if i < len(answers) {
			u = answers[i]
		}

		switch {
		case u == Unanswered:
			r.Unattempted++
		case questions[i].IsCorrect(u):
			r.Correct++
			score += cfg.MarksPerQuestion
		default:
			r.Incorrect++
			score -= cfg.NegativeMarking
		}
	}

	if score < 0 {
		score = 0
	}
	r.Score = math.Round(score*100) / 100
	r.TimeTaken = int(math.Round(elapsed.Minutes()))
	return r
}
