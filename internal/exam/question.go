package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Question is one multiple-choice item. Text fields are bilingual rich text,
// see package richtext.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options" validate:"min=1"`
	// CorrectOptionID is nil when the payload carries no answer key.
	CorrectOptionID *int   `json:"-"`
	Comp            string `json:"comp,omitempty"`
	Solution        string `json:"solution,omitempty"`
}

type questionAlias Question

// UnmarshalJSON accepts correct_option_id as a number, a numeric string or null.
func (q *Question) UnmarshalJSON(data []byte) error {
	aux := struct {
		*questionAlias
		CorrectOptionID json.RawMessage `json:"correct_option_id"`
	}{questionAlias: (*questionAlias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := parseOptionID(aux.CorrectOptionID)
	if err != nil {
		return fmt.Errorf("correct_option_id: %w", err)
	}
	q.CorrectOptionID = id
	return nil
}

// MarshalJSON writes correct_option_id back as a number or null.
func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		questionAlias
		CorrectOptionID *int `json:"correct_option_id"`
	}{questionAlias: questionAlias(q), CorrectOptionID: q.CorrectOptionID})
}

func parseOptionID(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, fmt.Errorf("not an integer: %v", f)
		}
		n := int(f)
		return &n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("must be a number or a numeric string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	n := int(n64)
	return &n, nil
}

// IsCorrect reports whether option is the recognised correct answer.
func (q *Question) IsCorrect(option int) bool {
	return q.CorrectOptionID != nil && option == *q.CorrectOptionID
}

// Config carries the scoring and timing rules of a test.
type Config struct {
	TestName         string  `json:"testName"`
	TestID           string  `json:"testId"`
	DurationMinutes  int     `json:"durationMinutes" validate:"min=1"`
	TotalMarks       float64 `json:"totalMarks" validate:"gte=0"`
	MarksPerQuestion float64 `json:"marksPerQuestion" validate:"gte=0"`
	NegativeMarking  float64 `json:"negativeMarking" validate:"gte=0"`
	NameDisplay      string  `json:"nameDisplay"`
}

const (
	// DefaultTestName is used when the payload carries no config.
	DefaultTestName = "Mock Test"
	// fallbackQuestionCount sizes the default duration for an empty paper.
	fallbackQuestionCount = 34
	defaultNegativeMarking = 0.25
)

// DefaultConfig derives a config for a payload with n questions and no config:
// one minute and one mark per question, a quarter mark off per wrong answer.
func DefaultConfig(n int) Config {
	if n == 0 {
		n = fallbackQuestionCount
	}
	return Config{
		TestName:         DefaultTestName,
		DurationMinutes:  n,
		TotalMarks:       float64(n),
		MarksPerQuestion: 1,
		NegativeMarking:  defaultNegativeMarking,
		NameDisplay:      DefaultTestName,
	}
}

// IntegrityWarning flags a question whose answer key can never match.
type IntegrityWarning struct {
	QuestionIndex   int `json:"question_index"`
	CorrectOptionID int `json:"correct_option_id"`
	OptionCount     int `json:"option_count"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("question %d: correct_option_id %d out of range for %d options",
		w.QuestionIndex+1, w.CorrectOptionID, w.OptionCount)
}

// CheckIntegrity lists the questions whose correct_option_id is out of range.
// Such questions are kept as-is: no selection can match them.
func CheckIntegrity(questions []Question) []IntegrityWarning {
	var out []IntegrityWarning
	for i := range questions {
		id := questions[i].CorrectOptionID
		if id == nil {
			continue
		}
		if *id < 0 || *id >= len(questions[i].Options) {
			out = append(out, IntegrityWarning{
				QuestionIndex:   i,
				CorrectOptionID: *id,
				OptionCount:     len(questions[i].Options),
			})
		}
	}
	return out
}
