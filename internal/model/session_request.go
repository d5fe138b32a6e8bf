package model

// CreateSessionRequest is the optional body for starting a session.
type CreateSessionRequest struct {
	Language string `json:"language" binding:"omitempty,language"`
}

// NavigateRequest moves to Index, or by Delta (+1/-1) when Index is absent.
type NavigateRequest struct {
	Index *int `json:"index"`
	Delta int  `json:"delta" binding:"omitempty,oneof=-1 1"`
}

// AnswerRequest selects an option for a question.
type AnswerRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required"`
	OptionIndex   *int `json:"option_index" binding:"required"`
}

// ReviewRequest toggles the review flag of a question.
type ReviewRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required"`
}

// LanguageRequest switches the content language.
type LanguageRequest struct {
	Language string `json:"language" binding:"required,language"`
}
