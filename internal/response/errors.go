package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidFormat  ErrCode = "INVALID_FORMAT"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrTestNotFound    ErrCode = "TEST_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrPayloadLoadFailed   ErrCode = "PAYLOAD_LOAD_FAILED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrSessionNotSubmitted ErrCode = "SESSION_NOT_SUBMITTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidFormat:
		return "Unsupported transcript format. Use json, html or xlsx."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrTestNotFound:
		return "No test is listed under this id."
	case ErrSessionNotFound:
		return "Session not found or expired."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrPayloadLoadFailed:
		return "The test could not be loaded. Please try again later."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrSessionNotSubmitted:
		return "The transcript is available after the test is submitted."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	case ErrServiceUnavailable:
		return "A backing service is unavailable."
	default:
		return "An unexpected error occurred."
	}
}
