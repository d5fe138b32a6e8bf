package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standardized API response envelope.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// NewPagination computes page counts for a page of total items.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// ─── Success ────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, envelope(c, data, nil, nil))
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	c.JSON(statusCode, envelope(c, data, nil, pagination))
}

// ─── Failure ────────────────────────────────────────────────────────────

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, "", nil), nil))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, "", fields), nil))
}

// FailWithDetail sends an error response whose message names a specific cause,
// such as the source a test failed to load from.
func FailWithDetail(c *gin.Context, statusCode int, code ErrCode, detail string, fields map[string]string) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, detail, fields), nil))
}

// FailWithData sends an error response that still carries a data body, such
// as per-dependency health.
func FailWithData(c *gin.Context, statusCode int, code ErrCode, data interface{}) {
	c.JSON(statusCode, envelope(c, data, errorBody(code, "", nil), nil))
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, envelope(c, nil, errorBody(code, "", nil), nil))
}

func errorBody(code ErrCode, detail string, fields map[string]string) *ErrorBody {
	msg := GetMessage(code)
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &ErrorBody{Code: code, Message: msg, Fields: fields}
}

func envelope(c *gin.Context, data interface{}, errBody *ErrorBody, p *Pagination) Response {
	id := RequestID(c)
	if id == "" {
		// Middleware not applied, e.g. in handler unit tests.
		id = uuid.NewString()
	}
	return Response{
		Data:       data,
		Error:      errBody,
		Pagination: p,
		Metadata: Metadata{
			RequestID: id,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
