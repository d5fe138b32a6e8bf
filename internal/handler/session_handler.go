package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/model"
	"github.com/stemsi/exstem-mocktest/internal/response"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
	"github.com/stemsi/exstem-mocktest/internal/service"
	"github.com/stemsi/exstem-mocktest/internal/transcript"
	"github.com/stemsi/exstem-mocktest/internal/validator"
)

// SessionHandler drives a live session over plain HTTP. Out-of-range
// targets are ignored by the session, so those requests answer 200 with the
// unchanged view.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

func sessionBody(live *service.LiveSession) gin.H {
	return gin.H{
		"session_id": live.ID,
		"test_id":    live.TestID,
		"title":      live.Title,
		"session":    live.Session.View(),
	}
}

// live resolves :session_id, writing the error response itself on failure.
func (h *SessionHandler) live(c *gin.Context) (*service.LiveSession, bool) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}
	live, err := h.sessionService.Get(id)
	if err != nil {
		failFromError(c, err)
		return nil, false
	}
	return live, true
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Evicted sessions that were submitted still report their stored result.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	live, err := h.sessionService.Get(id)
	if err == nil {
		response.Success(c, http.StatusOK, sessionBody(live))
		return
	}

	stored, lookupErr := h.sessionService.StoredResult(c.Request.Context(), id)
	if lookupErr != nil {
		if !errors.Is(lookupErr, service.ErrResultNotFound) {
			h.log.Warn().Err(lookupErr).Str("session_id", id.String()).Msg("Stored result lookup failed")
		}
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"session_id": stored.SessionID,
		"test_id":    stored.TestID,
		"state":      exam.StateSubmitted,
		"result":     stored,
	})
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	switch {
	case req.Index != nil:
		live.Session.Navigate(*req.Index)
	case req.Delta > 0:
		live.Session.Next()
	case req.Delta < 0:
		live.Session.Prev()
	default:
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"index": "index or delta is required"})
		return
	}
	response.Success(c, http.StatusOK, sessionBody(live))
}

// SelectAnswer godoc
// POST /api/v1/sessions/:session_id/answers
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	live.Session.SelectOption(*req.QuestionIndex, *req.OptionIndex)
	response.Success(c, http.StatusOK, sessionBody(live))
}

// ToggleReview godoc
// POST /api/v1/sessions/:session_id/review
func (h *SessionHandler) ToggleReview(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	live.Session.ToggleReview(*req.QuestionIndex)
	response.Success(c, http.StatusOK, sessionBody(live))
}

// SetLanguage godoc
// PUT /api/v1/sessions/:session_id/language
func (h *SessionHandler) SetLanguage(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	var req model.LanguageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	lang, _ := richtext.ParseLanguage(req.Language)
	live.Session.SetLanguage(lang)
	response.Success(c, http.StatusOK, sessionBody(live))
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Idempotent: a submitted session returns its original result.
func (h *SessionHandler) Submit(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	result := live.Session.Submit()
	response.Success(c, http.StatusOK, gin.H{
		"session_id": live.ID,
		"result":     result,
		"session":    live.Session.View(),
	})
}

// Transcript godoc
// GET /api/v1/sessions/:session_id/transcript?format=json|html|xlsx&language=en|hi
func (h *SessionHandler) Transcript(c *gin.Context) {
	live, ok := h.live(c)
	if !ok {
		return
	}

	lang := live.Session.Language()
	if q := c.Query("language"); q != "" {
		parsed, ok := richtext.ParseLanguage(q)
		if !ok {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"language": "language must be one of en, hi"})
			return
		}
		lang = parsed
	}

	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "html" && format != "xlsx" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidFormat)
		return
	}

	t, err := transcript.Build(live.ID.String(), live.Session, lang)
	if errors.Is(err, transcript.ErrNotSubmitted) {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotSubmitted)
		return
	}
	if err != nil {
		failFromError(c, err)
		return
	}

	switch format {
	case "html":
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := transcript.WriteHTML(c.Writer, t); err != nil {
			h.log.Error().Err(err).Str("session_id", live.ID.String()).Msg("Transcript HTML render failed")
		}
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript-%s.xlsx"`, live.ID))
		c.Status(http.StatusOK)
		if err := transcript.WriteXLSX(c.Writer, t); err != nil {
			h.log.Error().Err(err).Str("session_id", live.ID.String()).Msg("Transcript XLSX render failed")
		}
	default:
		response.Success(c, http.StatusOK, t)
	}
}
