package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/model"
	"github.com/stemsi/exstem-mocktest/internal/response"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
	"github.com/stemsi/exstem-mocktest/internal/service"
	"github.com/stemsi/exstem-mocktest/internal/validator"
)

// ResultLister reads persisted results for a test.
type ResultLister interface {
	ListByTest(ctx context.Context, testID string, limit, offset int) ([]model.ExamResult, int, error)
}

// TestHandler serves the catalog and starts sessions.
type TestHandler struct {
	paperService   *service.PaperService
	sessionService *service.SessionService
	results        ResultLister
	log            zerolog.Logger
}

// NewTestHandler creates a new TestHandler. results may be nil when no
// database is configured.
func NewTestHandler(paperService *service.PaperService, sessionService *service.SessionService, results ResultLister, log zerolog.Logger) *TestHandler {
	return &TestHandler{
		paperService:   paperService,
		sessionService: sessionService,
		results:        results,
		log:            log.With().Str("component", "test_handler").Logger(),
	}
}

// ListTests godoc
// GET /api/v1/tests
func (h *TestHandler) ListTests(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"tests": h.paperService.List()})
}

// GetPaper godoc
// GET /api/v1/tests/:test_id/paper
// Loads the test and describes it without questions or answer keys.
func (h *TestHandler) GetPaper(c *gin.Context) {
	summary, err := h.paperService.Summary(c.Request.Context(), c.Param("test_id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// CreateSession godoc
// POST /api/v1/tests/:test_id/sessions
// Loads the test, builds a session and starts its countdown.
func (h *TestHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	lang := richtext.English
	if req.Language != "" {
		lang, _ = richtext.ParseLanguage(req.Language)
	}

	testID := c.Param("test_id")
	live, err := h.sessionService.Create(c.Request.Context(), testID, lang)
	if err != nil {
		h.log.Warn().Err(err).Str("test_id", testID).Msg("Session create failed")
		failFromError(c, err)
		return
	}

	h.log.Info().
		Str("session_id", live.ID.String()).
		Str("test_id", testID).
		Str("client_ip", c.ClientIP()).
		Msg("Session created")

	response.Success(c, http.StatusCreated, sessionBody(live))
}

// ListResults godoc
// GET /api/v1/tests/:test_id/results?page=1&per_page=20
func (h *TestHandler) ListResults(c *gin.Context) {
	testID := c.Param("test_id")
	if _, err := h.paperService.Entry(testID); err != nil {
		failFromError(c, err)
		return
	}
	if h.results == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, total, err := h.results.ListByTest(c.Request.Context(), testID, perPage, (page-1)*perPage)
	if err != nil {
		h.log.Error().Err(err).Str("test_id", testID).Msg("List results failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results},
		response.NewPagination(page, perPage, total))
}
