package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/loader"
	"github.com/stemsi/exstem-mocktest/internal/response"
	"github.com/stemsi/exstem-mocktest/internal/service"
)

// failFromError maps service and load errors onto the response envelope.
func failFromError(c *gin.Context, err error) {
	var le *loader.LoadError
	switch {
	case errors.Is(err, catalog.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, exam.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.As(err, &le):
		status := http.StatusUnprocessableEntity
		if errors.Is(err, loader.ErrFetch) || errors.Is(err, loader.ErrBadStatus) {
			status = http.StatusBadGateway
		}
		response.FailWithDetail(c, status, response.ErrPayloadLoadFailed, le.Source, le.Fields)
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
