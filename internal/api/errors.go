package api

import (
	"errors"
	"net/http"

	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/editor"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/sheet"
	"github.com/catalog-import-console/internal/workflow"
	"github.com/gin-gonic/gin"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	var (
		parseErr      *sheet.ParseError
		transitionErr *workflow.TransitionError
		apiErr        *catalog.APIError
		requestErr    *catalog.RequestError
		validationErr *editor.ValidationError
	)

	switch {
	case errors.As(err, &parseErr), errors.Is(err, workflow.ErrNoDataRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrCommitGated),
		errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrStaleResponse),
		errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.As(err, &apiErr), errors.As(err, &requestErr), errors.Is(err, editor.ErrPartialUpdate):
		return http.StatusBadGateway
	case errors.As(err, &validationErr), errors.Is(err, editor.ErrNoChanges), errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrWorkflowNotFound),
		errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, editor.ErrUnknownCategory):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrSKUReadOnly):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders err as {"error": ...}, with field details for
// editor validation errors. Internal errors are not echoed.
func errorBody(err error, status int) gin.H {
	if status == http.StatusInternalServerError {
		return gin.H{"error": "Internal server error"}
	}

	body := gin.H{"error": err.Error()}
	var validationErr *editor.ValidationError
	if errors.As(err, &validationErr) {
		body["details"] = validationErr.Errors
	}
	return body
}
