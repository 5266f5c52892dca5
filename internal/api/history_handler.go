package api

import (
	"net/http"
	"strconv"

	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HistoryHandler handles committed import history endpoints
type HistoryHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(services *service.Services, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		services: services,
		log:      log.With().Str("handler", "history").Logger(),
	}
}

// ListRuns handles GET /v1/import-runs
// Query params: status, created_by, limit, offset
func (h *HistoryHandler) ListRuns(c *gin.Context) {
	filter := repository.ListFilter{
		CreatedBy: c.Query("created_by"),
		Status:    models.ImportRunStatus(c.Query("status")),
	}

	switch filter.Status {
	case "", models.ImportRunStatusCommitted, models.ImportRunStatusPartial, models.ImportRunStatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: committed, partial, rejected"})
		return
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	list, err := h.services.History.ListRuns(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list import runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list import runs"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetRun handles GET /v1/import-runs/:run_id
func (h *HistoryHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")
	if !validation.IsValidID(runID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	run, err := h.services.History.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get import run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get import run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetRunErrors handles GET /v1/import-runs/:run_id/errors
// Streams rejected rows. Query params: format (csv, json, ndjson)
func (h *HistoryHandler) GetRunErrors(c *gin.Context) {
	runID := c.Param("run_id")
	if !validation.IsValidID(runID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}
	format := c.DefaultQuery("format", "csv")

	err := h.services.History.StreamErrors(c.Request.Context(), c.Writer, runID, format)
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// Can't return error JSON after streaming has started
		h.log.Error().Err(err).Str("run_id", runID).Msg("Error report stream interrupted")
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to stream error report")
	}
	c.JSON(status, errorBody(err, status))
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
