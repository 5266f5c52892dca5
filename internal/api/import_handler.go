package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/sheet"
	"github.com/catalog-import-console/internal/validation"
	"github.com/catalog-import-console/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ImportHandler handles import workflow endpoints
type ImportHandler struct {
	services  *service.Services
	validator *validation.Validator
	cfg       *config.Config
	log       zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, validator *validation.Validator, cfg *config.Config, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services:  services,
		validator: validator,
		cfg:       cfg,
		log:       log.With().Str("handler", "import").Logger(),
	}
}

// GetTemplate handles GET /v1/imports/template
// Query params: format (csv, xlsx)
func (h *ImportHandler) GetTemplate(c *gin.Context) {
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", sheet.TemplateFileName))
		c.Data(http.StatusOK, sheet.TemplateContentType, sheet.GenerateTemplate())
	case "xlsx":
		data, err := sheet.GenerateTemplateXLSX()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to build workbook template")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build template"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", sheet.TemplateXLSXFileName))
		c.Data(http.StatusOK, sheet.TemplateXLSXContentType, data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: csv, xlsx"})
	}
}

// CreateImport handles POST /v1/imports
// Accepts an optional multipart file; without one the import starts at upload.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var file *models.UploadFile
	if _, err := c.FormFile("file"); err == nil {
		upload, ok := h.readUpload(c)
		if !ok {
			return
		}
		file = &upload
	}

	view, err := h.services.Import.Start(c.Request.Context(), principalFrom(c), file)
	if view == nil {
		h.fail(c, err, nil)
		return
	}
	if err != nil {
		// The import exists even when the file was unusable
		h.respond(c, http.StatusCreated, view, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetImport handles GET /v1/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	view, err := h.services.Import.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// SelectFile handles PUT /v1/imports/:id/file
func (h *ImportHandler) SelectFile(c *gin.Context) {
	file, ok := h.readUpload(c)
	if !ok {
		return
	}
	view, err := h.services.Import.SelectFile(c.Request.Context(), principalFrom(c), c.Param("id"), file)
	h.respond(c, http.StatusOK, view, err)
}

// Validate handles POST /v1/imports/:id/validate
func (h *ImportHandler) Validate(c *gin.Context) {
	view, err := h.services.Import.Validate(c.Request.Context(), principalFrom(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// Commit handles POST /v1/imports/:id/commit
func (h *ImportHandler) Commit(c *gin.Context) {
	view, err := h.services.Import.Commit(c.Request.Context(), principalFrom(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// Clear handles POST /v1/imports/:id/clear
func (h *ImportHandler) Clear(c *gin.Context) {
	view, err := h.services.Import.Clear(c.Request.Context(), principalFrom(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// UploadAnother handles POST /v1/imports/:id/upload-another
func (h *ImportHandler) UploadAnother(c *gin.Context) {
	view, err := h.services.Import.UploadAnother(c.Request.Context(), principalFrom(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// DeleteImport handles DELETE /v1/imports/:id
func (h *ImportHandler) DeleteImport(c *gin.Context) {
	if err := h.services.Import.Delete(c.Request.Context(), principalFrom(c), c.Param("id")); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// readUpload reads the multipart "file" field. It writes the error response
// and returns false when the file is missing or rejected by the picker filter.
func (h *ImportHandler) readUpload(c *gin.Context) (models.UploadFile, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return models.UploadFile{}, false
	}

	if errs := h.validator.ValidateUpload(header.Filename, header.Size); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid file",
			"details": errs,
		})
		return models.UploadFile{}, false
	}

	f, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Str("file", header.Filename).Msg("Failed to open uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return models.UploadFile{}, false
	}
	defer f.Close()

	limit := h.cfg.Import.MaxUploadSize
	if limit <= 0 {
		limit = header.Size
	}
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		h.log.Error().Err(err).Str("file", header.Filename).Msg("Failed to read uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return models.UploadFile{}, false
	}
	if int64(len(content)) > limit {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("file too large (max %dMB)", limit/(1024*1024)),
		})
		return models.UploadFile{}, false
	}

	return models.NewUploadFile(header.Filename, content), true
}

// respond writes the view, or the mapped error with the view attached so the
// console can keep rendering the workflow.
func (h *ImportHandler) respond(c *gin.Context, status int, view *workflow.View, err error) {
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(status, view)
}

func (h *ImportHandler) fail(c *gin.Context, err error, view *workflow.View) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("import_id", c.Param("id")).Msg("Import request failed")
	}

	body := errorBody(err, status)
	if view != nil {
		body["import"] = view
	}
	c.JSON(status, body)
}
