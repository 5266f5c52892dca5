package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/editor"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ProductHandler handles single-product editor endpoints
type ProductHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "product").Logger(),
	}
}

// ListCategories handles GET /v1/categories
// Query params: refresh=true bypasses the category cache
func (h *ProductHandler) ListCategories(c *gin.Context) {
	list := h.services.Product.Categories
	if c.Query("refresh") == "true" {
		list = h.services.Product.RefreshCategories
	}

	categories, err := list(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// ListSubcategories handles GET /v1/categories/:category/subcategories
func (h *ProductHandler) ListSubcategories(c *gin.Context) {
	subcategories, err := h.services.Product.Subcategories(c.Request.Context(), c.Param("category"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subcategories": subcategories})
}

// CreateProduct handles POST /v1/products
// Multipart form: product fields plus one or more "images" files
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var fields models.ProductFields
	if err := c.ShouldBind(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product form: " + err.Error()})
		return
	}

	images, ok := h.readImages(c)
	if !ok {
		return
	}

	product, err := h.services.Product.Create(c.Request.Context(), principalFrom(c), fields, images)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles PATCH /v1/products/:id
// Only the editable fields present in the form are changed. current_images is
// the image set the operator was shown; images_to_remove and "images" files
// edit it.
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	images, ok := h.readImages(c)
	if !ok {
		return
	}

	change := editor.Change{
		Fields:         models.FieldChanges{},
		CurrentImages:  c.PostFormArray("current_images"),
		ImagesToAdd:    images,
		ImagesToRemove: c.PostFormArray("images_to_remove"),
	}
	for _, key := range editableKeys() {
		if value, present := c.GetPostForm(key); present {
			change.Fields[key] = value
		}
	}

	report, err := h.services.Product.Update(c.Request.Context(), principalFrom(c), c.Param("id"), change)
	if err != nil {
		var updateErr *editor.UpdateError
		if errors.As(err, &updateErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  err.Error(),
				"report": updateErr.Report,
			})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// readImages reads the "images" files of a multipart form. A request that is
// not multipart has no images.
func (h *ProductHandler) readImages(c *gin.Context) ([]models.ImageFile, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, true
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return nil, false
	}

	headers := form.File["images"]
	images := make([]models.ImageFile, 0, len(headers))
	for _, header := range headers {
		content, err := h.readImage(header)
		if err != nil {
			h.log.Warn().Err(err).Str("file", header.Filename).Msg("Failed to read image")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image " + header.Filename})
			return nil, false
		}
		images = append(images, models.ImageFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		})
	}
	return images, true
}

// readImage reads at most one byte past the size limit so an oversized
// image is still rejected as oversized.
func (h *ProductHandler) readImage(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if limit := h.cfg.Editor.MaxImageSize; limit > 0 {
		return io.ReadAll(io.LimitReader(f, limit+1))
	}
	return io.ReadAll(f)
}

func (h *ProductHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Product request failed")
	}
	c.JSON(status, errorBody(err, status))
}

func editableKeys() []string {
	keys := make([]string, 0, len(models.EditableFields))
	for key := range models.EditableFields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
