package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Operation names, used in errors and logs
const (
	OpValidateBatch  = "validate-batch"
	OpBatchUpload    = "batch-upload"
	OpCreateProduct  = "create-product"
	OpEditProduct    = "edit-product"
	OpAddImages      = "add-product-images"
	OpDeleteImages   = "delete-product-image"
	OpListCategories = "list-categories"
)

const maxResponseBody = 16 << 20

// Client talks to the external catalog API
type Client struct {
	baseURL    string
	paths      config.CatalogConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a catalog API client from config
func New(cfg config.CatalogConfig, log zerolog.Logger) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, log)
}

// NewWithHTTPClient is New with a caller-supplied http.Client
func NewWithHTTPClient(cfg config.CatalogConfig, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		paths:      cfg,
		httpClient: httpClient,
		log:        log.With().Str("component", "catalog_client").Logger(),
	}
}

type authKey struct{}

// WithAuthorization attaches the operator's Authorization header value to ctx.
// Every call made with that context forwards it upstream.
func WithAuthorization(ctx context.Context, authorization string) context.Context {
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, authKey{}, authorization)
}

// AuthorizationFrom returns the Authorization value attached to ctx
func AuthorizationFrom(ctx context.Context) string {
	v, _ := ctx.Value(authKey{}).(string)
	return v
}

// ValidateBatch sends the raw file to validate-batch. It never changes the catalog.
func (c *Client) ValidateBatch(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
	body, contentType, err := fileForm(file)
	if err != nil {
		return nil, &RequestError{Op: OpValidateBatch, Err: err}
	}

	var result models.ValidationResult
	if err := c.do(ctx, OpValidateBatch, http.MethodPost, c.paths.ValidateBatchPath, contentType, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BatchUpload sends the raw file to batch-upload. Not idempotent.
func (c *Client) BatchUpload(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
	body, contentType, err := fileForm(file)
	if err != nil {
		return nil, &RequestError{Op: OpBatchUpload, Err: err}
	}

	var result models.UploadResult
	if err := c.do(ctx, OpBatchUpload, http.MethodPost, c.paths.BatchUploadPath, contentType, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateProduct posts the product fields and images as one multipart form
func (c *Client) CreateProduct(ctx context.Context, fields models.ProductFields, images []models.ImageFile) (*models.Product, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	values := map[string]string{
		"name":             fields.Name,
		"sku":              fields.SKU,
		"price":            fields.Price,
		"brand":            fields.Brand,
		"color":            fields.Color,
		"description":      fields.Description,
		"dimensions":       fields.Dimensions,
		"category_name":    fields.CategoryName,
		"subcategory_name": fields.SubcategoryName,
	}
	if fields.Stock != nil {
		values["stock"] = strconv.Itoa(*fields.Stock)
	} else {
		values["stock"] = "0"
	}
	for _, key := range sortedKeys(values) {
		if values[key] == "" {
			continue
		}
		if err := w.WriteField(key, values[key]); err != nil {
			return nil, &RequestError{Op: OpCreateProduct, Err: err}
		}
	}
	if err := writeImages(w, images); err != nil {
		return nil, &RequestError{Op: OpCreateProduct, Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &RequestError{Op: OpCreateProduct, Err: err}
	}

	var envelope struct {
		models.Product
		Wrapped *models.Product `json:"product"`
	}
	if err := c.do(ctx, OpCreateProduct, http.MethodPost, c.paths.CreateProductPath, w.FormDataContentType(), &buf, &envelope); err != nil {
		return nil, err
	}
	if envelope.Wrapped != nil {
		return envelope.Wrapped, nil
	}
	return &envelope.Product, nil
}

// EditProduct patches only the changed fields
func (c *Client) EditProduct(ctx context.Context, id string, changes models.FieldChanges) error {
	payload, err := patchPayload(changes)
	if err != nil {
		return &RequestError{Op: OpEditProduct, Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &RequestError{Op: OpEditProduct, Err: err}
	}
	return c.do(ctx, OpEditProduct, http.MethodPatch, productPath(c.paths.EditProductPath, id), "application/json", bytes.NewReader(body), nil)
}

// AddProductImages uploads new images for an existing product
func (c *Client) AddProductImages(ctx context.Context, id string, images []models.ImageFile) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeImages(w, images); err != nil {
		return &RequestError{Op: OpAddImages, Err: err}
	}
	if err := w.Close(); err != nil {
		return &RequestError{Op: OpAddImages, Err: err}
	}
	return c.do(ctx, OpAddImages, http.MethodPost, productPath(c.paths.ProductImagesPath, id), w.FormDataContentType(), &buf, nil)
}

// DeleteProductImages removes images by URL
func (c *Client) DeleteProductImages(ctx context.Context, id string, urls []string) error {
	body, err := json.Marshal(map[string][]string{"image_urls": urls})
	if err != nil {
		return &RequestError{Op: OpDeleteImages, Err: err}
	}
	return c.do(ctx, OpDeleteImages, http.MethodDelete, productPath(c.paths.ProductImagesPath, id), "application/json", bytes.NewReader(body), nil)
}

// ListCategories returns the category tree. Both a bare array and a
// {"categories": [...]} envelope are accepted.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var raw json.RawMessage
	if err := c.do(ctx, OpListCategories, http.MethodGet, c.paths.ListCategoriesPath, "", nil, &raw); err != nil {
		return nil, err
	}

	var categories []models.Category
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &categories); err != nil {
			return nil, &RequestError{Op: OpListCategories, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return categories, nil
	}

	var envelope struct {
		Categories []models.Category `json:"categories"`
		Data       []models.Category `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, &RequestError{Op: OpListCategories, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if envelope.Categories != nil {
		return envelope.Categories, nil
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if auth := AuthorizationFrom(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("Catalog API unreachable")
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Catalog API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func fileForm(file models.UploadFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeFilePart(w, "file", file.Name(), file.ContentType(), file.Bytes()); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeImages(w *multipart.Writer, images []models.ImageFile) error {
	for _, img := range images {
		contentType := img.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(img.Content)
		}
		if err := writeFilePart(w, "images", img.Name, contentType, img.Content); err != nil {
			return err
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(w *multipart.Writer, field, name, contentType string, content []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}

func productPath(template, id string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(id))
}

// patchPayload types numeric fields so the catalog API receives numbers
func patchPayload(changes models.FieldChanges) (map[string]any, error) {
	payload := make(map[string]any, len(changes))
	for key, value := range changes {
		switch key {
		case "price":
			price, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid price %q", value)
			}
			payload[key] = json.Number(price.String())
		case "stock":
			stock, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid stock %q", value)
			}
			payload[key] = stock
		default:
			payload[key] = value
		}
	}
	return payload, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
