package editor

import (
	"context"
	"strings"

	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/validation"
	"github.com/rs/zerolog"
)

// ProductAPI is the part of the catalog API the editor writes through
type ProductAPI interface {
	CreateProduct(ctx context.Context, fields models.ProductFields, images []models.ImageFile) (*models.Product, error)
	EditProduct(ctx context.Context, id string, changes models.FieldChanges) error
	AddProductImages(ctx context.Context, id string, images []models.ImageFile) error
	DeleteProductImages(ctx context.Context, id string, urls []string) error
}

// CategorySource lists the category tree
type CategorySource interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// Change is an edit of an existing product. Fields holds only changed
// fields; CurrentImages is the image set the operator was shown.
type Change struct {
	Fields         models.FieldChanges
	CurrentImages  []string
	ImagesToAdd    []models.ImageFile
	ImagesToRemove []string
}

// Step names of an update
const (
	StepFields       = "fields"
	StepAddImages    = "add_images"
	StepRemoveImages = "remove_images"
)

// StepStatus is the outcome of one update step
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepReport is the outcome of one catalog call of an update
type StepReport struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// UpdateReport lists every attempted step of an update in order
type UpdateReport struct {
	ProductID string       `json:"product_id"`
	Steps     []StepReport `json:"steps"`
}

// Failed reports whether any step failed or was skipped
func (r *UpdateReport) Failed() bool {
	for _, s := range r.Steps {
		if s.Status != StepOK {
			return true
		}
	}
	return false
}

// Editor creates and edits single products through the catalog API
type Editor struct {
	api        ProductAPI
	categories CategorySource
	validator  *validation.Validator
	privileged map[string]bool
	log        zerolog.Logger
}

// New creates an editor. categories may be nil, which skips the
// subcategory membership check.
func New(api ProductAPI, categories CategorySource, validator *validation.Validator, privilegedRoles []string, log zerolog.Logger) *Editor {
	privileged := make(map[string]bool, len(privilegedRoles))
	for _, r := range privilegedRoles {
		privileged[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return &Editor{
		api:        api,
		categories: categories,
		validator:  validator,
		privileged: privileged,
		log:        log.With().Str("component", "product_editor").Logger(),
	}
}

// CanEditSKU reports whether role may change a product's SKU
func (e *Editor) CanEditSKU(role string) bool {
	return e.privileged[strings.ToLower(strings.TrimSpace(role))]
}

// Create validates and creates a product. Stock defaults to 0.
func (e *Editor) Create(ctx context.Context, fields models.ProductFields, images []models.ImageFile) (*models.Product, error) {
	errs := e.validator.ValidateProductFields(&fields)
	if len(images) == 0 {
		errs = append(errs, validation.ValidationError{Field: "images", Message: ErrImagesRequired.Error()})
	}
	for _, img := range images {
		errs = append(errs, e.validator.ValidateImage(img.Name, img.ContentType, int64(len(img.Content)))...)
	}
	if len(errs) == 0 {
		errs = append(errs, e.checkCategory(ctx, fields.CategoryName, fields.SubcategoryName)...)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	if fields.Stock == nil {
		zero := 0
		fields.Stock = &zero
	}

	product, err := e.api.CreateProduct(ctx, fields, images)
	if err != nil {
		e.log.Warn().Err(err).Str("sku", fields.SKU).Msg("Product create failed")
		return nil, err
	}

	e.log.Info().Str("product_id", product.ID).Str("sku", product.SKU).Int("images", len(images)).Msg("Product created")
	return product, nil
}

// Update applies change as up to three catalog calls: fields, then new
// images, then removals. Steps are not rolled back. Removal is skipped when
// adding failed and the removal alone would leave the product imageless.
// Any failed or skipped step returns an *UpdateError with the report.
func (e *Editor) Update(ctx context.Context, principal models.Principal, id string, change Change) (*UpdateReport, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Errors: []validation.ValidationError{{Field: "id", Message: "product id is required"}}}
	}
	if _, ok := change.Fields["sku"]; ok && !e.CanEditSKU(principal.Role) {
		return nil, ErrSKUReadOnly
	}

	remove := dedupe(change.ImagesToRemove)
	if len(change.Fields) == 0 && len(change.ImagesToAdd) == 0 && len(remove) == 0 {
		return nil, ErrNoChanges
	}

	errs := e.validator.ValidateFieldChanges(change.Fields)
	for _, img := range change.ImagesToAdd {
		errs = append(errs, e.validator.ValidateImage(img.Name, img.ContentType, int64(len(img.Content)))...)
	}

	// Only an image change can empty the set
	kept := remaining(change.CurrentImages, remove)
	if (len(remove) > 0 || len(change.ImagesToAdd) > 0) && len(kept)+len(change.ImagesToAdd) == 0 {
		errs = append(errs, validation.ValidationError{Field: "images", Message: ErrImagesRequired.Error()})
	}

	category, catChanged := change.Fields["category_name"]
	subcategory, subChanged := change.Fields["subcategory_name"]
	if catChanged && !subChanged {
		errs = append(errs, validation.ValidationError{
			Field:   "subcategory_name",
			Message: "subcategory_name is required when category_name changes",
		})
	}
	if len(errs) == 0 && catChanged {
		errs = append(errs, e.checkCategory(ctx, category, subcategory)...)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	log := e.log.With().Str("product_id", id).Str("user_id", principal.UserID).Logger()
	report := &UpdateReport{ProductID: id, Steps: []StepReport{}}

	if len(change.Fields) > 0 {
		report.Steps = append(report.Steps, result(StepFields, e.api.EditProduct(ctx, id, change.Fields)))
	}

	addFailed := false
	if len(change.ImagesToAdd) > 0 {
		step := result(StepAddImages, e.api.AddProductImages(ctx, id, change.ImagesToAdd))
		addFailed = step.Status == StepFailed
		report.Steps = append(report.Steps, step)
	}

	if len(remove) > 0 {
		if addFailed && len(kept) == 0 {
			report.Steps = append(report.Steps, StepReport{
				Step:   StepRemoveImages,
				Status: StepSkipped,
				Error:  "not attempted: adding images failed and the removal would leave the product without images",
			})
		} else {
			report.Steps = append(report.Steps, result(StepRemoveImages, e.api.DeleteProductImages(ctx, id, remove)))
		}
	}

	if report.Failed() {
		log.Warn().Interface("steps", report.Steps).Msg("Product update partially failed")
		return report, &UpdateError{Report: report}
	}

	log.Info().Int("steps", len(report.Steps)).Msg("Product updated")
	return report, nil
}

// Categories returns a fresh cascading form over the category tree
func (e *Editor) Categories(ctx context.Context) (*Form, error) {
	if e.categories == nil {
		return NewForm(nil), nil
	}
	categories, err := e.categories.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return NewForm(categories), nil
}

func (e *Editor) checkCategory(ctx context.Context, category, subcategory string) []validation.ValidationError {
	if e.categories == nil {
		return nil
	}
	form, err := e.Categories(ctx)
	if err != nil {
		// The catalog API still enforces membership on write
		e.log.Warn().Err(err).Msg("Category list unavailable, skipping subcategory check")
		return nil
	}

	if err := form.SelectCategory(category); err != nil {
		return []validation.ValidationError{{Field: "category_name", Message: "unknown category", Value: category}}
	}
	if err := form.SelectSubcategory(subcategory); err != nil {
		return []validation.ValidationError{{
			Field:   "subcategory_name",
			Message: subcategory + " is not a subcategory of " + form.Category(),
			Value:   subcategory,
		}}
	}
	return nil
}

func result(step string, err error) StepReport {
	if err != nil {
		return StepReport{Step: step, Status: StepFailed, Error: err.Error()}
	}
	return StepReport{Step: step, Status: StepOK}
}

func remaining(current, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, u := range remove {
		drop[u] = true
	}
	var kept []string
	for _, u := range current {
		if !drop[u] {
			kept = append(kept, u)
		}
	}
	return kept
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
