package service

import (
	"context"

	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/editor"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/validation"
	"github.com/rs/zerolog"
)

// productService is the concrete implementation of ProductService
type productService struct {
	editor     *editor.Editor
	categories editor.CategorySource
	cfg        config.EditorConfig
	log        zerolog.Logger
}

// newProductService creates a new ProductService
func newProductService(api editor.ProductAPI, categories editor.CategorySource, validator *validation.Validator, cfg config.EditorConfig, log zerolog.Logger) *productService {
	log = log.With().Str("service", "product").Logger()
	return &productService{
		editor:     editor.New(api, categories, validator, cfg.PrivilegedRoles, log),
		categories: categories,
		cfg:        cfg,
		log:        log,
	}
}

// Categories returns the category tree
func (s *productService) Categories(ctx context.Context) ([]models.Category, error) {
	if s.categories == nil {
		return []models.Category{}, nil
	}
	return s.categories.ListCategories(ctx)
}

// invalidator is a category source backed by a cache
type invalidator interface {
	Invalidate(ctx context.Context) error
}

// RefreshCategories drops any cached tree and lists it again from the catalog API
func (s *productService) RefreshCategories(ctx context.Context) ([]models.Category, error) {
	if cached, ok := s.categories.(invalidator); ok {
		if err := cached.Invalidate(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to invalidate category cache")
		}
	}
	return s.Categories(ctx)
}

// Subcategories returns the children of category, repopulated on every call
func (s *productService) Subcategories(ctx context.Context, category string) ([]models.Subcategory, error) {
	form, err := s.editor.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if err := form.SelectCategory(category); err != nil {
		return nil, err
	}
	return form.SubcategoryOptions(), nil
}

// Create creates a product with the operator's authorization
func (s *productService) Create(ctx context.Context, principal models.Principal, fields models.ProductFields, images []models.ImageFile) (*models.Product, error) {
	ctx = catalog.WithAuthorization(ctx, principal.Authorization)
	return s.editor.Create(ctx, fields, images)
}

// Update applies an edit with the operator's authorization
func (s *productService) Update(ctx context.Context, principal models.Principal, id string, change editor.Change) (*editor.UpdateReport, error) {
	ctx = catalog.WithAuthorization(ctx, principal.Authorization)
	return s.editor.Update(ctx, principal, id, change)
}
