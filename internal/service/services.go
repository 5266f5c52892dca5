package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/editor"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/storage"
	"github.com/catalog-import-console/internal/validation"
	"github.com/catalog-import-console/internal/workflow"
	"github.com/rs/zerolog"
)

var (
	ErrWorkflowNotFound  = errors.New("import not found")
	ErrRunNotFound       = errors.New("import run not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// CatalogAPI is the external catalog API used by the import workflow and the editor
type CatalogAPI interface {
	workflow.Catalog
	editor.ProductAPI
	editor.CategorySource
}

// ImportService defines the interface for import workflows
type ImportService interface {
	Start(ctx context.Context, principal models.Principal, file *models.UploadFile) (*workflow.View, error)
	Get(ctx context.Context, principal models.Principal, id string) (*workflow.View, error)
	SelectFile(ctx context.Context, principal models.Principal, id string, file models.UploadFile) (*workflow.View, error)
	Validate(ctx context.Context, principal models.Principal, id string) (*workflow.View, error)
	Commit(ctx context.Context, principal models.Principal, id string) (*workflow.View, error)
	Clear(ctx context.Context, principal models.Principal, id string) (*workflow.View, error)
	UploadAnother(ctx context.Context, principal models.Principal, id string) (*workflow.View, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	Count() int
	StartJanitor(ctx context.Context)
	StopJanitor()
}

// HistoryService defines the interface for committed import history
type HistoryService interface {
	ListRuns(ctx context.Context, filter repository.ListFilter) (*models.ImportRunList, error)
	GetRun(ctx context.Context, id string) (*models.ImportRunResponse, error)
	StreamErrors(ctx context.Context, w http.ResponseWriter, id, format string) error
	Ping(ctx context.Context) error
}

// ProductService defines the interface for single-product editing
type ProductService interface {
	Categories(ctx context.Context) ([]models.Category, error)
	RefreshCategories(ctx context.Context) ([]models.Category, error)
	Subcategories(ctx context.Context, category string) ([]models.Subcategory, error)
	Create(ctx context.Context, principal models.Principal, fields models.ProductFields, images []models.ImageFile) (*models.Product, error)
	Update(ctx context.Context, principal models.Principal, id string, change editor.Change) (*editor.UpdateReport, error)
}

// Services holds all service interfaces
type Services struct {
	Import  ImportService
	History HistoryService
	Product ProductService
}

// Deps are the collaborators NewServices wires together. Archive may be nil.
type Deps struct {
	Repos      *repository.Repositories
	Catalog    CatalogAPI
	Categories editor.CategorySource
	Archive    storage.ObjectStorage
	Validator  *validation.Validator
}

// NewServices creates all services
func NewServices(deps Deps, cfg *config.Config, log zerolog.Logger) *Services {
	categories := deps.Categories
	if categories == nil {
		categories = deps.Catalog
	}

	return &Services{
		Import:  newImportService(deps.Catalog, deps.Repos.ImportRun, deps.Archive, cfg.Import, log),
		History: newHistoryService(deps.Repos.ImportRun, cfg.Import, log),
		Product: newProductService(deps.Catalog, categories, deps.Validator, cfg.Editor, log),
	}
}
