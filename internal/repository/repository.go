package repository

import (
	"context"

	"github.com/catalog-import-console/internal/database"
	"github.com/catalog-import-console/internal/models"
)

// ListFilter narrows an import run listing
type ListFilter struct {
	CreatedBy string
	Status    models.ImportRunStatus
	Limit     int
	Offset    int
}

// ImportRunRepository defines the interface for import history operations
type ImportRunRepository interface {
	Create(ctx context.Context, run *models.ImportRun, errors []models.ImportRunError) error
	GetByID(ctx context.Context, id string) (*models.ImportRun, error)
	List(ctx context.Context, filter ListFilter) ([]*models.ImportRun, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	GetErrors(ctx context.Context, runID string, limit int) ([]models.ImportRunError, error)
	CountErrors(ctx context.Context, runID string) (int, error)
	StreamErrors(ctx context.Context, runID string, callback func(*models.ImportRunError) error) error
	Ping(ctx context.Context) error
}

// Repositories holds all repository interfaces
type Repositories struct {
	ImportRun ImportRunRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		ImportRun: NewImportRunRepo(db),
	}
}
