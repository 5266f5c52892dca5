package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
)

// MockImportRunRepository is an in-memory ImportRunRepository
type MockImportRunRepository struct {
	mu          sync.Mutex
	Runs        map[string]*models.ImportRun
	Errors      map[string][]models.ImportRunError
	InsertError error
	PingError   error
	CreateCalls int
}

// Verify interface compliance
var _ repository.ImportRunRepository = (*MockImportRunRepository)(nil)

func NewMockImportRunRepository() *MockImportRunRepository {
	return &MockImportRunRepository{
		Runs:   make(map[string]*models.ImportRun),
		Errors: make(map[string][]models.ImportRunError),
	}
}

func (m *MockImportRunRepository) Create(ctx context.Context, run *models.ImportRun, errors []models.ImportRunError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	m.Runs[run.ID] = run
	m.Errors[run.ID] = append([]models.ImportRunError(nil), errors...)
	return nil
}

func (m *MockImportRunRepository) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Runs[id], nil
}

func (m *MockImportRunRepository) List(ctx context.Context, filter repository.ListFilter) ([]*models.ImportRun, error) {
	matched := m.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*models.ImportRun{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *MockImportRunRepository) Count(ctx context.Context, filter repository.ListFilter) (int, error) {
	return len(m.matching(filter)), nil
}

func (m *MockImportRunRepository) GetErrors(ctx context.Context, runID string, limit int) ([]models.ImportRunError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	errors := m.Errors[runID]
	if limit > 0 && len(errors) > limit {
		errors = errors[:limit]
	}
	return append([]models.ImportRunError{}, errors...), nil
}

func (m *MockImportRunRepository) CountErrors(ctx context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors[runID]), nil
}

func (m *MockImportRunRepository) StreamErrors(ctx context.Context, runID string, callback func(*models.ImportRunError) error) error {
	errors, _ := m.GetErrors(ctx, runID, 0)
	for i := range errors {
		if err := callback(&errors[i]); err != nil {
			return err
		}
	}
	return nil
}

// All returns every stored run, newest first
func (m *MockImportRunRepository) All() []*models.ImportRun {
	return m.matching(repository.ListFilter{})
}

func (m *MockImportRunRepository) matching(filter repository.ListFilter) []*models.ImportRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*models.ImportRun, 0, len(m.Runs))
	for _, run := range m.Runs {
		if filter.CreatedBy != "" && run.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

func (m *MockImportRunRepository) Ping(ctx context.Context) error {
	return m.PingError
}
