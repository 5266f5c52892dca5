package mocks

import (
	"context"
	"net/http"

	"github.com/catalog-import-console/internal/editor"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/workflow"
)

// MockImportService is a mock implementation of ImportService. Actions
// without a Func return ActionErr alongside a view of the last known state.
type MockImportService struct {
	StartFunc  func(ctx context.Context, principal models.Principal, file *models.UploadFile) (*workflow.View, error)
	SelectFunc func(ctx context.Context, principal models.Principal, id string, file models.UploadFile) (*workflow.View, error)
	ActionErr  error
	Views      map[string]*workflow.View

	Principals    []models.Principal
	Actions       []string
	Deleted       []string
	JanitorStarts int
	JanitorStops  int
}

// Verify interface compliance
var _ service.ImportService = (*MockImportService)(nil)

func NewMockImportService() *MockImportService {
	return &MockImportService{
		Views:   make(map[string]*workflow.View),
		Actions: make([]string, 0),
	}
}

func (m *MockImportService) Start(ctx context.Context, principal models.Principal, file *models.UploadFile) (*workflow.View, error) {
	m.Principals = append(m.Principals, principal)
	m.Actions = append(m.Actions, "start")
	if m.StartFunc != nil {
		return m.StartFunc(ctx, principal, file)
	}
	view := &workflow.View{ID: "test-import-id", State: workflow.StateUpload}
	if file != nil {
		view.State = workflow.StatePreview
		view.FileName = file.Name()
		view.FileSize = file.Size()
	}
	m.Views[view.ID] = view
	return view, nil
}

func (m *MockImportService) Get(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	return m.action(principal, "get", id)
}

func (m *MockImportService) SelectFile(ctx context.Context, principal models.Principal, id string, file models.UploadFile) (*workflow.View, error) {
	m.Principals = append(m.Principals, principal)
	m.Actions = append(m.Actions, "select")
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, principal, id, file)
	}
	view, ok := m.Views[id]
	if !ok {
		return nil, service.ErrWorkflowNotFound
	}
	view.State = workflow.StatePreview
	view.FileName = file.Name()
	view.FileSize = file.Size()
	return view, nil
}

func (m *MockImportService) Validate(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	return m.action(principal, "validate", id)
}

func (m *MockImportService) Commit(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	return m.action(principal, "commit", id)
}

func (m *MockImportService) Clear(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	return m.action(principal, "clear", id)
}

func (m *MockImportService) UploadAnother(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	return m.action(principal, "upload-another", id)
}

func (m *MockImportService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if _, err := m.action(principal, "delete", id); err != nil {
		return err
	}
	delete(m.Views, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

func (m *MockImportService) Count() int {
	return len(m.Views)
}

func (m *MockImportService) StartJanitor(ctx context.Context) {
	m.JanitorStarts++
}

func (m *MockImportService) StopJanitor() {
	m.JanitorStops++
}

func (m *MockImportService) action(principal models.Principal, name, id string) (*workflow.View, error) {
	m.Principals = append(m.Principals, principal)
	m.Actions = append(m.Actions, name)
	view, ok := m.Views[id]
	if !ok {
		return nil, service.ErrWorkflowNotFound
	}
	return view, m.ActionErr
}

// MockHistoryService is a mock implementation of HistoryService
type MockHistoryService struct {
	Runs       map[string]*models.ImportRunResponse
	ListErr    error
	StreamFunc func(ctx context.Context, w http.ResponseWriter, id, format string) error
	LastFilter repository.ListFilter
	PingErr    error
}

// Verify interface compliance
var _ service.HistoryService = (*MockHistoryService)(nil)

func NewMockHistoryService() *MockHistoryService {
	return &MockHistoryService{Runs: make(map[string]*models.ImportRunResponse)}
}

func (m *MockHistoryService) ListRuns(ctx context.Context, filter repository.ListFilter) (*models.ImportRunList, error) {
	m.LastFilter = filter
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	list := &models.ImportRunList{Runs: []*models.ImportRun{}, Limit: filter.Limit, Offset: filter.Offset}
	for _, r := range m.Runs {
		run := r.ImportRun
		list.Runs = append(list.Runs, &run)
	}
	list.Total = len(list.Runs)
	return list, nil
}

func (m *MockHistoryService) GetRun(ctx context.Context, id string) (*models.ImportRunResponse, error) {
	return m.Runs[id], nil
}

func (m *MockHistoryService) StreamErrors(ctx context.Context, w http.ResponseWriter, id, format string) error {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, w, id, format)
	}
	if _, ok := m.Runs[id]; !ok {
		return service.ErrRunNotFound
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write([]byte("row,error\n"))
	return nil
}

func (m *MockHistoryService) Ping(ctx context.Context) error {
	return m.PingErr
}

// MockProductService is a mock implementation of ProductService
type MockProductService struct {
	CategoryTree  []models.Category
	CreateFunc    func(ctx context.Context, principal models.Principal, fields models.ProductFields, images []models.ImageFile) (*models.Product, error)
	UpdateFunc    func(ctx context.Context, principal models.Principal, id string, change editor.Change) (*editor.UpdateReport, error)
	CreatedFields []models.ProductFields
	CreatedImages [][]models.ImageFile
	Changes       []editor.Change
	Principals    []models.Principal
	Refreshes     int
}

// Verify interface compliance
var _ service.ProductService = (*MockProductService)(nil)

func NewMockProductService() *MockProductService {
	return &MockProductService{CategoryTree: []models.Category{}}
}

func (m *MockProductService) Categories(ctx context.Context) ([]models.Category, error) {
	return m.CategoryTree, nil
}

func (m *MockProductService) RefreshCategories(ctx context.Context) ([]models.Category, error) {
	m.Refreshes++
	return m.CategoryTree, nil
}

func (m *MockProductService) Subcategories(ctx context.Context, category string) ([]models.Subcategory, error) {
	form := editor.NewForm(m.CategoryTree)
	if err := form.SelectCategory(category); err != nil {
		return nil, err
	}
	return form.SubcategoryOptions(), nil
}

func (m *MockProductService) Create(ctx context.Context, principal models.Principal, fields models.ProductFields, images []models.ImageFile) (*models.Product, error) {
	m.Principals = append(m.Principals, principal)
	m.CreatedFields = append(m.CreatedFields, fields)
	m.CreatedImages = append(m.CreatedImages, images)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, principal, fields, images)
	}
	return &models.Product{ID: "product-1", Name: fields.Name, SKU: fields.SKU}, nil
}

func (m *MockProductService) Update(ctx context.Context, principal models.Principal, id string, change editor.Change) (*editor.UpdateReport, error) {
	m.Principals = append(m.Principals, principal)
	m.Changes = append(m.Changes, change)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, principal, id, change)
	}
	return &editor.UpdateReport{ProductID: id, Steps: []editor.StepReport{}}, nil
}
