package mocks

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/storage"
)

// MockCatalog is a mock of the external catalog API
type MockCatalog struct {
	mu sync.Mutex

	ValidateFunc  func(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error)
	UploadFunc    func(ctx context.Context, file models.UploadFile) (*models.UploadResult, error)
	CreateFunc    func(ctx context.Context, fields models.ProductFields, images []models.ImageFile) (*models.Product, error)
	EditFunc      func(ctx context.Context, id string, changes models.FieldChanges) error
	AddImagesErr  error
	DeleteErr     error
	Categories    []models.Category
	CategoriesErr error

	Calls          []string
	ValidatedFiles []models.UploadFile
	UploadedFiles  []models.UploadFile
}

// Verify interface compliance
var _ service.CatalogAPI = (*MockCatalog)(nil)

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{Calls: make([]string, 0)}
}

func (m *MockCatalog) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockCatalog) ValidateBatch(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
	m.record("validate-batch")
	m.mu.Lock()
	m.ValidatedFiles = append(m.ValidatedFiles, file)
	m.mu.Unlock()

	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, file)
	}
	return &models.ValidationResult{}, nil
}

func (m *MockCatalog) BatchUpload(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
	m.record("batch-upload")
	m.mu.Lock()
	m.UploadedFiles = append(m.UploadedFiles, file)
	m.mu.Unlock()

	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, file)
	}
	return &models.UploadResult{Message: "Products uploaded"}, nil
}

func (m *MockCatalog) CreateProduct(ctx context.Context, fields models.ProductFields, images []models.ImageFile) (*models.Product, error) {
	m.record("create-product")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, fields, images)
	}
	return &models.Product{ID: "product-1", Name: fields.Name, SKU: fields.SKU}, nil
}

func (m *MockCatalog) EditProduct(ctx context.Context, id string, changes models.FieldChanges) error {
	m.record("edit-product")
	if m.EditFunc != nil {
		return m.EditFunc(ctx, id, changes)
	}
	return nil
}

func (m *MockCatalog) AddProductImages(ctx context.Context, id string, images []models.ImageFile) error {
	m.record("add-product-images")
	return m.AddImagesErr
}

func (m *MockCatalog) DeleteProductImages(ctx context.Context, id string, urls []string) error {
	m.record("delete-product-image")
	return m.DeleteErr
}

func (m *MockCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.record("list-categories")
	if m.CategoriesErr != nil {
		return nil, m.CategoriesErr
	}
	return m.Categories, nil
}

// CallCount returns how often call was made
func (m *MockCatalog) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == call {
			n++
		}
	}
	return n
}

// MockStorage is an in-memory ObjectStorage
type MockStorage struct {
	mu          sync.Mutex
	Objects     map[string][]byte
	ContentType map[string]string
	UploadError error
}

// Verify interface compliance
var _ storage.ObjectStorage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{
		Objects:     make(map[string][]byte),
		ContentType: make(map[string]string),
	}
}

func (m *MockStorage) Upload(ctx context.Context, objectName, contentType string, reader io.Reader, size int64) (string, error) {
	if m.UploadError != nil {
		return "", m.UploadError
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[objectName] = buf.Bytes()
	m.ContentType[objectName] = contentType
	return objectName, nil
}
