package validation

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/catalog-import-console/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	allowedUploadExtensions = map[string]bool{
		".csv":  true,
		".xls":  true,
		".xlsx": true,
	}

	allowedImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/webp": true,
		"image/gif":  true,
	}

	// Fields that may be changed but never emptied on edit
	requiredOnEdit = map[string]bool{
		"name":             true,
		"sku":              true,
		"price":            true,
		"category_name":    true,
		"subcategory_name": true,
	}
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Validator provides validation methods
type Validator struct {
	validate      *validator.Validate
	maxUploadSize int64
	maxImageSize  int64
}

// NewValidator creates a new validator instance
func NewValidator(maxUploadSize, maxImageSize int64) *Validator {
	validate := validator.New()

	// Report fields by their JSON name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("decimal_gte0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && !d.IsNegative()
	})

	return &Validator{
		validate:      validate,
		maxUploadSize: maxUploadSize,
		maxImageSize:  maxImageSize,
	}
}

// ValidateUpload is the file-picker filter for import files
func (v *Validator) ValidateUpload(name string, size int64) []ValidationError {
	var errors []ValidationError

	ext := strings.ToLower(filepath.Ext(name))
	if name == "" {
		errors = append(errors, ValidationError{Field: "file", Message: "file is required"})
	} else if !allowedUploadExtensions[ext] {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: "unsupported file type, must be one of: .csv, .xls, .xlsx",
			Value:   name,
		})
	}

	if v.maxUploadSize > 0 && size > v.maxUploadSize {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file too large (max %dMB)", v.maxUploadSize/(1024*1024)),
			Value:   size,
		})
	}

	return errors
}

// ValidateImage checks an editor image by content type or extension and size
func (v *Validator) ValidateImage(name, contentType string, size int64) []ValidationError {
	var errors []ValidationError

	if !isImage(name, contentType) {
		errors = append(errors, ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("invalid image type for file %s. Allowed: jpeg, jpg, png, webp, gif", name),
			Value:   contentType,
		})
	}
	if size == 0 {
		errors = append(errors, ValidationError{Field: "images", Message: fmt.Sprintf("image %s is empty", name)})
	} else if v.maxImageSize > 0 && size > v.maxImageSize {
		errors = append(errors, ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("image %s too large (max %dMB)", name, v.maxImageSize/(1024*1024)),
			Value:   size,
		})
	}

	return errors
}

// ValidateProductFields validates the fields of a new product
func (v *Validator) ValidateProductFields(fields *models.ProductFields) []ValidationError {
	var errors []ValidationError

	err := v.validate.Struct(fields)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "product", Message: err.Error()}}
	}
	for _, fe := range fieldErrs {
		errors = append(errors, ValidationError{
			Field:   fe.Field(),
			Message: message(fe.Field(), fe.Tag()),
			Value:   valueOf(fe),
		})
	}
	return errors
}

// ValidateFieldChanges validates the changed fields of an edit. Unknown keys
// are rejected and required fields may not be cleared.
func (v *Validator) ValidateFieldChanges(changes models.FieldChanges) []ValidationError {
	var errors []ValidationError

	for _, field := range sortedFields(changes) {
		value := changes[field]
		trimmed := strings.TrimSpace(value)

		switch {
		case !models.EditableFields[field]:
			errors = append(errors, ValidationError{Field: field, Message: "field cannot be edited", Value: value})
		case requiredOnEdit[field] && trimmed == "":
			errors = append(errors, ValidationError{Field: field, Message: field + " cannot be empty"})
		case field == "price":
			if err := v.validate.Var(trimmed, "decimal_gte0"); err != nil {
				errors = append(errors, ValidationError{Field: field, Message: message(field, "decimal_gte0"), Value: value})
			}
		case field == "stock":
			n, err := strconv.Atoi(trimmed)
			if err != nil {
				errors = append(errors, ValidationError{Field: field, Message: "stock must be a whole number", Value: value})
			} else if err := v.validate.Var(n, "gte=0"); err != nil {
				errors = append(errors, ValidationError{Field: field, Message: message(field, "gte"), Value: value})
			}
		}
	}

	return errors
}

// IsValidID reports whether s is a workflow or run id
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func message(field, tag string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "decimal_gte0":
		return field + " must be a number greater than or equal to 0"
	case "gte":
		return field + " must be 0 or more"
	default:
		return field + " is invalid"
	}
}

func valueOf(fe validator.FieldError) interface{} {
	if fe.Tag() == "required" {
		return nil
	}
	val := fe.Value()
	if rv := reflect.ValueOf(val); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return val
}

func isImage(name, contentType string) bool {
	if allowedImageTypes[strings.ToLower(contentType)] {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}

func sortedFields(changes models.FieldChanges) []string {
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
