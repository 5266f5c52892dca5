package editor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/catalog-import-console/internal/validation"
)

var (
	ErrImagesRequired = errors.New("at least one product image is required")
	ErrPartialUpdate  = errors.New("product update partially failed")
	ErrSKUReadOnly    = errors.New("sku can only be changed by a privileged role")
	ErrNoChanges      = errors.New("no changes to apply")
)

// ValidationError lists field problems found before any catalog call
type ValidationError struct {
	Errors []validation.ValidationError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "invalid product: " + strings.Join(msgs, "; ")
}

// Is matches ErrImagesRequired when the image set would be empty
func (e *ValidationError) Is(target error) bool {
	if target != ErrImagesRequired {
		return false
	}
	for _, fe := range e.Errors {
		if fe.Field == "images" && fe.Message == ErrImagesRequired.Error() {
			return true
		}
	}
	return false
}

// UpdateError carries the report of an update where at least one step failed
type UpdateError struct {
	Report *UpdateReport
}

func (e *UpdateError) Error() string {
	var failed []string
	for _, s := range e.Report.Steps {
		if s.Status != StepFailed {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", s.Step, s.Error))
	}
	return fmt.Sprintf("%s (%s)", ErrPartialUpdate, strings.Join(failed, "; "))
}

func (e *UpdateError) Unwrap() error {
	return ErrPartialUpdate
}
