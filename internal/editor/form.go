package editor

import (
	"errors"
	"strings"

	"github.com/catalog-import-console/internal/models"
)

var (
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownSubcategory = errors.New("subcategory does not belong to the selected category")
)

// Form holds the cascading category and subcategory selection of the
// product editor. Subcategory options are always the children of the
// selected category.
type Form struct {
	categories  []models.Category
	category    *models.Category
	subcategory string
}

// NewForm creates a form over the category tree
func NewForm(categories []models.Category) *Form {
	return &Form{categories: categories}
}

// CategoryOptions lists the category names in catalog order
func (f *Form) CategoryOptions() []string {
	names := make([]string, 0, len(f.categories))
	for _, c := range f.categories {
		names = append(names, c.Name)
	}
	return names
}

// SelectCategory picks a category by name. Changing the category clears the
// subcategory.
func (f *Form) SelectCategory(name string) error {
	c := f.find(name)
	if c == nil {
		return ErrUnknownCategory
	}
	if f.category != c {
		f.subcategory = ""
	}
	f.category = c
	return nil
}

// SubcategoryOptions returns the children of the selected category
func (f *Form) SubcategoryOptions() []models.Subcategory {
	if f.category == nil {
		return []models.Subcategory{}
	}
	out := make([]models.Subcategory, len(f.category.Subcategories))
	copy(out, f.category.Subcategories)
	return out
}

// SelectSubcategory picks one of SubcategoryOptions by name
func (f *Form) SelectSubcategory(name string) error {
	if f.category == nil {
		return ErrUnknownSubcategory
	}
	for _, s := range f.category.Subcategories {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			f.subcategory = s.Name
			return nil
		}
	}
	return ErrUnknownSubcategory
}

// Category returns the selected category name
func (f *Form) Category() string {
	if f.category == nil {
		return ""
	}
	return f.category.Name
}

// Subcategory returns the selected subcategory name
func (f *Form) Subcategory() string {
	return f.subcategory
}

func (f *Form) find(name string) *models.Category {
	name = strings.TrimSpace(name)
	for i := range f.categories {
		if strings.EqualFold(strings.TrimSpace(f.categories[i].Name), name) {
			return &f.categories[i]
		}
	}
	return nil
}
