package models

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog record owned by the external catalog API
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	SKU             string          `json:"sku"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	Brand           string          `json:"brand,omitempty"`
	Color           string          `json:"color,omitempty"`
	Description     string          `json:"description,omitempty"`
	Dimensions      string          `json:"dimensions,omitempty"`
	CategoryName    string          `json:"category_name"`
	SubcategoryName string          `json:"subcategory_name"`
	Images          []string        `json:"images"`
}

// ProductFields are the editable scalar fields of a product.
// Price is kept as entered and parsed with decimal during validation.
type ProductFields struct {
	Name            string `json:"name" form:"name" validate:"required"`
	SKU             string `json:"sku" form:"sku" validate:"required"`
	Price           string `json:"price" form:"price" validate:"required,decimal_gte0"`
	Stock           *int   `json:"stock,omitempty" form:"stock" validate:"omitempty,gte=0"`
	Brand           string `json:"brand,omitempty" form:"brand"`
	Color           string `json:"color,omitempty" form:"color"`
	Description     string `json:"description,omitempty" form:"description"`
	Dimensions      string `json:"dimensions,omitempty" form:"dimensions"`
	CategoryName    string `json:"category_name" form:"category_name" validate:"required"`
	SubcategoryName string `json:"subcategory_name" form:"subcategory_name" validate:"required"`
}

// FieldChanges holds only the fields an operator changed on edit, keyed by JSON name
type FieldChanges map[string]string

// EditableFields lists the keys accepted in FieldChanges
var EditableFields = map[string]bool{
	"name":             true,
	"sku":              true,
	"price":            true,
	"stock":            true,
	"brand":            true,
	"color":            true,
	"description":      true,
	"dimensions":       true,
	"category_name":    true,
	"subcategory_name": true,
}

// Subcategory is a child of a Category
type Subcategory struct {
	SubcategoryID string `json:"subcategory_id"`
	Name          string `json:"name"`
}

// Category is an entry of the list-categories response
type Category struct {
	CategoryID    string        `json:"category_id"`
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

// ImageFile is an image uploaded through the editor
type ImageFile struct {
	Name        string
	ContentType string
	Content     []byte
}
