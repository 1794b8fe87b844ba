package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a node of the catalog tree.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ParentID     *int64    `json:"parent_id"`
	Children     []int64   `json:"children"`
	ProductCount int64     `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CategoryRef is the category summary embedded in products.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is a sellable item with its images and variants.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	VendorCode  string          `json:"vendor_code"`
	CategoryID  int64           `json:"category_id"`
	Category    CategoryRef     `json:"category"`
	BasePrice   decimal.Decimal `json:"base_price"`
	RetailPrice decimal.Decimal `json:"retail_price"`
	Available   bool            `json:"available"`
	Description *string         `json:"description"`
	Images      []Image         `json:"images"`
	Variants    []Variant       `json:"variants"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Image is an ordered product picture.
type Image struct {
	ID        int64   `json:"id"`
	URL       string  `json:"url"`
	Alt       *string `json:"alt"`
	SortOrder int     `json:"sort_order"`
}

// Variant is a name/value attribute of a product.
type Variant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CategoryUpsert carries the writable category columns. ID is ignored on create.
type CategoryUpsert struct {
	ID       int64
	Name     string
	Slug     string
	ParentID *int64
}

// ProductUpsert carries the writable product columns.
type ProductUpsert struct {
	Name        string
	Slug        string
	VendorCode  string
	CategoryID  int64
	BasePrice   decimal.Decimal
	RetailPrice decimal.Decimal
	Available   bool
	Description *string
}

// ImageInput is one picture to store for a product.
type ImageInput struct {
	URL string
	Alt *string
}

// VariantInput is one attribute to store for a product.
type VariantInput struct {
	Name  string
	Value string
}

// ProductInput is a complete product write. Nil Images or Variants leave the
// stored rows untouched on update.
type ProductInput struct {
	Product  ProductUpsert
	Images   []ImageInput
	Variants []VariantInput
}

// Sort keys accepted by ListProducts.
const (
	SortByDate  = "date"
	SortByPrice = "price"
	SortByName  = "name"
)

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	CategoryID *int64
	Search     string
	// Storefront restricts results to available products with at least one image.
	Storefront bool
	SortBy     string
	Desc       bool
	Limit      int
	Offset     int
}

// Stats summarises catalog contents.
type Stats struct {
	Categories            int64 `json:"categories"`
	Products              int64 `json:"products"`
	Images                int64 `json:"images"`
	ProductsWithImages    int64 `json:"products_with_images"`
	ProductsWithoutImages int64 `json:"products_without_images"`
}
