package catalog

import "github.com/shopspring/decimal"

// ProductRequest is the admin payload for creating or replacing a product.
type ProductRequest struct {
	Name        string           `json:"name" validate:"required,max=500"`
	Slug        string           `json:"slug" validate:"omitempty,max=200"`
	VendorCode  string           `json:"vendor_code" validate:"required,max=100"`
	CategoryID  int64            `json:"category_id" validate:"required,gt=0"`
	BasePrice   decimal.Decimal  `json:"base_price"`
	RetailPrice *decimal.Decimal `json:"retail_price"`
	Available   *bool            `json:"available"`
	Description *string          `json:"description"`
	Images      []ImageRequest   `json:"images" validate:"omitempty,dive"`
	Variants    []VariantRequest `json:"variants" validate:"omitempty,dive"`
}

// ImageRequest is one picture of a ProductRequest.
type ImageRequest struct {
	URL string  `json:"url" validate:"required,url"`
	Alt *string `json:"alt"`
}

// VariantRequest is one attribute of a ProductRequest.
type VariantRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Value string `json:"value" validate:"max=1000"`
}

// CategoryRequest is the admin payload for creating or replacing a category.
type CategoryRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Slug     string `json:"slug" validate:"omitempty,max=255"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

// ProductQuery holds the public listing parameters.
type ProductQuery struct {
	CategoryID *int64 `validate:"omitempty,gt=0"`
	Search     string `validate:"max=200"`
	Page       int    `validate:"gte=1"`
	Take       int    `validate:"gte=1,lte=100"`
	SortBy     string `validate:"omitempty,oneof=price name date"`
	SortOrder  string `validate:"omitempty,oneof=asc desc"`
}

// ProductPage is one page of the public product listing.
type ProductPage struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Take  int       `json:"take"`
}
