package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/slug"
)

// DefaultTake is the page size of the public product listing.
const DefaultTake = 100

// Repository is the persistence required by Service.
type Repository interface {
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (int64, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput) error
	DeleteProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, in CategoryUpsert) (int64, error)
	UpdateCategory(ctx context.Context, id int64, in CategoryUpsert) error
	DeleteCategory(ctx context.Context, id int64) error
}

// Service exposes catalog reads and admin writes.
type Service struct {
	repo     Repository
	cache    *Cache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs the catalog service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// Invalidate drops every cached catalog read.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("catalog: bump cache: %w", err)
	}
	return nil
}

// invalidate is used after writes; a cache failure must not fail the write.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidation failed", slog.Any("error", err))
	}
}

// ============================================================================
// PRODUCTS
// ============================================================================

// ListProducts returns the public listing: available products with images.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Take == 0 {
		q.Take = DefaultTake
	}
	if err := httpx.Validate(s.validate, q); err != nil {
		return ProductPage{}, err
	}

	category := "all"
	if q.CategoryID != nil {
		category = strconv.FormatInt(*q.CategoryID, 10)
	}
	key, err := s.cache.BuildKey(ctx, "products", category, q.Search,
		strconv.Itoa(q.Page), strconv.Itoa(q.Take), q.SortBy, q.SortOrder)
	if err != nil {
		return ProductPage{}, fmt.Errorf("catalog: cache key: %w", err)
	}

	var page ProductPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		items, total, err := s.repo.ListProducts(ctx, ProductFilter{
			CategoryID: q.CategoryID,
			Search:     q.Search,
			Storefront: true,
			SortBy:     q.SortBy,
			Desc:       q.SortOrder == "desc" || (q.SortOrder == "" && (q.SortBy == "" || q.SortBy == SortByDate)),
			Limit:      q.Take,
			Offset:     (q.Page - 1) * q.Take,
		})
		if err != nil {
			return nil, err
		}
		return ProductPage{Items: items, Total: total, Page: q.Page, Take: q.Take}, nil
	})
	return page, err
}

// GetProduct returns one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	key, err := s.cache.BuildKey(ctx, "product", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, fmt.Errorf("catalog: cache key: %w", err)
	}
	var p Product
	if err := s.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
		return s.repo.GetProduct(ctx, id)
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductBySlug returns one product by slug.
func (s *Service) GetProductBySlug(ctx context.Context, value string) (*Product, error) {
	if !slug.Valid(value) {
		return nil, ErrNotFound
	}
	key, err := s.cache.BuildKey(ctx, "product-slug", value)
	if err != nil {
		return nil, fmt.Errorf("catalog: cache key: %w", err)
	}
	var p Product
	if err := s.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
		return s.repo.GetProductBySlug(ctx, value)
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct validates req and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, req ProductRequest) (*Product, error) {
	in, err := s.productInput(req)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.GetProduct(ctx, id)
}

// UpdateProduct validates req and replaces product id.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req ProductRequest) (*Product, error) {
	in, err := s.productInput(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, id, in); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.GetProduct(ctx, id)
}

// DeleteProduct removes product id.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) productInput(req ProductRequest) (ProductInput, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return ProductInput{}, err
	}
	retail := req.BasePrice
	if req.RetailPrice != nil {
		retail = *req.RetailPrice
	}
	if req.BasePrice.IsNegative() || retail.IsNegative() {
		return ProductInput{}, ErrInvalidPrice
	}

	value := req.Slug
	if value == "" {
		value = slug.WithSuffix(req.Name, req.VendorCode, slug.MaxProductLength)
	}
	if !slug.Valid(value) {
		return ProductInput{}, fmt.Errorf("%w: %q", ErrInvalidSlug, value)
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	in := ProductInput{
		Product: ProductUpsert{
			Name:        req.Name,
			Slug:        value,
			VendorCode:  req.VendorCode,
			CategoryID:  req.CategoryID,
			BasePrice:   req.BasePrice,
			RetailPrice: retail,
			Available:   available,
			Description: req.Description,
		},
	}
	if req.Images != nil {
		in.Images = make([]ImageInput, len(req.Images))
		for i, img := range req.Images {
			in.Images[i] = ImageInput{URL: img.URL, Alt: img.Alt}
		}
	}
	if req.Variants != nil {
		in.Variants = make([]VariantInput, len(req.Variants))
		for i, v := range req.Variants {
			in.Variants[i] = VariantInput{Name: v.Name, Value: v.Value}
		}
	}
	return in, nil
}

// ============================================================================
// CATEGORIES
// ============================================================================

// ListCategories returns every category with child ids and product counts.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	key, err := s.cache.BuildKey(ctx, "categories")
	if err != nil {
		return nil, fmt.Errorf("catalog: cache key: %w", err)
	}
	var cats []Category
	if err := s.cache.FetchJSON(ctx, key, &cats, func(ctx context.Context) (any, error) {
		return s.repo.ListCategories(ctx)
	}); err != nil {
		return nil, err
	}
	return cats, nil
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// CreateCategory validates req and stores a new category.
func (s *Service) CreateCategory(ctx context.Context, req CategoryRequest) (*Category, error) {
	in, err := s.categoryInput(req)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateCategory(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.GetCategory(ctx, id)
}

// UpdateCategory validates req and replaces category id. Moving a category
// under itself or one of its descendants fails with ErrCategoryCycle.
func (s *Service) UpdateCategory(ctx context.Context, id int64, req CategoryRequest) (*Category, error) {
	in, err := s.categoryInput(req)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if err := s.checkAncestry(ctx, id, *in.ParentID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateCategory(ctx, id, in); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.GetCategory(ctx, id)
}

// DeleteCategory removes category id.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) categoryInput(req CategoryRequest) (CategoryUpsert, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return CategoryUpsert{}, err
	}
	value := req.Slug
	if value == "" {
		value = slug.Make(req.Name)
	}
	if !slug.Valid(value) {
		return CategoryUpsert{}, fmt.Errorf("%w: %q", ErrInvalidSlug, value)
	}
	return CategoryUpsert{Name: req.Name, Slug: value, ParentID: req.ParentID}, nil
}

// checkAncestry walks up from parent and fails when it reaches id.
func (s *Service) checkAncestry(ctx context.Context, id, parent int64) error {
	if parent == id {
		return ErrCategoryCycle
	}
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return err
	}
	parents := make(map[int64]*int64, len(cats))
	for _, c := range cats {
		parents[c.ID] = c.ParentID
	}
	if _, ok := parents[parent]; !ok {
		return fmt.Errorf("%w: parent %d", ErrInvalidReference, parent)
	}
	seen := map[int64]bool{}
	for cur := &parent; cur != nil; cur = parents[*cur] {
		if *cur == id {
			return ErrCategoryCycle
		}
		if seen[*cur] {
			break
		}
		seen[*cur] = true
	}
	return nil
}
