package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/storefront/internal/platform/db"
)

type StoreTestSuite struct {
	suite.Suite
	mock  pgxmock.PgxPoolIface
	store *PGStore
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	s.Require().NoError(err)
	s.mock = mock
	s.store = NewStore(mock)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func (s *StoreTestSuite) TestUpsertCategory() {
	parent := int64Ptr(1)
	s.mock.ExpectQuery(`INSERT INTO categories`).
		WithArgs(int64(2), "Sliding", "sliding-2", parent).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))

	id, err := s.store.UpsertCategory(s.ctx, CategoryUpsert{ID: 2, Name: "Sliding", Slug: "sliding-2", ParentID: parent})
	s.Require().NoError(err)
	s.Equal(int64(2), id)
}

func (s *StoreTestSuite) TestUpsertCategoryMissingParent() {
	s.mock.ExpectQuery(`INSERT INTO categories`).
		WithArgs(int64(2), "Sliding", "sliding-2", int64Ptr(99)).
		WillReturnError(&pgconn.PgError{Code: db.CodeForeignKeyViolation, ConstraintName: "categories_parent_id_fkey"})

	_, err := s.store.UpsertCategory(s.ctx, CategoryUpsert{ID: 2, Name: "Sliding", Slug: "sliding-2", ParentID: int64Ptr(99)})
	s.ErrorIs(err, ErrInvalidReference)
	s.Contains(err.Error(), "categories_parent_id_fkey")
}

func (s *StoreTestSuite) TestCategoryExists() {
	s.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.store.CategoryExists(s.ctx, 5)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *StoreTestSuite) TestUpsertProductKeyedByVendorCode() {
	in := ProductUpsert{
		Name:        "Door A",
		Slug:        "door-a-d-1",
		VendorCode:  "D-1",
		CategoryID:  2,
		BasePrice:   decimal.NewFromInt(100),
		RetailPrice: decimal.NewFromInt(150),
		Available:   true,
	}
	s.mock.ExpectQuery(`ON CONFLICT \(vendor_code\) DO UPDATE`).
		WithArgs(in.Name, in.Slug, in.VendorCode, in.CategoryID, in.BasePrice, in.RetailPrice, in.Available, in.Description).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.store.UpsertProduct(s.ctx, in)
	s.Require().NoError(err)
	s.Equal(int64(42), id)
}

func (s *StoreTestSuite) TestUpsertProductSlugTaken() {
	s.mock.ExpectQuery(`INSERT INTO products`).
		WillReturnError(&pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: "products_slug_key"})

	_, err := s.store.UpsertProduct(s.ctx, ProductUpsert{VendorCode: "D-1"})
	s.ErrorIs(err, ErrDuplicate)
}

func (s *StoreTestSuite) TestReplaceImagesDedupesAndOrders() {
	alt := strPtr("Door A")
	s.mock.ExpectExec(`DELETE FROM product_images`).
		WithArgs(int64(42), []string{"http://x/1.jpg", "http://x/2.jpg"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	s.mock.ExpectExec(`INSERT INTO product_images`).
		WithArgs(int64(42), "http://x/1.jpg", alt, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectExec(`INSERT INTO product_images`).
		WithArgs(int64(42), "http://x/2.jpg", alt, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.store.ReplaceImages(s.ctx, 42, []ImageInput{
		{URL: "http://x/1.jpg", Alt: alt},
		{URL: "http://x/2.jpg", Alt: alt},
		{URL: "http://x/1.jpg", Alt: alt},
	})
	s.NoError(err)
}

func (s *StoreTestSuite) TestReplaceImagesEmptyClearsAll() {
	s.mock.ExpectExec(`DELETE FROM product_images`).
		WithArgs(int64(42), []string{}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	s.NoError(s.store.ReplaceImages(s.ctx, 42, nil))
}

func (s *StoreTestSuite) TestReplaceVariants() {
	s.mock.ExpectExec(`DELETE FROM product_variants`).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	s.mock.ExpectExec(`INSERT INTO product_variants`).
		WithArgs(int64(42), "Color", "White").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s.NoError(s.store.ReplaceVariants(s.ctx, 42, []VariantInput{{Name: "Color", Value: "White"}}))
}

func (s *StoreTestSuite) TestWithTxRollsBackOnWriterError() {
	s.mock.ExpectBeginTx(db.TxOptions)
	s.mock.ExpectQuery(`INSERT INTO products`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	s.mock.ExpectExec(`DELETE FROM product_images`).
		WillReturnError(errors.New("boom"))
	s.mock.ExpectRollback()

	err := s.store.WithTx(s.ctx, func(ctx context.Context, w OfferWriter) error {
		id, err := w.UpsertProduct(ctx, ProductUpsert{VendorCode: "D-1"})
		if err != nil {
			return err
		}
		return w.ReplaceImages(ctx, id, []ImageInput{{URL: "http://x/1.jpg"}})
	})
	s.ErrorContains(err, "boom")
}

func (s *StoreTestSuite) TestWithTxCommits() {
	s.mock.ExpectBeginTx(db.TxOptions)
	s.mock.ExpectExec(`DELETE FROM product_variants`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	s.mock.ExpectCommit()

	err := s.store.WithTx(s.ctx, func(ctx context.Context, w OfferWriter) error {
		return w.ReplaceVariants(ctx, 1, nil)
	})
	s.NoError(err)
}

func (s *StoreTestSuite) TestStats() {
	s.mock.ExpectQuery(`SELECT`).
		WillReturnRows(pgxmock.NewRows([]string{"c", "p", "i", "pi"}).
			AddRow(int64(3), int64(10), int64(25), int64(7)))

	st, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(Stats{Categories: 3, Products: 10, Images: 25, ProductsWithImages: 7, ProductsWithoutImages: 3}, st)
}

var productCols = []string{
	"id", "name", "slug", "vendor_code", "category_id",
	"base_price", "retail_price", "available", "description",
	"created_at", "updated_at", "category_name", "category_slug",
}

func (s *StoreTestSuite) productRow(id int64, name string) []any {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []any{
		id, name, "door-a-d-1", "D-1", int64(2),
		decimal.NewFromInt(100), decimal.NewFromInt(150), true, (*string)(nil),
		now, now, "Sliding", "sliding-2",
	}
}

func (s *StoreTestSuite) TestListProductsStorefront() {
	cat := int64(2)
	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products p WHERE p.available AND EXISTS`).
		WithArgs(cat, "%door%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	s.mock.ExpectQuery(`ORDER BY p.retail_price ASC, p.id ASC LIMIT \$3 OFFSET \$4`).
		WithArgs(cat, "%door%", 20, 20).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(s.productRow(42, "Door A")...))
	s.mock.ExpectQuery(`FROM product_images`).
		WithArgs([]int64{42}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "url", "alt", "sort_order"}).
			AddRow(int64(42), int64(1), "http://x/1.jpg", strPtr("Door A"), 0).
			AddRow(int64(42), int64(2), "http://x/2.jpg", strPtr("Door A"), 1))
	s.mock.ExpectQuery(`FROM product_variants`).
		WithArgs([]int64{42}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "name", "value"}).
			AddRow(int64(42), int64(9), "Color", "White"))

	products, total, err := s.store.ListProducts(s.ctx, ProductFilter{
		CategoryID: &cat,
		Search:     " door ",
		Storefront: true,
		SortBy:     SortByPrice,
		Limit:      20,
		Offset:     20,
	})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(products, 1)
	p := products[0]
	s.Equal("Door A", p.Name)
	s.Equal(CategoryRef{ID: 2, Name: "Sliding", Slug: "sliding-2"}, p.Category)
	s.Require().Len(p.Images, 2)
	s.Equal(1, p.Images[1].SortOrder)
	s.Equal([]Variant{{ID: 9, Name: "Color", Value: "White"}}, p.Variants)
}

func (s *StoreTestSuite) TestListProductsEmpty() {
	s.mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	s.mock.ExpectQuery(`ORDER BY p.created_at DESC`).
		WithArgs(100, 0).
		WillReturnRows(pgxmock.NewRows(productCols))

	products, total, err := s.store.ListProducts(s.ctx, ProductFilter{Desc: true})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(products)
}

func (s *StoreTestSuite) TestGetProductNotFound() {
	s.mock.ExpectQuery(`WHERE p.id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(productCols))

	_, err := s.store.GetProduct(s.ctx, 7)
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestGetProductBySlug() {
	s.mock.ExpectQuery(`WHERE p.slug = \$1`).
		WithArgs("door-a-d-1").
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(s.productRow(42, "Door A")...))
	s.mock.ExpectQuery(`FROM product_images`).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "url", "alt", "sort_order"}))
	s.mock.ExpectQuery(`FROM product_variants`).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "name", "value"}))

	p, err := s.store.GetProductBySlug(s.ctx, "door-a-d-1")
	s.Require().NoError(err)
	s.Equal(int64(42), p.ID)
	s.NotNil(p.Images)
	s.Empty(p.Images)
}

func (s *StoreTestSuite) TestUpdateProductNotFound() {
	s.mock.ExpectBeginTx(db.TxOptions)
	s.mock.ExpectExec(`UPDATE products SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	s.mock.ExpectRollback()

	err := s.store.UpdateProduct(s.ctx, 7, ProductInput{})
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestCreateProductWithChildren() {
	s.mock.ExpectBeginTx(db.TxOptions)
	s.mock.ExpectQuery(`INSERT INTO products`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	s.mock.ExpectExec(`DELETE FROM product_images`).
		WithArgs(int64(8), []string{"http://x/a.jpg"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	s.mock.ExpectExec(`INSERT INTO product_images`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectCommit()

	id, err := s.store.CreateProduct(s.ctx, ProductInput{
		Product: ProductUpsert{Name: "Handle", Slug: "handle-h-1", VendorCode: "H-1", CategoryID: 1},
		Images:  []ImageInput{{URL: "http://x/a.jpg"}},
	})
	s.Require().NoError(err)
	s.Equal(int64(8), id)
}

func (s *StoreTestSuite) TestListCategoriesBuildsChildren() {
	now := time.Now()
	s.mock.ExpectQuery(`FROM categories c`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "parent_id", "created_at", "updated_at", "count"}).
			AddRow(int64(1), "Doors", "doors-1", (*int64)(nil), now, now, int64(0)).
			AddRow(int64(2), "Sliding", "sliding-2", int64Ptr(1), now, now, int64(4)).
			AddRow(int64(3), "Swing", "swing-3", int64Ptr(1), now, now, int64(1)))

	cats, err := s.store.ListCategories(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(cats, 3)
	s.Equal([]int64{2, 3}, cats[0].Children)
	s.Empty(cats[1].Children)
	s.Equal(int64(4), cats[1].ProductCount)
}

func (s *StoreTestSuite) TestGetCategory() {
	now := time.Now()
	s.mock.ExpectQuery(`WHERE c.id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "parent_id", "created_at", "updated_at", "count"}).
			AddRow(int64(1), "Doors", "doors-1", (*int64)(nil), now, now, int64(2)))
	s.mock.ExpectQuery(`WHERE parent_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))

	cat, err := s.store.GetCategory(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal([]int64{2}, cat.Children)
	s.Nil(cat.ParentID)
}

func (s *StoreTestSuite) TestCreateCategoryUsesSequence() {
	s.mock.ExpectQuery(`nextval\('categories_id_seq'\)`).
		WithArgs("Handles", "handles", (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1000000)))

	id, err := s.store.CreateCategory(s.ctx, CategoryUpsert{Name: "Handles", Slug: "handles"})
	s.Require().NoError(err)
	s.Equal(int64(1000000), id)
}

func (s *StoreTestSuite) TestDeleteCategoryInUse() {
	s.mock.ExpectExec(`DELETE FROM categories`).
		WithArgs(int64(1)).
		WillReturnError(&pgconn.PgError{Code: db.CodeForeignKeyViolation, ConstraintName: "products_category_id_fkey"})

	s.ErrorIs(s.store.DeleteCategory(s.ctx, 1), ErrInvalidReference)
}

func (s *StoreTestSuite) TestDeleteProductNotFound() {
	s.mock.ExpectExec(`DELETE FROM products`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s.ErrorIs(s.store.DeleteProduct(s.ctx, 1), ErrNotFound)
}

func TestDedupeImages(t *testing.T) {
	got := DedupeImages([]ImageInput{{URL: "a"}, {URL: "b"}, {URL: "a"}, {URL: "c"}, {URL: "b"}})
	assert.Equal(t, []ImageInput{{URL: "a"}, {URL: "b"}, {URL: "c"}}, got)
}
