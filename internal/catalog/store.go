package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/storefront/internal/platform/db"
)

// OfferWriter is the set of writes applied atomically for one product.
type OfferWriter interface {
	UpsertProduct(ctx context.Context, in ProductUpsert) (int64, error)
	ReplaceImages(ctx context.Context, productID int64, images []ImageInput) error
	ReplaceVariants(ctx context.Context, productID int64, variants []VariantInput) error
}

// PGStore is the PostgreSQL catalog store. The same type serves the pool and
// an open transaction.
type PGStore struct {
	db   db.DBTX
	pool db.Pool
}

// NewStore constructs a store over pool.
func NewStore(pool db.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

// WithTx runs fn with a writer bound to a repeatable-read transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, OfferWriter) error) error {
	return s.inTx(ctx, func(tx *PGStore) error {
		return fn(ctx, tx)
	})
}

func (s *PGStore) inTx(ctx context.Context, fn func(*PGStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{db: tx, pool: s.pool})
	})
}

const upsertCategorySQL = `INSERT INTO categories (id, name, slug, parent_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    slug = EXCLUDED.slug,
    parent_id = EXCLUDED.parent_id,
    updated_at = NOW()
RETURNING id`

// UpsertCategory inserts or updates the category keyed by its feed id.
func (s *PGStore) UpsertCategory(ctx context.Context, in CategoryUpsert) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, upsertCategorySQL, in.ID, in.Name, in.Slug, in.ParentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert category %d: %w", in.ID, translate(err))
	}
	return id, nil
}

// CategoryExists reports whether a category with id is stored.
func (s *PGStore) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("catalog: category exists: %w", err)
	}
	return exists, nil
}

const upsertProductSQL = `INSERT INTO products (name, slug, vendor_code, category_id, base_price, retail_price, available, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (vendor_code) DO UPDATE SET
    name = EXCLUDED.name,
    slug = EXCLUDED.slug,
    category_id = EXCLUDED.category_id,
    base_price = EXCLUDED.base_price,
    retail_price = EXCLUDED.retail_price,
    available = EXCLUDED.available,
    description = COALESCE(EXCLUDED.description, products.description),
    updated_at = NOW()
RETURNING id`

// UpsertProduct inserts or updates the product keyed by vendor code.
func (s *PGStore) UpsertProduct(ctx context.Context, in ProductUpsert) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, upsertProductSQL,
		in.Name, in.Slug, in.VendorCode, in.CategoryID,
		in.BasePrice, in.RetailPrice, in.Available, in.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert product %s: %w", in.VendorCode, translate(err))
	}
	return id, nil
}

const upsertImageSQL = `INSERT INTO product_images (product_id, url, alt, sort_order)
VALUES ($1, $2, $3, $4)
ON CONFLICT (product_id, url) DO UPDATE SET
    alt = EXCLUDED.alt,
    sort_order = EXCLUDED.sort_order`

// ReplaceImages makes the stored pictures of a product equal images:
// duplicates collapse to their first occurrence, vanished URLs are deleted
// and sort_order follows list position.
func (s *PGStore) ReplaceImages(ctx context.Context, productID int64, images []ImageInput) error {
	images = DedupeImages(images)
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.URL
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM product_images WHERE product_id = $1 AND NOT (url = ANY($2))`,
		productID, urls,
	); err != nil {
		return fmt.Errorf("catalog: prune images of %d: %w", productID, translate(err))
	}
	for i, img := range images {
		if _, err := s.db.Exec(ctx, upsertImageSQL, productID, img.URL, img.Alt, i); err != nil {
			return fmt.Errorf("catalog: upsert image %s: %w", img.URL, translate(err))
		}
	}
	return nil
}

// ReplaceVariants swaps the stored attributes of a product for variants.
func (s *PGStore) ReplaceVariants(ctx context.Context, productID int64, variants []VariantInput) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM product_variants WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("catalog: clear variants of %d: %w", productID, translate(err))
	}
	for _, v := range variants {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO product_variants (product_id, name, value) VALUES ($1, $2, $3)`,
			productID, v.Name, v.Value,
		); err != nil {
			return fmt.Errorf("catalog: insert variant %s: %w", v.Name, translate(err))
		}
	}
	return nil
}

// DedupeImages drops repeated URLs, keeping the first occurrence.
func DedupeImages(images []ImageInput) []ImageInput {
	seen := make(map[string]struct{}, len(images))
	out := make([]ImageInput, 0, len(images))
	for _, img := range images {
		if _, ok := seen[img.URL]; ok {
			continue
		}
		seen[img.URL] = struct{}{}
		out = append(out, img)
	}
	return out
}

const statsSQL = `SELECT
    (SELECT COUNT(*) FROM categories),
    (SELECT COUNT(*) FROM products),
    (SELECT COUNT(*) FROM product_images),
    (SELECT COUNT(DISTINCT product_id) FROM product_images)`

// Stats counts catalog rows.
func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(ctx, statsSQL).Scan(&st.Categories, &st.Products, &st.Images, &st.ProductsWithImages); err != nil {
		return Stats{}, fmt.Errorf("catalog: stats: %w", err)
	}
	st.ProductsWithoutImages = st.Products - st.ProductsWithImages
	return st, nil
}

// ============================================================================
// PRODUCT READS
// ============================================================================

const productColumns = `p.id, p.name, p.slug, p.vendor_code, p.category_id,
    p.base_price, p.retail_price, p.available, p.description,
    p.created_at, p.updated_at, c.name, c.slug`

var productSort = map[string]string{
	SortByDate:  "p.created_at",
	SortByPrice: "p.retail_price",
	SortByName:  "p.name",
}

// ListProducts returns one page of products and the total matching count.
func (s *PGStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error) {
	where, args := productWhere(f)

	var total int64
	countSQL := `SELECT COUNT(*) FROM products p` + where
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}

	column, ok := productSort[f.SortBy]
	if !ok {
		column = productSort[SortByDate]
	}
	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + productColumns + `
FROM products p
JOIN categories c ON c.id = p.category_id` + where +
		` ORDER BY ` + column + ` ` + direction + `, p.id ASC` +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: scan products: %w", err)
	}
	if err := s.attachChildren(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func productWhere(f ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Storefront {
		conds = append(conds, `p.available AND EXISTS (SELECT 1 FROM product_images i WHERE i.product_id = p.id)`)
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		conds = append(conds, `p.category_id = $`+strconv.Itoa(len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, `(p.name ILIKE $`+n+` OR p.vendor_code ILIKE $`+n+`)`)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetProduct loads one product with images and variants.
func (s *PGStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.getProduct(ctx, `p.id = $1`, id)
}

// GetProductBySlug loads one product by its slug.
func (s *PGStore) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.getProduct(ctx, `p.slug = $1`, slug)
}

func (s *PGStore) getProduct(ctx context.Context, cond string, arg any) (*Product, error) {
	query := `SELECT ` + productColumns + `
FROM products p
JOIN categories c ON c.id = p.category_id
WHERE ` + cond
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("catalog: get product: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("catalog: get product: %w", translate(err))
	}
	products := []Product{product}
	if err := s.attachChildren(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func scanProduct(row pgx.CollectableRow) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.VendorCode, &p.CategoryID,
		&p.BasePrice, &p.RetailPrice, &p.Available, &p.Description,
		&p.CreatedAt, &p.UpdatedAt, &p.Category.Name, &p.Category.Slug,
	)
	p.Category.ID = p.CategoryID
	p.Images = []Image{}
	p.Variants = []Variant{}
	return p, err
}

// attachChildren loads images and variants for products in two queries.
func (s *PGStore) attachChildren(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := s.db.Query(ctx, `SELECT product_id, id, url, alt, sort_order
FROM product_images
WHERE product_id = ANY($1)
ORDER BY product_id, sort_order, id`, ids)
	if err != nil {
		return fmt.Errorf("catalog: load images: %w", err)
	}
	for rows.Next() {
		var (
			productID int64
			img       Image
		)
		if err := rows.Scan(&productID, &img.ID, &img.URL, &img.Alt, &img.SortOrder); err != nil {
			rows.Close()
			return fmt.Errorf("catalog: scan image: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].Images = append(products[i].Images, img)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("catalog: load images: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT product_id, id, name, value
FROM product_variants
WHERE product_id = ANY($1)
ORDER BY product_id, id`, ids)
	if err != nil {
		return fmt.Errorf("catalog: load variants: %w", err)
	}
	for rows.Next() {
		var (
			productID int64
			v         Variant
		)
		if err := rows.Scan(&productID, &v.ID, &v.Name, &v.Value); err != nil {
			rows.Close()
			return fmt.Errorf("catalog: scan variant: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("catalog: load variants: %w", err)
	}
	return nil
}

// ============================================================================
// PRODUCT WRITES
// ============================================================================

const insertProductSQL = `INSERT INTO products (name, slug, vendor_code, category_id, base_price, retail_price, available, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

// CreateProduct inserts a product with its images and variants.
func (s *PGStore) CreateProduct(ctx context.Context, in ProductInput) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *PGStore) error {
		p := in.Product
		if err := tx.db.QueryRow(ctx, insertProductSQL,
			p.Name, p.Slug, p.VendorCode, p.CategoryID,
			p.BasePrice, p.RetailPrice, p.Available, p.Description,
		).Scan(&id); err != nil {
			return fmt.Errorf("catalog: create product: %w", translate(err))
		}
		return tx.replaceChildren(ctx, id, in)
	})
	return id, err
}

const updateProductSQL = `UPDATE products SET
    name = $2,
    slug = $3,
    vendor_code = $4,
    category_id = $5,
    base_price = $6,
    retail_price = $7,
    available = $8,
    description = $9,
    updated_at = NOW()
WHERE id = $1`

// UpdateProduct overwrites a product. Nil image or variant lists are kept.
func (s *PGStore) UpdateProduct(ctx context.Context, id int64, in ProductInput) error {
	return s.inTx(ctx, func(tx *PGStore) error {
		p := in.Product
		tag, err := tx.db.Exec(ctx, updateProductSQL, id,
			p.Name, p.Slug, p.VendorCode, p.CategoryID,
			p.BasePrice, p.RetailPrice, p.Available, p.Description,
		)
		if err != nil {
			return fmt.Errorf("catalog: update product %d: %w", id, translate(err))
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return tx.replaceChildren(ctx, id, in)
	})
}

func (s *PGStore) replaceChildren(ctx context.Context, id int64, in ProductInput) error {
	if in.Images != nil {
		if err := s.ReplaceImages(ctx, id, in.Images); err != nil {
			return err
		}
	}
	if in.Variants != nil {
		if err := s.ReplaceVariants(ctx, id, in.Variants); err != nil {
			return err
		}
	}
	return nil
}

// DeleteProduct removes a product; images and variants cascade.
func (s *PGStore) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete product %d: %w", id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// CATEGORIES
// ============================================================================

const listCategoriesSQL = `SELECT c.id, c.name, c.slug, c.parent_id, c.created_at, c.updated_at,
    (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id)
FROM categories c
ORDER BY c.name, c.id`

// ListCategories returns all categories with child ids and product counts.
func (s *PGStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	cats, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan categories: %w", err)
	}
	index := make(map[int64]int, len(cats))
	for i := range cats {
		index[cats[i].ID] = i
	}
	for _, c := range cats {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			cats[i].Children = append(cats[i].Children, c.ID)
		}
	}
	return cats, nil
}

// GetCategory loads one category with its direct children.
func (s *PGStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	rows, err := s.db.Query(ctx, `SELECT c.id, c.name, c.slug, c.parent_id, c.created_at, c.updated_at,
    (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id)
FROM categories c
WHERE c.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: get category: %w", err)
	}
	cat, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("catalog: get category %d: %w", id, translate(err))
	}

	rows, err = s.db.Query(ctx, `SELECT id FROM categories WHERE parent_id = $1 ORDER BY name, id`, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: list children: %w", err)
	}
	children, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan children: %w", err)
	}
	cat.Children = children
	return &cat, nil
}

func scanCategory(row pgx.CollectableRow) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.CreatedAt, &c.UpdatedAt, &c.ProductCount)
	c.Children = []int64{}
	return c, err
}

// CreateCategory inserts a category with an id drawn from categories_id_seq,
// which starts above the feed id range.
func (s *PGStore) CreateCategory(ctx context.Context, in CategoryUpsert) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO categories (id, name, slug, parent_id)
VALUES (nextval('categories_id_seq'), $1, $2, $3)
RETURNING id`, in.Name, in.Slug, in.ParentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: create category: %w", translate(err))
	}
	return id, nil
}

// UpdateCategory overwrites name, slug and parent.
func (s *PGStore) UpdateCategory(ctx context.Context, id int64, in CategoryUpsert) error {
	tag, err := s.db.Exec(ctx, `UPDATE categories
SET name = $2, slug = $3, parent_id = $4, updated_at = NOW()
WHERE id = $1`, id, in.Name, in.Slug, in.ParentID)
	if err != nil {
		return fmt.Errorf("catalog: update category %d: %w", id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category. Categories still holding products are
// rejected with ErrInvalidReference; child categories are detached.
func (s *PGStore) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete category %d: %w", id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
