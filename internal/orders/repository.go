package orders

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/storefront/internal/platform/db"
)

// Repository provides order persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, limit, offset int) ([]Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ProductsForOrder(ctx context.Context, ids []int64) (map[int64]PricedProduct, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertItem(ctx context.Context, orderID int64, item Item) error
}

// PGRepository is the PostgreSQL Repository.
type PGRepository struct {
	db   db.DBTX
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{db: pool, pool: pool}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx, pool: r.pool})
	})
}

// ProductsForOrder loads and share-locks the products referenced by an order.
func (r *PGRepository) ProductsForOrder(ctx context.Context, ids []int64) (map[int64]PricedProduct, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, retail_price, available
FROM products
WHERE id = ANY($1)
FOR SHARE`, ids)
	if err != nil {
		return nil, fmt.Errorf("orders: load products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PricedProduct, error) {
		var p PricedProduct
		err := row.Scan(&p.ID, &p.Name, &p.RetailPrice, &p.Available)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("orders: scan products: %w", err)
	}
	out := make(map[int64]PricedProduct, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// InsertOrder stores the order header.
func (r *PGRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO orders (order_number, customer_name, customer_email, customer_phone, status, total_amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		o.OrderNumber, o.CustomerName, o.CustomerEmail, o.CustomerPhone, string(o.Status), o.TotalAmount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

// InsertItem stores one order line.
func (r *PGRepository) InsertItem(ctx context.Context, orderID int64, item Item) error {
	if _, err := r.db.Exec(ctx, `INSERT INTO order_items (order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4)`, orderID, item.ProductID, item.Quantity, item.Price); err != nil {
		return fmt.Errorf("orders: insert item: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone,
    status, total_amount, created_at, updated_at`

// List returns orders newest first with their lines.
func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+`
FROM orders
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("orders: scan: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Get loads one order with its lines.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("orders: get: %w", err)
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("orders: get: %w", err)
	}
	orders := []Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateStatus sets the status of order id.
func (r *PGRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	o.Items = []Item{}
	return o, err
}

func (r *PGRepository) attachItems(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err := r.db.Query(ctx, `SELECT i.order_id, i.id, i.product_id, p.name, p.slug, i.quantity, i.price
FROM order_items i
JOIN products p ON p.id = i.product_id
WHERE i.order_id = ANY($1)
ORDER BY i.order_id, i.id`, ids)
	if err != nil {
		return fmt.Errorf("orders: load items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			it      Item
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &it.ProductSlug, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("orders: scan item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("orders: load items: %w", err)
	}
	return nil
}
