// Package orders records customer orders priced from the catalog.
package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var (
	ErrNotFound           = errors.New("orders: not found")
	ErrInvalidStatus      = errors.New("orders: invalid status")
	ErrUnknownProduct     = errors.New("orders: unknown product")
	ErrUnavailableProduct = errors.New("orders: product unavailable")
)

// Order is a placed order with its lines.
type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	Status        Status          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []Item          `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Item is one order line. Price is the unit price captured at order time.
type Item struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSlug string          `json:"product_slug"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// PricedProduct is the catalog data needed to price a line.
type PricedProduct struct {
	ID          int64
	Name        string
	RetailPrice decimal.Decimal
	Available   bool
}
