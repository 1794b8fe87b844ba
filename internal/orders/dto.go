package orders

// CreateOrderRequest is the public checkout payload. Prices are never taken
// from the client.
type CreateOrderRequest struct {
	CustomerName  string        `json:"customer_name" validate:"required,max=255"`
	CustomerEmail string        `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone string        `json:"customer_phone" validate:"required,max=50"`
	Items         []ItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// UpdateStatusRequest changes an order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
