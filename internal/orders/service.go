package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

// Service implements order placement and administration.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the order service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Create prices the requested lines from the catalog and stores the order.
// Repeated product ids are merged into one line.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return nil, err
	}

	quantities := make(map[int64]int, len(req.Items))
	for _, it := range req.Items {
		quantities[it.ProductID] += it.Quantity
	}
	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	order := Order{
		OrderNumber:   s.orderNumber(),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Status:        StatusPending,
		TotalAmount:   decimal.Zero,
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.ProductsForOrder(ctx, ids)
		if err != nil {
			return err
		}
		for _, pid := range ids {
			p, ok := products[pid]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownProduct, pid)
			}
			if !p.Available {
				return fmt.Errorf("%w: %d", ErrUnavailableProduct, pid)
			}
			item := Item{ProductID: pid, ProductName: p.Name, Quantity: quantities[pid], Price: p.RetailPrice}
			order.Items = append(order.Items, item)
			order.TotalAmount = order.TotalAmount.Add(p.RetailPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		id, err = tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := tx.InsertItem(ctx, id, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		slog.Int64("order_id", id),
		slog.String("order_number", order.OrderNumber),
		slog.String("total", order.TotalAmount.StringFixed(2)))
	return s.repo.Get(ctx, id)
}

// orderNumber returns ORD-<yyyymmdd>-<8 hex chars>.
func (s *Service) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", s.now().UTC().Format("20060102"), suffix)
}

// List returns one page of orders, newest first.
func (s *Service) List(ctx context.Context, page, take int) ([]Order, error) {
	if page < 1 {
		page = 1
	}
	if take < 1 || take > 100 {
		take = 50
	}
	return s.repo.List(ctx, take, (page-1)*take)
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves order id to status. Status names are case-insensitive.
func (s *Service) UpdateStatus(ctx context.Context, id int64, req UpdateStatusRequest) (*Order, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return nil, err
	}
	status := Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
