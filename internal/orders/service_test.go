package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	products map[int64]PricedProduct
	orders   map[int64]*Order
	nextID   int64

	txError     error
	insertError error
	lastList    [2]int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		products: map[int64]PricedProduct{
			1: {ID: 1, Name: "Door A", RetailPrice: decimal.RequireFromString("150.50"), Available: true},
			2: {ID: 2, Name: "Handle", RetailPrice: decimal.NewFromInt(20), Available: true},
			3: {ID: 3, Name: "Retired", RetailPrice: decimal.NewFromInt(5), Available: false},
		},
		orders: map[int64]*Order{},
	}
}

type mockTxRepo struct {
	mock   *mockRepository
	staged map[int64]*Order
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	tx := &mockTxRepo{mock: m, staged: map[int64]*Order{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, o := range tx.staged {
		m.orders[id] = o
	}
	return nil
}

func (t *mockTxRepo) ProductsForOrder(ctx context.Context, ids []int64) (map[int64]PricedProduct, error) {
	out := map[int64]PricedProduct{}
	for _, id := range ids {
		if p, ok := t.mock.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *mockTxRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	if t.mock.insertError != nil {
		return 0, t.mock.insertError
	}
	t.mock.nextID++
	o.ID = t.mock.nextID
	o.Items = nil
	t.staged[o.ID] = &o
	return o.ID, nil
}

func (t *mockTxRepo) InsertItem(ctx context.Context, orderID int64, item Item) error {
	o := t.staged[orderID]
	o.Items = append(o.Items, item)
	return nil
}

func (m *mockRepository) List(ctx context.Context, limit, offset int) ([]Order, error) {
	m.lastList = [2]int{limit, offset}
	out := []Order{}
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerName:  " Ivan ",
		CustomerEmail: "ivan@example.com",
		CustomerPhone: "+7 900 000-00-00",
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
			{ProductID: 1, Quantity: 1},
		},
	}
}

func newTestService(repo Repository) *Service {
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC) }
	return svc
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreatePricesFromCatalog(t *testing.T) {
	repo := newMockRepository()
	order, err := newTestService(repo).Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20240501-[0-9A-F]{8}$`), order.OrderNumber)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, "Ivan", order.CustomerName)
	require.Len(t, order.Items, 2, "repeated products merge")
	assert.Equal(t, int64(1), order.Items[0].ProductID)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("150.50").Equal(order.Items[0].Price))
	// 3 × 150.50 + 1 × 20
	assert.True(t, decimal.RequireFromString("471.50").Equal(order.TotalAmount), order.TotalAmount.String())
}

func TestCreateRejectsUnknownAndUnavailableProducts(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	req := validRequest()
	req.Items = append(req.Items, ItemRequest{ProductID: 99, Quantity: 1})
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrUnknownProduct)

	req = validRequest()
	req.Items = []ItemRequest{{ProductID: 3, Quantity: 1}}
	_, err = svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrUnavailableProduct)

	assert.Empty(t, repo.orders, "nothing committed")
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMockRepository())

	cases := map[string]func(*CreateOrderRequest){
		"no items":     func(r *CreateOrderRequest) { r.Items = nil },
		"bad email":    func(r *CreateOrderRequest) { r.CustomerEmail = "nope" },
		"zero qty":     func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"missing name": func(r *CreateOrderRequest) { r.CustomerName = "" },
		"bad product":  func(r *CreateOrderRequest) { r.Items[0].ProductID = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Create(context.Background(), req)
			var verr *httpx.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreatePropagatesStoreErrors(t *testing.T) {
	repo := newMockRepository()
	repo.insertError = errors.New("insert failed")
	_, err := newTestService(repo).Create(context.Background(), validRequest())
	require.ErrorContains(t, err, "insert failed")
	assert.Empty(t, repo.orders)
}

func TestUpdateStatus(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	order, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, UpdateStatusRequest{Status: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), order.ID, UpdateStatusRequest{Status: "LOST"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(context.Background(), 999, UpdateStatusRequest{Status: "CANCELLED"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPaging(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.List(context.Background(), 3, 20)
	require.NoError(t, err)
	assert.Equal(t, [2]int{20, 40}, repo.lastList)

	_, err = svc.List(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, [2]int{50, 0}, repo.lastList)
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("pending").Valid())
	assert.False(t, Status("").Valid())
}
