package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/infrastructure/store/mocks"
	"github.com/example/ec-shop/internal/logger"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testUserID = "7d4f4a43-3f4e-4b1e-9c55-2b1c7f6f0a01"

func newTestHandler(t *testing.T) (*Handler, *mocks.MockStore) {
	t.Helper()
	s := mocks.NewMockStore()
	require.NoError(t, s.CreateUser(context.Background(), &user.User{
		ID:        testUserID,
		Email:     "buyer@example.com",
		Name:      "Buyer",
		Role:      user.RoleCustomer,
		CreatedAt: time.Now(),
	}))
	return NewHandler(s, nil, logger.Discard()), s
}

func seedProduct(t *testing.T, s *mocks.MockStore, title, price string) *product.Product {
	t.Helper()
	p, err := product.New(title, "", "", decimal.RequireFromString(price), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func cartLines(t *testing.T, s *mocks.MockStore, userID string) []cart.Line {
	t.Helper()
	c, ok, err := s.GetCartByUser(context.Background(), userID)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	lines, err := s.ListCartLines(context.Background(), c.ID)
	require.NoError(t, err)
	return lines
}

// ============================================
// Create Product Tests
// ============================================

func TestHandler_CreateProduct_Success(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()

	p, err := handler.CreateProduct(ctx, CreateProduct{
		Title:       "Test Product",
		Description: "A test product",
		Price:       decimal.RequireFromString("10.00"),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Test Product", p.Title)

	got, ok, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(10)))

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, product.EventProductCreated, events[0].EventType)
	var created product.ProductCreated
	require.NoError(t, json.Unmarshal(events[0].Data, &created))
	assert.Equal(t, p.ID, created.ProductID)
	assert.True(t, created.Price.Equal(p.Price))
}

func TestHandler_CreateProduct_EventFailureRollsBack(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	s.FailOn("AppendEvent", errors.New("disk full"))

	p, err := handler.CreateProduct(ctx, CreateProduct{Title: "Mug", Price: decimal.NewFromInt(5)})

	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Nil(t, p)
	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestHandler_CreateProduct_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CreateProduct
		wantErr error
	}{
		{"empty title", CreateProduct{Title: " ", Price: decimal.NewFromInt(1)}, product.ErrInvalidTitle},
		{"negative price", CreateProduct{Title: "Mug", Price: decimal.NewFromInt(-1)}, product.ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, s := newTestHandler(t)

			p, err := handler.CreateProduct(context.Background(), tt.cmd)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
			assert.Nil(t, p)
			assert.Zero(t, s.CallCount("CreateProduct"))
		})
	}
}

// ============================================
// Add To Cart Tests
// ============================================

func TestHandler_AddToCart_Success(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "12.50")

	quantity, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: p.ID})

	require.NoError(t, err)
	assert.Equal(t, 1, quantity)
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, p.ID, lines[0].Product.ID)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestHandler_AddToCart_Twice_IncrementsSingleItem(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "12.50")
	ctx := context.Background()

	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
	require.NoError(t, err)
	quantity, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
	require.NoError(t, err)

	assert.Equal(t, 2, quantity)
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestHandler_AddToCart_WithQuantity(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "12.50")

	quantity, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: p.ID, Quantity: 3})

	require.NoError(t, err)
	assert.Equal(t, 3, quantity)
}

func TestHandler_AddToCart_ProductNotFound(t *testing.T) {
	handler, s := newTestHandler(t)

	_, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: uuid.New().String()})

	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, ok, _ := s.GetCartByUser(context.Background(), testUserID)
	assert.False(t, ok, "failed add must not leave a cart behind")
}

func TestHandler_AddToCart_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cmd     AddToCart
		wantErr error
	}{
		{"invalid product id", AddToCart{UserID: testUserID, ProductID: "42"}, product.ErrInvalidID},
		{"negative quantity", AddToCart{UserID: testUserID, ProductID: uuid.New().String(), Quantity: -1}, cart.ErrInvalidQuantity},
		{"missing user", AddToCart{ProductID: uuid.New().String()}, ErrMissingUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, s := newTestHandler(t)

			_, err := handler.AddToCart(context.Background(), tt.cmd)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, s.CallCount("InTx"))
		})
	}
}

func TestHandler_AddToCart_StoreFailure(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "12.50")
	s.FailOn("AddCartItem", errors.New("connection reset"))

	_, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: p.ID})

	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, cartLines(t, s, testUserID))
}

func TestHandler_AddToCart_Concurrent(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "12.50")

	const n = 25
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
			return err
		})
	}
	require.NoError(t, g.Wait())

	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, n, lines[0].Quantity)
}

func TestHandler_AddToCart_QuantityLimit(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "12.50")

	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID, Quantity: 3_000_000_000})
	assert.ErrorIs(t, err, cart.ErrQuantityTooLarge)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Zero(t, s.CallCount("InTx"))

	quantity, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID, Quantity: cart.MaxQuantity})
	require.NoError(t, err)
	require.Equal(t, cart.MaxQuantity, quantity)

	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
	assert.ErrorIs(t, err, cart.ErrQuantityTooLarge)
	assert.Equal(t, 1, s.CallCount("AddCartItem"))

	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, cart.MaxQuantity, lines[0].Quantity)
}

func TestHandler_AddToCart_UnknownUser(t *testing.T) {
	s := mocks.NewMockStore()
	handler := NewHandler(s, nil, logger.Discard())
	p := seedProduct(t, s, "Mug", "12.50")

	_, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: p.ID})

	assert.ErrorIs(t, err, user.ErrAccountGone)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, ok, _ := s.GetCartByUser(context.Background(), testUserID)
	assert.False(t, ok)
}

// ============================================
// Remove From Cart Tests
// ============================================

func TestHandler_RemoveFromCart_Success(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	a := seedProduct(t, s, "Alpha", "1.00")
	b := seedProduct(t, s, "Beta", "2.00")
	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: a.ID})
	require.NoError(t, err)
	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: b.ID})
	require.NoError(t, err)

	err = handler.RemoveFromCart(ctx, RemoveFromCart{UserID: testUserID, ProductID: a.ID})

	require.NoError(t, err)
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, b.ID, lines[0].Product.ID)
}

func TestHandler_RemoveFromCart_NotInCart(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	a := seedProduct(t, s, "Alpha", "1.00")
	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)

	err = handler.RemoveFromCart(ctx, RemoveFromCart{UserID: testUserID, ProductID: uuid.New().String()})

	require.NoError(t, err)
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestHandler_RemoveFromCart_NoCart(t *testing.T) {
	handler, s := newTestHandler(t)

	err := handler.RemoveFromCart(context.Background(), RemoveFromCart{UserID: testUserID, ProductID: uuid.New().String()})

	require.NoError(t, err)
	_, ok, _ := s.GetCartByUser(context.Background(), testUserID)
	assert.False(t, ok)
}

func TestHandler_RemoveFromCart_InvalidID(t *testing.T) {
	handler, _ := newTestHandler(t)

	err := handler.RemoveFromCart(context.Background(), RemoveFromCart{UserID: testUserID, ProductID: "nope"})

	assert.ErrorIs(t, err, product.ErrInvalidID)
}

// ============================================
// Set Cart Item Quantity Tests
// ============================================

func TestHandler_SetCartItemQuantity(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "12.50")

	require.NoError(t, handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: p.ID, Quantity: 5}))
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)

	require.NoError(t, handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: p.ID, Quantity: 2}))
	lines = cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)

	require.NoError(t, handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: p.ID, Quantity: 0}))
	assert.Empty(t, cartLines(t, s, testUserID))
}

func TestHandler_SetCartItemQuantity_Invalid(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()

	err := handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: uuid.New().String(), Quantity: -2})
	assert.ErrorIs(t, err, cart.ErrNegativeQuantity)

	err = handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: uuid.New().String(), Quantity: cart.MaxQuantity + 1})
	assert.ErrorIs(t, err, cart.ErrQuantityTooLarge)

	err = handler.SetCartItemQuantity(ctx, SetCartItemQuantity{UserID: testUserID, ProductID: uuid.New().String(), Quantity: 1})
	assert.ErrorIs(t, err, product.ErrProductNotFound)

	_, ok, _ := s.GetCartByUser(ctx, testUserID)
	assert.False(t, ok)
}

// ============================================
// Checkout Tests
// ============================================

func TestHandler_Checkout_Success(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	a := seedProduct(t, s, "Alpha", "3.00")
	b := seedProduct(t, s, "Beta", "4.25")
	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: b.ID})
	require.NoError(t, err)

	o, err := handler.Checkout(ctx, Checkout{UserID: testUserID})

	require.NoError(t, err)
	assert.Equal(t, testUserID, o.UserID)
	assert.Equal(t, order.StatusPlaced, o.Status)
	assert.True(t, decimal.RequireFromString("10.25").Equal(o.Total))
	quantities := map[string]int{}
	for _, it := range o.Items {
		quantities[it.ProductID] = it.Quantity
	}
	assert.Equal(t, map[string]int{a.ID: 2, b.ID: 1}, quantities)

	assert.Empty(t, cartLines(t, s, testUserID))
	assert.Equal(t, 1, s.CallCount("LockCartLines"))

	orders, err := s.ListOrdersByUser(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Len(t, orders[0].Items, 2)

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, order.EventOrderPlaced, events[0].EventType)
	assert.Equal(t, o.ID, events[0].AggregateID)
	var placed order.OrderPlaced
	require.NoError(t, json.Unmarshal(events[0].Data, &placed))
	assert.Equal(t, o.ID, placed.OrderID)
	assert.Len(t, placed.Items, 2)
}

func TestHandler_Checkout_EmptyCart(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "1.00")

	// No cart at all.
	_, err := handler.Checkout(ctx, Checkout{UserID: testUserID})
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	// A cart that was emptied.
	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
	require.NoError(t, err)
	require.NoError(t, handler.RemoveFromCart(ctx, RemoveFromCart{UserID: testUserID, ProductID: p.ID}))

	o, err := handler.Checkout(ctx, Checkout{UserID: testUserID})
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Nil(t, o)

	orders, err := s.ListOrdersByUser(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, s.Events())
}

func TestHandler_Checkout_FailureLeavesCartUnchanged(t *testing.T) {
	for _, method := range []string{"LockCartLines", "CreateOrder", "InsertOrderItem", "AppendEvent", "ClearCart", "Commit"} {
		t.Run(method, func(t *testing.T) {
			handler, s := newTestHandler(t)
			ctx := context.Background()
			a := seedProduct(t, s, "Alpha", "3.00")
			b := seedProduct(t, s, "Beta", "4.25")
			_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: a.ID, Quantity: 2})
			require.NoError(t, err)
			_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: b.ID})
			require.NoError(t, err)
			before := cartLines(t, s, testUserID)

			s.FailOn(method, errors.New("disk full"))
			o, err := handler.Checkout(ctx, Checkout{UserID: testUserID})
			s.ClearFailures()

			assert.ErrorIs(t, err, apperr.ErrPersistence)
			assert.Nil(t, o)
			assert.Equal(t, before, cartLines(t, s, testUserID))
			orders, err := s.ListOrdersByUser(ctx, testUserID)
			require.NoError(t, err)
			assert.Empty(t, orders)
			assert.Empty(t, s.Events())
		})
	}
}

func TestHandler_Checkout_TotalTooLarge(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	p := seedProduct(t, s, "Yacht", "9999999999.99")
	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	o, err := handler.Checkout(ctx, Checkout{UserID: testUserID})

	assert.ErrorIs(t, err, order.ErrTotalTooLarge)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Nil(t, o)
	lines := cartLines(t, s, testUserID)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Zero(t, s.CallCount("CreateOrder"))
	assert.Empty(t, s.Events())
}

func TestHandler_Checkout_SnapshotsPrices(t *testing.T) {
	handler, s := newTestHandler(t)
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "5.00")
	_, err := handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	o, err := handler.Checkout(ctx, Checkout{UserID: testUserID})
	require.NoError(t, err)

	// Re-add the product at a new price; the past order must not change.
	repriced := *p
	repriced.ID = uuid.New().String()
	repriced.Price = decimal.NewFromInt(99)
	require.NoError(t, s.CreateProduct(ctx, &repriced))
	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: repriced.ID})
	require.NoError(t, err)

	got, ok, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Total))
	require.Len(t, got.Items, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(got.Items[0].UnitPrice))
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestHandler_Checkout_ConcurrentSingleOrder(t *testing.T) {
	handler, s := newTestHandler(t)
	p := seedProduct(t, s, "Mug", "5.00")
	_, err := handler.AddToCart(context.Background(), AddToCart{UserID: testUserID, ProductID: p.ID})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = handler.Checkout(context.Background(), Checkout{UserID: testUserID})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, cart.ErrEmptyCart)
	}
	assert.Equal(t, 1, succeeded)
	orders, err := s.ListOrdersByUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestHandler_Checkout_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	handler, s := newTestHandler(t)
	handler.metrics = metrics.New(reg)
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "5.00")

	_, err := handler.Checkout(ctx, Checkout{UserID: testUserID})
	require.Error(t, err)
	_, err = handler.AddToCart(ctx, AddToCart{UserID: testUserID, ProductID: p.ID})
	require.NoError(t, err)
	_, err = handler.Checkout(ctx, Checkout{UserID: testUserID})
	require.NoError(t, err)

	expected := `
# HELP ecshop_checkouts_total Checkout attempts by result.
# TYPE ecshop_checkouts_total counter
ecshop_checkouts_total{result="invalid_argument"} 1
ecshop_checkouts_total{result="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ecshop_checkouts_total"))
}
