package query

import (
	"context"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Handler serves reads. It never writes, not even to create a cart.
type Handler struct {
	store store.Queries
}

func NewHandler(s store.Queries) *Handler {
	return &Handler{store: s}
}

// Products
func (h *Handler) GetProduct(ctx context.Context, rawID string) (*product.Product, error) {
	id, err := product.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	p, ok, err := h.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return p, nil
}

func (h *Handler) ListProducts(ctx context.Context) ([]product.Product, error) {
	return h.store.ListProducts(ctx)
}

// Cart

// ViewCart returns the user's cart lines with subtotals and the cart total.
// A user without a cart gets an empty one.
func (h *Handler) ViewCart(ctx context.Context, userID string) (*CartReadModel, error) {
	c, ok, err := h.store.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newCartReadModel("", userID, nil), nil
	}

	lines, err := h.store.ListCartLines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return newCartReadModel(c.ID, userID, lines), nil
}

// Orders

// ListOrders returns the user's orders, newest first.
func (h *Handler) ListOrders(ctx context.Context, userID string) ([]*OrderReadModel, error) {
	orders, err := h.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make([]*OrderReadModel, 0, len(orders))
	for i := range orders {
		result = append(result, NewOrderReadModel(&orders[i]))
	}
	return result, nil
}

// GetOrder returns one order. Only its owner and admins may see it.
func (h *Handler) GetOrder(ctx context.Context, userID string, isAdmin bool, orderID string) (*OrderReadModel, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, order.ErrOrderNotFound
	}
	o, ok, err := h.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	if !o.VisibleTo(userID, isAdmin) {
		return nil, order.ErrForbidden
	}
	return NewOrderReadModel(o), nil
}
