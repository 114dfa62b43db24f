package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/metrics"
)

var ErrMissingUser = apperr.Unauthenticated("user is required")

// Handler executes the write side of the shop. Every cart mutation and the
// checkout run in a store transaction.
type Handler struct {
	store   store.Store
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewHandler(s store.Store, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		store:   s,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct adds a product to the catalog and records a ProductCreated
// event with it.
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	p, err := product.New(cmd.Title, cmd.Description, cmd.ImageURL, cmd.Price, h.now())
	if err != nil {
		return nil, err
	}
	evt, err := store.NewEvent(p.ID, product.AggregateType, product.EventProductCreated, product.CreatedEvent(p), p.CreatedAt)
	if err != nil {
		return nil, err
	}
	err = h.store.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateProduct(ctx, p); err != nil {
			return err
		}
		return q.AppendEvent(ctx, evt)
	})
	if err != nil {
		return nil, err
	}

	h.log.InfoContext(ctx, "product created", "product_id", p.ID, "title", p.Title)
	return p, nil
}

// AddToCart adds an item to the user's cart, creating the cart on first use,
// and returns the resulting quantity.
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (int, error) {
	quantity, err := h.addToCart(ctx, cmd)
	h.metrics.CartOperation("add", err)
	return quantity, err
}

func (h *Handler) addToCart(ctx context.Context, cmd AddToCart) (int, error) {
	if cmd.UserID == "" {
		return 0, ErrMissingUser
	}
	productID, err := product.ParseID(cmd.ProductID)
	if err != nil {
		return 0, err
	}
	delta, err := cart.AddQuantity(cmd.Quantity)
	if err != nil {
		return 0, err
	}

	var quantity int
	err = h.store.InTx(ctx, func(q store.Queries) error {
		now := h.now()
		c, err := q.GetOrCreateCart(ctx, cmd.UserID, now)
		if err != nil {
			return err
		}

		item, inCart, err := q.GetCartItem(ctx, c.ID, productID)
		if err != nil {
			return err
		}
		if inCart {
			if _, err := cart.Increase(item.Quantity, delta); err != nil {
				return err
			}
		} else {
			if _, ok, err := q.GetProduct(ctx, productID); err != nil {
				return err
			} else if !ok {
				return product.ErrProductNotFound
			}
		}

		quantity, err = q.AddCartItem(ctx, c.ID, productID, delta, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// RemoveFromCart deletes an item from the user's cart. Removing something
// that is not in the cart succeeds without changes.
func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) error {
	err := h.removeFromCart(ctx, cmd.UserID, cmd.ProductID)
	h.metrics.CartOperation("remove", err)
	return err
}

func (h *Handler) removeFromCart(ctx context.Context, userID, rawProductID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	productID, err := product.ParseID(rawProductID)
	if err != nil {
		return err
	}

	c, ok, err := h.store.GetCartByUser(ctx, userID)
	if err != nil || !ok {
		return err
	}
	removed, err := h.store.DeleteCartItem(ctx, c.ID, productID)
	if err != nil {
		return err
	}
	if !removed {
		h.log.DebugContext(ctx, "remove from cart: item not in cart", "cart_id", c.ID, "product_id", productID)
	}
	return nil
}

// SetCartItemQuantity overwrites the quantity of an item, adding it when it
// is missing. Quantity zero behaves like RemoveFromCart.
func (h *Handler) SetCartItemQuantity(ctx context.Context, cmd SetCartItemQuantity) error {
	err := h.setCartItemQuantity(ctx, cmd)
	h.metrics.CartOperation("set", err)
	return err
}

func (h *Handler) setCartItemQuantity(ctx context.Context, cmd SetCartItemQuantity) error {
	if err := cart.ValidateSetQuantity(cmd.Quantity); err != nil {
		return err
	}
	if cmd.Quantity == 0 {
		return h.removeFromCart(ctx, cmd.UserID, cmd.ProductID)
	}
	if cmd.UserID == "" {
		return ErrMissingUser
	}
	productID, err := product.ParseID(cmd.ProductID)
	if err != nil {
		return err
	}

	return h.store.InTx(ctx, func(q store.Queries) error {
		if _, ok, err := q.GetProduct(ctx, productID); err != nil {
			return err
		} else if !ok {
			return product.ErrProductNotFound
		}

		now := h.now()
		c, err := q.GetOrCreateCart(ctx, cmd.UserID, now)
		if err != nil {
			return err
		}
		return q.SetCartItem(ctx, c.ID, productID, cmd.Quantity, now)
	})
}

// Checkout turns the user's cart into an order. The order, its items, the
// OrderPlaced outbox event and the emptied cart are committed together or
// not at all.
func (h *Handler) Checkout(ctx context.Context, cmd Checkout) (*order.Order, error) {
	o, err := h.checkout(ctx, cmd.UserID)
	h.metrics.Checkout(err)
	if err != nil {
		return nil, err
	}

	h.log.InfoContext(ctx, "order placed",
		"order_id", o.ID,
		"user_id", o.UserID,
		"items", len(o.Items),
		"total", o.Total.StringFixed(2),
	)
	return o, nil
}

func (h *Handler) checkout(ctx context.Context, userID string) (*order.Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	var placed *order.Order
	err := h.store.InTx(ctx, func(q store.Queries) error {
		placed = nil

		c, ok, err := q.GetCartByUser(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return cart.ErrEmptyCart
		}
		// Concurrent checkouts of the same cart queue up here; the loser
		// then sees the cleared cart.
		if err := q.LockCart(ctx, c.ID); err != nil {
			return err
		}

		// Locking the item rows keeps a concurrent AddToCart from changing a
		// quantity between this read and ClearCart.
		lines, err := q.LockCartLines(ctx, c.ID)
		if err != nil {
			return err
		}
		o, err := order.FromCart(userID, lines, h.now())
		if err != nil {
			return err
		}

		if err := q.CreateOrder(ctx, o); err != nil {
			return err
		}
		for _, item := range o.Items {
			if err := q.InsertOrderItem(ctx, item); err != nil {
				return err
			}
		}

		evt, err := store.NewEvent(o.ID, order.AggregateType, order.EventOrderPlaced, order.PlacedEvent(o), o.CreatedAt)
		if err != nil {
			return err
		}
		if err := q.AppendEvent(ctx, evt); err != nil {
			return err
		}

		if _, err := q.ClearCart(ctx, c.ID); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}
