package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/google/uuid"
)

// Event is a domain event waiting in the outbox.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent encodes data and returns an outbox event with a fresh id.
func NewEvent(aggregateID, aggregateType, eventType string, data any, now time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     now,
	}, nil
}

// Queries are the statements available both inside and outside a
// transaction. Lookups return ok=false instead of an error when the row does
// not exist. Every other failure is marked apperr.ErrPersistence.
type Queries interface {
	CreateProduct(ctx context.Context, p *product.Product) error
	GetProduct(ctx context.Context, id string) (*product.Product, bool, error)
	ListProducts(ctx context.Context) ([]product.Product, error)

	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, bool, error)

	GetCartByUser(ctx context.Context, userID string) (*cart.Cart, bool, error)
	// GetOrCreateCart returns user.ErrAccountGone when the user row does not
	// exist.
	GetOrCreateCart(ctx context.Context, userID string, now time.Time) (*cart.Cart, error)
	// LockCart blocks until no other transaction holds the cart row.
	LockCart(ctx context.Context, cartID string) error
	GetCartItem(ctx context.Context, cartID, productID string) (*cart.Item, bool, error)
	// AddCartItem creates the item with quantity delta or increments an
	// existing one in a single statement, returning the new quantity. A sum
	// above cart.MaxQuantity fails with cart.ErrQuantityTooLarge.
	AddCartItem(ctx context.Context, cartID, productID string, delta int, now time.Time) (int, error)
	// SetCartItem creates or overwrites the item with quantity (> 0).
	SetCartItem(ctx context.Context, cartID, productID string, quantity int, now time.Time) error
	DeleteCartItem(ctx context.Context, cartID, productID string) (bool, error)
	ListCartLines(ctx context.Context, cartID string) ([]cart.Line, error)
	// LockCartLines is ListCartLines that also locks the item rows until the
	// transaction ends.
	LockCartLines(ctx context.Context, cartID string) ([]cart.Line, error)
	ClearCart(ctx context.Context, cartID string) (int, error)

	// CreateOrder inserts the order row only; items go through InsertOrderItem.
	CreateOrder(ctx context.Context, o *order.Order) error
	InsertOrderItem(ctx context.Context, item order.Item) error
	GetOrder(ctx context.Context, id string) (*order.Order, bool, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error)

	AppendEvent(ctx context.Context, e Event) error
	ListPendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error
}

// Store is the persistence boundary of the shop.
type Store interface {
	Queries
	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn may be invoked more than once
	// when the database asks for a retry.
	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
