package order

import (
	"time"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

type Status string

// StatusPlaced is the only status this service writes; orders are never
// updated after checkout.
const StatusPlaced Status = "placed"

var (
	ErrOrderNotFound = apperr.NotFound("order not found")
	ErrForbidden     = apperr.Forbidden("order belongs to another user")
	ErrTotalTooLarge = apperr.InvalidArgument("order total must be below 10000000000")
)

// Item is the join row between an order and a product. Title and UnitPrice
// are copied from the product at checkout.
type Item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is the unit price times the quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Items     []Item          `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// FromCart snapshots the cart lines into a new order owned by userID. The
// total must fit the orders table.
func FromCart(userID string, lines []cart.Line, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, cart.ErrEmptyCart
	}

	o := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusPlaced,
		Total:     decimal.Zero,
		Items:     make([]Item, 0, len(lines)),
		CreatedAt: now,
	}
	for _, l := range lines {
		item := Item{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			ProductID: l.Product.ID,
			Title:     l.Product.Title,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
		}
		o.Items = append(o.Items, item)
		o.Total = o.Total.Add(item.Subtotal())
	}
	if o.Total.GreaterThanOrEqual(product.MaxAmount) {
		return nil, ErrTotalTooLarge
	}
	return o, nil
}

// VisibleTo reports whether the order may be shown to the given user.
func (o *Order) VisibleTo(userID string, isAdmin bool) bool {
	return isAdmin || o.UserID == userID
}
