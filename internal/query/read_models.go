package query

import (
	"time"

	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/shopspring/decimal"
)

type CartItemReadModel struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CartReadModel is the cart as shown to its owner. CartID is empty when the
// user has never written to a cart.
type CartReadModel struct {
	CartID    string              `json:"cart_id,omitempty"`
	UserID    string              `json:"user_id"`
	Items     []CartItemReadModel `json:"items"`
	ItemCount int                 `json:"item_count"`
	Total     decimal.Decimal     `json:"total"`
}

type OrderItemReadModel struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderReadModel struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Status    order.Status         `json:"status"`
	Items     []OrderItemReadModel `json:"items"`
	Total     decimal.Decimal      `json:"total"`
	CreatedAt time.Time            `json:"created_at"`
}

func newCartReadModel(cartID, userID string, lines []cart.Line) *CartReadModel {
	cart.SortLines(lines)
	m := &CartReadModel{
		CartID: cartID,
		UserID: userID,
		Items:  make([]CartItemReadModel, 0, len(lines)),
		Total:  cart.Total(lines),
	}
	for _, l := range lines {
		m.Items = append(m.Items, CartItemReadModel{
			ProductID: l.Product.ID,
			Title:     l.Product.Title,
			ImageURL:  l.Product.ImageURL,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		})
		m.ItemCount += l.Quantity
	}
	return m
}

// NewOrderReadModel flattens o for responses.
func NewOrderReadModel(o *order.Order) *OrderReadModel {
	m := &OrderReadModel{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Items:     make([]OrderItemReadModel, 0, len(o.Items)),
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemReadModel{
			ProductID: it.ProductID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}
	return m
}
