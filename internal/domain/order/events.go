package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type PlacedItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderPlaced struct {
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Items    []PlacedItem    `json:"items"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placed_at"`
}

// PlacedEvent builds the OrderPlaced payload for o.
func PlacedEvent(o *Order) OrderPlaced {
	items := make([]PlacedItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = PlacedItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return OrderPlaced{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Items:    items,
		Total:    o.Total,
		PlacedAt: o.CreatedAt,
	}
}
