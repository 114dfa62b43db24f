package product

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateType = "Product"

	EventProductCreated = "ProductCreated"
)

type ProductCreated struct {
	ProductID   string          `json:"product_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreatedEvent builds the ProductCreated payload for p.
func CreatedEvent(p *Product) ProductCreated {
	return ProductCreated{
		ProductID:   p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
	}
}
