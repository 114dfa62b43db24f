package product

import (
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = apperr.NotFound("product not found")
	ErrInvalidID       = apperr.InvalidArgument("product_id must be a valid UUID")
	ErrInvalidTitle    = apperr.InvalidArgument("title is required")
	ErrInvalidPrice    = apperr.InvalidArgument("price must not be negative")
	ErrPriceTooLarge   = apperr.InvalidArgument("price must be below 10000000000")
	ErrPricePrecision  = apperr.InvalidArgument("price must have at most 2 decimal places")
)

// Product is a catalog item. The cart/order workflow never mutates it.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MaxAmount is the first value a NUMERIC(12,2) column cannot hold. Prices
// and order totals stay below it.
var MaxAmount = decimal.New(1, 10)

// New validates the fields and returns a product with a fresh id.
func New(title, description, imageURL string, price decimal.Decimal, now time.Time) (*Product, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if price.GreaterThanOrEqual(MaxAmount) {
		return nil, ErrPriceTooLarge
	}
	if !price.Equal(price.Round(2)) {
		return nil, ErrPricePrecision
	}

	return &Product{
		ID:          uuid.New().String(),
		Title:       title,
		Price:       price,
		Description: strings.TrimSpace(description),
		ImageURL:    strings.TrimSpace(imageURL),
		CreatedAt:   now,
	}, nil
}

// ParseID normalizes a product id given as a path or body value.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidID
	}
	return id.String(), nil
}
