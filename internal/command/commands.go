package command

import "github.com/shopspring/decimal"

// Product Commands
type CreateProduct struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
}

// Cart Commands

// AddToCart adds Quantity units of a product. Zero means one.
type AddToCart struct {
	UserID    string `json:"-"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type RemoveFromCart struct {
	UserID    string `json:"-"`
	ProductID string `json:"product_id"`
}

// SetCartItemQuantity sets an absolute quantity. Zero removes the item.
type SetCartItemQuantity struct {
	UserID    string `json:"-"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Order Commands
type Checkout struct {
	UserID string `json:"-"`
}
