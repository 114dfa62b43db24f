package cart

import (
	"sort"
	"time"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity  = apperr.InvalidArgument("quantity must be positive")
	ErrNegativeQuantity = apperr.InvalidArgument("quantity must not be negative")
	ErrQuantityTooLarge = apperr.InvalidArgument("quantity must be at most 10000")
	ErrEmptyCart        = apperr.InvalidArgument("cart is empty")
)

// MaxQuantity bounds the quantity of a single cart item.
const MaxQuantity = 10000

// Cart belongs to exactly one user and is created on first write.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns a cart for userID with a fresh id.
func New(userID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
	}
}

// Item is the join row between a cart and a product. Quantity is always at
// least 1; a row whose quantity would drop to 0 is deleted instead.
type Item struct {
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Line is a cart item joined with its product.
type Line struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal is the product price times the quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// SortLines orders lines by product title, then product id.
func SortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Product.Title != lines[j].Product.Title {
			return lines[i].Product.Title < lines[j].Product.Title
		}
		return lines[i].Product.ID < lines[j].Product.ID
	})
}

// AddQuantity resolves the optional quantity of an add-to-cart request:
// zero means one.
func AddQuantity(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, ErrInvalidQuantity
	case requested > MaxQuantity:
		return 0, ErrQuantityTooLarge
	case requested == 0:
		return 1, nil
	default:
		return requested, nil
	}
}

// ValidateSetQuantity checks an absolute quantity. Zero is allowed and means
// removal.
func ValidateSetQuantity(q int) error {
	if q < 0 {
		return ErrNegativeQuantity
	}
	if q > MaxQuantity {
		return ErrQuantityTooLarge
	}
	return nil
}

// Increase returns current+delta, or ErrQuantityTooLarge when the sum would
// exceed MaxQuantity.
func Increase(current, delta int) (int, error) {
	if delta > MaxQuantity-current {
		return 0, ErrQuantityTooLarge
	}
	return current + delta, nil
}
