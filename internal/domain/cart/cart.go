package cart

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/product"
)

var (
	// ErrNotFound is returned when the user has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when removing a product that is not in the cart.
	ErrItemNotFound = errors.New("item not in cart")
)

// Cart is the per-user container of pending purchases. It is created lazily
// and never deleted; only its items come and go.
type Cart struct {
	ID        uuid.UUID
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a stored cart line: a product reference and a quantity.
type Item struct {
	ProductID int64
	Quantity  int
}

// Line is a cart line joined with the current product data.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns the current price times quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// View is a cart with its lines as seen right now.
type View struct {
	Cart  Cart
	Lines []Line
}

// Total sums the line subtotals at current prices. The price charged is
// fixed at checkout.
func (v View) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// MaxQuantity is the largest quantity a cart line can hold.
const MaxQuantity = math.MaxInt32

// InvalidQuantityError is returned for a cart quantity outside
// [1, MaxQuantity]. Merged is set when the quantity itself is valid but
// adding it to the existing line would exceed MaxQuantity.
type InvalidQuantityError struct {
	Quantity int
	Merged   bool
}

func (e *InvalidQuantityError) Error() string {
	if e.Merged {
		return fmt.Sprintf("invalid quantity %d: line would exceed %d", e.Quantity, MaxQuantity)
	}
	return fmt.Sprintf("invalid quantity %d: must be between 1 and %d", e.Quantity, MaxQuantity)
}

// Quantity is a validated cart line quantity.
type Quantity int

// NewQuantity validates that n is within [1, MaxQuantity].
func NewQuantity(n int) (Quantity, error) {
	if n < 1 || n > MaxQuantity {
		return 0, &InvalidQuantityError{Quantity: n}
	}
	return Quantity(n), nil
}

// Repository defines the cart store.
type Repository interface {
	// GetOrCreate returns the user's cart, creating it if absent. Concurrent
	// first calls for the same user yield the same cart.
	GetOrCreate(ctx context.Context, userID string) (*Cart, error)
	// LockByUser locks the user's cart row for the enclosing transaction.
	// Returns ErrNotFound if the user has no cart.
	LockByUser(ctx context.Context, userID string) (*Cart, error)
	// AddItem inserts the line or adds quantity to an existing one and
	// returns the resulting quantity.
	AddItem(ctx context.Context, cartID uuid.UUID, productID int64, quantity Quantity) (int, error)
	// RemoveItem deletes the line and reports whether it existed.
	RemoveItem(ctx context.Context, cartID uuid.UUID, productID int64) (bool, error)
	Clear(ctx context.Context, cartID uuid.UUID) error
	// Items returns the stored lines in insertion order.
	Items(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	// Lines returns the lines joined with current product data.
	Lines(ctx context.Context, cartID uuid.UUID) ([]Line, error)
}
