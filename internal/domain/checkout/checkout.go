// Package checkout converts a user's cart into a paid order while
// decrementing inventory, all inside one store transaction.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/event"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

var (
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLockTimeout is returned when the transaction gave up waiting for
	// row locks held by other checkouts. The caller may resubmit.
	ErrLockTimeout = errors.New("timed out waiting for inventory locks")
)

// MissingProductError is returned when a cart line references a product
// that no longer exists.
type MissingProductError struct {
	ProductID int64
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("product %d no longer exists", e.ProductID)
}

// State is a checkout attempt's state. StateValidating is the only
// intermediate one; Outcome never returns it.
type State string

const (
	StateEmptyCart                 State = "EMPTY_CART"
	StateValidating                State = "VALIDATING"
	StateCommitted                 State = "COMMITTED"
	StateRejectedInsufficientStock State = "REJECTED_INSUFFICIENT_STOCK"
	StateRejectedMissingProduct    State = "REJECTED_MISSING_PRODUCT"
	// StateFailed covers storage and transaction errors.
	StateFailed State = "FAILED"
)

// Outcome classifies the result of a checkout call.
func Outcome(err error) State {
	var (
		stockErr   *product.InsufficientStockError
		missingErr *MissingProductError
	)
	switch {
	case err == nil:
		return StateCommitted
	case errors.Is(err, ErrEmptyCart):
		return StateEmptyCart
	case errors.As(err, &stockErr):
		return StateRejectedInsufficientStock
	case errors.As(err, &missingErr):
		return StateRejectedMissingProduct
	default:
		return StateFailed
	}
}

// Stores are the repositories bound to one transaction.
type Stores struct {
	Carts    cart.Repository
	Products product.Repository
	Orders   order.Repository
	Events   event.Repository
}

// UnitOfWork runs fn inside a single atomic transaction. The transaction
// commits if fn returns nil and rolls back otherwise, on every exit path.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
