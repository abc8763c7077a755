package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
}

// ParseStatus converts s into a known Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusShipped, StatusCancelled:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an order may move from one status to another.
// SHIPPED and CANCELLED are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a status change the lifecycle forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Order is a completed purchase. Items and Total are fixed at creation;
// only Status changes afterwards.
type Order struct {
	ID        uuid.UUID
	UserID    string
	Items     []Item
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
}

// Item is a snapshot of a purchased product taken at checkout. Price is the
// unit price rendered with two decimals.
type Item struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

// NewItem snapshots a product line.
func NewItem(productID int64, name string, price decimal.Decimal, quantity int) Item {
	return Item{
		ProductID: productID,
		Name:      name,
		Price:     price.StringFixed(2),
		Quantity:  quantity,
	}
}

// Subtotal returns unit price times quantity.
func (i Item) Subtotal() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(i.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price of product %d", i.ProductID)
	}
	return price.Mul(decimal.NewFromInt(int64(i.Quantity))), nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// List returns every order, newest first.
	List(ctx context.Context) ([]Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus sets status to `to` only if it currently equals `from`.
	// Returns ErrNotFound when no row matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Order, error)
}
