package product

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxNameLength bounds the product name, matching the catalog column width.
const MaxNameLength = 200

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CreatedAt   time.Time
}

// InvalidError describes a product field that failed validation.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// InsufficientStockError indicates that a product cannot cover the requested
// quantity.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// New builds a validated product. The ID and creation time are assigned by
// the catalog store.
func New(name, description string, price decimal.Decimal, stock int) (Product, error) {
	p := Product{
		Name:        strings.TrimSpace(name),
		Description: description,
		Price:       price,
		Stock:       stock,
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Validate reports the first field that cannot be stored. Stock must not be
// negative and the price must fit NUMERIC(10,2).
func (p Product) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := ValidatePrice(p.Price); err != nil {
		return err
	}
	return validateStock(p.Stock)
}

func validateName(name string) error {
	if name == "" {
		return &InvalidError{Field: "name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &InvalidError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	return nil
}

func validateStock(stock int) error {
	if stock < 0 {
		return &InvalidError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}

var maxPrice = decimal.New(1, 8)

// ValidatePrice checks that price is a non-negative amount in whole cents
// below 100 000 000.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return &InvalidError{Field: "price", Reason: "must be greater than or equal to 0"}
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return &InvalidError{Field: "price", Reason: "must be less than 100000000"}
	}
	if !price.Equal(price.Round(2)) {
		return &InvalidError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	return nil
}

// Repository defines the catalog store. LockForUpdate and DecrementStock are
// only meaningful inside a transaction; see checkout.UnitOfWork.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p *Product) error
	// Update writes only the fields set in u and returns the stored row.
	Update(ctx context.Context, id int64, u Update) (*Product, error)
	Delete(ctx context.Context, id int64) error

	// LockForUpdate acquires exclusive row locks on the given products in
	// ascending id order and returns the locked rows. Ids with no matching
	// row are absent from the result.
	LockForUpdate(ctx context.Context, ids []int64) (map[int64]Product, error)
	// DecrementStock subtracts amount from the product's stock. The caller
	// must hold the row lock and have checked amount <= stock.
	DecrementStock(ctx context.Context, id int64, amount int) error
}
