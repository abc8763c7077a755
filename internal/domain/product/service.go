package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Update holds a partial catalog update. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
}

// normalize trims the name and validates every field that is set.
func (u *Update) normalize() error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if err := validateName(name); err != nil {
			return err
		}
		u.Name = &name
	}
	if u.Price != nil {
		if err := ValidatePrice(*u.Price); err != nil {
			return err
		}
	}
	if u.Stock != nil {
		if err := validateStock(*u.Stock); err != nil {
			return err
		}
	}
	return nil
}

// Service encapsulates catalog reads and administrative writes.
type Service struct {
	products Repository
}

// NewService creates a catalog Service backed by the given repository.
func NewService(products Repository) *Service {
	return &Service{products: products}
}

// List returns the whole catalog, newest first.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Get returns a single product or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

// Create validates and persists a new product.
func (s *Service) Create(ctx context.Context, name, description string, price decimal.Decimal, stock int) (*Product, error) {
	p, err := New(name, description, price, stock)
	if err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return &p, nil
}

// Update applies a partial update to an existing product. Only the fields
// set in u are written, so a concurrent checkout's stock decrement survives
// an update that does not set Stock. Stock set here replaces the current
// value; it is an administrative correction, not a sale.
func (s *Service) Update(ctx context.Context, id int64, u Update) (*Product, error) {
	if err := u.normalize(); err != nil {
		return nil, err
	}

	p, err := s.products.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update product %d", id)
	}
	return p, nil
}

// Delete removes a product from the catalog. Cart lines referencing it are
// removed with it; orders keep their snapshots.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete product %d", id)
	}
	return nil
}
