package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-store/internal/domain/product"
)

// ProductLookup reads a product by id.
type ProductLookup interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
}

// Service implements the cart operations available to a user.
type Service struct {
	carts    Repository
	products ProductLookup
}

// NewService creates a cart Service.
func NewService(carts Repository, products ProductLookup) *Service {
	return &Service{carts: carts, products: products}
}

// View returns the user's cart joined with live product data.
func (s *Service) View(ctx context.Context, userID string) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	lines, err := s.carts.Lines(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return &View{Cart: *c, Lines: lines}, nil
}

// Add puts quantity units of the product into the user's cart, merging with
// an existing line, and returns the line's new quantity.
//
// The stock comparison here is advisory and unlocked. Checkout repeats it
// under row locks.
func (s *Service) Add(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	q, err := NewQuantity(quantity)
	if err != nil {
		return 0, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return 0, product.ErrNotFound
		}
		return 0, errors.Wrapf(err, "get product %d", productID)
	}
	if p.Stock < quantity {
		return 0, &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: quantity,
			Available: p.Stock,
		}
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "get cart")
	}
	total, err := s.carts.AddItem(ctx, c.ID, productID, q)
	if err != nil {
		// Deleted between the lookup and the insert.
		if errors.Is(err, product.ErrNotFound) {
			return 0, product.ErrNotFound
		}
		return 0, errors.Wrap(err, "add cart item")
	}
	return total, nil
}

// Remove deletes the product's line from the user's cart.
func (s *Service) Remove(ctx context.Context, userID string, productID int64) error {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	removed, err := s.carts.RemoveItem(ctx, c.ID, productID)
	if err != nil {
		return errors.Wrap(err, "remove cart item")
	}
	if !removed {
		return ErrItemNotFound
	}
	return nil
}

// Clear empties the user's cart. Clearing an empty cart is not an error.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
