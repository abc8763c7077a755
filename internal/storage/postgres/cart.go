package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/product"
)

const (
	cartColumns = `id, user_id, created_at, updated_at`

	insertCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	getCartByUserSQL = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`

	lockCartByUserSQL = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1 FOR UPDATE`

	// Touching the cart row serializes the add against a checkout holding
	// the cart lock.
	addCartItemSQL = `WITH touched AS (
			UPDATE carts SET updated_at = now() WHERE id = $1 RETURNING id
		)
		INSERT INTO cart_items (cart_id, product_id, quantity)
		SELECT id, $2, $3 FROM touched
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	listCartItemsSQL = `SELECT product_id, quantity FROM cart_items
		WHERE cart_id = $1 ORDER BY id`

	listCartLinesSQL = `SELECT p.id, p.name, p.description, p.price, p.stock, p.created_at, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository that uses db.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate inserts an empty cart unless the user already has one, then
// reads it back. The unique user_id constraint makes racing first calls
// converge on one row.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID string) (*cart.Cart, error) {
	if _, err := r.db.Exec(ctx, insertCartSQL, uuid.New(), userID); err != nil {
		return nil, fmt.Errorf("creating cart for user %q: %w", userID, err)
	}

	rows, err := r.db.Query(ctx, getCartByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}
	return &c, nil
}

// LockByUser returns the user's cart holding a FOR UPDATE lock on its row.
func (r *CartRepository) LockByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.db.Query(ctx, lockCartByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("locking cart for user %q: %w", userID, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("locking cart for user %q: %w", userID, err)
	}
	return &c, nil
}

// AddItem inserts or merges a line and returns the resulting quantity.
func (r *CartRepository) AddItem(ctx context.Context, cartID uuid.UUID, productID int64, quantity cart.Quantity) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, addCartItemSQL, cartID, productID, int(quantity)).Scan(&total)
	switch {
	case err == nil:
		return total, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, cart.ErrNotFound
	case pgErrorCode(err) == codeForeignKeyViolation:
		return 0, product.ErrNotFound
	case pgErrorCode(err) == codeNumericOutOfRange:
		return 0, &cart.InvalidQuantityError{Quantity: int(quantity), Merged: true}
	default:
		return 0, fmt.Errorf("adding product %d to cart %s: %w", productID, cartID, err)
	}
}

// RemoveItem deletes the line for productID and reports whether one existed.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID uuid.UUID, productID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, removeCartItemSQL, cartID, productID)
	if err != nil {
		return false, fmt.Errorf("removing product %d from cart %s: %w", productID, cartID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear deletes every line of the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %s: %w", cartID, err)
	}
	return nil
}

// Items returns the stored lines in insertion order.
func (r *CartRepository) Items(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	rows, err := r.db.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %s: %w", cartID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity)
		return it, err
	})
}

// Lines returns the cart lines joined with current product data.
func (r *CartRepository) Lines(ctx context.Context, cartID uuid.UUID) ([]cart.Line, error) {
	rows, err := r.db.Query(ctx, listCartLinesSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of cart %s: %w", cartID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var (
			l cart.Line
			p = &l.Product
		)
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &l.Quantity)
		return l, err
	})
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
