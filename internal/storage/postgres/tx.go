package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-store/internal/domain/checkout"
)

const setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

var _ checkout.UnitOfWork = (*TxManager)(nil)

// TxManager runs checkout work in a single READ COMMITTED transaction with
// bounded lock waits.
type TxManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	timeout     time.Duration
}

// NewTxManager returns a TxManager. lockTimeout bounds each row-lock wait;
// timeout bounds the whole transaction. Zero disables either bound.
func NewTxManager(pool *pgxpool.Pool, lockTimeout, timeout time.Duration) *TxManager {
	return &TxManager{pool: pool, lockTimeout: lockTimeout, timeout: timeout}
}

// Do begins a transaction, hands fn repositories bound to it, and commits
// when fn returns nil. Any error or panic rolls back.
func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context, s checkout.Stores) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	err := pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if m.lockTimeout > 0 {
			if _, err := tx.Exec(ctx, setLockTimeoutSQL, fmt.Sprintf("%dms", m.lockTimeout.Milliseconds())); err != nil {
				return fmt.Errorf("setting lock timeout: %w", err)
			}
		}
		return fn(ctx, Stores(tx))
	})
	if IsLockTimeout(err) {
		return fmt.Errorf("%w: %w", checkout.ErrLockTimeout, err)
	}
	return err
}

// Stores binds every repository to db.
func Stores(db DBTX) checkout.Stores {
	return checkout.Stores{
		Carts:    NewCartRepository(db),
		Products: NewProductRepository(db),
		Orders:   NewOrderRepository(db),
		Events:   NewOutboxRepository(db),
	}
}
