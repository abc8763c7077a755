package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-store/internal/domain/event"
)

const (
	appendEventSQL = `INSERT INTO outbox (id, type, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	pendingEventsSQL = `SELECT id, type, key, payload, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markEventsSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var _ event.Repository = (*OutboxRepository)(nil)

// OutboxRepository stores integration events next to the business rows
// that produced them.
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository returns an OutboxRepository that uses db.
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append records e in the caller's transaction.
func (r *OutboxRepository) Append(ctx context.Context, e event.Event) error {
	_, err := r.db.Exec(ctx, appendEventSQL, e.ID, e.Type, e.Key, string(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending %s event %s: %w", e.Type, e.ID, err)
	}
	return nil
}

// ProcessPending locks up to limit unsent events, passes them to publish
// and marks them sent if publish succeeds, all in one transaction. Rows
// locked by a concurrent relay are skipped. It returns the number of events
// marked sent.
func (r *OutboxRepository) ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, events []event.Event) error) (int, error) {
	var sent int
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, pendingEventsSQL, limit)
		if err != nil {
			return fmt.Errorf("selecting pending events: %w", err)
		}
		events, err := pgx.CollectRows(rows, scanEvent)
		if err != nil {
			return fmt.Errorf("selecting pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		if err := publish(ctx, events); err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		if _, err := tx.Exec(ctx, markEventsSentSQL, ids); err != nil {
			return fmt.Errorf("marking events sent: %w", err)
		}
		sent = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

func scanEvent(row pgx.CollectableRow) (event.Event, error) {
	var (
		e       event.Event
		payload string
	)
	if err := row.Scan(&e.ID, &e.Type, &e.Key, &payload, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Payload = []byte(payload)
	return e, nil
}
