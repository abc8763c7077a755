// Package event defines integration events recorded in the transactional
// outbox and relayed to the message broker.
package event

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart-store/internal/domain/order"
)

// TypeOrderPaid is emitted when checkout creates a paid order.
const TypeOrderPaid = "order.paid"

// Event is an outbox record. Key selects the broker partition.
type Event struct {
	ID        uuid.UUID
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// OrderPaid builds the event for a freshly created order.
func OrderPaid(o *order.Order) Event {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID.String())
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		e.Str(it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return Event{
		ID:        uuid.New(),
		Type:      TypeOrderPaid,
		Key:       o.ID.String(),
		Payload:   append([]byte(nil), e.Bytes()...),
		CreatedAt: o.CreatedAt,
	}
}

// Repository appends events inside the caller's transaction.
type Repository interface {
	Append(ctx context.Context, e Event) error
}
