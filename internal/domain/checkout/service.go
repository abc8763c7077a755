package checkout

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/event"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

const instrumentationName = "github.com/xenking/kart-store/internal/domain/checkout"

// Service is the checkout engine.
type Service struct {
	uow      UnitOfWork
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
	now      func() time.Time
}

// NewService creates the checkout engine on top of a transaction runner.
func NewService(uow UnitOfWork, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter(instrumentationName)

	outcomes, err := meter.Int64Counter("kart.checkout.outcomes",
		metric.WithDescription("Checkout attempts by terminal state"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "outcomes counter")
	}
	duration, err := meter.Float64Histogram("kart.checkout.duration",
		metric.WithDescription("Checkout duration including lock waits"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Service{
		uow:      uow,
		tracer:   tp.Tracer(instrumentationName),
		outcomes: outcomes,
		duration: duration,
		now:      time.Now,
	}, nil
}

// Checkout turns the user's cart into a PAID order. Either every line's
// stock is decremented, the order is stored and the cart emptied, or
// nothing changes.
//
// Rejections are returned as ErrEmptyCart, *MissingProductError or
// *product.InsufficientStockError. Nothing is retried.
func (s *Service) Checkout(ctx context.Context, userID string) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	start := s.now()
	var created *order.Order
	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		o, err := s.checkout(ctx, st, userID)
		if err != nil {
			return err
		}
		created = o
		return nil
	})

	state := Outcome(err)
	elapsed := s.now().Sub(start)
	attrs := metric.WithAttributes(attribute.String("state", string(state)))
	s.outcomes.Add(ctx, 1, attrs)
	s.duration.Record(ctx, elapsed.Seconds(), attrs)
	span.SetAttributes(attribute.String("checkout.state", string(state)))

	lg := zctx.From(ctx).With(
		zap.String("state", string(state)),
		zap.String("user_id", userID),
		zap.Duration("duration", elapsed),
	)
	switch state {
	case StateCommitted:
		lg.Info("Checkout committed",
			zap.Stringer("order_id", created.ID),
			zap.String("total", created.Total.StringFixed(2)),
		)
		return created, nil
	case StateFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		lg.Error("Checkout failed", zap.Error(err))
		return nil, errors.Wrap(err, "checkout")
	default:
		lg.Info("Checkout rejected", zap.Error(err))
		return nil, err
	}
}

func (s *Service) checkout(ctx context.Context, st Stores, userID string) (*order.Order, error) {
	// Lock the cart row first so a concurrent add is either part of this
	// order or survives the clear below.
	c, err := st.Carts.LockByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "lock cart")
	}

	items, err := st.Carts.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	locked, err := st.Products.LockForUpdate(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	trace.SpanFromContext(ctx).AddEvent("checkout.validating",
		trace.WithAttributes(attribute.Int("checkout.lines", len(items))),
	)
	zctx.From(ctx).Debug("Checkout validating",
		zap.String("state", string(StateValidating)),
		zap.String("user_id", userID),
		zap.Int("lines", len(items)),
	)

	// Validate every line before touching any stock.
	for _, it := range items {
		p, ok := locked[it.ProductID]
		if !ok {
			return nil, &MissingProductError{ProductID: it.ProductID}
		}
		if p.Stock < it.Quantity {
			return nil, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.Stock,
			}
		}
	}

	snapshots := make([]order.Item, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		p := locked[it.ProductID]
		if err := st.Products.DecrementStock(ctx, p.ID, it.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock of product %d", p.ID)
		}
		snap := order.NewItem(p.ID, p.Name, p.Price, it.Quantity)
		sub, err := snap.Subtotal()
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
		total = total.Add(sub)
	}

	o := &order.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     snapshots,
		Total:     total.Round(2),
		Status:    order.StatusPaid,
		CreatedAt: s.now().UTC(),
	}
	if err := st.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if err := st.Events.Append(ctx, event.OrderPaid(o)); err != nil {
		return nil, errors.Wrap(err, "append order event")
	}
	if err := st.Carts.Clear(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	return o, nil
}
