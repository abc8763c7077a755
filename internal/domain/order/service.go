package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-store/internal/domain/auth"
)

// Service exposes order history and administrative status changes.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// List returns the caller's orders, or all orders for an admin.
func (s *Service) List(ctx context.Context, id auth.Identity) ([]Order, error) {
	var (
		orders []Order
		err    error
	)
	if id.IsAdmin() {
		orders, err = s.orders.List(ctx)
	} else {
		orders, err = s.orders.ListByUser(ctx, id.UserID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns a single order. Orders owned by someone else are reported as
// not found unless the caller is an admin.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	if !id.CanAccess(o.UserID) {
		return nil, ErrNotFound
	}
	return o, nil
}

// UpdateStatus moves an order to a new status. The caller must be an admin.
func (s *Service) UpdateStatus(ctx context.Context, id auth.Identity, orderID uuid.UUID, to Status) (*Order, error) {
	if !id.IsAdmin() {
		return nil, auth.ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	if !CanTransition(o.Status, to) {
		return nil, &TransitionError{From: o.Status, To: to}
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, o.Status, to)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(err, "update order %s", orderID)
	}

	// Status moved underneath us; report against the current value.
	current, getErr := s.orders.GetByID(ctx, orderID)
	if getErr != nil {
		if errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(getErr, "get order %s", orderID)
	}
	return nil, &TransitionError{From: current.Status, To: to}
}
