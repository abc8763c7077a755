package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-store/internal/domain/auth"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID map[uuid.UUID]*Order
	err  error

	// raceTo, when set, is applied to the order right before UpdateStatus
	// compares, simulating a concurrent status change.
	raceTo Status
}

func newOrderRepo(orders ...Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[uuid.UUID]*Order)}
	for i := range orders {
		o := orders[i]
		m.byID[o.ID] = &o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Order, 0, len(m.byID))
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.raceTo != "" {
		o.Status = m.raceTo
	}
	if o.Status != from {
		return nil, ErrNotFound
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

// --- Helpers ---

var (
	alice = auth.Identity{UserID: "alice", KeyID: "k1"}
	bob   = auth.Identity{UserID: "bob", KeyID: "k2"}
	admin = auth.Identity{UserID: "root", KeyID: "k3", Scopes: []string{auth.ScopeAdmin}}
)

func newTestOrder(userID string, status Status) Order {
	return Order{
		ID:     uuid.New(),
		UserID: userID,
		Items: []Item{
			NewItem(1, "Waffle", decimal.RequireFromString("10"), 3),
		},
		Total:     decimal.RequireFromString("30.00"),
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// --- Tests ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusPending, false},
		{StatusShipped, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("SHIPPED")
	require.True(t, ok)
	assert.Equal(t, StatusShipped, s)

	_, ok = ParseStatus("shipped")
	assert.False(t, ok)
}

func TestNewItem_PriceSnapshot(t *testing.T) {
	it := NewItem(1, "Waffle", decimal.RequireFromString("10"), 3)
	assert.Equal(t, "10.00", it.Price)

	sub, err := it.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, "30.00", sub.StringFixed(2))
}

func TestService_Get_Owner(t *testing.T) {
	o := newTestOrder("alice", StatusPaid)
	svc := NewService(newOrderRepo(o))

	got, err := svc.Get(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestService_Get_OtherUserHidden(t *testing.T) {
	o := newTestOrder("alice", StatusPaid)
	svc := NewService(newOrderRepo(o))

	_, err := svc.Get(context.Background(), bob, o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}

func TestService_Get_RepoError(t *testing.T) {
	repo := newOrderRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo)

	_, err := svc.Get(context.Background(), alice, uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestService_List_Scope(t *testing.T) {
	svc := NewService(newOrderRepo(
		newTestOrder("alice", StatusPaid),
		newTestOrder("alice", StatusShipped),
		newTestOrder("bob", StatusPaid),
	))

	mine, err := svc.List(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.List(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_UpdateStatus(t *testing.T) {
	o := newTestOrder("alice", StatusPaid)
	repo := newOrderRepo(o)
	svc := NewService(repo)

	got, err := svc.UpdateStatus(context.Background(), admin, o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Equal(t, StatusShipped, repo.byID[o.ID].Status)
}

func TestService_UpdateStatus_Forbidden(t *testing.T) {
	o := newTestOrder("alice", StatusPaid)
	repo := newOrderRepo(o)
	svc := NewService(repo)

	_, err := svc.UpdateStatus(context.Background(), alice, o.ID, StatusShipped)
	require.ErrorIs(t, err, auth.ErrForbidden)
	assert.Equal(t, StatusPaid, repo.byID[o.ID].Status)
}

func TestService_UpdateStatus_InvalidTransition(t *testing.T) {
	o := newTestOrder("alice", StatusShipped)
	svc := NewService(newOrderRepo(o))

	_, err := svc.UpdateStatus(context.Background(), admin, o.ID, StatusCancelled)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusShipped, trErr.From)
	assert.Equal(t, StatusCancelled, trErr.To)
}

func TestService_UpdateStatus_ConcurrentChange(t *testing.T) {
	o := newTestOrder("alice", StatusPaid)
	repo := newOrderRepo(o)
	repo.raceTo = StatusCancelled
	svc := NewService(repo)

	_, err := svc.UpdateStatus(context.Background(), admin, o.ID, StatusShipped)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusCancelled, trErr.From)
}

func TestService_UpdateStatus_NotFound(t *testing.T) {
	svc := NewService(newOrderRepo())

	_, err := svc.UpdateStatus(context.Background(), admin, uuid.New(), StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}
