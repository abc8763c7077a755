package handler

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/checkout"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
	"github.com/xenking/kart-store/pkg/httpmiddleware"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const (
	testPepper = "test-pepper"
	userKey    = "user-key"
	adminKey   = "admin-key"
)

type mockCatalog struct {
	products   map[int64]product.Product
	err        error
	lastUpdate product.Update
}

func (m *mockCatalog) List(context.Context) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := slices.Collect(maps.Values(m.products))
	slices.SortFunc(out, func(a, b product.Product) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *mockCatalog) Get(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) Create(_ context.Context, name, description string, price decimal.Decimal, stock int) (*product.Product, error) {
	p, err := product.New(name, description, price, stock)
	if err != nil {
		return nil, err
	}
	p.ID = int64(len(m.products) + 1)
	p.CreatedAt = testTime
	m.products[p.ID] = p
	return &p, nil
}

func (m *mockCatalog) Update(_ context.Context, id int64, u product.Update) (*product.Product, error) {
	m.lastUpdate = u
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	m.products[id] = p
	return &p, nil
}

func (m *mockCatalog) Delete(_ context.Context, id int64) error {
	if _, ok := m.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

type mockCarts struct {
	userID    string
	added     map[int64]int
	addErr    error
	removeErr error
	cleared   bool
	view      *cart.View
}

func (m *mockCarts) View(_ context.Context, userID string) (*cart.View, error) {
	m.userID = userID
	return m.view, nil
}

func (m *mockCarts) Add(_ context.Context, userID string, productID int64, quantity int) (int, error) {
	m.userID = userID
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.added[productID] += quantity
	return m.added[productID], nil
}

func (m *mockCarts) Remove(_ context.Context, userID string, _ int64) error {
	m.userID = userID
	return m.removeErr
}

func (m *mockCarts) Clear(_ context.Context, userID string) error {
	m.userID = userID
	m.cleared = true
	return nil
}

type mockCheckout struct {
	userID string
	order  *order.Order
	err    error
}

func (m *mockCheckout) Checkout(_ context.Context, userID string) (*order.Order, error) {
	m.userID = userID
	return m.order, m.err
}

type mockOrders struct {
	orders    map[uuid.UUID]order.Order
	updateErr error
}

func (m *mockOrders) List(_ context.Context, id auth.Identity) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if id.CanAccess(o.UserID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrders) Get(_ context.Context, id auth.Identity, orderID uuid.UUID) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok || !id.CanAccess(o.UserID) {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, _ auth.Identity, orderID uuid.UUID, to order.Status) (*order.Order, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = to
	m.orders[orderID] = o
	return &o, nil
}

type memKeys map[string]auth.APIKeyInfo

func (m memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m[hash]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return &info, nil
}

func newKeys() memKeys {
	keys := memKeys{}
	for _, k := range []auth.APIKeyInfo{
		{ID: "k1", UserID: "alice", Name: userKey},
		{ID: "k2", UserID: "root", Name: adminKey, Scopes: []string{auth.ScopeAdmin}},
	} {
		k.KeyHash = auth.HashKey([]byte(testPepper), k.Name)
		keys[k.KeyHash] = k
	}
	return keys
}

type env struct {
	catalog  *mockCatalog
	carts    *mockCarts
	checkout *mockCheckout
	orders   *mockOrders
	logs     *observer.ObservedLogs
	srv      http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	e := &env{
		catalog: &mockCatalog{products: map[int64]product.Product{
			1: {ID: 1, Name: "Kart", Description: "Fast", Price: decimal.RequireFromString("19.9"), Stock: 3, CreatedAt: testTime},
		}},
		carts:    &mockCarts{added: map[int64]int{}},
		checkout: &mockCheckout{},
		orders:   &mockOrders{orders: map[uuid.UUID]order.Order{}},
		logs:     logs,
	}
	h := New(e.catalog, e.carts, e.checkout, e.orders)
	authn := NewAuthenticator(newKeys(), []byte(testPepper))
	e.srv = httpmiddleware.Wrap(h.Routes(authn.Middleware), httpmiddleware.InjectLogger(zap.New(core)))
	return e
}

func (e *env) do(method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(httpmiddleware.HeaderAPIKey, key)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestProducts_Read(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/product", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"name":"Kart","description":"Fast","price":"19.90","stock":3,"created_at":"2026-01-02T03:04:05Z"}]`, w.Body.String())

	w = e.do(http.MethodGet, "/api/product/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "19.90", decodeBody(t, w)["price"])

	for _, path := range []string{"/api/product/99", "/api/product/abc", "/api/product/-1"} {
		w = e.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.EqualValues(t, http.StatusNotFound, decodeBody(t, w)["code"])
	}
}

func TestProducts_Create(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		body   string
		status int
	}{
		{name: "anonymous", body: `{"name":"X","price":"1"}`, status: http.StatusUnauthorized},
		{name: "not admin", key: userKey, body: `{"name":"X","price":"1"}`, status: http.StatusForbidden},
		{name: "bad key", key: "nope", body: `{"name":"X","price":"1"}`, status: http.StatusUnauthorized},
		{name: "malformed", key: adminKey, body: `{"name":`, status: http.StatusBadRequest},
		{name: "missing price", key: adminKey, body: `{"name":"X"}`, status: http.StatusBadRequest},
		{name: "price type", key: adminKey, body: `{"name":"X","price":true}`, status: http.StatusBadRequest},
		{name: "negative price", key: adminKey, body: `{"name":"X","price":"-1"}`, status: http.StatusBadRequest},
		{name: "too precise", key: adminKey, body: `{"name":"X","price":1.005}`, status: http.StatusBadRequest},
		{name: "ok string price", key: adminKey, body: `{"name":"Helmet","price":"45.5","stock":2}`, status: http.StatusCreated},
		{name: "ok number price", key: adminKey, body: `{"name":"Gloves","price":12,"extra":[1,2]}`, status: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(http.MethodPost, "/api/product", tt.key, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusCreated {
				body := decodeBody(t, w)
				assert.EqualValues(t, 2, body["id"])
				assert.Len(t, e.catalog.products, 2)
			} else {
				assert.Len(t, e.catalog.products, 1)
			}
		})
	}
}

func TestProducts_Update(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPut, "/api/product/1", adminKey, `{"stock":10,"price":"21.00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 10, body["stock"])
	assert.Equal(t, "21.00", body["price"])
	assert.Nil(t, e.catalog.lastUpdate.Name)

	w = e.do(http.MethodPut, "/api/product/42", adminKey, `{"stock":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPut, "/api/product/1", userKey, `{"stock":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProducts_Delete(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/product/1", userKey, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/product/1", adminKey, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/product/1", adminKey, "").Code)
}

func TestCart_RequiresIdentity(t *testing.T) {
	e := newEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/cart"},
		{http.MethodPost, "/api/cart/add"},
		{http.MethodPost, "/api/cart/remove"},
		{http.MethodPost, "/api/cart/clear"},
		{http.MethodPost, "/api/cart/checkout"},
		{http.MethodGet, "/api/order"},
	} {
		w := e.do(tc.method, tc.path, "", `{"product_id":1}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
	}
	assert.Empty(t, e.carts.userID)
}

func TestCart_View(t *testing.T) {
	e := newEnv(t)
	e.carts.view = &cart.View{
		Cart: cart.Cart{ID: uuid.MustParse("6f1c1a58-3f0e-4d5a-9f65-1d1f8c3b7e01"), UserID: "alice", CreatedAt: testTime, UpdatedAt: testTime},
		Lines: []cart.Line{
			{Product: e.catalog.products[1], Quantity: 2},
		},
	}

	w := e.do(http.MethodGet, "/api/cart", userKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", e.carts.userID)

	body := decodeBody(t, w)
	assert.Equal(t, "39.80", body["total"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	assert.EqualValues(t, 2, line["quantity"])
	assert.Equal(t, "39.80", line["subtotal"])
	assert.Equal(t, "Kart", line["product"].(map[string]any)["name"])
}

func TestCart_Add(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/cart/add", userKey, `{"product_id":1,"quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"product_id":1,"quantity":2}`, w.Body.String())

	// Quantity defaults to one and string ids are accepted.
	w = e.do(http.MethodPost, "/api/cart/add", userKey, `{"product_id":"1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"product_id":1,"quantity":3}`, w.Body.String())

	for _, body := range []string{`{}`, `{"product_id":"x"}`, `{"product_id":1.5}`, `[]`, ``} {
		w = e.do(http.MethodPost, "/api/cart/add", userKey, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCart_AddErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{name: "invalid quantity", err: &cart.InvalidQuantityError{Quantity: 0}, status: http.StatusBadRequest},
		{name: "unknown product", err: product.ErrNotFound, status: http.StatusNotFound},
		{
			name:   "insufficient stock",
			err:    &product.InsufficientStockError{ProductID: 1, Name: "Kart", Requested: 5, Available: 3},
			status: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				assert.EqualValues(t, 1, body["product_id"])
				assert.EqualValues(t, 5, body["requested"])
				assert.EqualValues(t, 3, body["available"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.carts.addErr = tt.err

			w := e.do(http.MethodPost, "/api/cart/add", userKey, `{"product_id":1,"quantity":5}`)
			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			assert.EqualValues(t, tt.status, body["code"])
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestCart_RemoveAndClear(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/cart/remove", userKey, `{"product_id":1}`)
	assert.Equal(t, http.StatusOK, w.Code)

	e.carts.removeErr = cart.ErrItemNotFound
	w = e.do(http.MethodPost, "/api/cart/remove", userKey, `{"product_id":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "item not in cart", decodeBody(t, w)["message"])

	w = e.do(http.MethodPost, "/api/cart/clear", userKey, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, e.carts.cleared)
}

func TestCheckout(t *testing.T) {
	o := &order.Order{
		ID:        uuid.MustParse("0b7f0a52-5d0c-4b8e-8a4b-7a0c6a2b9c11"),
		UserID:    "alice",
		Items:     []order.Item{order.NewItem(1, "Kart", decimal.RequireFromString("19.9"), 2)},
		Total:     decimal.RequireFromString("39.8"),
		Status:    order.StatusPaid,
		CreatedAt: testTime,
	}

	tests := []struct {
		name    string
		order   *order.Order
		err     error
		status  int
		message string
	}{
		{name: "committed", order: o, status: http.StatusCreated},
		{name: "empty cart", err: checkout.ErrEmptyCart, status: http.StatusConflict, message: "cart is empty"},
		{name: "missing product", err: &checkout.MissingProductError{ProductID: 7}, status: http.StatusConflict, message: "product 7 no longer exists"},
		{name: "insufficient stock", err: &product.InsufficientStockError{ProductID: 1, Requested: 2, Available: 1}, status: http.StatusConflict},
		{name: "lock timeout", err: errors.Wrap(checkout.ErrLockTimeout, "checkout"), status: http.StatusServiceUnavailable},
		{name: "internal", err: errors.Wrap(errors.New("connection reset"), "checkout"), status: http.StatusInternalServerError, message: "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.checkout.order, e.checkout.err = tt.order, tt.err

			w := e.do(http.MethodPost, "/api/cart/checkout", userKey, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "alice", e.checkout.userID)

			body := decodeBody(t, w)
			if tt.order != nil {
				assert.Equal(t, "PAID", body["status"])
				assert.Equal(t, "39.80", body["total"])
				items := body["items"].([]any)
				assert.Equal(t, "19.90", items[0].(map[string]any)["price"])
				return
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestInternalErrorIsLogged(t *testing.T) {
	e := newEnv(t)
	e.checkout.err = errors.New("pq: relation does not exist")

	w := e.do(http.MethodPost, "/api/cart/checkout", userKey, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")

	entries := e.logs.FilterMessage("Request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "alice", fields["user_id"])
	assert.Contains(t, fields["error"], "relation does not exist")
}

func TestOrders(t *testing.T) {
	e := newEnv(t)
	mine := order.Order{ID: uuid.New(), UserID: "alice", Total: decimal.NewFromInt(5), Status: order.StatusPaid, CreatedAt: testTime}
	theirs := order.Order{ID: uuid.New(), UserID: "bob", Total: decimal.NewFromInt(7), Status: order.StatusPaid, CreatedAt: testTime}
	e.orders.orders[mine.ID] = mine
	e.orders.orders[theirs.ID] = theirs

	w := e.do(http.MethodGet, "/api/order", userKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "5.00", list[0]["total"])

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/order/"+mine.ID.String(), userKey, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/order/"+theirs.ID.String(), userKey, "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/order/"+theirs.ID.String(), adminKey, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/order/not-a-uuid", userKey, "").Code)
}

func TestOrders_UpdateStatus(t *testing.T) {
	e := newEnv(t)
	o := order.Order{ID: uuid.New(), UserID: "alice", Status: order.StatusPaid, CreatedAt: testTime}
	e.orders.orders[o.ID] = o
	path := "/api/order/" + o.ID.String() + "/status"

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, path, userKey, `{"status":"SHIPPED"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, adminKey, `{"status":"LOST"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, adminKey, `{}`).Code)

	w := e.do(http.MethodPatch, path, adminKey, `{"status":"SHIPPED"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SHIPPED", decodeBody(t, w)["status"])

	e.orders.updateErr = &order.TransitionError{From: order.StatusShipped, To: order.StatusCancelled}
	w = e.do(http.MethodPatch, path, adminKey, `{"status":"CANCELLED"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRoutes_Fallbacks(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.EqualValues(t, http.StatusNotFound, decodeBody(t, w)["code"])

	w = e.do(http.MethodDelete, "/api/cart/add", userKey, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
