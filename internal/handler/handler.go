// Package handler exposes the store over HTTP: catalog, cart, checkout and
// order endpoints under /api, encoded with jx.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
	"github.com/xenking/kart-store/pkg/httpmiddleware"
)

// Catalog is implemented by *product.Service.
type Catalog interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	Create(ctx context.Context, name, description string, price decimal.Decimal, stock int) (*product.Product, error)
	Update(ctx context.Context, id int64, u product.Update) (*product.Product, error)
	Delete(ctx context.Context, id int64) error
}

// Carts is implemented by *cart.Service.
type Carts interface {
	View(ctx context.Context, userID string) (*cart.View, error)
	Add(ctx context.Context, userID string, productID int64, quantity int) (int, error)
	Remove(ctx context.Context, userID string, productID int64) error
	Clear(ctx context.Context, userID string) error
}

// Checkout is implemented by *checkout.Service.
type Checkout interface {
	Checkout(ctx context.Context, userID string) (*order.Order, error)
}

// Orders is implemented by *order.Service.
type Orders interface {
	List(ctx context.Context, id auth.Identity) ([]order.Order, error)
	Get(ctx context.Context, id auth.Identity, orderID uuid.UUID) (*order.Order, error)
	UpdateStatus(ctx context.Context, id auth.Identity, orderID uuid.UUID, to order.Status) (*order.Order, error)
}

// Handler serves the /api endpoints.
type Handler struct {
	catalog  Catalog
	carts    Carts
	checkout Checkout
	orders   Orders
}

// New creates a Handler.
func New(catalog Catalog, carts Carts, checkout Checkout, orders Orders) *Handler {
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		checkout: checkout,
		orders:   orders,
	}
}

// Routes returns the API router. authn resolves the caller identity from
// the request; routes that need one reject anonymous callers themselves.
func (h *Handler) Routes(authn httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.RouteLabel())
	r.Use(authn)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/product", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{productId}", h.getProduct)
			r.Put("/{productId}", h.updateProduct)
			r.Delete("/{productId}", h.deleteProduct)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.viewCart)
			r.Post("/add", h.addToCart)
			r.Post("/remove", h.removeFromCart)
			r.Post("/clear", h.clearCart)
			r.Post("/checkout", h.checkoutCart)
		})
		r.Route("/order", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Get("/{orderId}", h.getOrder)
			r.Patch("/{orderId}/status", h.updateOrderStatus)
		})
	})
	return r
}
