package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/auth"
)

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := h.carts.View(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, v) })
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeCartItem(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	quantity, err := h.carts.Add(r.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(req.ProductID)
		e.FieldStart("quantity")
		e.Int(quantity)
		e.ObjEnd()
	})
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeCartItem(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.carts.Remove(r.Context(), id.UserID, req.ProductID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMessage(e, "item removed") })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), id.UserID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMessage(e, "cart cleared") })
}

func (h *Handler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.checkout.Checkout(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Order placed",
		zap.Stringer("order_id", o.ID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}
