package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-store/internal/domain/auth"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	u, err := decodeProductUpdate(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	switch {
	case u.Name == nil:
		fail(w, r, invalidInput("name is required"))
		return
	case u.Price == nil:
		fail(w, r, invalidInput("price is required"))
		return
	}
	var (
		description string
		stock       int
	)
	if u.Description != nil {
		description = *u.Description
	}
	if u.Stock != nil {
		stock = *u.Stock
	}

	p, err := h.catalog.Create(r.Context(), *u.Name, description, *u.Price, stock)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := decodeProductUpdate(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), id, u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
