package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/checkout"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

// InputError is a malformed or incomplete request.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func invalidInput(msg string) error {
	return &InputError{Message: msg}
}

// fail writes the response for err. Errors not recognized here are internal
// failures: they are logged in full and answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		inputErr      *InputError
		invalidErr    *product.InvalidError
		quantityErr   *cart.InvalidQuantityError
		stockErr      *product.InsufficientStockError
		missingErr    *checkout.MissingProductError
		transitionErr *order.TransitionError
	)
	switch {
	case errors.As(err, &inputErr),
		errors.As(err, &invalidErr),
		errors.As(err, &quantityErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeStockError(w, stockErr)
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.As(err, &missingErr),
		errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "checkout is busy, try again")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeStockError(w http.ResponseWriter, err *product.InsufficientStockError) {
	writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusConflict)
		e.FieldStart("message")
		e.Str(err.Error())
		e.FieldStart("product_id")
		e.Int64(err.ProductID)
		e.FieldStart("requested")
		e.Int(err.Requested)
		e.FieldStart("available")
		e.Int(err.Available)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
