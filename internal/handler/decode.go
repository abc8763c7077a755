package handler

import (
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

const maxBodySize = 1 << 20

// decodeObject reads a JSON object body and calls field for every key.
// Unknown keys must be skipped by field.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return invalidInput("request body is too large or unreadable")
	}
	err = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			return inputErr
		}
		return invalidInput("request body must be a JSON object")
	}
	return nil
}

// decodeInt accepts a JSON integer or a string holding one.
func decodeInt(d *jx.Decoder, field string) (int, error) {
	var (
		n   int64
		err error
	)
	switch d.Next() {
	case jx.Number:
		n, err = d.Int64()
	case jx.String:
		var s string
		if s, err = d.Str(); err == nil {
			n, err = strconv.ParseInt(s, 10, 64)
		}
	default:
		err = errors.New("unexpected type")
	}
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, invalidInput(field + " must be an integer")
	}
	return int(n), nil
}

func decodeString(d *jx.Decoder, field string) (string, error) {
	if d.Next() != jx.String {
		return "", invalidInput(field + " must be a string")
	}
	s, err := d.Str()
	if err != nil {
		return "", invalidInput(field + " must be a string")
	}
	return s, nil
}

// decodeDecimal accepts a JSON number or a decimal string. Strings keep
// full precision on clients that parse numbers as floats.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, invalidInput(field + " must be a decimal")
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, invalidInput(field + " must be a decimal")
		}
		raw = s
	default:
		return decimal.Zero, invalidInput(field + " must be a decimal")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalidInput(field + " must be a decimal")
	}
	return v, nil
}

type cartItemRequest struct {
	ProductID int64
	Quantity  int
}

// decodeCartItem reads {product_id, quantity}. Quantity defaults to one.
func decodeCartItem(w http.ResponseWriter, r *http.Request) (cartItemRequest, error) {
	req := cartItemRequest{Quantity: 1}
	var hasProduct bool
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			id, err := decodeInt(d, key)
			if err != nil {
				return err
			}
			req.ProductID, hasProduct = int64(id), true
			return nil
		case "quantity":
			q, err := decodeInt(d, key)
			req.Quantity = q
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, err
	}
	if !hasProduct {
		return req, invalidInput("product_id is required")
	}
	return req, nil
}

// decodeProductUpdate reads a product body. Absent fields stay nil.
func decodeProductUpdate(w http.ResponseWriter, r *http.Request) (product.Update, error) {
	var u product.Update
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			s, err := decodeString(d, key)
			u.Name = &s
			return err
		case "description":
			s, err := decodeString(d, key)
			u.Description = &s
			return err
		case "price":
			v, err := decodeDecimal(d, key)
			u.Price = &v
			return err
		case "stock":
			n, err := decodeInt(d, key)
			u.Stock = &n
			return err
		default:
			return d.Skip()
		}
	})
	return u, err
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (order.Status, error) {
	var (
		status order.Status
		ok     bool
		seen   bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := decodeString(d, key)
		if err != nil {
			return err
		}
		seen = true
		status, ok = order.ParseStatus(s)
		return nil
	})
	switch {
	case err != nil:
		return "", err
	case !seen:
		return "", invalidInput("status is required")
	case !ok:
		return "", invalidInput("unknown order status")
	}
	return status, nil
}

// productID parses the {productId} path segment. Ids that cannot exist are
// reported as not found.
func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, product.ErrNotFound
	}
	return id, nil
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		return uuid.Nil, order.ErrNotFound
	}
	return id, nil
}
