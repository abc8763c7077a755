package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/product"
)

// readProducts loads the seed catalog. Files ending in .gz are decompressed.
func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return decodeProducts(r)
}

// decodeProducts parses an array of {id, name, description, price, stock}
// and validates every entry.
func decodeProducts(r io.Reader) ([]product.Product, error) {
	var products []product.Product
	err := jx.Decode(r, 4096).Arr(func(d *jx.Decoder) error {
		var (
			p     product.Product
			price string
		)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Int64()
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "price":
				price, err = decodePrice(d)
			case "stock":
				p.Stock, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}

		amount, err := decimal.NewFromString(price)
		if err != nil {
			return errors.Wrapf(err, "product %d price", p.ID)
		}
		valid, err := product.New(p.Name, p.Description, amount, p.Stock)
		if err != nil {
			return errors.Wrapf(err, "product %d", p.ID)
		}
		if p.ID <= 0 {
			return errors.Errorf("product %q: id must be positive", p.Name)
		}
		valid.ID = p.ID
		products = append(products, valid)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return products, nil
}

func decodePrice(d *jx.Decoder) (string, error) {
	if d.Next() == jx.String {
		return d.Str()
	}
	n, err := d.Num()
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

type keySpec struct {
	User  string
	Key   string
	Admin bool
}

// keyFlags collects repeated -key user:key[:admin] flags.
type keyFlags []keySpec

func (k *keyFlags) String() string {
	users := make([]string, 0, len(*k))
	for _, s := range *k {
		users = append(users, s.User)
	}
	return strings.Join(users, ",")
}

func (k *keyFlags) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return errors.Errorf("invalid key %q: want user:key or user:key:admin", v)
	}
	spec := keySpec{User: parts[0], Key: parts[1]}
	if len(parts) == 3 {
		if parts[2] != auth.ScopeAdmin {
			return errors.Errorf("invalid key %q: unknown scope %q", v, parts[2])
		}
		spec.Admin = true
	}
	*k = append(*k, spec)
	return nil
}
