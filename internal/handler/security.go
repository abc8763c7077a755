package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/pkg/httpmiddleware"
)

// Authenticator resolves the api_key header to an auth.Identity using
// HMAC-SHA256 hashed keys.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Middleware attaches the caller identity to the request context. Requests
// without a key pass through anonymously; a key that does not resolve is
// rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(httpmiddleware.HeaderAPIKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.authenticate(r, key)
		if err != nil {
			fail(w, r, err)
			return
		}
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request, key string) (auth.Identity, error) {
	hash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(r.Context(), hash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return auth.Identity{}, auth.ErrUnauthenticated
		}
		return auth.Identity{}, errors.Wrap(err, "find api key")
	}

	// The stored hash must match what we computed, even if the lookup
	// returned a row.
	computed, _ := hex.DecodeString(hash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Identity{}, auth.ErrUnauthenticated
	}

	return auth.Identity{
		UserID: info.UserID,
		KeyID:  info.ID,
		Scopes: info.Scopes,
	}, nil
}
