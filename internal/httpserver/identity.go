package httpserver

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/useless-store/scoreboard/internal/auth"
)

// Identity is the authenticated caller, taken from a verified bearer token.
type Identity struct {
	UserID int64
	Email  string
}

// ctxIdentityKey is the context key type for storing *Identity.
type ctxIdentityKey struct{}

// withIdentity decorates requests with an Identity when a valid bearer token is present.
// It never rejects: a missing, malformed, expired or forged token leaves the request anonymous.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		tok, ok := auth.ParseBearer(header)
		if !ok {
			hlog.FromRequest(r).Debug().Msg("authorization header is not a bearer token")
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.tokens.Verify(tok)
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("bearer token rejected")
			next.ServeHTTP(w, r)
			return
		}
		id, _ := claims.UserID()
		ctx := context.WithValue(r.Context(), ctxIdentityKey{}, &Identity{UserID: id, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom returns the request's Identity, or nil for anonymous requests.
func identityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxIdentityKey{}).(*Identity)
	return id
}

// requireIdentity writes 401 invalid_token and returns false for anonymous requests.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	id := identityFrom(r.Context())
	if id == nil {
		s.writeError(w, r, errInvalidToken)
		return nil, false
	}
	return id, true
}
