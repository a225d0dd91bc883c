// internal/httpserver/routes_auth.go
//
// Account endpoints under /api/auth:
//   - POST /signup → create account, 201 {token, user}
//   - POST /login  → exchange credentials for a fresh token, 200 {token, user}
//   - GET  /me     → profile of the bearer token's subject
//
// Tokens are stateless; nothing about a session is stored server-side.

package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/useless-store/scoreboard/internal/auth"
	"github.com/useless-store/scoreboard/internal/metrics"
	"github.com/useless-store/scoreboard/internal/store"
)

// credentialsReq is the decoded signup/login input. Name is only read by signup.
type credentialsReq struct {
	Email    string  `json:"email" validate:"required"`
	Password string  `json:"password" validate:"required"`
	Name     *string `json:"name"`
}

// credentialsBody is the wire form. Name stays raw so a non-string name does
// not sink the whole request.
type credentialsBody struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Name     json.RawMessage `json:"name"`
}

type userDTO struct {
	ID    int64   `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

type profileDTO struct {
	userDTO
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type meResponse struct {
	User profileDTO `json:"user"`
}

func toUserDTO(u *store.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Name: u.Name}
}

// mountAuthRoutes registers /auth/* on the /api router.
func (s *Server) mountAuthRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Get("/me", s.handleMe)
	})
}

// handleSignup creates a user and returns a token for it.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		metrics.SignupsTotal.WithLabelValues("missing_fields").Inc()
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	var u *store.User
	err = s.store.InTx(r.Context(), func(tx store.Tx) error {
		taken, err := tx.EmailExists(r.Context(), req.Email)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrEmailInUse
		}
		// The unique index still decides a race between the check and the insert.
		u, err = tx.CreateUser(r.Context(), req.Email, hash, normalizeName(req.Name))
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailInUse) {
			metrics.SignupsTotal.WithLabelValues("email_in_use").Inc()
		} else {
			metrics.SignupsTotal.WithLabelValues("error").Inc()
		}
		s.writeError(w, r, err)
		return
	}

	tok, _, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	metrics.SignupsTotal.WithLabelValues("created").Inc()
	hlog.FromRequest(r).Info().Int64("user_id", u.ID).Msg("user signed up")
	writeJSON(w, http.StatusCreated, authResponse{Token: tok, User: toUserDTO(u)})
}

// handleLogin verifies credentials and returns a fresh token. Unknown email and
// wrong password produce the same response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		metrics.LoginsTotal.WithLabelValues("missing_fields").Inc()
		return
	}

	var u *store.User
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		var err error
		u, err = tx.UserByEmail(r.Context(), req.Email)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Burn the same derivation cost as a real check.
		auth.VerifyPassword(dummyHash(), req.Password)
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		s.writeError(w, r, errInvalidCredentials)
		return
	case err != nil:
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		s.writeError(w, r, errInvalidCredentials)
		return
	}

	tok, _, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: toUserDTO(u)})
}

// handleMe returns the profile of the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	me, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var u *store.User
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		var err error
		u, err = tx.UserByID(r.Context(), me.UserID)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: profileDTO{userDTO: toUserDTO(u), CreatedAt: u.CreatedAt}})
}

// decodeCredentials reads and validates a signup/login body. An unreadable body
// counts as missing fields. Writes the error response itself when it returns false.
func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsReq, bool) {
	var body credentialsBody
	if err := decodeJSON(w, r, &body); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("unreadable credentials body")
		body = credentialsBody{}
	}
	req := credentialsReq{
		Email:    normalizeEmail(body.Email),
		Password: body.Password,
		Name:     nameFromJSON(body.Name),
	}
	if err := s.validate.check(req); err != nil {
		hlog.FromRequest(r).Debug().Str("reason", err.Error()).Msg("rejected credentials")
		s.writeError(w, r, errMissingFields)
		return req, false
	}
	return req, true
}

// nameFromJSON accepts a string name as is and keeps numbers and booleans as
// their literal text. null, objects and arrays mean no name.
func nameFromJSON(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		return &x
	case float64, bool:
		n := string(raw)
		return &n
	default:
		return nil
	}
}

// decodeJSON decodes a size-limited request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// normalizeName trims the optional display name; blank becomes nil.
func normalizeName(n *string) *string {
	if n == nil {
		return nil
	}
	t := strings.TrimSpace(*n)
	if t == "" {
		return nil
	}
	return &t
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash is a real hash of a throwaway password, used to equalize login timing.
func dummyHash() string {
	dummyOnce.Do(func() {
		h, err := auth.HashPassword("timing-equalizer")
		if err != nil {
			return
		}
		dummy = h
	})
	return dummy
}
