package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/useless-store/scoreboard/internal/store"
)

// apiError is an error with a fixed status and client-facing code.
type apiError struct {
	Status int
	Code   string
}

func (e *apiError) Error() string { return e.Code }

var (
	errMissingFields      = &apiError{http.StatusBadRequest, "missing_fields"}
	errInvalidScore       = &apiError{http.StatusBadRequest, "invalid_score"}
	errInvalidCredentials = &apiError{http.StatusUnauthorized, "invalid_credentials"}
	errInvalidToken       = &apiError{http.StatusUnauthorized, "invalid_token"}
	errNotFound           = &apiError{http.StatusNotFound, "not_found"}
	errMethodNotAllowed   = &apiError{http.StatusMethodNotAllowed, "method_not_allowed"}
	errEmailInUse         = &apiError{http.StatusConflict, "email_in_use"}
	errInternal           = &apiError{http.StatusInternalServerError, "internal_error"}
)

// errorResponse is the envelope for every API error.
type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// writeError maps err onto an apiError and renders {"error": code}.
// Unclassified errors are logged and reported as internal_error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
	case errors.Is(err, store.ErrEmailInUse):
		ae = errEmailInUse
	case errors.Is(err, store.ErrNotFound):
		ae = errNotFound
	default:
		hlog.FromRequest(r).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		ae = errInternal
	}
	writeJSON(w, ae.Status, errorResponse{Error: ae.Code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoverer turns a panic into a logged 500 with the standard error body. When
// the handler already started its response, the panic is only logged.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlog.FromRequest(r).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Int("status_written", ww.Status()).
				Msg("recovered from panic")
			if ww.Status() == 0 {
				writeJSON(ww, http.StatusInternalServerError, errorResponse{Error: errInternal.Code})
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
