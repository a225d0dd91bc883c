// internal/httpserver/server.go
//
// HTTP server wiring for the scoreboard backend.
// Responsibilities:
//   - Router + middleware (request ids, access log, panic recovery, metrics).
//   - /api subtree: JSON responses, CORS, optional bearer identity.
//   - Auth endpoints (routes_auth.go) and score endpoints (routes_scores.go).
//   - Everything else: static files from the configured root (static.go).
//
// Notes:
//   - Identity is optional at the middleware level; handlers that need a user
//     reject anonymous requests themselves.
//   - Each handler runs its store calls in one transaction (store.InTx).

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/useless-store/scoreboard/internal/auth"
	"github.com/useless-store/scoreboard/internal/metrics"
	"github.com/useless-store/scoreboard/internal/store"
)

const (
	recentLimit      = 20
	leaderboardLimit = 20
	maxBodyBytes     = 1 << 20
)

// Deps are the process-scoped collaborators handed to the server.
type Deps struct {
	Store          store.Store
	Tokens         *auth.Tokens
	StaticDir      string
	AllowedOrigins []string // "*" allows any origin
	Metrics        bool     // expose /metrics
	Logger         zerolog.Logger
}

// Server bundles the router with its dependencies.
type Server struct {
	r         *chi.Mux
	store     store.Store
	tokens    *auth.Tokens
	staticDir string
	validate  *requestValidator
	log       zerolog.Logger
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	s := &Server{
		r:         chi.NewRouter(),
		store:     d.Store,
		tokens:    d.Tokens,
		staticDir: d.StaticDir,
		validate:  newRequestValidator(),
		log:       d.Logger,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(hlog.NewHandler(s.log))
	s.r.Use(requestIDLogger)
	s.r.Use(hlog.AccessHandler(logAccess))
	s.r.Use(s.recoverer)
	s.r.Use(instrument)

	s.r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: originsOrAny(d.AllowedOrigins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(jsonContentType)
		r.Use(s.withIdentity)

		r.Get("/health", s.handleHealth)
		r.Get("/health/ready", s.handleReady)

		s.mountAuthRoutes(r)
		s.mountScoreRoutes(r)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) { s.writeError(w, r, errNotFound) })
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { s.writeError(w, r, errMethodNotAllowed) })
	})

	if d.Metrics {
		s.r.Handle("/metrics", promhttp.Handler())
	}

	s.mountStatic()
	return s
}

// Handler exposes the router (used by tests and Start).
func (s *Server) Handler() http.Handler { return s.r }

// Start serves HTTP on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ------------------------------ health -------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleReady pings the store; 503 when it is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("store ping failed")
		writeJSON(w, http.StatusServiceUnavailable, okResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on /api responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// requestIDLogger tags the request logger with chi's request id.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func logAccess(r *http.Request, status, size int, d time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("ip", r.RemoteAddr).
		Int("status", status).
		Int("size", size).
		Dur("duration", d).
		Msg("request")
}

// instrument records request counts and latency by chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "static"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" && p != "/*" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func originsOrAny(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
