// Package httpapi is the thin REST/WS gateway translator (spec §4.J):
// validates the symbol, delegates to a cache-first lookup, serves JSON
// responses. Grounded on the teacher's internal/interfaces/http/server.go
// (gorilla/mux router, the same requestID/logging/timeout/CORS/JSON
// middleware chain and responseWrapper status-capture pattern), generalized
// from a read-only candidates/explain/regime surface to this service's
// analysis/diagnostics/auth routes plus a gorilla/websocket /ws/market
// upgrade.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/indexpulse/internal/auth"
	"github.com/sawpanic/indexpulse/internal/cache"
	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/fanout"
	"github.com/sawpanic/indexpulse/internal/ingest"
	"github.com/sawpanic/indexpulse/internal/obsmetrics"
)

// Diagnostics is the narrow seam the gateway needs from the Ingest
// Supervisor for /api/diagnostics routes.
type Diagnostics interface {
	State() ingest.State
	LastTickAge(sym domain.Symbol) (time.Duration, bool)
	ForceReconnect()
}

// Server is the REST/WS gateway.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	cache       cache.Cache
	hub         *fanout.Hub
	diag        Diagnostics
	verifier    auth.Verifier
	metrics     *obsmetrics.Registry
	accessToken func(token string)
}

// Config configures the gateway's bind address.
type Config struct {
	Host string
	Port int
}

// New builds the gateway, wiring routes and middleware.
func New(cfg Config, c cache.Cache, hub *fanout.Hub, diag Diagnostics, verifier auth.Verifier, metrics *obsmetrics.Registry, setAccessToken func(token string)) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		cache:       c,
		hub:         hub,
		diag:        diag,
		verifier:    verifier,
		metrics:     metrics,
		accessToken: setAccessToken,
	}
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/api/analysis/analyze/{symbol}", s.handleAnalyze).Methods("GET")
	api.HandleFunc("/api/analysis/market-outlook/all", s.handleOutlookAll).Methods("GET")
	api.HandleFunc("/api/analysis/market-outlook/{symbol}", s.handleOutlook).Methods("GET")
	api.HandleFunc("/api/analysis/trading-decision/all", s.handleDecisionAll).Methods("GET")
	api.HandleFunc("/api/analysis/trading-decision/{symbol}", s.handleDecision).Methods("GET")

	api.HandleFunc("/api/diagnostics/connection-health", s.handleConnectionHealth).Methods("GET")

	protected := api.PathPrefix("/api/diagnostics").Subrouter()
	protected.Use(auth.Middleware(s.verifier, s.writeError))
	protected.HandleFunc("/force-reconnect", s.handleForceReconnect).Methods("POST")

	api.HandleFunc("/api/auth/login-url", s.handleLoginURL).Methods("GET")
	api.HandleFunc("/api/auth/set-token", s.handleSetToken).Methods("POST")

	s.router.HandleFunc("/ws/market", s.handleWSUpgrade)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// ListenAndServe starts the gateway. Blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("starting REST/WS gateway")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the gateway.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware, grounded on the teacher's server.go chain ---

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
