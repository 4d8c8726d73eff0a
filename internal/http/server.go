// Package http exposes the ledger, budget, settings, overview and
// generation operations as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"kontor/internal/cache"
	applog "kontor/internal/log"
	"kontor/internal/services"
)

// Server wraps http.Server with the service handles and the derived
// overview cache.
type Server struct {
	http.Server

	ledger    *services.LedgerService
	generator *services.TaxGenerator

	overviewCache *cache.LRUCache[services.Overview]
	cacheManager  *cache.Manager
	rateLimiter   *rateLimiter
	shutdownOnce  sync.Once
}

// Options tunes the server beyond its service dependencies.
type Options struct {
	Addr      string
	CacheSize int
	CacheTTL  time.Duration
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(opts Options, ledger *services.LedgerService, generator *services.TaxGenerator) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		ledger:        ledger,
		generator:     generator,
		overviewCache: cache.NewLRUCache[services.Overview](opts.CacheSize, opts.CacheTTL),
		cacheManager:  cache.NewManager(),
		rateLimiter:   newRateLimiter(),
	}

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/entries", s.withMiddleware(s.handleCreateEntry))
	mux.HandleFunc("GET /api/entries", s.withMiddleware(s.handleListEntries))
	mux.HandleFunc("GET /api/entries/{id}", s.withMiddleware(s.handleGetEntry))
	mux.HandleFunc("DELETE /api/entries/{id}", s.withMiddleware(s.handleDeleteEntry))

	mux.HandleFunc("GET /api/budgets", s.withMiddleware(s.handleListDefinitions))
	mux.HandleFunc("POST /api/budgets", s.withMiddleware(s.handleCreateDefinition))
	mux.HandleFunc("PUT /api/budgets/{id}", s.withMiddleware(s.handleUpdateDefinition))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.withMiddleware(s.handleDeleteDefinition))

	mux.HandleFunc("GET /api/settings", s.withMiddleware(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.withMiddleware(s.handleUpdateSettings))

	mux.HandleFunc("GET /api/overview", s.withMiddleware(s.handleOverview))
	mux.HandleFunc("GET /api/overview/annual/{id}", s.withMiddleware(s.handleAnnualItemEntries))

	mux.HandleFunc("POST /api/generation/employer-tax", s.withMiddleware(s.handleGenerateEmployerTax))
	mux.HandleFunc("POST /api/generation/employer-tax/cleanup", s.withMiddleware(s.handleCleanupEmployerTax))
	mux.HandleFunc("POST /api/generation/vat", s.withMiddleware(s.handleGenerateVat))
	mux.HandleFunc("POST /api/generation/vat/cleanup", s.withMiddleware(s.handleCleanupVat))

	return s
}

// withMiddleware adds request IDs, rate limiting, security headers and
// request logging around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := uuid.NewString()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		fields := applog.NewFields().
			WithComponent(applog.ComponentHTTP).
			WithRequestID(requestID).
			WithClientIP(clientIP).
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"))

		slog.InfoContext(ctx, "Request started", fields.ToSlice()...)

		// Rate limit mutations only; reads are cheap and cached.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		fields.WithHTTPResponse(rw.statusCode, duration.Milliseconds(), rw.statusCode < 400)
		slog.InfoContext(ctx, "Request completed", fields.ToSlice()...)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()

		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
