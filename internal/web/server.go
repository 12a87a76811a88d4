// Package web provides the HTTP server: a JSON API over the employee store,
// the import and download endpoints, and the SSE hub that drives the
// browser table widgets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/staffgrid/internal/config"
	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/download"
	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/ingress"
	"github.com/JonMunkholm/staffgrid/internal/metrics"
	"github.com/JonMunkholm/staffgrid/internal/view"
	appmw "github.com/JonMunkholm/staffgrid/internal/web/middleware"
)

// Deps are the components the server exposes. Archive and Metrics are
// optional.
type Deps struct {
	Store    *core.Store
	Views    *view.SyncManager
	Hub      *Hub
	Ingress  *ingress.Ingress
	Importer *importer.Pipeline
	Archive  download.Sink
	Metrics  *metrics.Metrics
}

// Server is the HTTP server for the employee grid.
type Server struct {
	cfg      *config.Config
	store    *core.Store
	views    *view.SyncManager
	hub      *Hub
	ingress  *ingress.Ingress
	importer *importer.Pipeline
	archive  download.Sink
	metrics  *metrics.Metrics

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		views:    deps.Views,
		hub:      deps.Hub,
		ingress:  deps.Ingress,
		importer: deps.Importer,
		archive:  deps.Archive,
		metrics:  deps.Metrics,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Widget streams stay open; everything else gets a deadline.
		r.Get("/views/{viewID}/stream", s.handleViewStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			r.Use(middleware.Compress(5, "application/json", "text/csv"))

			// Records
			r.Get("/employees", s.handleListEmployees)
			r.Get("/employees/{id}", s.handleGetEmployee)
			r.Delete("/employees/{id}", s.handleDeleteEmployee)
			r.Post("/employees/{id}/cells", s.handleEditCells)
			r.Get("/departments", s.handleDepartments)

			// Modal dialog
			r.Get("/dialog", s.handleDialogState)
			r.Put("/dialog", s.handleDialogUpdate)
			r.Post("/dialog/new", s.handleDialogNew)
			r.Post("/dialog/edit/{id}", s.handleDialogEdit)
			r.Post("/dialog/save", s.handleDialogSave)
			r.Post("/dialog/cancel", s.handleDialogCancel)

			// Downloads
			r.Get("/export", s.handleExport)
			r.Get("/template", s.handleTemplate)

			// View lifecycle
			r.Get("/views", s.handleListViews)
			r.Post("/views/{viewID}/activate", s.handleActivateView)
			r.Post("/views/{viewID}/deactivate", s.handleDeactivateView)
			r.Post("/views/{viewID}/clear-filters", s.handleClearFilters)
			r.Post("/views/{viewID}/events", s.handleViewEvent)
		})

		// Imports have their own deadline and a tighter rate limit.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
				r.Use(newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
			}
			r.Post("/import", s.handleImport)
		})
	})
}

// Start listens on the configured address. It returns nil after Shutdown,
// including when Shutdown ran first.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. Open widget streams are closed
// first so they do not hold shutdown for the whole timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a fixed window limiter per client IP. Stale visitors are
// swept on the request path once per window.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate,
		window:    window,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		for k, v := range rl.visitors {
			if now.Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RemoteAddr is already rewritten by TrustedRealIP.
		if !rl.allow(appmw.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondErrorJSON(w, core.MapError(errRateLimited), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errors.New("rate limit exceeded")
