package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browsercontext/internal/browser"
	"github.com/shehryarbajwa/browsercontext/internal/metrics"
	"github.com/shehryarbajwa/browsercontext/internal/proxy"
	"github.com/shehryarbajwa/browsercontext/internal/ratelimit"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	browser *browser.Browser
	logger  *log.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(b *browser.Browser, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Handler{
		browser: b,
		logger:  logger,
	}
}

// RouterOptions carries the optional pieces of the router
type RouterOptions struct {
	Proxy       *proxy.Server
	Limiter     *ratelimit.Limiter
	RatePerHour int
	Metrics     *metrics.Metrics
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	// preflight for every path, answered by corsMiddleware
	r.Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Context endpoints (rate limited)
	limited := api.PathPrefix("/contexts").Subrouter()
	if opts.Limiter != nil {
		limited.Use(RateLimitMiddleware(opts.Limiter, opts.RatePerHour))
	}

	limited.HandleFunc("", h.CreateContext).Methods("POST")
	limited.HandleFunc("", h.ListContexts).Methods("GET")
	limited.HandleFunc("/{id}", h.GetContext).Methods("GET")
	limited.HandleFunc("/{id}", h.DeleteContext).Methods("DELETE")

	limited.HandleFunc("/{id}/cookies", h.GetCookies).Methods("GET")
	limited.HandleFunc("/{id}/cookies", h.SetCookies).Methods("POST")
	limited.HandleFunc("/{id}/cookies", h.ClearCookies).Methods("DELETE")

	limited.HandleFunc("/{id}/geolocation", h.SetGeolocation).Methods("PUT")
	limited.HandleFunc("/{id}/permissions", h.GrantPermissions).Methods("POST")
	limited.HandleFunc("/{id}/permissions", h.ClearPermissions).Methods("DELETE")

	limited.HandleFunc("/{id}/pages", h.ListPages).Methods("GET")
	limited.HandleFunc("/{id}/pages", h.NewPage).Methods("POST")

	limited.HandleFunc("/{id}/storage-state", h.SaveStorageState).Methods("POST")

	// DevTools proxy (not rate limited - long lived)
	if opts.Proxy != nil {
		api.HandleFunc("/devtools", opts.Proxy.HandleDevTools).Methods("GET")
	}

	r.Use(loggingMiddleware(h.logger))
	// CORS middleware
	r.Use(corsMiddleware)

	return r
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"engine":   h.browser.EngineName(),
		"contexts": len(h.browser.List()),
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+ratelimit.ClientHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
