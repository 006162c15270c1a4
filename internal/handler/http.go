package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/metrics"
	"github.com/world-gallery/internal/service"
	"github.com/world-gallery/internal/view"
	"github.com/world-gallery/internal/websocket"
)

// WorldLookup finds a single world
type WorldLookup interface {
	GetWorld(ctx context.Context, worldID string) (*domain.World, error)
}

// DownloadSigner turns a stored world file location into a download link
type DownloadSigner interface {
	PresignURL(ctx context.Context, fileURL string) (string, error)
}

// ReadinessCheck reports whether a backing service is reachable
type ReadinessCheck func(ctx context.Context) error

// Dependencies groups the collaborators served over HTTP
type Dependencies struct {
	Gallery   *service.Gallery
	Reflector *service.AuthReflector
	Hub       *websocket.Hub
	Worlds    WorldLookup
	Downloads DownloadSigner
	Renderer  *view.Renderer
	Metrics   *metrics.Metrics
	Auth      *config.AuthConfig
	Pages     *config.GalleryConfig
	Checks    map[string]ReadinessCheck
}

// Handler provides the gallery pages and the JSON API
type Handler struct {
	gallery   *service.Gallery
	reflector *service.AuthReflector
	hub       *websocket.Hub
	worlds    WorldLookup
	downloads DownloadSigner
	renderer  *view.Renderer
	metrics   *metrics.Metrics
	auth      *config.AuthConfig
	pages     *config.GalleryConfig
	checks    map[string]ReadinessCheck
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies, logger *slog.Logger) *Handler {
	return &Handler{
		gallery:   deps.Gallery,
		reflector: deps.Reflector,
		hub:       deps.Hub,
		worlds:    deps.Worlds,
		downloads: deps.Downloads,
		renderer:  deps.Renderer,
		metrics:   deps.Metrics,
		auth:      deps.Auth,
		pages:     deps.Pages,
		checks:    deps.Checks,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(h.metricsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", h.metrics.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// Pages
	r.Get("/", h.GalleryPage)
	r.Get("/worlds", h.WorldsFragment)
	r.Get("/worlds/{worldID}/download", h.DownloadWorld)

	// Auth
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/user", h.CurrentUser)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/worlds", func(r chi.Router) {
			r.Get("/", h.ListWorlds)
			r.Get("/top", h.TopLiked)

			r.Route("/{worldID}", func(r chi.Router) {
				r.Post("/like", h.ToggleLike)
				r.Put("/like", h.Like)
				r.Delete("/like", h.Unlike)
				r.Get("/likes", h.GetLikeCount)
			})
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records every request under its route pattern
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.HTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// token returns the access token of the request: a bearer header wins over the session cookie
func (h *Handler) token(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(h.auth.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every backing service
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks)+1)
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			status[name] = "unavailable"
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		status["status"] = "not ready"
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    status,
			Error:   "service not ready",
		})
		return
	}
	status["status"] = "ready"
	h.writeSuccess(w, status)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.token(r), w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.hub.Stats())
}
