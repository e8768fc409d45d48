package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/showtrack/internal/handler"
	"github.com/dukerupert/showtrack/internal/middleware"
	"github.com/dukerupert/showtrack/internal/provider"
	"github.com/dukerupert/showtrack/internal/reconcile"
	"github.com/dukerupert/showtrack/internal/store"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	DB            *sql.DB
	Users         *store.UserStore
	Notifications *store.NotificationStore
	Preferences   *store.PreferenceStore
	Shows         *store.ShowStore
	Settings      *store.SettingsStore
	Driver        *reconcile.Driver
	// Search may be nil when no metadata API key is configured.
	Search handler.Searcher
}

type Options struct {
	Region    string
	RateLimit float64
	RateBurst int
}

type Server struct {
	db            *sql.DB
	users         *store.UserStore
	notificationH *handler.NotificationHandler
	preferenceH   *handler.PreferenceHandler
	showH         *handler.ShowHandler
	providerH     *handler.ProviderHandler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	catalogue := provider.NewCatalogue(deps.Settings)
	region := opts.Region
	if region == "" {
		region = "US"
	}

	var rl *middleware.RateLimiter
	if opts.RateLimit > 0 {
		rl = middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst)
	}

	return &Server{
		db:            deps.DB,
		users:         deps.Users,
		notificationH: handler.NewNotificationHandler(deps.Notifications, logger),
		preferenceH:   handler.NewPreferenceHandler(deps.Preferences, logger),
		showH:         handler.NewShowHandler(deps.Shows, deps.Driver, deps.Search, catalogue, region, logger),
		providerH:     handler.NewProviderHandler(catalogue, logger),
		rateLimiter:   rl,
		logger:        logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.registerProtectedRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

// protect wraps h with bearer authentication and, when configured, per-IP
// rate limiting. Routes stay on one mux so the request logger sees the
// matched pattern.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	wrapped := middleware.RequireAuth(s.users)(h)
	if s.rateLimiter != nil {
		wrapped = middleware.RateLimit(s.rateLimiter, middleware.RealIP)(wrapped)
	}
	return wrapped
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.protect(middleware.RequireAdmin(h).ServeHTTP)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Notification feed
	mux.Handle("GET /api/notifications", s.protect(s.notificationH.List))
	mux.Handle("GET /api/notifications/unread-count", s.protect(s.notificationH.UnreadCount))
	mux.Handle("POST /api/notifications/read-all", s.protect(s.notificationH.MarkAllRead))
	mux.Handle("POST /api/notifications/{id}/read", s.protect(s.notificationH.MarkRead))
	mux.Handle("DELETE /api/notifications/{id}", s.protect(s.notificationH.Delete))

	mux.Handle("GET /api/preferences", s.protect(s.preferenceH.Get))
	mux.Handle("PATCH /api/preferences", s.protect(s.preferenceH.Update))

	// Tracked shows
	mux.Handle("GET /api/shows", s.protect(s.showH.List))
	mux.Handle("POST /api/shows", s.protect(s.showH.Add))
	mux.Handle("DELETE /api/shows/{id}", s.protect(s.showH.Remove))
	mux.Handle("POST /api/shows/reconcile", s.protect(s.showH.Reconcile))
	mux.Handle("GET /api/search", s.protect(s.showH.Search))

	// Provider catalogue; changes are admin only
	mux.Handle("GET /api/providers", s.protect(s.providerH.List))
	mux.Handle("PUT /api/providers/{name}/logo", s.admin(s.providerH.SetLogo))
	mux.Handle("DELETE /api/providers/{name}/logo", s.admin(s.providerH.ClearLogo))
	mux.Handle("DELETE /api/providers/{name}", s.admin(s.providerH.Remove))
	mux.Handle("POST /api/providers/{name}/restore", s.admin(s.providerH.Restore))
}

// CleanupRateLimiter drops idle rate limit buckets every interval until ctx
// ends.
func (s *Server) CleanupRateLimiter(ctx context.Context, interval time.Duration) {
	if s.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup(interval)
		}
	}
}
