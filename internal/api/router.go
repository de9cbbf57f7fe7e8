package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/world"
)

// ControllerInterface defines the spawner controller methods used by the API.
// This interface enables mocking for tests without a host scene.
// Keep this minimal - only include methods the API layer actually calls.
type ControllerInterface interface {
	// Stats returns the status served by /api/stats and the websocket
	Stats() world.Stats
	// Regions lists regions, optionally only those holding spawners
	Regions(populatedOnly bool) []world.RegionInfo
	// Spawner looks up one spawner (world.ErrNotFound when unknown)
	Spawner(id world.SpawnerID) (world.SpawnerInfo, error)
	// Nearest finds the closest spawner of a kind to a world point
	Nearest(kind world.Kind, worldPoint mgl64.Vec3, maxRange float64) (world.SpawnerInfo, bool)
	// Snapshot collects what the minimap draws
	Snapshot() world.MapSnapshot
	// Journal returns the diagnostic event log
	Journal() *world.Journal

	Snipe(ctx context.Context, origin, direction mgl64.Vec3, tpl world.Template) world.ActionResult
	Paint(ctx context.Context, id world.SpawnerID, props world.LightProperties) world.ActionResult
	Delete(ctx context.Context, id world.SpawnerID) world.ActionResult
	Undo(ctx context.Context) world.ActionResult

	BeginGroup(name string) world.ActionResult
	EndGroup() world.ActionResult
	EnableGroups(pattern string, enabled bool) world.ActionResult
	KillOrphans(d time.Duration) world.ActionResult
	FreeOrphans(d time.Duration) world.ActionResult
	Rescan() int
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Controller: ctrl,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Controller is the spawner controller (required)
	Controller ControllerInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// StaticFilesDir is the directory the editor panel is served from.
	// If empty, defaults to "./editor".
	StaticFilesDir string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	ctrl ControllerInterface
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE - it has no side effects:
//   - No goroutines are started
//   - No network listeners are opened
//
// This makes it safe to use in tests with httptest.NewServer.
// The rate limiter created here when RateLimiter is nil does run a cleanup
// goroutine; pass RateLimiter explicitly to control its lifetime.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = GetRateLimiterFromRouter(cfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{ctrl: cfg.Controller}

	r.Route("/api", func(r chi.Router) {
		// Status
		r.Get("/stats", h.handleGetStats)
		r.Get("/regions", h.handleGetRegions)
		r.Get("/nearest", h.handleGetNearest)
		r.Get("/journal", h.handleGetJournal)
		r.Get("/spawners/{id}", h.handleGetSpawner)

		// Placement commands
		r.Post("/snipe", h.handleSnipe)
		r.Post("/paint", h.handlePaint)
		r.Post("/delete", h.handleDelete)
		r.Post("/undo", h.handleUndo)

		// Groups
		r.Route("/groups", func(r chi.Router) {
			r.Post("/begin", h.handleGroupBegin)
			r.Post("/end", h.handleGroupEnd)
			r.Post("/enable", h.handleGroupEnable)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Post("/orphans/kill", h.handleKillOrphans)
			r.Post("/orphans/free", h.handleFreeOrphans)
			r.Post("/rescan", h.handleRescan)
		})

		r.Get("/debug/map.png", h.handleMapImage)
	})

	// Serve static files for the editor panel
	staticDir := cfg.StaticFilesDir
	if staticDir == "" {
		staticDir = "./editor"
	}
	r.Handle("/editor/*", http.StripPrefix("/editor/", http.FileServer(http.Dir(staticDir))))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/editor/", http.StatusFound)
	})

	return r
}

// GetRateLimiterFromRouter returns the limiter a config would use.
// This is useful for tests that need to verify rate limiting behavior.
func GetRateLimiterFromRouter(cfg RouterConfig) *IPRateLimiter {
	if cfg.RateLimiter != nil {
		return cfg.RateLimiter
	}
	rateLimitCfg := DefaultRateLimitConfig
	if cfg.RateLimitConfig != nil {
		rateLimitCfg = *cfg.RateLimitConfig
	}
	return NewIPRateLimiter(rateLimitCfg)
}
