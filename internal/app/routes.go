package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"github.com/simp-lee/mqttbench/internal/view"
	"github.com/simp-lee/mqttbench/web"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	Routes     view.Table
	DB         *gorm.DB
	Mode       string // "debug" or "release"
	CSRFSecret string
	// RateLimit guards the JSON API when non-nil.
	RateLimit *middleware.RateLimitConfig
	// SlaveEvents serves the live slave status websocket when non-nil.
	SlaveEvents gin.HandlerFunc
}

// RegisterRoutes registers all application routes on the given gin.Engine.
// Every route of deps.Routes is bound to the view handler supplied by a
// module; the table is validated first and any violation aborts.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}

	views, err := collectViews(deps.Modules)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	if err := deps.Routes.Validate(ids); err != nil {
		return fmt.Errorf("route table: %w", err)
	}

	// Static assets
	if err := registerStaticRoutesWithError(r, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	r.GET("/health", healthHandler(deps.DB))

	// API routes, no CSRF
	api := r.Group("/api/v1")
	if deps.RateLimit != nil {
		api.Use(middleware.RateLimit(*deps.RateLimit))
	}
	if deps.SlaveEvents != nil {
		api.GET("/slaves/events", deps.SlaveEvents)
	}

	// Page routes, with CSRF
	pages := r.Group("/")
	pages.Use(middleware.CSRF(deps.CSRFSecret))

	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api, pages)
	}

	for _, route := range deps.Routes.All() {
		pages.GET(route.Path, views[route.View])
	}

	r.NoRoute(noRouteHandler())

	return nil
}

// collectViews merges the views of every module. A view offered twice is
// an error.
func collectViews(modules []Module) (map[string]gin.HandlerFunc, error) {
	views := make(map[string]gin.HandlerFunc)
	for _, m := range modules {
		vp, ok := m.(ViewProvider)
		if !ok {
			continue
		}
		for id, h := range vp.Views() {
			if _, dup := views[id]; dup {
				return nil, fmt.Errorf("view %q provided by more than one module", id)
			}
			if h == nil {
				return nil, fmt.Errorf("view %q has no handler", id)
			}
			views[id] = h
		}
	}
	return views, nil
}

// healthHandler returns a handler that pings the database and reports status.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if err := pingDB(c.Request.Context(), db); err != nil {
			status, code = "error", http.StatusServiceUnavailable
		}
		overall := "ok"
		if code != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(code, gin.H{
			"status": overall,
			"components": gin.H{
				"database": status,
			},
		})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// noRouteHandler returns a handler that renders a 404 HTML page for browser
// requests or a JSON response for API clients. Paths outside the route
// table are never redirected to a view.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}

		renderError(c, http.StatusNotFound, "not found")
	}
}

func registerStaticRoutesWithError(r *gin.Engine, mode string) error {
	if mode == "debug" {
		debugStaticFS, err := resolveDebugStaticFS()
		if err != nil {
			return fmt.Errorf("resolve debug static filesystem: %w", err)
		}
		fileServer := http.StripPrefix("/static", http.FileServer(http.FS(debugStaticFS)))
		r.GET("/static/*filepath", func(c *gin.Context) {
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
		return nil
	}

	// Release mode: serve from embed.FS with cache headers.
	staticFS, err := fs.Sub(web.EmbeddedFS, "static")
	if err != nil {
		return fmt.Errorf("create sub filesystem for static assets: %w", err)
	}
	r.GET("/static/*filepath", cacheStaticHandler(http.FS(staticFS)))
	return nil
}

func resolveDebugStaticFS() (fs.FS, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("resolve current file path")
	}

	projectRoot := filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", ".."))
	staticDir := filepath.Join(projectRoot, "web", "static")
	if _, err := os.Stat(staticDir); err != nil {
		return nil, fmt.Errorf("stat static directory %q: %w", staticDir, err)
	}

	return os.DirFS(staticDir), nil
}

// cacheStaticHandler wraps an http.FileSystem handler and sets a
// Cache-Control header for release mode static assets.
func cacheStaticHandler(fsys http.FileSystem) gin.HandlerFunc {
	fileServer := http.StripPrefix("/static", http.FileServer(fsys))
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
