// Package api wires together all HTTP routes for the JWP Tracker backend.
//
// Route grouping philosophy:
//   - /health, /ready, /version and /api/v1/agencies are unauthenticated.
//     The agency listing feeds the login form's dropdown, so it has to be
//     reachable before a session exists; it exposes only agency names that
//     are already visible to every stakeholder in the plan itself.
//   - /api/v1/auth/* issues sessions and is naturally unauthenticated.
//   - Everything else under /api/v1/ requires a Bearer session token, and
//     the /api/v1/admin/ group additionally requires the admin role.
package api

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/audit"
	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/jobs"
	"github.com/yeryani-tests/joint-work-plan-app/internal/middleware"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	SnapshotJob *jobs.SnapshotJob
	AuditMirror *audit.MultiMirror
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained
// first; a save that is still appending audit rows may ship to the mirror
// right up to that point.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("shutting down background services")

	if bg.SnapshotJob != nil {
		bg.SnapshotJob.Stop()
		slog.Info("snapshot job stopped")
	}

	if bg.AuditMirror != nil {
		if err := bg.AuditMirror.Close(); err != nil {
			slog.Warn("audit mirror close failed", "error", err)
		} else {
			slog.Info("audit mirrors closed")
		}
	}

	slog.Info("background services shutdown complete")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, st store.TableStore) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize audit mirrors (no-op fan-out when none are configured)
	mirror, err := audit.NewMultiMirror(cfg.Audit.Mirrors)
	if err != nil {
		log.Fatalf("Failed to initialize audit mirrors: %v", err)
	}
	if mirror.Enabled() {
		slog.Info("audit mirroring enabled", "destinations", len(cfg.Audit.Mirrors))
	}

	// Initialize the periodic snapshot job
	var snapshotJob *jobs.SnapshotJob
	if cfg.Backup.Enabled {
		snapshotJob = jobs.NewSnapshotJob(st, []string{cfg.Store.MasterTable, cfg.Store.AuditTable}, cfg.Backup)
		snapshotJob.Start(context.Background(), cfg.Backup.Interval)
	}

	bg := &BackgroundServices{
		SnapshotJob: snapshotJob,
		AuditMirror: mirror,
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// System endpoints
	router.GET("/health", healthCheckHandler())
	router.GET("/ready", readinessHandler(st))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	{
		// Pre-auth agency listing for the login form
		apiV1.GET("/agencies", AgenciesHandler(st, cfg))

		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/login", LoginHandler(st, cfg))
			authGroup.POST("/admin", AdminLoginHandler(cfg))
		}

		sessionGroup := apiV1.Group("")
		sessionGroup.Use(middleware.AuthMiddleware())
		{
			sessionGroup.GET("/session", SessionHandler())
			sessionGroup.GET("/plan", PlanHandler(st, cfg))
			sessionGroup.PUT("/plan", SavePlanHandler(st, cfg, mirror))
		}

		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(middleware.AuthMiddleware(), middleware.RequireAdmin())
		{
			adminGroup.GET("/audit", AuditLogHandler(st, cfg))
			adminGroup.GET("/export", ExportHandler(st, cfg))
			adminGroup.POST("/import", ImportHandler(st, cfg))
		}
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the liveness status of the service. The record store is not consulted; use /ready for that.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Router       /health [get]
// healthCheckHandler returns the liveness status of the service
func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks record store connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error: record store not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this pings the record store so that a
// Kubernetes readiness gate fails when plan reads and saves would error.
func readinessHandler(st store.TableStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			checks["store"] = "unhealthy"
			ready = false
			slog.Warn("readiness check failed", "error", err)
		} else {
			checks["store"] = "healthy"
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "record store not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
