// @title           JWP Tracker API
// @version         1.0.0
// @description     Joint Work Plan tracker backend: agency-scoped plan editing, row-level change auditing, and admin CSV import/export
// @contact.name    Support
// @contact.email   support@example.com
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "Session token issued by POST /api/v1/auth/login or POST /api/v1/auth/admin. Format: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Authentication
// @tag.description  Stakeholder and admin session issuance.
//
// @tag.name         Plan
// @tag.description  Agency-scoped reads and saves of the joint work plan.
//
// @tag.name         Admin
// @tag.description  Audit log access and CSV import/export. Requires an admin session.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. This keeps the scrape path off the public ingress and avoids rate-limiting middleware. Configure the port with JWP_TELEMETRY_METRICS_PORT. The endpoint path is always GET /metrics. pprof (if enabled via JWP_TELEMETRY_PROFILING_ENABLED=true) is served on JWP_TELEMETRY_PROFILING_PORT (default: 6060) at the standard /debug/pprof/ paths. Neither endpoint is part of the OpenAPI spec because they are not served by the Gin router.

// Package main is the entry point for the JWP Tracker server binary.
// It dispatches three subcommands — serve, migrate, and version — via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command constructs the
// configured table store, and SQL-backed stores run auto-migration on startup,
// so freshly deployed containers never need a separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is NOT served on the main API listener (Gin router).

	// It only serves on a dedicated internal port when cfg.Telemetry.Profiling.Enabled=true.
	// DefaultServeMux is never passed to the Gin HTTP server.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeryani-tests/joint-work-plan-app/internal/api"
	"github.com/yeryani-tests/joint-work-plan-app/internal/auth"
	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store/postgres"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"

	// Register the table store backends so config selection by name works.
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/azure"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/file"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/gcs"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/s3"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/sqlite"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// Load configuration
	configPath := os.Getenv("JWP_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("JWP Tracker v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	// Re-apply the level when the config file changes on disk.
	cfg.WatchLogging(func(lc config.LoggingConfig) {
		telemetry.SetLevel(lc.Level)
	})

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate session secret configuration (fails in production if not set)
	if err := auth.ValidateSessionSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	log.Println("Session secret validated successfully")

	// Debug: Print store configuration (mask admin password)
	maskedPassword := "(not set)"
	if cfg.Auth.AdminPassword != "" {
		maskedPassword = cfg.Auth.AdminPassword[:1] + "****"
	}
	log.Printf("Store config: backend=%s, master=%s, audit=%s", // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
		cfg.Store.Backend, cfg.Store.MasterTable, cfg.Store.AuditTable)
	log.Printf("Admin password: %s", maskedPassword) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
	if cfg.Auth.AdminPassword == "" {
		log.Println("Warning: auth.admin_password is not set; admin login is disabled")
	}

	// Open the table store. SQL backends run their schema migrations here and
	// begin exporting pool statistics to Prometheus.
	st, err := store.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open table store: %w", err)
	}
	defer st.Close()

	log.Println("Table store opened successfully")

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.Port)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			// Use http.Server with timeouts (G114: bare http.ListenAndServe has no timeout support).
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Start pprof endpoint on its own port (disabled in production by default).
	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			// net/http/pprof registers its handlers on http.DefaultServeMux at init time.
			// Use http.Server with timeouts (G114: bare http.ListenAndServe has no timeout support).
			srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port, long timeouts acceptable
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux, // #nosec G108 -- not the main listener; pprof-only internal port
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}

	// Create router
	router, bgServices := api.NewRouter(cfg, st)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.GetAddress())
		log.Printf("Base URL: %s", cfg.Server.BaseURL)
		log.Printf("Store backend: %s", cfg.Store.Backend)
		log.Println("Server is ready to accept connections")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop the snapshot job and close audit mirrors
	bgServices.Shutdown()

	log.Println("Server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("migrate requires the postgres backend, current backend is %q", cfg.Store.Backend)
	}

	// Connect to database
	database, err := postgres.Connect(cfg.Store.Postgres.GetDSN(), cfg.Store.Postgres.MaxConnections, cfg.Store.Postgres.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input

	// Run migrations
	if err := postgres.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Get current version
	version, dirty, err := postgres.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
	return nil
}
