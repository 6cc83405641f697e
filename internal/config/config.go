// Package config loads and validates the tracker configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the JWP_ prefix (e.g., JWP_STORE_BACKEND
// overrides store.backend in the YAML), so the same binary runs with a
// config.yaml in local development and with pure environment variables in
// containerized deployments.
//
// The ADMIN_PASSWORD variable is honored without the JWP_ prefix because it may
// be injected by infrastructure tooling that treats it as a generic secret name
// and does not know the application-specific prefix.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Audit     AuditConfig     `mapstructure:"audit"`

	// fileUsed is the config file Load resolved, empty when running on
	// defaults and environment variables only.
	fileUsed string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// DevMode relaxes secret requirements and enables development
	// affordances. Never enable in production.
	DevMode bool `mapstructure:"dev_mode"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects and parameterizes the record store backend.
type StoreConfig struct {
	// Backend is one of: file, postgres, sqlite, s3, gcs, azure.
	Backend string `mapstructure:"backend"`
	// MasterTable is the table holding the work plan rows.
	MasterTable string `mapstructure:"master_table"`
	// AuditTable is the append-only change log table.
	AuditTable string `mapstructure:"audit_table"`

	File     FileStoreConfig     `mapstructure:"file"`
	Postgres PostgresStoreConfig `mapstructure:"postgres"`
	SQLite   SQLiteStoreConfig   `mapstructure:"sqlite"`
	S3       S3StoreConfig       `mapstructure:"s3"`
	GCS      GCSStoreConfig      `mapstructure:"gcs"`
	Azure    AzureStoreConfig    `mapstructure:"azure"`
}

// FileStoreConfig holds filesystem store configuration. Each table is
// one CSV file under Dir.
type FileStoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// PostgresStoreConfig holds PostgreSQL store configuration
type PostgresStoreConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *PostgresStoreConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SQLiteStoreConfig holds SQLite store configuration
type SQLiteStoreConfig struct {
	Path string `mapstructure:"path"`
}

// S3StoreConfig holds S3-compatible object store configuration. Each
// table is one CSV object in the bucket.
type S3StoreConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO and friends)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	// Prefix is prepended to every object key.
	Prefix string `mapstructure:"prefix"`

	// Authentication method: "default", "static", "assume_role"
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`
}

// GCSStoreConfig holds Google Cloud Storage configuration
type GCSStoreConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	// CredentialsFile is the path to a service account JSON key file;
	// CredentialsJSON carries the key inline. Leaving both empty uses
	// Application Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

// AzureStoreConfig holds Azure Blob Storage configuration
type AzureStoreConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	Prefix        string `mapstructure:"prefix"`
}

// AuthConfig holds login configuration. The admin password is compared
// in plain text; this tool intentionally has no user database.
type AuthConfig struct {
	AdminPassword string        `mapstructure:"admin_password"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// PlanConfig names the structural columns of the work plan table.
type PlanConfig struct {
	// AgencyColumn scopes stakeholder visibility and editing.
	AgencyColumn string `mapstructure:"agency_column"`
	// ActivityColumn labels rows in the audit log.
	ActivityColumn string `mapstructure:"activity_column"`
	// TimestampColumn is stamped on every saved change.
	TimestampColumn string `mapstructure:"timestamp_column"`
	// TimestampFormat is a Go reference layout.
	TimestampFormat string `mapstructure:"timestamp_format"`
	// EditableColumns are the fields stakeholders may change.
	EditableColumns []string `mapstructure:"editable_columns"`
	// RequiredColumns must be present in every imported master CSV.
	RequiredColumns []string `mapstructure:"required_columns"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ProfilingConfig holds pprof configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BackupConfig holds the periodic snapshot job configuration.
type BackupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Dir      string        `mapstructure:"dir"`
	// Keep is how many snapshots to retain per table.
	Keep int `mapstructure:"keep"`
}

// AuditConfig configures forwarding of audit entries to destinations
// outside the record store.
type AuditConfig struct {
	Mirrors []AuditMirrorConfig `mapstructure:"mirrors"`
}

// AuditMirrorConfig holds configuration for a single audit mirror
type AuditMirrorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook mirror configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file mirror configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with
// zero keys; every key here is a non-empty hardcoded string, so any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",
		"server.dev_mode",

		// Store
		"store.backend",
		"store.master_table",
		"store.audit_table",
		"store.file.dir",
		"store.postgres.host",
		"store.postgres.port",
		"store.postgres.name",
		"store.postgres.user",
		"store.postgres.password",
		"store.postgres.ssl_mode",
		"store.postgres.max_connections",
		"store.postgres.min_idle_connections",
		"store.sqlite.path",
		"store.s3.endpoint",
		"store.s3.region",
		"store.s3.bucket",
		"store.s3.prefix",
		"store.s3.auth_method",
		"store.s3.access_key_id",
		"store.s3.secret_access_key",
		"store.s3.role_arn",
		"store.s3.role_session_name",
		"store.s3.external_id",
		"store.gcs.bucket",
		"store.gcs.prefix",
		"store.gcs.credentials_file",
		"store.gcs.credentials_json",
		"store.gcs.endpoint",
		"store.azure.account_name",
		"store.azure.account_key",
		"store.azure.container_name",
		"store.azure.prefix",

		// Auth
		"auth.admin_password",
		"auth.session_ttl",

		// Plan
		"plan.agency_column",
		"plan.activity_column",
		"plan.timestamp_column",
		"plan.timestamp_format",
		"plan.editable_columns",
		"plan.required_columns",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Backup
		"backup.enabled",
		"backup.interval",
		"backup.dir",
		"backup.keep",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/jwp-tracker")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("JWP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.fileUsed = v.ConfigFileUsed()

	// Expand environment variables in sensitive fields
	cfg.Store.Postgres.Password = expandEnv(cfg.Store.Postgres.Password)
	cfg.Store.S3.AccessKeyID = expandEnv(cfg.Store.S3.AccessKeyID)
	cfg.Store.S3.SecretAccessKey = expandEnv(cfg.Store.S3.SecretAccessKey)
	cfg.Store.Azure.AccountKey = expandEnv(cfg.Store.Azure.AccountKey)
	cfg.Auth.AdminPassword = expandEnv(cfg.Auth.AdminPassword)

	// The original deployment configures the admin password as a bare
	// ADMIN_PASSWORD variable; honor it when the prefixed forms are unset.
	if cfg.Auth.AdminPassword == "" {
		cfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.dev_mode", false)

	// Store defaults
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.master_table", "Sheet1")
	v.SetDefault("store.audit_table", "Audit_Log")
	v.SetDefault("store.file.dir", "./data")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.name", "jwp_tracker")
	v.SetDefault("store.postgres.user", "jwp")
	v.SetDefault("store.postgres.ssl_mode", "require")
	v.SetDefault("store.postgres.max_connections", 25)
	v.SetDefault("store.postgres.min_idle_connections", 5)
	v.SetDefault("store.sqlite.path", "./data/jwp.db")
	v.SetDefault("store.s3.auth_method", "default")
	v.SetDefault("store.s3.role_session_name", "jwp-tracker")

	// Auth defaults
	v.SetDefault("auth.session_ttl", "12h")

	// Plan defaults: the canonical work plan layout
	v.SetDefault("plan.agency_column", "Agency")
	v.SetDefault("plan.activity_column", "Activity")
	v.SetDefault("plan.timestamp_column", "Last Updated")
	v.SetDefault("plan.timestamp_format", "2006-01-02 15:04:05")
	v.SetDefault("plan.editable_columns", []string{
		"End Date", "Budget Spent", "Progress / Achievement to Date",
	})
	v.SetDefault("plan.required_columns", []string{
		"Outcome", "Sub-Output", "Agency", "Activity",
	})

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", "24h")
	v.SetDefault("backup.dir", "./backups")
	v.SetDefault("backup.keep", 7)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	validBackends := map[string]bool{
		"file": true, "postgres": true, "sqlite": true,
		"s3": true, "gcs": true, "azure": true,
	}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (must be file, postgres, sqlite, s3, gcs, or azure)", c.Store.Backend)
	}
	if c.Store.MasterTable == "" {
		return fmt.Errorf("store.master_table is required")
	}
	if c.Store.AuditTable == "" {
		return fmt.Errorf("store.audit_table is required")
	}
	if c.Store.MasterTable == c.Store.AuditTable {
		return fmt.Errorf("store.master_table and store.audit_table must differ")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.File.Dir == "" {
			return fmt.Errorf("store.file.dir is required when using the file backend")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" {
			return fmt.Errorf("store.postgres.host is required when using the postgres backend")
		}
		if c.Store.Postgres.Name == "" {
			return fmt.Errorf("store.postgres.name is required when using the postgres backend")
		}
		if c.Store.Postgres.User == "" {
			return fmt.Errorf("store.postgres.user is required when using the postgres backend")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required when using the sqlite backend")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required when using the s3 backend")
		}
		if c.Store.S3.Region == "" && c.Store.S3.Endpoint == "" {
			return fmt.Errorf("store.s3.region is required when using the s3 backend")
		}
	case "gcs":
		if c.Store.GCS.Bucket == "" {
			return fmt.Errorf("store.gcs.bucket is required when using the gcs backend")
		}
	case "azure":
		if c.Store.Azure.AccountName == "" {
			return fmt.Errorf("store.azure.account_name is required when using the azure backend")
		}
		if c.Store.Azure.AccountKey == "" {
			return fmt.Errorf("store.azure.account_key is required when using the azure backend")
		}
		if c.Store.Azure.ContainerName == "" {
			return fmt.Errorf("store.azure.container_name is required when using the azure backend")
		}
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if c.Plan.AgencyColumn == "" {
		return fmt.Errorf("plan.agency_column is required")
	}
	if c.Plan.TimestampColumn == "" {
		return fmt.Errorf("plan.timestamp_column is required")
	}
	if c.Plan.TimestampFormat == "" {
		return fmt.Errorf("plan.timestamp_format is required")
	}
	if len(c.Plan.EditableColumns) == 0 {
		return fmt.Errorf("plan.editable_columns must not be empty")
	}
	for _, col := range c.Plan.EditableColumns {
		if col == c.Plan.TimestampColumn {
			return fmt.Errorf("plan.timestamp_column %q cannot be editable", col)
		}
		if col == c.Plan.AgencyColumn {
			return fmt.Errorf("plan.agency_column %q cannot be editable", col)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Telemetry.Metrics.Enabled && c.Telemetry.Metrics.Port == c.Server.Port {
		return fmt.Errorf("telemetry.metrics.port must differ from server.port")
	}

	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir is required when backups are enabled")
		}
		if c.Backup.Interval < time.Minute {
			return fmt.Errorf("backup.interval must be at least 1m")
		}
		if c.Backup.Keep < 1 {
			return fmt.Errorf("backup.keep must be at least 1")
		}
	}

	for i, m := range c.Audit.Mirrors {
		if !m.Enabled {
			continue
		}
		switch m.Type {
		case "webhook":
			if m.Webhook == nil || m.Webhook.URL == "" {
				return fmt.Errorf("audit.mirrors[%d]: webhook.url is required", i)
			}
		case "file":
			if m.File == nil || m.File.Path == "" {
				return fmt.Errorf("audit.mirrors[%d]: file.path is required", i)
			}
		default:
			return fmt.Errorf("audit.mirrors[%d]: unknown mirror type %q", i, m.Type)
		}
	}

	return nil
}

// WatchLogging re-reads the config file whenever it changes on disk and
// invokes apply with the new logging section. Only logging settings are
// hot-reloaded; everything else requires a restart. A no-op when Load
// ran without a config file.
func (c *Config) WatchLogging(apply func(LoggingConfig)) {
	if c.fileUsed == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(c.fileUsed)
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		var lc LoggingConfig
		if err := v.UnmarshalKey("logging", &lc); err != nil {
			slog.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		if lc.Level == "" {
			lc.Level = "info"
		}
		slog.Info("config file changed, applying logging settings", "file", e.Name, "level", lc.Level)
		apply(lc)
	})
	v.WatchConfig()
}
