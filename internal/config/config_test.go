package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// PostgresStoreConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  PostgresStoreConfig
		want string
	}{
		{
			name: "standard config",
			cfg: PostgresStoreConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "jwp",
				Password: "secret",
				Name:     "jwp_tracker",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=jwp password=secret dbname=jwp_tracker sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: PostgresStoreConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: PostgresStoreConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "",
				Name:     "dbname",
				SSLMode:  "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
		{"port 443", ServerConfig{Host: "0.0.0.0", Port: 443}, "0.0.0.0:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Store: StoreConfig{
			Backend:     "file",
			MasterTable: "Sheet1",
			AuditTable:  "Audit_Log",
			File:        FileStoreConfig{Dir: "./data"},
		},
		Auth: AuthConfig{SessionTTL: 12 * time.Hour},
		Plan: PlanConfig{
			AgencyColumn:    "Agency",
			ActivityColumn:  "Activity",
			TimestampColumn: "Last Updated",
			TimestampFormat: "2006-01-02 15:04:05",
			EditableColumns: []string{"End Date", "Budget Spent"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	t.Run("missing base_url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.BaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty base_url, got nil")
		}
	})

	t.Run("invalid store backend", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "ftp"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid store backend, got nil")
		}
	})

	t.Run("missing master table", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.MasterTable = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty master_table, got nil")
		}
	})

	t.Run("master and audit table collide", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.AuditTable = cfg.Store.MasterTable
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for colliding table names, got nil")
		}
	})

	t.Run("file backend missing dir", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.File.Dir = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing file dir, got nil")
		}
	})

	t.Run("postgres backend missing host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "postgres"
		cfg.Store.Postgres = PostgresStoreConfig{Name: "jwp_tracker", User: "jwp"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing postgres host, got nil")
		}
	})

	t.Run("postgres backend missing name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "postgres"
		cfg.Store.Postgres = PostgresStoreConfig{Host: "localhost", User: "jwp"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing postgres name, got nil")
		}
	})

	t.Run("postgres backend missing user", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "postgres"
		cfg.Store.Postgres = PostgresStoreConfig{Host: "localhost", Name: "jwp_tracker"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing postgres user, got nil")
		}
	})

	t.Run("valid postgres config passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "postgres"
		cfg.Store.Postgres = PostgresStoreConfig{Host: "localhost", Name: "jwp_tracker", User: "jwp"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for valid postgres config: %v", err)
		}
	})

	t.Run("sqlite backend missing path", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "sqlite"
		cfg.Store.SQLite = SQLiteStoreConfig{}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing sqlite path, got nil")
		}
	})

	t.Run("s3 backend missing bucket", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "s3"
		cfg.Store.S3 = S3StoreConfig{Region: "us-east-1"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing s3 bucket, got nil")
		}
	})

	t.Run("s3 backend missing region", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "s3"
		cfg.Store.S3 = S3StoreConfig{Bucket: "mybucket"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing s3 region, got nil")
		}
	})

	t.Run("s3 custom endpoint does not require region", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "s3"
		cfg.Store.S3 = S3StoreConfig{Bucket: "mybucket", Endpoint: "http://minio:9000"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for s3 endpoint config: %v", err)
		}
	})

	t.Run("gcs backend missing bucket", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "gcs"
		cfg.Store.GCS = GCSStoreConfig{}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing gcs bucket, got nil")
		}
	})

	t.Run("azure backend missing account_name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "azure"
		cfg.Store.Azure = AzureStoreConfig{AccountKey: "key", ContainerName: "c"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing azure account_name, got nil")
		}
	})

	t.Run("azure backend missing account_key", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "azure"
		cfg.Store.Azure = AzureStoreConfig{AccountName: "name", ContainerName: "c"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing azure account_key, got nil")
		}
	})

	t.Run("valid azure config passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Store.Backend = "azure"
		cfg.Store.Azure = AzureStoreConfig{
			AccountName:   "myaccount",
			AccountKey:    "mykey",
			ContainerName: "mycontainer",
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for valid azure config: %v", err)
		}
	})

	t.Run("zero session ttl", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Auth.SessionTTL = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero session_ttl, got nil")
		}
	})

	t.Run("empty editable column set", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Plan.EditableColumns = nil
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty editable_columns, got nil")
		}
	})

	t.Run("timestamp column listed as editable", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Plan.EditableColumns = []string{"End Date", "Last Updated"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for editable timestamp column, got nil")
		}
	})

	t.Run("agency column listed as editable", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Plan.EditableColumns = []string{"Agency"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for editable agency column, got nil")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Format = "logfmt"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log format, got nil")
		}
	})

	t.Run("metrics port colliding with server port", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Telemetry.Metrics = MetricsConfig{Enabled: true, Port: cfg.Server.Port}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for colliding metrics port, got nil")
		}
	})

	t.Run("backup enabled missing dir", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Backup = BackupConfig{Enabled: true, Interval: time.Hour, Keep: 3}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing backup dir, got nil")
		}
	})

	t.Run("backup interval below one minute", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Backup = BackupConfig{Enabled: true, Interval: time.Second, Dir: "./backups", Keep: 3}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for sub-minute backup interval, got nil")
		}
	})

	t.Run("valid backup config passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Backup = BackupConfig{Enabled: true, Interval: time.Hour, Dir: "./backups", Keep: 3}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for valid backup config: %v", err)
		}
	})

	t.Run("webhook mirror missing url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Mirrors = []AuditMirrorConfig{
			{Enabled: true, Type: "webhook", Webhook: &AuditWebhookConfig{}},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for webhook mirror without url, got nil")
		}
	})

	t.Run("file mirror missing path", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Mirrors = []AuditMirrorConfig{
			{Enabled: true, Type: "file", File: &AuditFileConfig{}},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for file mirror without path, got nil")
		}
	})

	t.Run("unknown mirror type", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Mirrors = []AuditMirrorConfig{
			{Enabled: true, Type: "syslog"},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown mirror type, got nil")
		}
	})

	t.Run("disabled mirror is not validated", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Mirrors = []AuditMirrorConfig{
			{Enabled: false, Type: "syslog"},
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for disabled mirror: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – defaults and env var expansion
// ---------------------------------------------------------------------------

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	// Load with a nonexistent config path falls back to defaults + env vars
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		// An explicit path that does not exist is a hard error; only that
		// error kind is acceptable here.
		if !strings.Contains(err.Error(), "error reading config file") {
			t.Fatalf("Load() unexpected error kind: %v", err)
		}
	} else {
		if cfg.Server.Port != 8080 {
			t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
		}
	}
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		got := expandEnv("${CONFIG_TEST_SECRET}")
		if got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("expands $VAR syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_VAL", "hello")
		got := expandEnv("$CONFIG_TEST_VAL")
		if got != "hello" {
			t.Errorf("expandEnv() = %q, want %q", got, "hello")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		got := expandEnv("no-vars-here")
		if got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}")
		if got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
store:
  backend: "sqlite"
  sqlite:
    path: "./test.db"
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.Path != "./test.db" {
		t.Errorf("Store.SQLite.Path = %q, want ./test.db", cfg.Store.SQLite.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	// Config without most sections — setDefaults() should fill them in.
	const content = `
server:
  base_url: "http://localhost:8080"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("default Store.Backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Store.MasterTable != "Sheet1" {
		t.Errorf("default Store.MasterTable = %q, want Sheet1", cfg.Store.MasterTable)
	}
	if cfg.Store.AuditTable != "Audit_Log" {
		t.Errorf("default Store.AuditTable = %q, want Audit_Log", cfg.Store.AuditTable)
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("default Auth.SessionTTL = %v, want 12h", cfg.Auth.SessionTTL)
	}
	if cfg.Plan.AgencyColumn != "Agency" {
		t.Errorf("default Plan.AgencyColumn = %q, want Agency", cfg.Plan.AgencyColumn)
	}
	if cfg.Plan.TimestampFormat != "2006-01-02 15:04:05" {
		t.Errorf("default Plan.TimestampFormat = %q, want 2006-01-02 15:04:05", cfg.Plan.TimestampFormat)
	}
	want := []string{"End Date", "Budget Spent", "Progress / Achievement to Date"}
	if len(cfg.Plan.EditableColumns) != len(want) {
		t.Fatalf("default Plan.EditableColumns = %v, want %v", cfg.Plan.EditableColumns, want)
	}
	for i := range want {
		if cfg.Plan.EditableColumns[i] != want[i] {
			t.Errorf("default Plan.EditableColumns[%d] = %q, want %q", i, cfg.Plan.EditableColumns[i], want[i])
		}
	}
	if cfg.Telemetry.Metrics.Port != 9090 {
		t.Errorf("default Telemetry.Metrics.Port = %d, want 9090", cfg.Telemetry.Metrics.Port)
	}
	if cfg.Backup.Keep != 7 {
		t.Errorf("default Backup.Keep = %d, want 7", cfg.Backup.Keep)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
server:
  port: 8080
  base_url: "http://localhost:8080"
store:
  backend: "postgres"
  postgres:
    host: "localhost"
    name: "jwp_tracker"
    user: "jwp"
    password: "${TEST_DB_PASS}"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Postgres.Password != "mysecret" {
		t.Errorf("Store.Postgres.Password = %q, want mysecret", cfg.Store.Postgres.Password)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("JWP_STORE_BACKEND", "sqlite")
	const content = `
server:
  base_url: "http://localhost:8080"
store:
  backend: "file"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite (env override)", cfg.Store.Backend)
	}
}

func TestLoad_BareAdminPasswordFallback(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	const content = `
server:
  base_url: "http://localhost:8080"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.AdminPassword != "hunter2" {
		t.Errorf("Auth.AdminPassword = %q, want hunter2", cfg.Auth.AdminPassword)
	}
}

func TestLoad_PrefixedAdminPasswordWins(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "fallback")
	t.Setenv("JWP_AUTH_ADMIN_PASSWORD", "prefixed")
	const content = `
server:
  base_url: "http://localhost:8080"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.AdminPassword != "prefixed" {
		t.Errorf("Auth.AdminPassword = %q, want prefixed", cfg.Auth.AdminPassword)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
