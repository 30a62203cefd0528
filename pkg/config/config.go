package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/plughost/pkg/registry"
)

// Catalog backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ConfigFileEnv names the optional YAML file loaded before the environment
const ConfigFileEnv = "PLUGHOST_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Plugins       PluginsConfig       `yaml:"plugins"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Backup        BackupConfig        `yaml:"backup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`

	// Health/metrics server (separate port for k8s liveness and readiness checks)
	HealthPort string `yaml:"health_port"`
}

// PluginsConfig configures the plugin registry
type PluginsConfig struct {
	Dir               string        `yaml:"dir"`
	Development       bool          `yaml:"development"`
	ScanPolicy        string        `yaml:"scan_policy"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	ReconcileSchedule string        `yaml:"reconcile_schedule"`
}

// CatalogConfig selects and tunes the catalog store
type CatalogConfig struct {
	Backend     string        `yaml:"backend"`
	DSN         string        `yaml:"dsn"`
	Timeout     time.Duration `yaml:"timeout"`
	SyncRetries int           `yaml:"sync_retries"`

	// Cache in front of the store, enabled when CacheSize > 0
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	RedisURL  string        `yaml:"redis_url"`
}

// BackupConfig selects where uploaded archives are copied.
// Dir and S3Bucket are mutually exclusive; both empty disables backups.
type BackupConfig struct {
	Dir string `yaml:"dir"`

	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Prefix       string `yaml:"s3_prefix"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  64 << 20,
			HealthPort:      "9090",
		},
		Plugins: PluginsConfig{
			Dir:           "plugins",
			ScanPolicy:    registry.ScanFailFast.String(),
			WatchDebounce: 200 * time.Millisecond,
		},
		Catalog: CatalogConfig{
			Backend:  BackendMemory,
			Timeout:  10 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "plughost",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads the file named by PLUGHOST_CONFIG_FILE, if any, then
// the environment
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load applies defaults, the optional YAML file at path and PLUGHOST_*
// environment variables, in that order, then validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML document at path
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadEnv overrides every field whose variable is set
func (c *Config) loadEnv() {
	s := &c.Server
	s.Host = getEnv("PLUGHOST_HOST", s.Host)
	s.Port = getEnv("PLUGHOST_PORT", s.Port)
	s.HealthPort = getEnv("PLUGHOST_HEALTH_PORT", s.HealthPort)
	s.ReadTimeout = getEnvDuration("PLUGHOST_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("PLUGHOST_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("PLUGHOST_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("PLUGHOST_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxUploadBytes = getEnvInt64("PLUGHOST_MAX_UPLOAD_BYTES", s.MaxUploadBytes)

	p := &c.Plugins
	p.Dir = getEnv("PLUGHOST_PLUGIN_DIR", p.Dir)
	p.Development = getEnvBool("PLUGHOST_DEVELOPMENT", p.Development)
	p.ScanPolicy = getEnv("PLUGHOST_SCAN_POLICY", p.ScanPolicy)
	p.WatchDebounce = getEnvDuration("PLUGHOST_WATCH_DEBOUNCE", p.WatchDebounce)
	p.ReconcileSchedule = getEnv("PLUGHOST_RECONCILE_SCHEDULE", p.ReconcileSchedule)

	cat := &c.Catalog
	cat.Backend = strings.ToLower(getEnv("PLUGHOST_CATALOG_BACKEND", cat.Backend))
	cat.DSN = getEnv("PLUGHOST_CATALOG_DSN", cat.DSN)
	cat.Timeout = getEnvDuration("PLUGHOST_CATALOG_TIMEOUT", cat.Timeout)
	cat.SyncRetries = getEnvInt("PLUGHOST_SYNC_RETRIES", cat.SyncRetries)
	cat.CacheSize = getEnvInt("PLUGHOST_CACHE_SIZE", cat.CacheSize)
	cat.CacheTTL = getEnvDuration("PLUGHOST_CACHE_TTL", cat.CacheTTL)
	cat.RedisURL = getEnv("PLUGHOST_REDIS_URL", cat.RedisURL)

	b := &c.Backup
	b.Dir = getEnv("PLUGHOST_BACKUP_DIR", b.Dir)
	b.S3Bucket = getEnv("PLUGHOST_S3_BUCKET", b.S3Bucket)
	b.S3Region = getEnv("PLUGHOST_S3_REGION", b.S3Region)
	b.S3Prefix = getEnv("PLUGHOST_S3_PREFIX", b.S3Prefix)
	b.S3Endpoint = getEnv("PLUGHOST_S3_ENDPOINT", b.S3Endpoint)
	b.S3AccessKey = getEnv("PLUGHOST_S3_ACCESS_KEY", b.S3AccessKey)
	b.S3SecretKey = getEnv("PLUGHOST_S3_SECRET_KEY", b.S3SecretKey)
	b.S3UsePathStyle = getEnvBool("PLUGHOST_S3_USE_PATH_STYLE", b.S3UsePathStyle)

	o := &c.Observability
	o.LogLevel = getEnv("PLUGHOST_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("PLUGHOST_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("PLUGHOST_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("PLUGHOST_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("PLUGHOST_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("PLUGHOST_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("PLUGHOST_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("PLUGHOST_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	// Validate plugin config
	if c.Plugins.Dir == "" {
		return fmt.Errorf("plugin directory is required")
	}
	if _, err := c.ScanPolicy(); err != nil {
		return err
	}
	if c.Plugins.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.Plugins.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", c.Plugins.ReconcileSchedule, err)
		}
	}

	// Validate catalog config based on backend
	switch c.Catalog.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog DSN is required for %s backend", c.Catalog.Backend)
		}
	default:
		return fmt.Errorf("invalid catalog backend: %s (must be memory, sqlite, or postgres)", c.Catalog.Backend)
	}
	if c.Catalog.SyncRetries < 0 {
		return fmt.Errorf("sync retries cannot be negative")
	}
	if c.Catalog.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.Catalog.RedisURL != "" && c.Catalog.CacheSize == 0 {
		return fmt.Errorf("redis cache requires a cache size")
	}

	// Validate backup config
	if c.Backup.Dir != "" && c.Backup.S3Bucket != "" {
		return fmt.Errorf("backup dir and S3 bucket are mutually exclusive")
	}

	// Validate observability config
	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1]")
	}

	return nil
}

// ScanPolicy returns the parsed registry scan policy
func (c *Config) ScanPolicy() (registry.ScanPolicy, error) {
	return registry.ParseScanPolicy(c.Plugins.ScanPolicy)
}

// Addr returns the main listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
