// Package config provides configuration for the plughost binary.
//
// # Overview
//
// Settings start from Default, are overlaid by an optional YAML file and
// then by PLUGHOST_* environment variables. The registry core never reads
// the environment; the host converts this configuration into a
// registry.Config.
//
// # Configuration Structure
//
// Server settings:
//
//	PLUGHOST_HOST="0.0.0.0"
//	PLUGHOST_PORT="8080"
//	PLUGHOST_HEALTH_PORT="9090"
//	PLUGHOST_MAX_UPLOAD_BYTES="67108864"
//
// Plugin settings:
//
//	PLUGHOST_PLUGIN_DIR="/var/lib/plughost/plugins"
//	PLUGHOST_DEVELOPMENT="true"           # watch the plugin dir
//	PLUGHOST_SCAN_POLICY="continue"       # fail-fast, continue
//	PLUGHOST_RECONCILE_SCHEDULE="@every 10m"
//
// Catalog settings:
//
//	PLUGHOST_CATALOG_BACKEND="postgres"   # memory, sqlite, postgres
//	PLUGHOST_CATALOG_DSN="postgres://localhost/plughost?sslmode=disable"
//	PLUGHOST_CATALOG_TIMEOUT="10s"
//	PLUGHOST_SYNC_RETRIES="3"
//	PLUGHOST_CACHE_SIZE="256"
//	PLUGHOST_REDIS_URL="redis://localhost:6379/0"
//
// Archive backups, either a directory or an S3 bucket:
//
//	PLUGHOST_BACKUP_DIR="/var/backups/plughost"
//	PLUGHOST_S3_BUCKET="plughost-archives"
//	PLUGHOST_S3_REGION="us-east-1"
//
// Observability settings:
//
//	PLUGHOST_LOG_LEVEL="info"  # debug, info, warn, error
//	PLUGHOST_METRICS_ENABLED="true"
//	PLUGHOST_OTEL_ENABLED="true"
//	PLUGHOST_OTEL_ENDPOINT="otel-collector:4317"
//
// The YAML file uses the same names in snake case, grouped by section:
//
//	plugins:
//	  dir: /var/lib/plughost/plugins
//	  scan_policy: continue
//	catalog:
//	  backend: sqlite
//	  dsn: /var/lib/plughost/catalog.db
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Addr(), cfg.Plugins.Dir)
package config
