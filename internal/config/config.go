// Package config provides the configuration of the partition catalog.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// CatalogType selects the connector serving a catalog.
type CatalogType string

const (
	CatalogSQLite      CatalogType = "sqlite"
	CatalogHive        CatalogType = "hive"
	CatalogObjectStore CatalogType = "objectstore"
)

// Config holds the configuration of the catalog service.
type Config struct {
	// DataDir is the base directory for local catalog files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Dispatcher configuration
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Server configuration for the HTTP API
	Server ServerConfig `json:"server" yaml:"server"`

	// Catalogs are the federated backends, keyed by catalog name
	Catalogs []CatalogConfig `json:"catalogs" yaml:"catalogs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is a logrus level name: trace, debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// DispatcherConfig holds federation dispatcher configuration.
type DispatcherConfig struct {
	// CallTimeout bounds every connector call; 0 disables the timeout
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// NamesConcurrency is the number of connectors queried in parallel by
	// reverse URI lookups
	NamesConcurrency int `json:"names_concurrency" yaml:"names_concurrency"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether Prometheus collectors are registered
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name
	Namespace string `json:"namespace" yaml:"namespace"`

	// FilterStatsWindow is how long an unused filter key stays in the
	// usage statistics
	FilterStatsWindow time.Duration `json:"filter_stats_window" yaml:"filter_stats_window"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	// Addr is the listen address of the HTTP API
	Addr string `json:"addr" yaml:"addr"`

	// ShutdownTimeout bounds the whole graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// DrainTimeout bounds the wait for in-flight requests
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// CatalogConfig configures one federated catalog.
type CatalogConfig struct {
	// Name is the catalog name used for routing
	Name string `json:"name" yaml:"name"`

	// Type is sqlite, hive or objectstore
	Type CatalogType `json:"type" yaml:"type"`

	SQLite      SQLiteConfig      `json:"sqlite" yaml:"sqlite"`
	Hive        HiveConfig        `json:"hive" yaml:"hive"`
	ObjectStore ObjectStoreConfig `json:"objectstore" yaml:"objectstore"`
}

// SQLiteConfig configures the native SQLite catalog store.
type SQLiteConfig struct {
	// Path is the database file; defaults to <data_dir>/<name>.db
	Path string `json:"path" yaml:"path"`

	// ReadPoolSize is the number of read-only connections
	ReadPoolSize int `json:"read_pool_size" yaml:"read_pool_size"`
}

// HiveConfig configures direct SQL access to a Hive metastore database.
type HiveConfig struct {
	// Driver is mysql, postgres or sqlite3
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver-specific connection string
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// ObjectStoreConfig configures an object-storage-backed catalog.
type ObjectStoreConfig struct {
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix is the key prefix under which databases live
	Prefix string `json:"prefix" yaml:"prefix"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development:
// a single SQLite catalog named "local".
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/partcat",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Dispatcher: DispatcherConfig{
			CallTimeout:      30 * time.Second,
			NamesConcurrency: 8,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			Namespace:         "partcat",
			FilterStatsWindow: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
			DrainTimeout:    15 * time.Second,
		},
		Catalogs: []CatalogConfig{
			{Name: "local", Type: CatalogSQLite},
		},
	}
}

// Resolve fills in per-catalog defaults that depend on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/partcat"
	}

	for i := range c.Catalogs {
		cat := &c.Catalogs[i]
		switch cat.Type {
		case CatalogSQLite:
			if cat.SQLite.Path == "" {
				cat.SQLite.Path = filepath.Join(c.DataDir, cat.Name+".db")
			}
			if cat.SQLite.ReadPoolSize <= 0 {
				cat.SQLite.ReadPoolSize = 4
			}
		case CatalogHive:
			if cat.Hive.MaxOpenConns <= 0 {
				cat.Hive.MaxOpenConns = 10
			}
			if cat.Hive.MaxIdleConns <= 0 {
				cat.Hive.MaxIdleConns = 2
			}
		case CatalogObjectStore:
			if cat.ObjectStore.Storage.Type == "" {
				cat.ObjectStore.Storage.Type = "local"
			}
			if cat.ObjectStore.Storage.Type == "local" && cat.ObjectStore.Storage.Path == "" {
				cat.ObjectStore.Storage.Path = filepath.Join(c.DataDir, "storage", cat.Name)
			}
		}
	}
}

// Catalog returns the configuration of the named catalog.
func (c *Config) Catalog(name string) (CatalogConfig, bool) {
	for _, cat := range c.Catalogs {
		if cat.Name == name {
			return cat, true
		}
	}
	return CatalogConfig{}, false
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.DataDir == "" {
		errs = multierror.Append(errs, fmt.Errorf("data_dir is required"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = multierror.Append(errs, fmt.Errorf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if c.Dispatcher.CallTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("dispatcher.call_timeout must not be negative"))
	}
	if c.Dispatcher.NamesConcurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("dispatcher.names_concurrency must be at least 1, got %d", c.Dispatcher.NamesConcurrency))
	}

	if c.Server.ShutdownTimeout < 0 || c.Server.DrainTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("server timeouts must not be negative"))
	}

	if len(c.Catalogs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("at least one catalog is required"))
	}

	seen := make(map[string]bool)
	for i, cat := range c.Catalogs {
		if cat.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("catalogs[%d].name is required", i))
			continue
		}
		if strings.Contains(cat.Name, "/") {
			errs = multierror.Append(errs, fmt.Errorf("catalog %s: name must not contain '/'", cat.Name))
		}
		if seen[cat.Name] {
			errs = multierror.Append(errs, fmt.Errorf("catalog %s is defined twice", cat.Name))
		}
		seen[cat.Name] = true

		switch cat.Type {
		case CatalogSQLite:
		case CatalogHive:
			switch cat.Hive.Driver {
			case "mysql", "postgres", "sqlite3":
			default:
				errs = multierror.Append(errs, fmt.Errorf("catalog %s: invalid hive.driver: %s (must be mysql, postgres or sqlite3)", cat.Name, cat.Hive.Driver))
			}
			if cat.Hive.DSN == "" {
				errs = multierror.Append(errs, fmt.Errorf("catalog %s: hive.dsn is required", cat.Name))
			}
		case CatalogObjectStore:
			st := cat.ObjectStore.Storage
			if st.Type != "local" && st.Type != "s3" {
				errs = multierror.Append(errs, fmt.Errorf("catalog %s: invalid storage type: %s (must be local or s3)", cat.Name, st.Type))
			}
			if st.Type == "s3" && st.S3.Bucket == "" {
				errs = multierror.Append(errs, fmt.Errorf("catalog %s: s3.bucket is required when storage type is s3", cat.Name))
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("catalog %s: invalid type: %s (must be sqlite, hive or objectstore)", cat.Name, cat.Type))
		}
	}

	return errs.ErrorOrNil()
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	// A file that lists catalogs replaces the default one.
	cfg.Catalogs = nil

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if len(cfg.Catalogs) == 0 {
		cfg.Catalogs = DefaultConfig().Catalogs
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PARTCAT_ prefix. Catalog settings are
// addressed by upper-cased catalog name, e.g. PARTCAT_CATALOG_WAREHOUSE_DSN.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PARTCAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Logging configuration
	if v := os.Getenv("PARTCAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARTCAT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Dispatcher configuration
	if v := os.Getenv("PARTCAT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dispatcher.CallTimeout = d
		}
	}
	if v := os.Getenv("PARTCAT_NAMES_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatcher.NamesConcurrency = n
		}
	}

	// Metrics configuration
	if v := os.Getenv("PARTCAT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}

	// Server configuration
	if v := os.Getenv("PARTCAT_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	// Per-catalog overrides
	for i := range cfg.Catalogs {
		cat := &cfg.Catalogs[i]
		prefix := "PARTCAT_CATALOG_" + envName(cat.Name) + "_"

		if v := os.Getenv(prefix + "DSN"); v != "" {
			cat.Hive.DSN = v
		}
		if v := os.Getenv(prefix + "PATH"); v != "" {
			cat.SQLite.Path = v
		}
		if v := os.Getenv(prefix + "STORAGE_PATH"); v != "" {
			cat.ObjectStore.Storage.Path = v
		}
		if v := os.Getenv(prefix + "S3_BUCKET"); v != "" {
			cat.ObjectStore.Storage.S3.Bucket = v
		}
		if v := os.Getenv(prefix + "S3_REGION"); v != "" {
			cat.ObjectStore.Storage.S3.Region = v
		}
		if v := os.Getenv(prefix + "S3_ENDPOINT"); v != "" {
			cat.ObjectStore.Storage.S3.Endpoint = v
		}
	}
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// Load builds the effective configuration: defaults, then the optional file,
// then environment overrides, then resolution and validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	LoadFromEnv(cfg)
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates the directories local catalogs write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	for _, cat := range c.Catalogs {
		switch cat.Type {
		case CatalogSQLite:
			dirs = append(dirs, filepath.Dir(cat.SQLite.Path))
		case CatalogObjectStore:
			if cat.ObjectStore.Storage.Type == "local" {
				dirs = append(dirs, cat.ObjectStore.Storage.Path)
			}
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
