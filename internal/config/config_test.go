package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	local, ok := cfg.Catalog("local")
	if !ok {
		t.Fatal("expected default catalog 'local'")
	}
	if local.SQLite.Path != filepath.Join(cfg.DataDir, "local.db") {
		t.Errorf("unexpected sqlite path %s", local.SQLite.Path)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partcat.yaml")
	content := `
data_dir: /var/lib/partcat
logging:
  level: debug
  format: json
dispatcher:
  call_timeout: 5s
catalogs:
  - name: warehouse
    type: hive
    hive:
      driver: mysql
      dsn: "user:pw@tcp(db:3306)/metastore"
  - name: lake
    type: objectstore
    objectstore:
      storage:
        type: s3
        s3:
          bucket: lake-bucket
          region: us-east-1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	if cfg.Dispatcher.CallTimeout != 5*time.Second {
		t.Errorf("expected 5s call timeout, got %s", cfg.Dispatcher.CallTimeout)
	}
	if cfg.Dispatcher.NamesConcurrency != 8 {
		t.Errorf("expected default names concurrency, got %d", cfg.Dispatcher.NamesConcurrency)
	}
	if len(cfg.Catalogs) != 2 {
		t.Fatalf("file catalogs should replace the default, got %d", len(cfg.Catalogs))
	}
	wh, _ := cfg.Catalog("warehouse")
	if wh.Hive.MaxOpenConns != 10 {
		t.Errorf("expected resolved pool size, got %d", wh.Hive.MaxOpenConns)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARTCAT_LOG_LEVEL", "warn")
	t.Setenv("PARTCAT_CALL_TIMEOUT", "2s")
	t.Setenv("PARTCAT_NAMES_CONCURRENCY", "3")
	t.Setenv("PARTCAT_CATALOG_PROD_HIVE_DSN", "postgres://metastore")
	t.Setenv("PARTCAT_HTTP_ADDR", "127.0.0.1:9090")

	cfg := DefaultConfig()
	cfg.Catalogs = []CatalogConfig{{Name: "prod-hive", Type: CatalogHive, Hive: HiveConfig{Driver: "postgres"}}}
	LoadFromEnv(cfg)

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Dispatcher.CallTimeout != 2*time.Second || cfg.Dispatcher.NamesConcurrency != 3 {
		t.Errorf("unexpected dispatcher config %+v", cfg.Dispatcher)
	}
	if cfg.Catalogs[0].Hive.DSN != "postgres://metastore" {
		t.Errorf("expected DSN from env, got %q", cfg.Catalogs[0].Hive.DSN)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("expected addr from env, got %s", cfg.Server.Addr)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dispatcher.NamesConcurrency = 0
	cfg.Server.DrainTimeout = -time.Second
	cfg.Catalogs = []CatalogConfig{
		{Name: "a", Type: CatalogHive, Hive: HiveConfig{Driver: "oracle"}},
		{Name: "a", Type: CatalogSQLite},
		{Name: "b", Type: "ftp"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"names_concurrency", "invalid hive.driver", "hive.dsn is required", "defined twice", "invalid type: ftp", "server timeouts"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %s", want, msg)
		}
	}
}
