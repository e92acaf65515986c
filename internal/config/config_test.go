package config

import (
	"os"
	"path/filepath"
	"testing"

	pebblestore "github.com/rzbill/bookq/internal/storage/pebble"
)

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	if cfg.PageSize <= 0 {
		t.Fatalf("default page size must be positive")
	}
	if cfg.FsyncMode() != pebblestore.FsyncModeInterval {
		t.Fatalf("default fsync mode = %v, want interval", cfg.FsyncMode())
	}
	if cfg.Costs.Table().BumpServiceHead == 0 {
		t.Fatalf("default cost table should be non-zero")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookq.yaml")
	body := []byte("dataDir: /var/lib/bookq\nfsync: always\npageSize: 1024\nmaxStale: 2\ncosts:\n  servicePageItem: 7\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/bookq" {
		t.Fatalf("dataDir = %q", cfg.DataDir)
	}
	if cfg.FsyncMode() != pebblestore.FsyncModeAlways {
		t.Fatalf("fsync mode = %v, want always", cfg.FsyncMode())
	}
	if cfg.PageSize != 1024 || cfg.MaxStale != 2 {
		t.Fatalf("pageSize=%d maxStale=%d", cfg.PageSize, cfg.MaxStale)
	}
	if got := cfg.Costs.Table().ServicePageItem; got != 7 {
		t.Fatalf("servicePageItem = %d, want 7", got)
	}
	// untouched fields keep defaults
	if cfg.Costs.Table().ServiceQueueBase == 0 {
		t.Fatalf("unset cost fields must keep defaults")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("empty path must return defaults")
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("BOOKQ_DATA_DIR", "/tmp/q")
	t.Setenv("BOOKQ_PAGE_SIZE", "2048")
	t.Setenv("BOOKQ_MAX_STALE", "5")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.DataDir != "/tmp/q" || cfg.PageSize != 2048 || cfg.MaxStale != 5 {
		t.Fatalf("env overlay not applied: %+v", cfg)
	}
}
