package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BOOKQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("BOOKQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BOOKQ_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("BOOKQ_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("BOOKQ_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("BOOKQ_MAX_STALE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxStale = uint32(n)
		}
	}
}
