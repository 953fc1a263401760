package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays STREAMFORGE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("STREAMFORGE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STREAMFORGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STREAMFORGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STREAMFORGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STREAMFORGE_TOPIC_DEFAULT_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Topic.DefaultPartitions = n
		}
	}
	if v := os.Getenv("STREAMFORGE_TOPIC_DEFAULT_RETENTION_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Topic.DefaultRetentionMs = n
		}
	}
	if v := os.Getenv("STREAMFORGE_VISIBILITY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.VisibilityTimeoutMs = n
		}
	}
	if v := os.Getenv("STREAMFORGE_CONSUMER_EVICT_AFTER_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.ConsumerEvictAfterMs = n
		}
	}
	if v := os.Getenv("STREAMFORGE_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Maintenance.RetentionInterval = d
		}
	}
	if v := os.Getenv("STREAMFORGE_DLQ_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Maintenance.DLQSweepInterval = d
		}
	}
}
