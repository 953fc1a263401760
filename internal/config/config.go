package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	DataDir  string `json:"dataDir" yaml:"dataDir"`

	Log   LogConfig   `json:"log" yaml:"log"`
	Topic TopicConfig `json:"topic" yaml:"topic"`

	// VisibilityTimeoutMs is the default claim window for delivered but
	// unacknowledged messages.
	VisibilityTimeoutMs int64 `json:"visibilityTimeoutMs" yaml:"visibilityTimeoutMs"`

	// ConsumerEvictAfterMs marks consumers INACTIVE when their last
	// heartbeat is older than this window.
	ConsumerEvictAfterMs int64 `json:"consumerEvictAfterMs" yaml:"consumerEvictAfterMs"`

	Maintenance MaintenanceConfig `json:"maintenance" yaml:"maintenance"`
}

// LogConfig selects logger level and format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TopicConfig captures topic creation defaults and floors.
type TopicConfig struct {
	DefaultPartitions  int   `json:"defaultPartitions" yaml:"defaultPartitions"`
	DefaultRetentionMs int64 `json:"defaultRetentionMs" yaml:"defaultRetentionMs"`
	MinRetentionMs     int64 `json:"minRetentionMs" yaml:"minRetentionMs"`
}

// MaintenanceConfig holds the background sweep intervals.
type MaintenanceConfig struct {
	RetentionInterval    time.Duration `json:"retentionInterval" yaml:"retentionInterval"`
	AckCleanupInterval   time.Duration `json:"ackCleanupInterval" yaml:"ackCleanupInterval"`
	DLQSweepInterval     time.Duration `json:"dlqSweepInterval" yaml:"dlqSweepInterval"`
	ReplayCleanupEvery   time.Duration `json:"replayCleanupEvery" yaml:"replayCleanupEvery"`
	MetricsCleanupEvery  time.Duration `json:"metricsCleanupEvery" yaml:"metricsCleanupEvery"`
	ConsumerEvictEvery   time.Duration `json:"consumerEvictEvery" yaml:"consumerEvictEvery"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info", Format: "text"},
		Topic: TopicConfig{
			DefaultPartitions:  1,
			DefaultRetentionMs: 7 * 24 * time.Hour.Milliseconds(),
			MinRetentionMs:     time.Hour.Milliseconds(),
		},
		VisibilityTimeoutMs:  30_000,
		ConsumerEvictAfterMs: 60_000,
		Maintenance: MaintenanceConfig{
			RetentionInterval:   time.Hour,
			AckCleanupInterval:  time.Minute,
			DLQSweepInterval:    time.Minute,
			ReplayCleanupEvery:  10 * time.Minute,
			MetricsCleanupEvery: 5 * time.Minute,
			ConsumerEvictEvery:  30 * time.Second,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension).
// If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
