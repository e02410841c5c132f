package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"masterd/internal/common/fsutil"
)

// CORS holds opt-in CORS settings for the HTTP layer.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Normalize.
type Config struct {
	Addr          string `json:"addr" yaml:"addr" toml:"addr"`
	UploadsDir    string `json:"uploads_dir" yaml:"uploads_dir" toml:"uploads_dir"`
	WorkDir       string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	RenditionsDir string `json:"renditions_dir" yaml:"renditions_dir" toml:"renditions_dir"`
	PreviewDir    string `json:"preview_dir" yaml:"preview_dir" toml:"preview_dir"`
	EngineBin     string `json:"engine_bin" yaml:"engine_bin" toml:"engine_bin"`

	MaxConcurrentRuns  int `json:"max_concurrent_runs" yaml:"max_concurrent_runs" toml:"max_concurrent_runs"`
	RunBufferCap       int `json:"run_buffer_cap" yaml:"run_buffer_cap" toml:"run_buffer_cap"`
	RunTTLSeconds      int `json:"run_ttl_seconds" yaml:"run_ttl_seconds" toml:"run_ttl_seconds"`
	PreviewTTLSeconds  int `json:"preview_ttl_seconds" yaml:"preview_ttl_seconds" toml:"preview_ttl_seconds"`
	PreviewsPerSession int `json:"previews_per_session" yaml:"previews_per_session" toml:"previews_per_session"`
	WatcherPollMS      int `json:"watcher_poll_ms" yaml:"watcher_poll_ms" toml:"watcher_poll_ms"`
	KeepaliveSeconds   int `json:"keepalive_seconds" yaml:"keepalive_seconds" toml:"keepalive_seconds"`
	PreviewWaitMaxSecs int `json:"preview_wait_max_seconds" yaml:"preview_wait_max_seconds" toml:"preview_wait_max_seconds"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORS     CORS   `json:"cors" yaml:"cors" toml:"cors"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalize fills unspecified fields with defaults and expands '~' in paths.
func (c *Config) Normalize() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "~/masterd/uploads"
	}
	if c.WorkDir == "" {
		c.WorkDir = "~/masterd/work"
	}
	if c.RenditionsDir == "" {
		c.RenditionsDir = "~/masterd/renditions"
	}
	if c.PreviewDir == "" {
		c.PreviewDir = filepath.Join(os.TempDir(), "masterd-previews")
	}
	if c.EngineBin == "" {
		c.EngineBin = "masterchain"
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 2
	}
	if c.RunBufferCap <= 0 {
		c.RunBufferCap = 256
	}
	if c.RunTTLSeconds <= 0 {
		c.RunTTLSeconds = 600
	}
	if c.PreviewTTLSeconds <= 0 {
		c.PreviewTTLSeconds = 600
	}
	if c.PreviewsPerSession <= 0 {
		c.PreviewsPerSession = 5
	}
	if c.WatcherPollMS <= 0 {
		c.WatcherPollMS = 1000
	}
	if c.KeepaliveSeconds <= 0 {
		c.KeepaliveSeconds = 15
	}
	if c.PreviewWaitMaxSecs <= 0 {
		c.PreviewWaitMaxSecs = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for _, p := range []*string{&c.UploadsDir, &c.WorkDir, &c.RenditionsDir, &c.PreviewDir} {
		expanded, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// RunTTL returns the run cleanup TTL as a duration.
func (c Config) RunTTL() time.Duration { return time.Duration(c.RunTTLSeconds) * time.Second }

// PreviewTTL returns the preview expiry TTL as a duration.
func (c Config) PreviewTTL() time.Duration { return time.Duration(c.PreviewTTLSeconds) * time.Second }

// WatcherPoll returns the progress-log poll interval.
func (c Config) WatcherPoll() time.Duration { return time.Duration(c.WatcherPollMS) * time.Millisecond }

// Keepalive returns the SSE keepalive interval.
func (c Config) Keepalive() time.Duration { return time.Duration(c.KeepaliveSeconds) * time.Second }

// PreviewWaitMax bounds the preview long-poll wait.
func (c Config) PreviewWaitMax() time.Duration {
	return time.Duration(c.PreviewWaitMaxSecs) * time.Second
}
