package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Catalog and artifacts.
	CatalogFile  string `json:"catalog_file" yaml:"catalog_file" toml:"catalog_file"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" toml:"artifacts_dir"`

	// Lifecycle.
	CapacityBudget  int    `json:"capacity_budget" yaml:"capacity_budget" toml:"capacity_budget"`
	PinnedEngine    string `json:"pinned_engine" yaml:"pinned_engine" toml:"pinned_engine"`
	DefaultEngine   string `json:"default_engine" yaml:"default_engine" toml:"default_engine"`
	IdleUnloadSec   int    `json:"idle_unload_sec" yaml:"idle_unload_sec" toml:"idle_unload_sec"`
	FailCooldownSec int    `json:"fail_cooldown_sec" yaml:"fail_cooldown_sec" toml:"fail_cooldown_sec"`

	// Admission and dispatch.
	MaxQueueDepth  int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	CallTimeoutSec int `json:"call_timeout_sec" yaml:"call_timeout_sec" toml:"call_timeout_sec"`

	// Sessions.
	SessionWindow     int `json:"session_window" yaml:"session_window" toml:"session_window"`
	SessionTitleLimit int `json:"session_title_limit" yaml:"session_title_limit" toml:"session_title_limit"`
	SessionIdleSec    int `json:"session_idle_sec" yaml:"session_idle_sec" toml:"session_idle_sec"`

	// Downloads.
	DownloadDir     string `json:"download_dir" yaml:"download_dir" toml:"download_dir"`
	DownloadWorkers int    `json:"download_workers" yaml:"download_workers" toml:"download_workers"`

	// Local runtime.
	LlamaCtx     int `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads int `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`

	// HTTP.
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
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
