package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	DataDir           string `json:"data_dir"`
	SocketPath        string `json:"socket_path"`
	DBPath            string `json:"db_path"`
	ClaudeProjectsDir string `json:"claude_projects_dir"`
	CodexSessionsDir  string `json:"codex_sessions_dir"`
	LogLevel          string `json:"log_level"`

	// DebounceWindowMS is the quiet window applied to file-change signals
	// for one path before processing.
	DebounceWindowMS int `json:"debounce_window_ms"`

	// FreshnessWindowMS is how long a full-parse result stays reusable.
	FreshnessWindowMS int `json:"freshness_window_ms"`

	// Workers is the size of the ingestion worker pool.
	Workers int `json:"workers"`

	// DiscoveryMaxAgeHours limits the startup scan to transcripts
	// modified within this many hours.
	DiscoveryMaxAgeHours int `json:"discovery_max_age_hours"`

	// ReplayExisting replays full pre-existing transcripts on first
	// observation instead of seeking to end-of-file. Off by default so a
	// restart does not re-ingest months of history.
	ReplayExisting bool `json:"replay_existing"`

	// UsageCommand, when set, is spawned (with a bounded timeout) to
	// fetch account-level usage for the status command.
	UsageCommand []string `json:"usage_command,omitempty"`
}

// DefaultDataDir returns the default data directory (~/.agentdeck).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agentdeck")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:              dataDir,
		SocketPath:           filepath.Join(dataDir, "agentdeck.sock"),
		DBPath:               filepath.Join(dataDir, "agentdeck.db"),
		ClaudeProjectsDir:    filepath.Join(home, ".claude", "projects"),
		CodexSessionsDir:     filepath.Join(home, ".codex", "sessions"),
		LogLevel:             "info",
		DebounceWindowMS:     150,
		FreshnessWindowMS:    100,
		Workers:              4,
		DiscoveryMaxAgeHours: 24,
	}
}

// Load reads configuration from a JSON file, falling back to defaults
// for any unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine, use defaults.
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Re-derive paths if DataDir was overridden but socket/db paths were not.
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "agentdeck.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "agentdeck.db")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// DebounceWindow returns the debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	if c.DebounceWindowMS <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(c.DebounceWindowMS) * time.Millisecond
}

// FreshnessWindow returns the freshness window as a duration.
func (c *Config) FreshnessWindow() time.Duration {
	if c.FreshnessWindowMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.FreshnessWindowMS) * time.Millisecond
}

// DiscoveryMaxAge returns the startup discovery cutoff as a duration.
func (c *Config) DiscoveryMaxAge() time.Duration {
	if c.DiscoveryMaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DiscoveryMaxAgeHours) * time.Hour
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
