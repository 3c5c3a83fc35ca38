// Package config loads the rooksync configuration file (JSON5, so the
// file can carry comments) and watches it for changes.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// ImportConfig holds default parameters for game-import jobs.
type ImportConfig struct {
	Username string `json:"username"`
	Source   string `json:"source"` // "lichess" or "chesscom"
	MaxGames int    `json:"maxGames"`
}

// AutoSyncConfig controls the periodic sync trigger.
type AutoSyncConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron"` // 5-field cron expression
}

// TracingConfig enables OTLP trace export when an endpoint is set.
type TracingConfig struct {
	Endpoint string `json:"endpoint"`
}

// Config is the full rooksync configuration.
type Config struct {
	ServerURL string         `json:"serverUrl"` // http(s) base URL of the server
	Listen    string         `json:"listen"`    // serve bind address
	DataDir   string         `json:"dataDir"`
	LogLevel  string         `json:"logLevel"`
	Import    ImportConfig   `json:"import"`
	AutoSync  AutoSyncConfig `json:"autoSync"`
	Tracing   TracingConfig  `json:"tracing"`
}

// DefaultPath returns ~/.rooksync/config.json5.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json5"
	}
	return filepath.Join(home, ".rooksync", "config.json5")
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServerURL: "http://127.0.0.1:8520",
		Listen:    "127.0.0.1:8520",
		DataDir:   filepath.Join(home, ".rooksync"),
		LogLevel:  "info",
		Import: ImportConfig{
			Source:   "lichess",
			MaxGames: 1000,
		},
		AutoSync: AutoSyncConfig{
			Cron: "0 */6 * * *",
		},
	}
}

// Load reads the config file at path, applying defaults for anything
// unset. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json5.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return cfg, nil
}

// WSURL derives the event channel endpoint from the server base URL.
func (c *Config) WSURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("bad server URL %q: %w", c.ServerURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// DBPath returns the SQLite database location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "rooksync.sqlite3")
}
