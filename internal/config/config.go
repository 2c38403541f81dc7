package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Backend BackendConfig
	Poll    PollConfig
	Chat    ChatConfig
	Storage StorageConfig
	Serve   ServeConfig
	Log     LogConfig
}

type BackendConfig struct {
	BaseURL string
	Timeout string
}

type PollConfig struct {
	Interval       string
	RefreshCeiling string
}

type ChatConfig struct {
	LocalOllama bool
}

type StorageConfig struct {
	DataDir string
}

type ServeConfig struct {
	Addr     string
	CacheTTL string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8001",
			Timeout: "30s",
		},
		Poll: PollConfig{
			Interval:       "5s",
			RefreshCeiling: "10m",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Serve: ServeConfig{
			Addr:     "127.0.0.1:4040",
			CacheTTL: "5m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "wikigen-data"
		}
	}
	return filepath.Join(dir, "wikigen")
}

// Load reads configuration from the config file
// ($XDG_CONFIG_HOME/wikigen/config.json) with WIKIGEN_* environment
// variables overriding file values.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// TimeoutDuration parses the request timeout, falling back to 30s.
func (b BackendConfig) TimeoutDuration() time.Duration {
	return parseDuration(b.Timeout, 30*time.Second)
}

// IntervalDuration parses the poll interval, falling back to 5s.
func (p PollConfig) IntervalDuration() time.Duration {
	return parseDuration(p.Interval, 5*time.Second)
}

// RefreshCeilingDuration parses the refresh ceiling, falling back to
// 10 minutes.
func (p PollConfig) RefreshCeilingDuration() time.Duration {
	return parseDuration(p.RefreshCeiling, 10*time.Minute)
}

// CacheTTLDuration parses the serve cache TTL, falling back to 5
// minutes.
func (s ServeConfig) CacheTTLDuration() time.Duration {
	return parseDuration(s.CacheTTL, 5*time.Minute)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
