package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "backend.base_url", typ: kString, env: "WIKIGEN_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.timeout", typ: kString, env: "WIKIGEN_BACKEND_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Backend.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Timeout },
	},
	{
		key: "poll.interval", typ: kString, env: "WIKIGEN_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Poll.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Poll.Interval },
	},
	{
		key: "poll.refresh_ceiling", typ: kString, env: "WIKIGEN_POLL_REFRESH_CEILING",
		apply:   func(cfg *Config, v any) { cfg.Poll.RefreshCeiling = v.(string) },
		extract: func(cfg Config) any { return cfg.Poll.RefreshCeiling },
	},
	{
		key: "chat.local_ollama", typ: kBool, env: "WIKIGEN_CHAT_LOCAL_OLLAMA",
		apply:   func(cfg *Config, v any) { cfg.Chat.LocalOllama = v.(bool) },
		extract: func(cfg Config) any { return cfg.Chat.LocalOllama },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WIKIGEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "serve.addr", typ: kString, env: "WIKIGEN_SERVE_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Serve.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Serve.Addr },
	},
	{
		key: "serve.cache_ttl", typ: kString, env: "WIKIGEN_SERVE_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Serve.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Serve.CacheTTL },
	},
	{
		key: "log.level", typ: kString, env: "WIKIGEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
