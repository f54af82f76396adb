package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// specs lists every file-backed key. Secrets are not here: they come from
// the environment only (see Secrets).
var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ROLO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.driver", typ: kString, env: "ROLO_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ROLO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "generator.provider", typ: kString, env: "ROLO_GENERATOR_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generator.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Provider },
	},
	{
		key: "generator.model", typ: kString, env: "ROLO_GENERATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generator.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Model },
	},
	{
		key: "generator.base_url", typ: kString, env: "ROLO_GENERATOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generator.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.BaseURL },
	},
	{
		key: "generator.timeout", typ: kDuration, env: "ROLO_GENERATOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generator.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generator.Timeout },
	},
	{
		key: "generator.max_tokens", typ: kInt, env: "ROLO_GENERATOR_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generator.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.MaxTokens },
	},
	{
		key: "generator.temperature", typ: kFloat, env: "ROLO_GENERATOR_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generator.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generator.Temperature },
	},
	{
		key: "retrieval.general_limit", typ: kInt, env: "ROLO_RETRIEVAL_GENERAL_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.GeneralLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.GeneralLimit },
	},
	{
		key: "context.display_limit", typ: kInt, env: "ROLO_CONTEXT_DISPLAY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Context.DisplayLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Context.DisplayLimit },
	},
	{
		key: "pipeline.language", typ: kString, env: "ROLO_PIPELINE_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Language },
	},
	{
		key: "log.level", typ: kString, env: "ROLO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts raw text into the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return nil, fmt.Errorf("unsupported type for %s", s.key)
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || raw == "" {
				continue
			}
			v, err := s.parse(raw)
			if err != nil {
				slog.Warn("could not parse config key, using default value", "key", s.key, "value", raw, "error", err)
				continue
			}
			s.apply(cfg, v)
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
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("could not parse env var, using default value", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
