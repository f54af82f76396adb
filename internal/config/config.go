package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kalambet/rolo/internal/generator"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Generator GeneratorConfig
	Retrieval RetrievalConfig
	Context   ContextConfig
	Pipeline  PipelineConfig
	Log       LogConfig

	Secrets Secrets
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	Driver  string
	DataDir string
}

type GeneratorConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

type RetrievalConfig struct {
	GeneralLimit int
}

type ContextConfig struct {
	DisplayLimit int
}

type PipelineConfig struct {
	Language string
}

type LogConfig struct {
	Level string
}

// Secrets never touch the config file. They are read from ROLO_* environment
// variables only.
type Secrets struct {
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	PostgresDSN      string `envconfig:"POSTGRES_DSN"`
	APIToken         string `envconfig:"API_TOKEN"`
}

const envPrefix = "ROLO"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			Driver:  DriverSQLite,
			DataDir: defaultDataDir(),
		},
		Generator: GeneratorConfig{
			Provider:  generator.ProviderGemini,
			Timeout:   60 * time.Second,
			MaxTokens: generator.DefaultMaxTokens,
		},
		Retrieval: RetrievalConfig{
			GeneralLimit: 100,
		},
		Context: ContextConfig{
			DisplayLimit: 50,
		},
		Pipeline: PipelineConfig{
			Language: "English",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/rolo/config.yaml, then applies ROLO_* environment
// overrides and secrets. It does not validate; call Validate before serving.
func Load() (Config, error) {
	return loadWith(newYAMLBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := envconfig.Process(envPrefix, &cfg.Secrets); err != nil {
		return Config{}, fmt.Errorf("reading secrets from environment: %w", err)
	}

	return cfg, nil
}

// Validate reports every problem that would stop the server from answering.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Secrets.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("missing required config: Postgres DSN. Set it via environment variable %s_POSTGRES_DSN", envPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be %q or %q", c.Storage.Driver, DriverSQLite, DriverPostgres))
	}

	switch c.Generator.Provider {
	case generator.ProviderGemini:
		if c.Secrets.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("missing required config: Gemini API key. Set it via environment variable %s_GEMINI_API_KEY", envPrefix))
		}
	case generator.ProviderOpenRouter:
		if c.Secrets.OpenRouterAPIKey == "" {
			errs = append(errs, fmt.Errorf("missing required config: OpenRouter API key. Set it via environment variable %s_OPENROUTER_API_KEY", envPrefix))
		}
	case generator.ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("generator.provider %q must be one of %s", c.Generator.Provider, strings.Join(generator.Providers, ", ")))
	}

	if c.Generator.Timeout <= 0 {
		errs = append(errs, errors.New("generator.timeout must be positive"))
	}
	if c.Generator.MaxTokens <= 0 {
		errs = append(errs, errors.New("generator.max_tokens must be positive"))
	}
	if c.Retrieval.GeneralLimit <= 0 {
		errs = append(errs, errors.New("retrieval.general_limit must be positive"))
	}
	if c.Context.DisplayLimit <= 0 {
		errs = append(errs, errors.New("context.display_limit must be positive"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// GeneratorSettings returns the generator settings with the provider's API key.
func (c Config) GeneratorSettings() generator.Config {
	gc := generator.Config{
		Provider:    c.Generator.Provider,
		Model:       c.Generator.Model,
		BaseURL:     c.Generator.BaseURL,
		MaxTokens:   c.Generator.MaxTokens,
		Temperature: c.Generator.Temperature,
	}
	switch c.Generator.Provider {
	case generator.ProviderGemini:
		gc.APIKey = c.Secrets.GeminiAPIKey
	case generator.ProviderOpenRouter:
		gc.APIKey = c.Secrets.OpenRouterAPIKey
		gc.SiteName = "rolo"
	}
	return gc
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "rolo-data"
		}
	}
	return filepath.Join(dir, "rolo")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "rolo", "config.yaml")
}
