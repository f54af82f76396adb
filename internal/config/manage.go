package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
// Secrets are listed by env var only, with their value masked.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	for _, sec := range []struct{ env, val string }{
		{envPrefix + "_GEMINI_API_KEY", cfg.Secrets.GeminiAPIKey},
		{envPrefix + "_OPENROUTER_API_KEY", cfg.Secrets.OpenRouterAPIKey},
		{envPrefix + "_POSTGRES_DSN", cfg.Secrets.PostgresDSN},
		{envPrefix + "_API_TOKEN", cfg.Secrets.APIToken},
	} {
		result = append(result, KeyInfo{Key: "(secret)", EnvVar: sec.env, Value: mask(sec.val)})
	}
	return result
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "****"
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	return setKey(newYAMLBackend(configFilePath()), key, value)
}

func setKey(b Backend, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		v, err := s.parse(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if s.typ == kInt {
			return b.SetInt(key, v.(int))
		}
		return b.SetString(key, value)
	}
	return fmt.Errorf("unknown config key: %q (secrets are set via %s_* environment variables)", key, envPrefix)
}

// UnsetKey removes a key from the config file so the default applies again.
func UnsetKey(key string) error {
	return unsetKey(newYAMLBackend(configFilePath()), key)
}

func unsetKey(b Backend, key string) error {
	for _, s := range specs {
		if s.key == key {
			return b.Delete(key)
		}
	}
	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
