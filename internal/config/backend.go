package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Backend persists the keys set with "rolo config set".
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// yamlBackend stores config as YAML at an XDG-compatible path. Dotted keys
// become nested sections ("server.port" is port under server).
type yamlBackend struct {
	path string
	v    *viper.Viper
}

func newYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, v: newViper(path)}
	b.load()
	return b
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func (b *yamlBackend) load() {
	if err := b.v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}
		slog.Warn("could not read config file, using default values", "path", b.path, "error", err)
	}
}

func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := b.v.WriteConfigAs(b.path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return os.Chmod(b.path, 0o600)
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	if !b.v.IsSet(key) {
		return "", false, nil
	}
	return b.v.GetString(key), true, nil
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	if !b.v.IsSet(key) {
		return 0, false, nil
	}
	switch val := b.v.Get(key).(type) {
	case int:
		return val, true, nil
	case int64:
		return int(val), true, nil
	case uint64:
		if val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", val, key)
	}
}

func (b *yamlBackend) SetString(key, val string) error {
	b.v.Set(key, val)
	return b.save()
}

func (b *yamlBackend) SetInt(key string, val int) error {
	b.v.Set(key, val)
	return b.save()
}

// Delete rewrites the file without key; viper has no way to unset a value.
func (b *yamlBackend) Delete(key string) error {
	next := newViper(b.path)
	for _, k := range b.v.AllKeys() {
		if k != key {
			next.Set(k, b.v.Get(k))
		}
	}
	b.v = next
	return b.save()
}
