// Package config loads the gridformula command configuration from a YAML
// file and GRIDFORMULA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: remote.base_url is read from
// GRIDFORMULA_REMOTE_BASE_URL.
const EnvPrefix = "GRIDFORMULA"

// Config is the full command configuration.
type Config struct {
	Remote  *Remote  `validate:"required"`
	Breaker *Breaker `validate:"required"`
	Cache   *Cache   `validate:"required"`
	Logger  *Logger  `validate:"required"`
	Wasm    *Wasm    `validate:"required"`
	// File is the config file that was read, empty when none was found.
	File string
}

// Remote configures the formula execution API client.
type Remote struct {
	BaseURL     string        `validate:"omitempty,url"`
	Token       string
	Timeout     time.Duration `validate:"gte=0"`
	BatchWindow time.Duration `validate:"gte=0"`
	MaxBatch    int           `validate:"gte=1,lte=1000"`
}

// Breaker configures the circuit breaker in front of the API.
type Breaker struct {
	MaxRequests  uint32        `validate:"gte=1"`
	Interval     time.Duration `validate:"gte=0"`
	Timeout      time.Duration `validate:"gt=0"`
	MinRequests  uint32        `validate:"gte=1"`
	FailureRatio float64       `validate:"gt=0,lte=1"`
}

// Cache selects and sizes the remote result cache.
type Cache struct {
	Kind  string        `validate:"oneof=none memory redis sql"`
	Size  int           `validate:"gte=1"`
	TTL   time.Duration `validate:"gte=0"`
	Redis *Redis
	SQL   *SQL
}

// Redis locates the Redis server of the redis cache.
type Redis struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
	Prefix   string
}

// SQL locates the database of the sql cache.
type SQL struct {
	Driver string `validate:"oneof=sqlite postgres"`
	DSN    string
}

// Logger configures process logging.
type Logger struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"oneof=text json"`
	Output string `validate:"oneof=stdout stderr file"`
	File   string
}

// Wasm lists WebAssembly modules whose exports become formula functions.
type Wasm struct {
	Modules     []string
	MemoryPages uint32
	WASI        bool
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.batch_window", 10*time.Millisecond)
	v.SetDefault("remote.max_batch", 50)

	v.SetDefault("breaker.max_requests", 100)
	v.SetDefault("breaker.interval", 5*time.Second)
	v.SetDefault("breaker.timeout", 3*time.Second)
	v.SetDefault("breaker.min_requests", 3)
	v.SetDefault("breaker.failure_ratio", 0.6)

	v.SetDefault("cache.kind", "memory")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis.prefix", "gridformula")
	v.SetDefault("cache.sql.driver", "sqlite")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stderr")

	v.SetDefault("wasm.memory_pages", 256)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, or searches for config.yaml in the working
// directory and ~/.gridformula when configPath is empty. A missing
// searched file is not an error.
func Load(configPath string) (*Config, error) {
	v := New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gridformula"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Remote:  getRemoteConfig(v),
		Breaker: getBreakerConfig(v),
		Cache:   getCacheConfig(v),
		Logger:  getLoggerConfig(v),
		Wasm:    getWasmConfig(v),
		File:    v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the cross-field rules of the
// cache backends.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Cache.Kind {
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("invalid config: cache.redis.addr is required for the redis cache")
		}
	case "sql":
		if c.Cache.SQL.DSN == "" {
			return errors.New("invalid config: cache.sql.dsn is required for the sql cache")
		}
	}
	if c.Logger.Output == "file" && c.Logger.File == "" {
		return errors.New("invalid config: logger.file is required when logger.output is file")
	}
	return nil
}
