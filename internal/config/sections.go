package config

import (
	"time"

	"github.com/spf13/viper"
)

func getRemoteConfig(v *viper.Viper) *Remote {
	return &Remote{
		BaseURL:     v.GetString("remote.base_url"),
		Token:       v.GetString("remote.token"),
		Timeout:     v.GetDuration("remote.timeout"),
		BatchWindow: v.GetDuration("remote.batch_window"),
		MaxBatch:    v.GetInt("remote.max_batch"),
	}
}

func getBreakerConfig(v *viper.Viper) *Breaker {
	return &Breaker{
		MaxRequests:  getUint32OrDefault(v, "breaker.max_requests", 100),
		Interval:     getDurationOrDefault(v, "breaker.interval", 5*time.Second),
		Timeout:      getDurationOrDefault(v, "breaker.timeout", 3*time.Second),
		MinRequests:  getUint32OrDefault(v, "breaker.min_requests", 3),
		FailureRatio: v.GetFloat64("breaker.failure_ratio"),
	}
}

func getCacheConfig(v *viper.Viper) *Cache {
	return &Cache{
		Kind: v.GetString("cache.kind"),
		Size: v.GetInt("cache.size"),
		TTL:  v.GetDuration("cache.ttl"),
		Redis: &Redis{
			Addr:     v.GetString("cache.redis.addr"),
			Password: v.GetString("cache.redis.password"),
			DB:       v.GetInt("cache.redis.db"),
			Prefix:   v.GetString("cache.redis.prefix"),
		},
		SQL: &SQL{
			Driver: v.GetString("cache.sql.driver"),
			DSN:    v.GetString("cache.sql.dsn"),
		},
	}
}

func getLoggerConfig(v *viper.Viper) *Logger {
	return &Logger{
		Level:  v.GetString("logger.level"),
		Format: v.GetString("logger.format"),
		Output: v.GetString("logger.output"),
		File:   v.GetString("logger.file"),
	}
}

func getWasmConfig(v *viper.Viper) *Wasm {
	return &Wasm{
		Modules:     v.GetStringSlice("wasm.modules"),
		MemoryPages: getUint32OrDefault(v, "wasm.memory_pages", 256),
		WASI:        v.GetBool("wasm.wasi"),
	}
}

// getDurationOrDefault returns duration from config or default value
func getDurationOrDefault(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	return defaultValue
}

// getUint32OrDefault returns uint32 from config or default value
func getUint32OrDefault(v *viper.Viper, key string, defaultValue uint32) uint32 {
	if v.IsSet(key) {
		return uint32(v.GetInt(key))
	}
	return defaultValue
}
