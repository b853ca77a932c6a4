package config

import "time"

// CacheConfig defines settings for the list cache. When Enabled is false or
// no Redis client could be created, every lookup is a miss and writes are
// dropped. Prefix namespaces keys so several deployments can share one Redis.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED" env-default:"true"`
	TTL     time.Duration `env:"CACHE_TTL" env-default:"60s"`
	Prefix  string        `env:"CACHE_PREFIX" env-default:"cached"`
}
