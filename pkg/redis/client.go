package redis

import (
	"posagent/pkg/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the client used by the inbound replay guard.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
