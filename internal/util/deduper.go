package util

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper is the inbound replay guard: byte-identical messages within the
// TTL window dispatch only once. It fails open when redis is unavailable.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire the dedup lock for a message.
// Returns true when this is the first sighting within the TTL window,
// false for a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, message string) bool {
	sum := sha256.Sum256([]byte(message))
	key := fmt.Sprintf("dedup:route:%s", hex.EncodeToString(sum[:]))

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis down: do not block processing.
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicate message",
			zap.String("dedup_key", key),
		)
	}

	return ok
}
