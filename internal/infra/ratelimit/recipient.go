package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"notivio/internal/domain/notification"

	"github.com/redis/go-redis/v9"
)

var _ notification.RecipientRateLimiter = (*RedisRecipientLimiter)(nil)

// RedisRecipientLimiter caps how many direct notifications a single recipient
// receives inside a sliding window. Each send is a sorted-set member scored by
// its timestamp, so the count is exact without fixed-window bursts.
type RedisRecipientLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisRecipientLimiter creates a recipient limiter on an existing Redis
// client. max sends are allowed per recipient per window.
func NewRedisRecipientLimiter(client *redis.Client, max int, window time.Duration) *RedisRecipientLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RedisRecipientLimiter{client: client, max: max, window: window}
}

// Allow reports whether one more notification may go to recipient, and records
// the send when it may. Expired members are trimmed first so the count only
// covers the live window.
func (r *RedisRecipientLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	key := "notivio:ratelimit:recipient:" + recipient
	now := time.Now()
	cutoff := now.Add(-r.window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("checking recipient rate limit: %w", err)
	}

	if countCmd.Val() >= int64(r.max) {
		return false, nil
	}

	// Member must be unique even when two sends land on the same nanosecond.
	salt := make([]byte, 4)
	_, _ = rand.Read(salt)

	record := r.client.Pipeline()
	record.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d:%s", now.UnixNano(), hex.EncodeToString(salt)),
	})
	record.Expire(ctx, key, r.window+time.Minute)
	if _, err := record.Exec(ctx); err != nil {
		return false, fmt.Errorf("recording rate limit entry: %w", err)
	}

	return true, nil
}
