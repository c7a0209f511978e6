package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisRateLimitPrefix = "devenv:ratelimit:"
	redisCallTimeout     = 250 * time.Millisecond
	redisDialTimeout     = 2 * time.Second
)

// redisRateLimiter counts requests per key in Redis so every API replica
// shares one window. Any Redis failure lets the request through.
type redisRateLimiter struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis and fails when it does not answer PING.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client redis.UniversalClient, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &redisRateLimiter{client: client, logger: logger}
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	count, ttl, err := rl.hit(ctx, redisRateLimitPrefix+key, window)
	if err != nil {
		rl.logger.Error("redis rate limiter unavailable, allowing request", "key", rateMetricKey(key), "error", err)
		return rateDecision{allowed: true}
	}
	return rateDecision{
		allowed:   count <= int64(limit),
		count:     int(count),
		windowEnd: time.Now().Add(ttl),
	}
}

// hit increments the counter and reads its remaining lifetime in one
// MULTI/EXEC. A counter without an expiry, new or orphaned, gets the window
// applied so it can never pin a client at the limit.
func (rl *redisRateLimiter) hit(ctx context.Context, redisKey string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	}); err != nil {
		return 0, 0, err
	}
	ttl := pttl.Val()
	if ttl <= 0 {
		if err := rl.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return incr.Val(), ttl, nil
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}
