// Package ratelimit bounds how many provider calls are in flight at once,
// either within one process or across every worker sharing a Redis instance.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// Limiter hands out slots. The returned release func must be called exactly
// once; extra calls are ignored.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Nop never blocks.
type Nop struct{}

func (Nop) Acquire(context.Context) (func(), error) { return func() {}, nil }

type local struct {
	sem *semaphore.Weighted
}

// NewLocal returns an in-process limiter with n slots (n <= 0 means 1).
func NewLocal(n int) Limiter {
	if n <= 0 {
		n = 1
	}
	return &local{sem: semaphore.NewWeighted(int64(n))}
}

func (l *local) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { l.sem.Release(1) }) }, nil
}

// Slots are members of a sorted set scored by their expiry, so a crashed
// holder frees its slot once the TTL passes.
var acquireScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now)
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], now + ttl, ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ttl)
  return 1
end
return 0
`)

type RedisConfig struct {
	Key          string
	Limit        int
	SlotTTL      time.Duration
	PollInterval time.Duration
	MaxPoll      time.Duration
}

type redisLimiter struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	cfg RedisConfig
}

func NewRedis(log *logger.Logger, rdb goredis.UniversalClient, cfg RedisConfig) (Limiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if cfg.Key == "" {
		cfg.Key = "omya:provider:slots"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 8
	}
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = 30 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.MaxPoll <= 0 {
		cfg.MaxPoll = time.Second
	}
	return &redisLimiter{log: log.With("service", "RedisLimiter"), rdb: rdb, cfg: cfg}, nil
}

func (r *redisLimiter) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	wait := r.cfg.PollInterval
	for {
		now := time.Now().UnixMilli()
		ok, err := acquireScript.Run(ctx, r.rdb, []string{r.cfg.Key},
			now, r.cfg.SlotTTL.Milliseconds(), r.cfg.Limit, token).Int()
		if err != nil {
			return nil, fmt.Errorf("redis limiter acquire: %w", err)
		}
		if ok == 1 {
			var once sync.Once
			return func() {
				once.Do(func() {
					// Release must succeed even when the caller's ctx is already done.
					relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := r.rdb.ZRem(relCtx, r.cfg.Key, token).Err(); err != nil {
						r.log.Warn("redis limiter release failed", "key", r.cfg.Key, "error", err)
					}
				})
			}, nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if wait *= 2; wait > r.cfg.MaxPoll {
			wait = r.cfg.MaxPoll
		}
	}
}
