package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"followback/pkg/retry"
)

const (
	defaultRedisPrefix   = "followback:ratelimit:"
	defaultRedisAttempts = 5
)

// RedisStore keeps each address window in a Redis sorted set scored by
// microsecond timestamp. Members carry the full nanosecond timestamp so a
// window read back from Redis trims exactly like an in-memory one. Keys expire
// one window after their last update, so idle addresses are evicted by Redis
// itself.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
	backoff     retry.BackoffStrategy
}

// RedisOptions configures a RedisStore
type RedisOptions struct {
	// Prefix is prepended to every address key
	Prefix string
	// Window is the limiter's trailing window
	Window time.Duration
	// MaxAttempts bounds optimistic transaction retries under contention
	MaxAttempts int
}

// NewRedisClient creates a client for addr
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStore wraps client as a window Store
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultRedisAttempts
	}
	return &RedisStore{
		client:      client,
		prefix:      opts.Prefix,
		ttl:         opts.Window,
		maxAttempts: opts.MaxAttempts,
		backoff:     retry.DefaultExponentialBackoff(),
	}
}

// Update reads, transforms and rewrites the window inside a WATCH/MULTI
// transaction. A concurrent writer on the same key aborts the transaction and
// the update is retried against the fresh window after a short jittered
// backoff.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (bool, error) {
	redisKey := s.prefix + key
	var allowed bool

	txf := func(tx *redis.Tx) error {
		members, err := tx.ZRangeWithScores(ctx, redisKey, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		current := make(Window, 0, len(members))
		for _, m := range members {
			current = append(current, memberTime(m))
		}

		next, ok := fn(current)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			if len(next) == 0 {
				return nil
			}
			zs := make([]redis.Z, len(next))
			for i, ts := range next {
				zs[i] = redis.Z{
					Score:  float64(ts.UnixMicro()),
					Member: fmt.Sprintf("%d-%d", ts.UnixNano(), i),
				}
			}
			pipe.ZAdd(ctx, redisKey, zs...)
			if s.ttl > 0 {
				pipe.PExpire(ctx, redisKey, s.ttl)
			}
			return nil
		})
		if err == nil {
			allowed = ok
		}
		return err
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.client.Watch(ctx, txf, redisKey)
	}, retry.Config{
		MaxAttempts: s.maxAttempts,
		Backoff:     s.backoff,
		RetryIf:     func(err error) bool { return errors.Is(err, redis.TxFailedErr) },
	})
	switch {
	case err == nil:
		return allowed, nil
	case errors.Is(err, retry.ErrExhausted):
		return false, ErrContention
	default:
		return false, fmt.Errorf("redis window update for %q: %w", key, err)
	}
}

// memberTime recovers the timestamp encoded in a window member, falling back
// to the microsecond score for members it cannot parse.
func memberTime(m redis.Z) time.Time {
	if member, ok := m.Member.(string); ok {
		if nanos, _, found := strings.Cut(member, "-"); found {
			if n, err := strconv.ParseInt(nanos, 10, 64); err == nil {
				return time.Unix(0, n)
			}
		}
	}
	return time.UnixMicro(int64(m.Score))
}

// Ping checks connectivity to the backing Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
