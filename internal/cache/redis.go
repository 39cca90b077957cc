package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dreamflow/internal/breaker"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	OpTimeout    time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		OpTimeout:    3 * time.Second,
	}
}

// RedisCache stores JSON values in Redis. Every call goes through a circuit
// breaker; while it is open calls return ErrCacheDown without touching Redis.
type RedisCache struct {
	client    *redis.Client
	breaker   *breaker.CircuitBreaker
	metrics   *CacheMetrics
	opTimeout time.Duration
}

func NewRedisCache(config *CacheConfig, cb *breaker.CircuitBreaker) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if cb == nil {
		cb = breaker.New(&breaker.Config{Name: "redis", MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxCalls: 1})
	}
	opTimeout := config.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client:    rdb,
		breaker:   cb,
		metrics:   NewCacheMetrics(),
		opTimeout: opTimeout,
	}
}

func (r *RedisCache) do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		return fn(ctx)
	})
	if errors.Is(err, breaker.ErrOpen) {
		return ErrCacheDown
	}
	if err != nil {
		r.metrics.RecordError()
	}
	return err
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.do(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, data, expiration).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	r.metrics.RecordSet()
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	miss := false
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get from cache: %w", err)
	}
	if miss {
		r.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	r.metrics.RecordHit()
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := r.do(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return err
	}
	r.metrics.RecordDelete()
	return nil
}

// DeletePattern removes every key matching a glob pattern, walking the
// keyspace with SCAN rather than KEYS.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	return r.do(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
			}
			if len(keys) > 0 {
				if err := r.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
				r.metrics.RecordDelete()
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
}

// Health pings Redis directly so a health check can detect recovery while the breaker is open.
func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Metrics() *CacheMetrics {
	return r.metrics
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"metrics":       r.metrics.Snapshot(),
		"breaker":       r.breaker.Stats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
