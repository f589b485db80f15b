package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/logging"
)

// ErrStatusNotFound is returned when no status is cached for a request.
var ErrStatusNotFound = errors.New("request status not found")

// Cache abstracts the Redis operations used by the status cache to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// RequestStatus is the externally visible lifecycle of one request. Image
// bytes are never cached.
type RequestStatus struct {
	RequestID string    `json:"request_id"`
	Source    string    `json:"source"`
	State     string    `json:"state"`
	Outcome   string    `json:"outcome,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache stores request statuses with retries on transient errors.
type StatusCache struct {
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewStatusCache wraps cache; entries expire after ttl.
func NewStatusCache(cache Cache, ttl time.Duration, logger *zap.Logger) *StatusCache {
	return &StatusCache{
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("status_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func statusKey(requestID string) string {
	return fmt.Sprintf("pick:%s", requestID)
}

// Put stores st under its request id.
func (s *StatusCache) Put(ctx context.Context, st RequestStatus) error {
	serialized, err := json.Marshal(st)
	if err != nil {
		return logging.NewOperationError("cache.set.status", st.RequestID, err)
	}
	return s.withRedisRetry(ctx, st.RequestID, "cache.set.status", func() error {
		return s.cache.Set(ctx, statusKey(st.RequestID), string(serialized), s.ttl)
	})
}

// Get loads the cached status of requestID.
func (s *StatusCache) Get(ctx context.Context, requestID string) (*RequestStatus, error) {
	var raw string
	err := s.withRedisRetry(ctx, requestID, "cache.get.status", func() error {
		value, err := s.cache.Get(ctx, statusKey(requestID))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, err
	}

	var st RequestStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		logging.WithOperation(s.logger, "cache.get.status", requestID).Warn("failed to decode cached status", zap.Error(err))
		return nil, logging.NewOperationError("cache.get.status", requestID, err)
	}
	return &st, nil
}

func (s *StatusCache) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if s.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
