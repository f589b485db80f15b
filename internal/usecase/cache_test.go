package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/logging"
)

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []interface{}
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestStatusCache(cache Cache) *StatusCache {
	s := NewStatusCache(cache, time.Minute, zap.NewNop())
	s.initialBackoff = time.Millisecond
	s.maxBackoff = 2 * time.Millisecond
	return s
}

func TestStatusCachePutRetriesTransientErrors(t *testing.T) {
	cache := &stubCache{setErrs: []error{transientRedisError{}}}
	s := newTestStatusCache(cache)

	err := s.Put(context.Background(), RequestStatus{RequestID: "req-1", State: "awaiting_picker_result"})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(cache.setKeys) != 2 {
		t.Fatalf("expected 2 set calls, got %d", len(cache.setKeys))
	}
	if cache.setKeys[0] != cache.setKeys[1] || cache.setKeys[0] != "pick:req-1" {
		t.Fatalf("unexpected keys %v", cache.setKeys)
	}
}

func TestStatusCachePutReturnsOperationError(t *testing.T) {
	s := newTestStatusCache(&stubCache{setErrs: []error{errors.New("boom")}})

	err := s.Put(context.Background(), RequestStatus{RequestID: "req-2"})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set.status" || opErr.RequestID != "req-2" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

func TestStatusCacheGetRoundTrip(t *testing.T) {
	want := RequestStatus{RequestID: "req-3", Source: "camera", State: "idle", Outcome: "success"}
	raw, _ := json.Marshal(want)
	s := newTestStatusCache(&stubCache{getValues: []string{string(raw)}})

	got, err := s.Get(context.Background(), "req-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcome != "success" || got.Source != "camera" {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestStatusCacheGetMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	s := newTestStatusCache(cache)

	_, err := s.Get(context.Background(), "req-4")
	if !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("expected ErrStatusNotFound, got %v", err)
	}
	if len(cache.getKeys) != 1 {
		t.Fatalf("a miss must not be retried, got %d calls", len(cache.getKeys))
	}
}
