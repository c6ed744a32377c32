// Package querycache layers partition semantics over the raw cache: value
// snapshots for rollback, a registry of live partition keys for predicate
// invalidation, and refetch bindings that let an invalidated partition
// repopulate itself.
package querycache

import (
	"context"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/cache"
)

// FetchBinding produces a fresh value for one partition key.
type FetchBinding func(ctx context.Context) (any, error)

// Store is the query-cache partition layer. All operations are local and
// synchronous except RefetchAsync; none of them can fail in a way the
// caller must handle (the cache is in-memory).
type Store struct {
	cache    cache.CacheService
	keys     *xsync.MapOf[string, struct{}]
	bindings *xsync.MapOf[string, FetchBinding]
	logger   *zap.Logger
}

// New creates a partition store over the given cache service.
func New(service cache.CacheService, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cache:    service,
		keys:     xsync.NewMapOf[string, struct{}](),
		bindings: xsync.NewMapOf[string, FetchBinding](),
		logger:   logger,
	}
}

// Snapshot returns the current value of a partition, if present. The caller
// owns deep-copying before mutating; see package optimistic.
func (s *Store) Snapshot(ctx context.Context, key string) (any, bool) {
	return s.cache.Get(ctx, key)
}

// Set writes a partition value and registers the key for later
// invalidation scans.
func (s *Store) Set(ctx context.Context, key string, value any) {
	s.keys.Store(key, struct{}{})
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Debug("partition set failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrFetch reads through to the source of truth on a miss, registering
// both the key and the fetch function so the partition can be refetched
// after invalidation.
func (s *Store) GetOrFetch(ctx context.Context, key string, fetch FetchBinding) (any, error) {
	s.keys.Store(key, struct{}{})
	s.bindings.Store(key, fetch)
	return s.cache.GetOrFetch(ctx, key, fetch)
}

// Bind registers a fetch function for a key without reading it, so Refetch
// works on partitions that were only ever written optimistically.
func (s *Store) Bind(key string, fetch FetchBinding) {
	s.keys.Store(key, struct{}{})
	s.bindings.Store(key, fetch)
}

// Invalidate drops the given partitions.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.InvalidateKeys(ctx, keys); err != nil {
		s.logger.Debug("invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
	for _, key := range keys {
		s.keys.Delete(key)
	}
}

// InvalidatePrefix drops every partition in a namespace.
func (s *Store) InvalidatePrefix(ctx context.Context, prefix string) {
	if err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
		s.logger.Debug("prefix invalidate failed", zap.String("prefix", prefix), zap.Error(err))
	}
	s.keys.Range(func(key string, _ struct{}) bool {
		if strings.HasPrefix(key, prefix) {
			s.keys.Delete(key)
		}
		return true
	})
}

// InvalidateMatching drops every tracked partition the predicate accepts.
func (s *Store) InvalidateMatching(ctx context.Context, match func(key string) bool) {
	var doomed []string
	s.keys.Range(func(key string, _ struct{}) bool {
		if match(key) {
			doomed = append(doomed, key)
		}
		return true
	})
	if len(doomed) > 0 {
		s.Invalidate(ctx, doomed...)
	}
}

// Keys returns a snapshot of the tracked partition keys, optionally
// restricted to a prefix.
func (s *Store) Keys(prefix string) []string {
	var keys []string
	s.keys.Range(func(key string, _ struct{}) bool {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// Stale marks one partition stale. A partition with a fetch binding keeps
// its current value and refreshes in the background; an unbound partition
// is dropped and repopulates on its next read-through.
func (s *Store) Stale(ctx context.Context, key string) {
	if _, bound := s.bindings.Load(key); bound {
		s.RefetchAsync(ctx, key)
		return
	}
	s.Invalidate(ctx, key)
}

// StalePrefix marks every tracked partition in a namespace stale.
func (s *Store) StalePrefix(ctx context.Context, prefix string) {
	for _, key := range s.Keys(prefix) {
		s.Stale(ctx, key)
	}
}

// Refetch repopulates a partition from its bound fetch function. Partitions
// without a binding are left invalidated; the next read-through fills them.
func (s *Store) Refetch(ctx context.Context, key string) error {
	fetch, ok := s.bindings.Load(key)
	if !ok {
		return nil
	}
	value, err := fetch(ctx)
	if err != nil {
		s.logger.Debug("refetch failed", zap.String("key", key), zap.Error(err))
		return err
	}
	s.Set(ctx, key, value)
	return nil
}

// RefetchAsync schedules a background refetch. Failures are visible only in
// logs; a stale-then-refreshed partition is not an error condition.
func (s *Store) RefetchAsync(ctx context.Context, key string) {
	go func() {
		_ = s.Refetch(context.WithoutCancel(ctx), key)
	}()
}
