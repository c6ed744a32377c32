package cache

import (
	"context"
	"errors"
)

// ErrInvalidResultType is returned by the typed helpers when a cached value
// does not match the requested type. This indicates a key collision between
// partitions of different shapes.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// FetchFn is the function signature CacheService expects when fetching from
// the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService is the keyed store underneath the query-cache partition
// layer. Read-through access goes through GetOrFetch; optimistic writes use
// Get/Set directly, since a provisional value must be visible before any
// fetch settles.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
	ScanKeys(ctx context.Context) []string
}

// GetOrFetch is a type-safe wrapper over CacheService.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		var zero T
		return zero, err
	}
	if result == nil {
		var zero T
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, ErrInvalidResultType
	}
	return typed, nil
}

// Get is a type-safe wrapper over CacheService.Get. A value of the wrong
// type is treated as a miss rather than an error; the caller falls back to
// fetching.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool) {
	var zero T
	raw, ok := service.Get(ctx, key)
	if !ok || raw == nil {
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
