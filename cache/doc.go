// Package cache provides the keyed store interface and key construction for
// the newsletter query cache.
//
// # Overview
//
// This package exports three main pieces:
//
//   - CacheService: the keyed store the partition layer sits on, with
//     read-through (GetOrFetch) and direct (Get/Set) access
//   - KeyBuilder: partition key construction for every partition category
//   - KeySerializer: stable serialization of filter arguments into key
//     segments
//
// # Partition keys
//
// Every key starts with a namespace constant (newsletter_detail,
// newsletter_list, reading_queue, ...) followed by KeySeparator-joined
// segments. Fan-out invalidation relies on these namespaces: invalidating
// "every newsletter list" is a single prefix deletion, so write paths and
// invalidation rules must build keys through the same KeyBuilder.
//
//	keys := cache.NewKeyBuilder(nil)
//	key := keys.NewsletterList("user-1", repository.NewsletterFilter{TagID: "t1"})
//
// # Key serialization strategy
//
// The default serializer uses reflection:
//
//   - Basic types: direct string representation
//   - Slices/arrays: recursive serialization of elements
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: exported fields with name:value pairs
//   - Anything else: JSON fallback, degrading to type information if
//     marshaling fails
//
// Determinism matters more than readability here: two calls with equal
// filters must hit the same partition.
//
// # Direct writes
//
// Optimistic updates write provisional values with Set before the network
// settles, which is why CacheService exposes more than a read-through
// surface. The typed helpers (Get, GetOrFetch) recover static types at the
// call site; a type mismatch on read-through surfaces as
// ErrInvalidResultType, while Get treats it as a miss.
//
// # See also
//
// Package querycache layers snapshots, invalidation tracking and refetch
// bindings on top of CacheService. Package coordinator owns which partitions
// a mutation touches.
package cache
