package mutations

import (
	"context"

	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/optimistic"
	"github.com/letterdesk/go-newsletter-cache/querycache"
)

// mutation describes one handler invocation for the shared lifecycle
// runner. The runner serializes on slot, applies the optimistic step, runs
// the network call, commits or reverts, and always fires the settled
// invalidation for op.
type mutation struct {
	// slot serializes overlapping mutations; usually "kind::entity-id".
	slot string
	// op tags the settled cross-feature invalidation.
	op coordinator.OpTag
	// userID scopes the invalidation fan-out.
	userID string
	// affected narrows detail-partition invalidation.
	affected []string
	// apply performs the optimistic cache writes and returns a revert
	// closure (typically snapshot.restore). May be nil for mutations with
	// no optimistic step.
	apply func(ctx context.Context) func(ctx context.Context)
	// run issues the network call and commits authoritative data into
	// cache on success.
	run func(ctx context.Context) error
	// successToast is shown after a successful run.
	successToast string
}

// execute runs one mutation through the uniform lifecycle. The optimistic
// value is visible before run is invoked; on failure every touched
// partition is restored and the error is propagated, never swallowed.
func (d Deps) execute(ctx context.Context, state *errState, m mutation) error {
	return d.Registry.Do(ctx, m.slot, func(ctx context.Context) error {
		var revert func(ctx context.Context)
		if m.apply != nil {
			revert = m.apply(ctx)
		}

		err := m.run(ctx)
		if err != nil {
			if revert != nil {
				revert(ctx)
			}
			state.record(err)
			d.toastError(err)
			d.Coordinator.InvalidateRelated(ctx, m.userID, m.op, m.affected...)
			return err
		}

		state.record(nil)
		d.toast(LevelSuccess, m.successToast)
		d.Coordinator.InvalidateRelated(ctx, m.userID, m.op, m.affected...)
		return nil
	})
}

// snapshotSet captures whole partitions before a mutation touches them, for
// coarse-grained rollback: restore puts back exactly what was captured,
// bit-for-bit, and re-deletes partitions that did not exist.
type snapshotSet struct {
	store   *querycache.Store
	entries []snapshotEntry
}

type snapshotEntry struct {
	key     string
	value   any
	present bool
}

// capture snapshots the given keys plus every tracked key under the given
// prefixes.
func (d Deps) capture(ctx context.Context, keys []string, prefixes ...string) *snapshotSet {
	store := d.Coordinator.Store()
	seen := make(map[string]struct{}, len(keys))
	all := make([]string, 0, len(keys))
	add := func(key string) {
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			all = append(all, key)
		}
	}
	for _, key := range keys {
		add(key)
	}
	for _, prefix := range prefixes {
		for _, key := range store.Keys(prefix) {
			add(key)
		}
	}

	set := &snapshotSet{store: store, entries: make([]snapshotEntry, 0, len(all))}
	for _, key := range all {
		value, present := store.Snapshot(ctx, key)
		if present {
			value = cloneValue(value)
		}
		set.entries = append(set.entries, snapshotEntry{key: key, value: value, present: present})
	}
	return set
}

// restore reverts every captured partition to its pre-mutation state.
func (s *snapshotSet) restore(ctx context.Context) {
	for _, e := range s.entries {
		if e.present {
			s.store.Set(ctx, e.key, e.value)
		} else {
			s.store.Invalidate(ctx, e.key)
		}
	}
}

// cloneValue deep-copies the partition shapes this layer caches, so a
// snapshot never aliases the live value it will later restore over.
func cloneValue(v any) any {
	switch t := v.(type) {
	case model.Newsletter:
		return optimistic.MustClone(t)
	case []model.Newsletter:
		return optimistic.MustClone(t)
	case coordinator.ListPage:
		return optimistic.MustClone(t)
	case []model.ReadingQueueItem:
		return optimistic.MustClone(t)
	case []model.Tag:
		return optimistic.MustClone(t)
	case []model.Source:
		return optimistic.MustClone(t)
	case []model.SourceGroup:
		return optimistic.MustClone(t)
	default:
		return v
	}
}
