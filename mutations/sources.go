package mutations

import (
	"context"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Sources exposes the source and source-group actions. Archiving a source
// is the cross-cutting one: it changes which newsletters filtered lists
// show and what the unread aggregate counts, so its settled invalidation
// reaches beyond the source partitions.
type Sources struct {
	errState
	deps Deps
}

// NewSources creates the source mutator.
func NewSources(deps Deps) *Sources {
	return &Sources{deps: deps.Normalize()}
}

// List returns the source list, reading through on a miss and binding the
// partition for refetch.
func (m *Sources) List(ctx context.Context) ([]model.Source, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	key := m.deps.Coordinator.Keys().SourceList()
	fetch := func(ctx context.Context) (any, error) {
		return m.deps.Repos.Sources.List(ctx, userID)
	}
	m.deps.Coordinator.Store().Bind(key, fetch)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	sources, ok := raw.([]model.Source)
	if !ok {
		return nil, cache.ErrInvalidResultType
	}
	return sources, nil
}

// Groups returns the source groups with their member sources embedded.
func (m *Sources) Groups(ctx context.Context) ([]model.SourceGroup, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	key := m.deps.Coordinator.Keys().SourceGroupList()
	fetch := func(ctx context.Context) (any, error) {
		return m.deps.Repos.Sources.Groups(ctx, userID)
	}
	m.deps.Coordinator.Store().Bind(key, fetch)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	groups, ok := raw.([]model.SourceGroup)
	if !ok {
		return nil, cache.ErrInvalidResultType
	}
	return groups, nil
}

// SetArchived flips a source's archived flag. The flag is patched
// optimistically into both the flat source list and the group embeds, and
// both partitions restore together on revert.
func (m *Sources) SetArchived(ctx context.Context, id string, archived bool) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if id == "" {
		verr := &repository.ValidationError{Field: "id", Message: "source id is required"}
		m.record(verr)
		m.deps.toastError(verr)
		return verr
	}

	message := "Source unarchived"
	if archived {
		message = "Source archived"
	}

	keys := m.deps.Coordinator.Keys()
	return m.deps.execute(ctx, &m.errState, mutation{
		slot:   "source" + cache.KeySeparator + id,
		op:     coordinator.OpSourceArchive,
		userID: userID,
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx, []string{keys.SourceList(), keys.SourceGroupList()})
			m.patchSource(ctx, id, archived)
			return snap.restore
		},
		run: func(ctx context.Context) error {
			updated, err := m.deps.Repos.Sources.SetArchived(ctx, id, archived)
			if err != nil {
				return err
			}
			if updated.ID != "" {
				m.patchSource(ctx, id, updated.IsArchived)
			}
			return nil
		},
		successToast: message,
	})
}

// patchSource writes the archived flag into the cached source list and into
// every group embed carrying the source.
func (m *Sources) patchSource(ctx context.Context, id string, archived bool) {
	store := m.deps.Coordinator.Store()
	keys := m.deps.Coordinator.Keys()

	if raw, ok := store.Snapshot(ctx, keys.SourceList()); ok {
		if sources, ok := raw.([]model.Source); ok {
			next := make([]model.Source, len(sources))
			copy(next, sources)
			for i := range next {
				if next[i].ID == id {
					next[i].IsArchived = archived
				}
			}
			store.Set(ctx, keys.SourceList(), next)
		}
	}

	if raw, ok := store.Snapshot(ctx, keys.SourceGroupList()); ok {
		if groups, ok := raw.([]model.SourceGroup); ok {
			next := make([]model.SourceGroup, len(groups))
			copy(next, groups)
			for gi := range next {
				sources := make([]model.Source, len(next[gi].Sources))
				copy(sources, next[gi].Sources)
				for si := range sources {
					if sources[si].ID == id {
						sources[si].IsArchived = archived
					}
				}
				next[gi].Sources = sources
			}
			store.Set(ctx, keys.SourceGroupList(), next)
		}
	}
}
