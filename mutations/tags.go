package mutations

import (
	"context"
	"strings"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Tags exposes the tag CRUD actions. Create and update touch only the tag
// list partition; delete additionally fans out to every cached newsletter
// that embeds the tag.
type Tags struct {
	errState
	deps Deps
}

// NewTags creates the tag mutator.
func NewTags(deps Deps) *Tags {
	return &Tags{deps: deps.Normalize()}
}

// List returns the user's tags, reading through on a miss and binding the
// partition for refetch.
func (m *Tags) List(ctx context.Context) ([]model.Tag, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	key := m.deps.Coordinator.Keys().TagList(userID)
	fetch := func(ctx context.Context) (any, error) {
		return m.deps.Repos.Tags.List(ctx, userID)
	}
	m.deps.Coordinator.Store().Bind(key, fetch)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	tags, ok := raw.([]model.Tag)
	if !ok {
		return nil, cache.ErrInvalidResultType
	}
	return tags, nil
}

// Create adds a tag. The provisional entry carries a locally generated id;
// the server row replaces it on commit.
func (m *Tags) Create(ctx context.Context, name, color string) (model.Tag, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return model.Tag{}, err
	}
	if err := model.ValidateTagInput(name, color); err != nil {
		verr := &repository.ValidationError{Field: "tag", Message: err.Error()}
		m.record(verr)
		m.deps.toastError(verr)
		return model.Tag{}, verr
	}

	provisional := model.Tag{ID: model.NewID(), Name: strings.TrimSpace(name), Color: color}
	keys := m.deps.Coordinator.Keys()

	var created model.Tag
	err = m.deps.execute(ctx, &m.errState, mutation{
		slot:   "tag" + cache.KeySeparator + userID,
		op:     coordinator.OpTagCreate,
		userID: userID,
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx, []string{keys.TagList(userID)})
			if tags, ok := m.cachedTags(ctx, userID); ok {
				m.deps.Coordinator.Store().Set(ctx, keys.TagList(userID), append(tags, provisional))
			}
			return snap.restore
		},
		run: func(ctx context.Context) error {
			tag, err := m.deps.Repos.Tags.Create(ctx, userID, provisional)
			if err != nil {
				return err
			}
			created = tag
			// Swap the provisional id for the server-assigned row.
			if tags, ok := m.cachedTags(ctx, userID); ok {
				for i := range tags {
					if tags[i].ID == provisional.ID {
						tags[i] = tag
					}
				}
				m.deps.Coordinator.Store().Set(ctx, keys.TagList(userID), tags)
			}
			return nil
		},
		successToast: "Tag created",
	})
	if err != nil {
		return model.Tag{}, err
	}
	return created, nil
}

// Update renames or recolors a tag. The new name and color also show up in
// every cached newsletter embedding the tag; that propagation rides the
// settled invalidation rather than a synchronous rewrite, since the embeds
// refetch with fresh denormalized rows.
func (m *Tags) Update(ctx context.Context, tag model.Tag) (model.Tag, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return model.Tag{}, err
	}
	if tag.ID == "" {
		verr := &repository.ValidationError{Field: "id", Message: "tag id is required"}
		m.record(verr)
		m.deps.toastError(verr)
		return model.Tag{}, verr
	}
	if err := model.ValidateTagInput(tag.Name, tag.Color); err != nil {
		verr := &repository.ValidationError{Field: "tag", Message: err.Error()}
		m.record(verr)
		m.deps.toastError(verr)
		return model.Tag{}, verr
	}
	tag.Name = strings.TrimSpace(tag.Name)

	keys := m.deps.Coordinator.Keys()
	affected := m.deps.Coordinator.TaggedNewsletters(tag.ID)

	var updated model.Tag
	err = m.deps.execute(ctx, &m.errState, mutation{
		slot:     "tag" + cache.KeySeparator + userID,
		op:       coordinator.OpTagUpdate,
		userID:   userID,
		affected: affected,
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx, []string{keys.TagList(userID)})
			if tags, ok := m.cachedTags(ctx, userID); ok {
				for i := range tags {
					if tags[i].ID == tag.ID {
						tags[i] = tag
					}
				}
				m.deps.Coordinator.Store().Set(ctx, keys.TagList(userID), tags)
			}
			return snap.restore
		},
		run: func(ctx context.Context) error {
			fresh, err := m.deps.Repos.Tags.Update(ctx, tag)
			if err != nil {
				return err
			}
			updated = fresh
			return nil
		},
		successToast: "Tag updated",
	})
	if err != nil {
		return model.Tag{}, err
	}
	return updated, nil
}

// Delete removes a tag after an explicit confirmation. Deletion fans out:
// the tag leaves the tag list and the denormalized tag set of every cached
// newsletter that carried it, all in the same optimistic step, and all
// restored together on revert. The returned bool reports whether the delete
// was confirmed.
func (m *Tags) Delete(ctx context.Context, id string) (bool, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return false, err
	}
	if id == "" {
		verr := &repository.ValidationError{Field: "id", Message: "tag id is required"}
		m.record(verr)
		m.deps.toastError(verr)
		return false, verr
	}

	if !m.deps.Confirmer.Confirm("Delete this tag? It will be removed from all newsletters.") {
		return false, nil
	}

	keys := m.deps.Coordinator.Keys()
	affected := m.deps.Coordinator.TaggedNewsletters(id)

	err = m.deps.execute(ctx, &m.errState, mutation{
		slot:     "tag" + cache.KeySeparator + userID,
		op:       coordinator.OpTagDelete,
		userID:   userID,
		affected: affected,
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx,
				[]string{keys.TagList(userID)},
				keys.Prefix(cache.NamespaceNewsletterDetail),
				keys.Prefix(cache.NamespaceNewsletterList),
				keys.Prefix(cache.NamespaceReadingQueue),
			)
			if tags, ok := m.cachedTags(ctx, userID); ok {
				kept := make([]model.Tag, 0, len(tags))
				for _, t := range tags {
					if t.ID != id {
						kept = append(kept, t)
					}
				}
				m.deps.Coordinator.Store().Set(ctx, keys.TagList(userID), kept)
			}
			stripped := m.deps.Coordinator.RemoveTagFromAllNewsletters(ctx, id)
			return func(ctx context.Context) {
				snap.restore(ctx)
				// The fan-out dropped these memberships from the reverse
				// index; putting the embeds back must re-index them.
				for _, nid := range stripped {
					if n, ok := m.deps.Coordinator.Newsletter(ctx, nid); ok {
						m.deps.Coordinator.IndexNewsletter(n)
					}
				}
			}
		},
		run: func(ctx context.Context) error {
			return m.deps.Repos.Tags.Delete(ctx, id)
		},
		successToast: "Tag deleted",
	})
	return err == nil, err
}

// cachedTags returns a copy of the cached tag list partition, if present.
func (m *Tags) cachedTags(ctx context.Context, userID string) ([]model.Tag, bool) {
	raw, ok := m.deps.Coordinator.Store().Snapshot(ctx, m.deps.Coordinator.Keys().TagList(userID))
	if !ok {
		return nil, false
	}
	tags, ok := raw.([]model.Tag)
	if !ok {
		return nil, false
	}
	next := make([]model.Tag, len(tags))
	copy(next, tags)
	return next, true
}
