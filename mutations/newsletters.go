package mutations

import (
	"context"
	"fmt"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Newsletters exposes every newsletter-facing action. Reads go through the
// query cache; mutations follow the optimistic lifecycle.
type Newsletters struct {
	errState
	deps Deps
}

// NewNewsletters creates the newsletter mutator.
func NewNewsletters(deps Deps) *Newsletters {
	return &Newsletters{deps: deps.Normalize()}
}

// Get returns a newsletter, reading through to the repository on a cache
// miss and registering a refetch binding for the detail partition.
func (m *Newsletters) Get(ctx context.Context, id string) (model.Newsletter, error) {
	if id == "" {
		return model.Newsletter{}, &repository.ValidationError{Field: "id", Message: "newsletter id is required"}
	}
	key := m.deps.Coordinator.Keys().NewsletterDetail(id)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return m.deps.Repos.Newsletters.GetByID(ctx, id)
	})
	if err != nil {
		return model.Newsletter{}, err
	}
	n, ok := raw.(model.Newsletter)
	if !ok {
		return model.Newsletter{}, cache.ErrInvalidResultType
	}
	m.deps.Coordinator.IndexNewsletter(n)
	return n, nil
}

// List returns one filtered page, cached per filter.
func (m *Newsletters) List(ctx context.Context, filter repository.NewsletterFilter) (coordinator.ListPage, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return coordinator.ListPage{}, err
	}
	key := m.deps.Coordinator.Keys().NewsletterList(userID, filter)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		newsletters, total, err := m.deps.Repos.Newsletters.List(ctx, userID, filter)
		if err != nil {
			return nil, err
		}
		return coordinator.ListPage{Newsletters: newsletters, Total: total}, nil
	})
	if err != nil {
		return coordinator.ListPage{}, err
	}
	page, ok := raw.(coordinator.ListPage)
	if !ok {
		return coordinator.ListPage{}, cache.ErrInvalidResultType
	}
	for _, n := range page.Newsletters {
		m.deps.Coordinator.IndexNewsletter(n)
	}
	return page, nil
}

// UnreadCounts returns the unread aggregate, cached per user.
func (m *Newsletters) UnreadCounts(ctx context.Context) (repository.UnreadCounts, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return repository.UnreadCounts{}, err
	}
	key := m.deps.Coordinator.Keys().UnreadCounts(userID)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return m.deps.Repos.Newsletters.UnreadCounts(ctx, userID)
	})
	if err != nil {
		return repository.UnreadCounts{}, err
	}
	counts, ok := raw.(repository.UnreadCounts)
	if !ok {
		return repository.UnreadCounts{}, cache.ErrInvalidResultType
	}
	return counts, nil
}

// MarkAsRead flips the newsletter to read, optimistically and everywhere it
// is cached.
func (m *Newsletters) MarkAsRead(ctx context.Context, id string) error {
	return m.flagMutation(ctx, id, coordinator.OpNewsletterRead,
		model.NewsletterPatch{IsRead: model.Bool(true)}, "Marked as read")
}

// MarkAsUnread flips the newsletter back to unread.
func (m *Newsletters) MarkAsUnread(ctx context.Context, id string) error {
	return m.flagMutation(ctx, id, coordinator.OpNewsletterRead,
		model.NewsletterPatch{IsRead: model.Bool(false)}, "Marked as unread")
}

// ToggleLike flips the like flag. The toast reflects the resulting state,
// not the action name. The user is resolved before the read so an
// unauthenticated call never reaches the backend.
func (m *Newsletters) ToggleLike(ctx context.Context, id string) error {
	if _, err := m.deps.requireUser(ctx); err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	liked := !current.IsLiked
	message := "Newsletter unliked"
	if liked {
		message = "Newsletter liked"
	}
	return m.flagMutation(ctx, id, coordinator.OpNewsletterLike,
		model.NewsletterPatch{IsLiked: model.Bool(liked)}, message)
}

// ToggleArchive flips the archive flag, with a state-dependent toast. Like
// ToggleLike, the user gate comes before the read.
func (m *Newsletters) ToggleArchive(ctx context.Context, id string) error {
	if _, err := m.deps.requireUser(ctx); err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	archived := !current.IsArchived
	message := "Newsletter unarchived"
	if archived {
		message = "Newsletter archived"
	}
	return m.flagMutation(ctx, id, coordinator.OpNewsletterArchive,
		model.NewsletterPatch{IsArchived: model.Bool(archived)}, message)
}

// flagMutation is the shared path for single-flag newsletter toggles:
// optimistic patch across every cached representation, repository update,
// authoritative commit, coarse revert.
func (m *Newsletters) flagMutation(ctx context.Context, id string, op coordinator.OpTag, patch model.NewsletterPatch, successToast string) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if id == "" {
		err := &repository.ValidationError{Field: "id", Message: "newsletter id is required"}
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	keys := m.deps.Coordinator.Keys()
	return m.deps.execute(ctx, &m.errState, mutation{
		slot:     "newsletter" + cache.KeySeparator + id,
		op:       op,
		userID:   userID,
		affected: []string{id},
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx,
				[]string{keys.NewsletterDetail(id)},
				keys.Prefix(cache.NamespaceNewsletterList),
				keys.Prefix(cache.NamespaceReadingQueue),
			)
			m.deps.Coordinator.UpdateNewsletterInCache(ctx, id, patch, coordinator.UpdateOptions{})
			return snap.restore
		},
		run: func(ctx context.Context) error {
			updated, err := m.deps.Repos.Newsletters.Update(ctx, id, patch)
			if err != nil {
				return err
			}
			// A backend that omits the record keeps the provisional value.
			if updated.ID != "" {
				m.deps.Coordinator.SetNewsletter(ctx, updated)
			}
			return nil
		},
		successToast: successToast,
	})
}

// Delete removes a newsletter after an explicit confirmation. A declined
// prompt is a no-op: no network call, no toast, no error. The returned bool
// reports whether the delete was confirmed.
func (m *Newsletters) Delete(ctx context.Context, id string) (bool, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return false, err
	}
	if id == "" {
		err := &repository.ValidationError{Field: "id", Message: "newsletter id is required"}
		m.record(err)
		m.deps.toastError(err)
		return false, err
	}

	if !m.deps.Confirmer.Confirm("Are you sure you want to delete this newsletter?") {
		return false, nil
	}

	keys := m.deps.Coordinator.Keys()
	err = m.deps.execute(ctx, &m.errState, mutation{
		slot:     "newsletter" + cache.KeySeparator + id,
		op:       coordinator.OpNewsletterDelete,
		userID:   userID,
		affected: []string{id},
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx,
				[]string{keys.NewsletterDetail(id)},
				keys.Prefix(cache.NamespaceNewsletterList),
				keys.Prefix(cache.NamespaceReadingQueue),
			)
			m.deps.Coordinator.RemoveNewsletter(ctx, id)
			return snap.restore
		},
		run: func(ctx context.Context) error {
			return m.deps.Repos.Newsletters.Delete(ctx, id)
		},
		successToast: "Newsletter deleted",
	})
	return err == nil, err
}

// UpdateTags replaces a newsletter's tag set. The server receives an
// add/remove diff computed against the cached tag set; the cache-facing
// provisional value is simply "this newsletter now has exactly these tags".
func (m *Newsletters) UpdateTags(ctx context.Context, id string, tagIDs []string) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if id == "" {
		err := &repository.ValidationError{Field: "id", Message: "newsletter id is required"}
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	resolved, err := m.resolveTags(ctx, userID, tagIDs)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	add, remove := tagDiff(current.TagIDs(), tagIDs)

	keys := m.deps.Coordinator.Keys()
	return m.deps.execute(ctx, &m.errState, mutation{
		slot:     "newsletter" + cache.KeySeparator + id,
		op:       coordinator.OpNewsletterTags,
		userID:   userID,
		affected: []string{id},
		apply: func(ctx context.Context) func(ctx context.Context) {
			snap := m.deps.capture(ctx,
				[]string{keys.NewsletterDetail(id)},
				keys.Prefix(cache.NamespaceNewsletterList),
				keys.Prefix(cache.NamespaceReadingQueue),
			)
			m.deps.Coordinator.UpdateNewsletterInCache(ctx, id,
				model.NewsletterPatch{Tags: model.TagList(resolved)}, coordinator.UpdateOptions{})
			return snap.restore
		},
		run: func(ctx context.Context) error {
			updated, err := m.deps.Repos.Newsletters.SetTags(ctx, id, add, remove)
			if err != nil {
				return err
			}
			if updated.ID != "" {
				m.deps.Coordinator.SetNewsletter(ctx, updated)
			}
			return nil
		},
		successToast: "Tags updated",
	})
}

// resolveTags maps tag ids to full tag records through the cached tag list,
// so the denormalized embeds carry names and colors, not bare ids.
func (m *Newsletters) resolveTags(ctx context.Context, userID string, tagIDs []string) ([]model.Tag, error) {
	if len(tagIDs) == 0 {
		return []model.Tag{}, nil
	}
	key := m.deps.Coordinator.Keys().TagList(userID)
	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return m.deps.Repos.Tags.List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	known, _ := raw.([]model.Tag)

	byID := make(map[string]model.Tag, len(known))
	for _, t := range known {
		byID[t.ID] = t
	}

	resolved := make([]model.Tag, 0, len(tagIDs))
	for _, id := range tagIDs {
		t, ok := byID[id]
		if !ok {
			return nil, &repository.ValidationError{Field: "tag_ids", Message: fmt.Sprintf("unknown tag %q", id)}
		}
		resolved = append(resolved, t)
	}
	return resolved, nil
}

// tagDiff computes the server-side add/remove sets.
func tagDiff(current, target []string) (add, remove []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	targetSet := make(map[string]struct{}, len(target))
	for _, id := range target {
		targetSet[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			add = append(add, id)
		}
	}
	for _, id := range current {
		if _, ok := targetSet[id]; !ok {
			remove = append(remove, id)
		}
	}
	return add, remove
}
