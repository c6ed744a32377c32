package mutations

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/optimistic"
	"github.com/letterdesk/go-newsletter-cache/querycache"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Queue exposes the reading-queue actions. Each user's queue is one
// optimistic slot: an engine holds the observable list, overlapping
// mutations wait their turn FIFO, and every engine swap writes straight
// through to the queue partition.
type Queue struct {
	errState
	deps    Deps
	engines *xsync.MapOf[string, *optimistic.Engine[[]model.ReadingQueueItem]]
}

// NewQueue creates the reading-queue mutator.
func NewQueue(deps Deps) *Queue {
	return &Queue{
		deps:    deps.Normalize(),
		engines: xsync.NewMapOf[string, *optimistic.Engine[[]model.ReadingQueueItem]](),
	}
}

// engine returns the per-user queue engine, creating and cache-wiring it on
// first use. The queue partition is bound to its fetch here so settled
// invalidations refresh it in place instead of dropping it.
func (m *Queue) engine(userID string) *optimistic.Engine[[]model.ReadingQueueItem] {
	eng, _ := m.engines.LoadOrCompute(userID, func() *optimistic.Engine[[]model.ReadingQueueItem] {
		coord := m.deps.Coordinator
		coord.Store().Bind(coord.Keys().ReadingQueue(userID), m.queueFetch(userID))
		return optimistic.NewEngine(nil, func(items []model.ReadingQueueItem) {
			// The queue partition is process-wide; a mutation outliving its
			// caller still commits or reverts into it.
			coord.SetQueue(context.WithoutCancel(context.Background()), userID, items)
		})
	})
	return eng
}

// queueFetch is the partition's refetch binding: backend truth with broken
// embeds filtered out.
func (m *Queue) queueFetch(userID string) querycache.FetchBinding {
	return func(ctx context.Context) (any, error) {
		items, err := m.deps.Repos.ReadingQueue.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		return presentable(items), nil
	}
}

// List returns the user's reading queue, reading through on a miss and
// binding the partition for refetch. The engine is synced so subsequent
// optimistic ops start from fresh state.
func (m *Queue) List(ctx context.Context) ([]model.ReadingQueueItem, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		return nil, err
	}

	key := m.deps.Coordinator.Keys().ReadingQueue(userID)
	fetch := m.queueFetch(userID)
	m.deps.Coordinator.Store().Bind(key, fetch)

	raw, err := m.deps.Coordinator.Store().GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]model.ReadingQueueItem)
	if !ok {
		return nil, cache.ErrInvalidResultType
	}
	for _, item := range items {
		if item.Newsletter != nil {
			m.deps.Coordinator.IndexNewsletter(*item.Newsletter)
		}
	}
	m.engine(userID).Reset(items)
	return items, nil
}

// Add appends a newsletter to the tail of the queue. The provisional item
// carries a locally generated id and the cached newsletter embed; the
// server-assigned row arrives with the settled refetch. On success the
// newsletter's bookmark flag is patched true everywhere it is cached.
func (m *Queue) Add(ctx context.Context, newsletterID string) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if newsletterID == "" {
		err := &repository.ValidationError{Field: "newsletter_id", Message: "newsletter id is required"}
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	embed, ok := m.deps.Coordinator.Newsletter(ctx, newsletterID)
	if !ok {
		fetched, err := m.deps.Repos.Newsletters.GetByID(ctx, newsletterID)
		if err != nil {
			m.record(err)
			m.deps.toastError(err)
			return err
		}
		m.deps.Coordinator.SetNewsletter(ctx, fetched)
		embed = fetched
	}

	eng := m.engine(userID)
	m.syncEngine(ctx, userID, eng)

	provisional := coordinator.ApplyOp(eng.Value(), coordinator.AddOp{Item: model.ReadingQueueItem{
		ID:           model.NewID(),
		UserID:       userID,
		NewsletterID: newsletterID,
		Newsletter:   &embed,
		AddedAt:      time.Now(),
	}})

	_, err = eng.Execute(ctx, provisional, func(ctx context.Context) (*[]model.ReadingQueueItem, error) {
		if _, err := m.deps.Repos.ReadingQueue.Add(ctx, userID, newsletterID); err != nil {
			return nil, err
		}
		return nil, nil
	}, optimistic.Options[[]model.ReadingQueueItem]{
		OnSuccess: func([]model.ReadingQueueItem) {
			m.deps.Coordinator.UpdateNewsletterInCache(ctx, newsletterID,
				model.NewsletterPatch{IsBookmarked: model.Bool(true)}, coordinator.UpdateOptions{})
		},
	})

	m.settle(ctx, userID, coordinator.OpQueueAdd, err, "Added to reading queue", newsletterID)
	return err
}

// Remove deletes one queue item. The item's newsletter id is resolved from
// the pre-mutation snapshot so the bookmark flag can be cleared afterwards;
// an id missing from the snapshot skips the flag patch rather than failing.
func (m *Queue) Remove(ctx context.Context, itemID string) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if itemID == "" {
		err := &repository.ValidationError{Field: "item_id", Message: "queue item id is required"}
		m.record(err)
		m.deps.toastError(err)
		return err
	}

	eng := m.engine(userID)
	m.syncEngine(ctx, userID, eng)

	snapshot := eng.Value()
	newsletterID := ""
	for _, item := range snapshot {
		if item.ID == itemID {
			newsletterID = item.NewsletterID
			break
		}
	}

	provisional := coordinator.ApplyOp(snapshot, coordinator.RemoveOp{ItemID: itemID})

	_, err = eng.Execute(ctx, provisional, func(ctx context.Context) (*[]model.ReadingQueueItem, error) {
		if err := m.deps.Repos.ReadingQueue.Remove(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, nil
	}, optimistic.Options[[]model.ReadingQueueItem]{
		OnSuccess: func([]model.ReadingQueueItem) {
			if newsletterID == "" {
				return
			}
			m.deps.Coordinator.UpdateNewsletterInCache(ctx, newsletterID,
				model.NewsletterPatch{IsBookmarked: model.Bool(false)}, coordinator.UpdateOptions{})
		},
	})

	var affected []string
	if newsletterID != "" {
		affected = []string{newsletterID}
	}
	m.settle(ctx, userID, coordinator.OpQueueRemove, err, "Removed from reading queue", affected...)
	return err
}

// Reorder applies a full target ordering in one atomic provisional swap:
// either the whole target ordering shows, or the whole prior ordering is
// restored on revert. No partial application.
func (m *Queue) Reorder(ctx context.Context, updates []model.PositionUpdate) error {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return err
	}
	if err := model.ValidateReorder(updates); err != nil {
		verr := &repository.ValidationError{Field: "updates", Message: err.Error()}
		m.record(verr)
		m.deps.toastError(verr)
		return verr
	}

	eng := m.engine(userID)
	m.syncEngine(ctx, userID, eng)

	provisional := coordinator.ApplyOp(eng.Value(), coordinator.ReorderOp{Updates: updates})

	_, err = eng.Execute(ctx, provisional, func(ctx context.Context) (*[]model.ReadingQueueItem, error) {
		if err := m.deps.Repos.ReadingQueue.Reorder(ctx, userID, updates); err != nil {
			return nil, err
		}
		return nil, nil
	}, optimistic.Options[[]model.ReadingQueueItem]{})

	m.settle(ctx, userID, coordinator.OpQueueReorder, err, "Queue reordered")
	return err
}

// CleanupOrphaned deletes queue rows whose newsletter no longer exists. A
// zero removed count skips the queue refetch entirely; the operation is an
// idempotent no-op in that case.
func (m *Queue) CleanupOrphaned(ctx context.Context) (int, error) {
	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return 0, err
	}

	removed, err := m.deps.Repos.ReadingQueue.CleanupOrphaned(ctx, userID)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return 0, err
	}

	m.record(nil)
	if removed > 0 {
		key := m.deps.Coordinator.Keys().ReadingQueue(userID)
		if err := m.deps.Coordinator.Store().Refetch(ctx, key); err == nil {
			if items, ok := m.deps.Coordinator.Queue(ctx, userID); ok {
				m.engine(userID).Reset(items)
			}
		}
		m.deps.toast(LevelSuccess, fmt.Sprintf("Removed %d orphaned items", removed))
	}
	return removed, nil
}

// settle records the outcome, toasts, and fires the cross-feature
// invalidation for the operation.
func (m *Queue) settle(ctx context.Context, userID string, op coordinator.OpTag, err error, successToast string, affected ...string) {
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
	} else {
		m.record(nil)
		m.deps.toast(LevelSuccess, successToast)
	}
	m.deps.Coordinator.InvalidateRelated(ctx, userID, op, affected...)
}

// syncEngine aligns the engine's confirmed value with the cached partition
// when something else (warm, refetch) wrote it more recently. No-op while
// an update is in flight.
func (m *Queue) syncEngine(ctx context.Context, userID string, eng *optimistic.Engine[[]model.ReadingQueueItem]) {
	if eng.Pending() {
		return
	}
	if items, ok := m.deps.Coordinator.Queue(ctx, userID); ok {
		eng.Reset(items)
	}
}

// presentable drops items whose newsletter reference did not resolve; one
// bad row must not break the whole list.
func presentable(items []model.ReadingQueueItem) []model.ReadingQueueItem {
	kept := make([]model.ReadingQueueItem, 0, len(items))
	for _, item := range items {
		if item.Newsletter != nil {
			kept = append(kept, item)
		}
	}
	return kept
}
