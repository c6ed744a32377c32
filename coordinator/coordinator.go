// Package coordinator owns the knowledge of which cache partitions
// represent which entity relationships, and how one entity's mutation
// ripples into the partitions that denormalize it. Every operation here is
// synchronous and in-memory; the network calls they anticipate live in
// package mutations.
package coordinator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/querycache"
)

// ListPage is the cached shape of one filtered newsletter list partition.
type ListPage struct {
	Newsletters []model.Newsletter `json:"newsletters"`
	Total       int                `json:"total"`
}

// Coordinator translates a single logical mutation into the set of
// partition writes it implies, across entity boundaries.
type Coordinator struct {
	store  *querycache.Store
	keys   *cache.KeyBuilder
	tags   *tagIndex
	logger *zap.Logger
}

// New creates a coordinator over the partition store. A nil logger is
// replaced with a no-op logger.
func New(store *querycache.Store, keys *cache.KeyBuilder, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		keys:   keys,
		tags:   newTagIndex(),
		logger: logger,
	}
}

// Store exposes the underlying partition store for read paths and refetch
// bindings.
func (c *Coordinator) Store() *querycache.Store { return c.store }

// Keys exposes the partition key builder.
func (c *Coordinator) Keys() *cache.KeyBuilder { return c.keys }

// Queue returns the cached reading queue for a user, if present.
func (c *Coordinator) Queue(ctx context.Context, userID string) ([]model.ReadingQueueItem, bool) {
	raw, ok := c.store.Snapshot(ctx, c.keys.ReadingQueue(userID))
	if !ok {
		return nil, false
	}
	items, ok := raw.([]model.ReadingQueueItem)
	return items, ok
}

// SetQueue writes a user's queue partition. Items without a resolvable
// newsletter embed are dropped from the presented collection rather than
// shown broken; the orphaned rows remain the backend's to clean up.
func (c *Coordinator) SetQueue(ctx context.Context, userID string, items []model.ReadingQueueItem) {
	presentable := make([]model.ReadingQueueItem, 0, len(items))
	for _, item := range items {
		if item.Newsletter == nil {
			c.logger.Debug("dropping queue item with unresolvable newsletter",
				zap.String("item_id", item.ID),
				zap.String("newsletter_id", item.NewsletterID))
			continue
		}
		presentable = append(presentable, item)
		c.tags.set(item.Newsletter.ID, item.Newsletter.TagIDs())
	}
	c.store.Set(ctx, c.keys.ReadingQueue(userID), presentable)
}

// ApplyQueueOp applies one provisional queue operation to the user's queue
// partition. A missing partition is treated as empty for AddOp and as a
// no-op for the rest.
func (c *Coordinator) ApplyQueueOp(ctx context.Context, userID string, op QueueOp) {
	items, ok := c.Queue(ctx, userID)
	if !ok {
		if _, isAdd := op.(AddOp); !isAdd {
			if _, isRevert := op.(RevertOp); !isRevert {
				return
			}
		}
	}
	c.SetQueue(ctx, userID, applyQueueOp(items, op))
}

// Newsletter returns the cached detail copy of a newsletter, if present.
func (c *Coordinator) Newsletter(ctx context.Context, id string) (model.Newsletter, bool) {
	raw, ok := c.store.Snapshot(ctx, c.keys.NewsletterDetail(id))
	if !ok {
		return model.Newsletter{}, false
	}
	n, ok := raw.(model.Newsletter)
	return n, ok
}

// SetNewsletter writes the detail partition for a newsletter and records
// its tag memberships in the reverse index.
func (c *Coordinator) SetNewsletter(ctx context.Context, n model.Newsletter) {
	c.store.Set(ctx, c.keys.NewsletterDetail(n.ID), n)
	c.tags.set(n.ID, n.TagIDs())
}

// SetListPage writes one filtered list partition and indexes the tags of
// every newsletter on the page.
func (c *Coordinator) SetListPage(ctx context.Context, userID string, filter any, page ListPage) {
	c.store.Set(ctx, c.keys.NewsletterList(userID, filter), page)
	for _, n := range page.Newsletters {
		c.tags.set(n.ID, n.TagIDs())
	}
}

// UpdateOptions modify UpdateNewsletterInCache.
type UpdateOptions struct {
	// InvalidateRelated additionally schedules the patched list partitions
	// for background refetch instead of trusting the patched copies
	// indefinitely.
	InvalidateRelated bool
}

// UpdateNewsletterInCache applies a partial update to every cached
// representation of a newsletter: its standalone detail entry, its
// appearance inside queue items, and its appearance inside list pages.
func (c *Coordinator) UpdateNewsletterInCache(ctx context.Context, id string, patch model.NewsletterPatch, opts UpdateOptions) {
	if patch.IsZero() {
		return
	}

	if n, ok := c.Newsletter(ctx, id); ok {
		c.SetNewsletter(ctx, patch.Apply(n))
	}

	c.eachListPage(ctx, func(key string, page ListPage) (ListPage, bool) {
		touched := false
		for i := range page.Newsletters {
			if page.Newsletters[i].ID == id {
				page.Newsletters[i] = patch.Apply(page.Newsletters[i])
				c.tags.set(id, page.Newsletters[i].TagIDs())
				touched = true
			}
		}
		if touched && opts.InvalidateRelated {
			c.store.RefetchAsync(ctx, key)
		}
		return page, touched
	})

	c.eachQueue(ctx, func(key string, items []model.ReadingQueueItem) ([]model.ReadingQueueItem, bool) {
		touched := false
		for i := range items {
			if items[i].NewsletterID != id || items[i].Newsletter == nil {
				continue
			}
			embedded := patch.Apply(*items[i].Newsletter)
			items[i].Newsletter = &embedded
			touched = true
		}
		return items, touched
	})
}

// RemoveNewsletter drops a newsletter from every cached representation
// after an explicit delete: detail entry gone, filtered out of list pages
// and queue items, forgotten by the tag index.
func (c *Coordinator) RemoveNewsletter(ctx context.Context, id string) {
	c.store.Invalidate(ctx, c.keys.NewsletterDetail(id))
	c.tags.forget(id)

	c.eachListPage(ctx, func(_ string, page ListPage) (ListPage, bool) {
		kept := page.Newsletters[:0]
		for _, n := range page.Newsletters {
			if n.ID != id {
				kept = append(kept, n)
			}
		}
		if len(kept) == len(page.Newsletters) {
			return page, false
		}
		page.Total -= len(page.Newsletters) - len(kept)
		page.Newsletters = kept
		return page, true
	})

	c.eachQueue(ctx, func(_ string, items []model.ReadingQueueItem) ([]model.ReadingQueueItem, bool) {
		kept := items[:0]
		for _, item := range items {
			if item.NewsletterID != id {
				kept = append(kept, item)
			}
		}
		return kept, len(kept) != len(items)
	})
}

// RemoveTagFromAllNewsletters strips a deleted tag from the denormalized
// tag list of every cached newsletter that carries it. Tags are embedded,
// not referenced, so there is no single key to invalidate; the reverse
// index bounds the fan-out to affected newsletters.
func (c *Coordinator) RemoveTagFromAllNewsletters(ctx context.Context, tagID string) []string {
	affected := c.tags.drop(tagID)
	if len(affected) == 0 {
		return nil
	}
	affectedSet := make(map[string]struct{}, len(affected))
	for _, id := range affected {
		affectedSet[id] = struct{}{}
	}

	strip := func(n model.Newsletter) model.Newsletter {
		kept := make([]model.Tag, 0, len(n.Tags))
		for _, t := range n.Tags {
			if t.ID != tagID {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
		return n
	}

	for _, id := range affected {
		if n, ok := c.Newsletter(ctx, id); ok {
			c.store.Set(ctx, c.keys.NewsletterDetail(id), strip(n))
		}
	}

	c.eachListPage(ctx, func(_ string, page ListPage) (ListPage, bool) {
		touched := false
		for i := range page.Newsletters {
			if _, hit := affectedSet[page.Newsletters[i].ID]; hit {
				page.Newsletters[i] = strip(page.Newsletters[i])
				touched = true
			}
		}
		return page, touched
	})

	c.eachQueue(ctx, func(_ string, items []model.ReadingQueueItem) ([]model.ReadingQueueItem, bool) {
		touched := false
		for i := range items {
			if items[i].Newsletter == nil {
				continue
			}
			if _, hit := affectedSet[items[i].NewsletterID]; hit {
				stripped := strip(*items[i].Newsletter)
				items[i].Newsletter = &stripped
				touched = true
			}
		}
		return items, touched
	})

	c.logger.Debug("tag removed from cached newsletters",
		zap.String("tag_id", tagID),
		zap.Int("affected", len(affected)))
	return affected
}

// IndexNewsletter records a newsletter's tag memberships without writing
// any partition. Read paths that cache through the store directly use this
// to keep the reverse index complete.
func (c *Coordinator) IndexNewsletter(n model.Newsletter) {
	c.tags.set(n.ID, n.TagIDs())
}

// TaggedNewsletters reports which cached newsletters currently carry a tag.
func (c *Coordinator) TaggedNewsletters(tagID string) []string {
	return c.tags.newsletters(tagID)
}

// eachListPage visits every cached newsletter-list partition, writing back
// pages the visitor reports as changed.
func (c *Coordinator) eachListPage(ctx context.Context, visit func(key string, page ListPage) (ListPage, bool)) {
	prefix := c.keys.Prefix(cache.NamespaceNewsletterList)
	for _, key := range c.store.Keys(prefix) {
		raw, ok := c.store.Snapshot(ctx, key)
		if !ok {
			continue
		}
		page, ok := raw.(ListPage)
		if !ok {
			continue
		}
		if next, changed := visit(key, clonePage(page)); changed {
			c.store.Set(ctx, key, next)
		}
	}
}

// eachQueue visits every cached reading-queue partition.
func (c *Coordinator) eachQueue(ctx context.Context, visit func(key string, items []model.ReadingQueueItem) ([]model.ReadingQueueItem, bool)) {
	prefix := c.keys.Prefix(cache.NamespaceReadingQueue)
	for _, key := range c.store.Keys(prefix) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		raw, ok := c.store.Snapshot(ctx, key)
		if !ok {
			continue
		}
		items, ok := raw.([]model.ReadingQueueItem)
		if !ok {
			continue
		}
		next := make([]model.ReadingQueueItem, len(items))
		copy(next, items)
		if next, changed := visit(key, next); changed {
			c.store.Set(ctx, key, next)
		}
	}
}

func clonePage(page ListPage) ListPage {
	next := ListPage{Total: page.Total}
	next.Newsletters = make([]model.Newsletter, len(page.Newsletters))
	copy(next.Newsletters, page.Newsletters)
	return next
}
