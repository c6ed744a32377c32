package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/cache"
)

// OpTag identifies a mutation category for cross-feature invalidation. The
// enum is closed: every mutation handler settles with exactly one of these,
// and the rules table below must cover them all. Free-form strings are
// deliberately not accepted; an operation without a rule cannot compile
// itself into existence.
type OpTag int

const (
	OpUnknown OpTag = iota
	OpNewsletterRead
	OpNewsletterLike
	OpNewsletterArchive
	OpNewsletterDelete
	OpNewsletterBulk
	OpNewsletterTags
	OpQueueAdd
	OpQueueRemove
	OpQueueReorder
	OpQueueCleanup
	OpTagCreate
	OpTagUpdate
	OpTagDelete
	OpSourceArchive
	OpSourceUpdate
)

var opTagNames = map[OpTag]string{
	OpUnknown:           "unknown",
	OpNewsletterRead:    "newsletter-read",
	OpNewsletterLike:    "newsletter-like",
	OpNewsletterArchive: "newsletter-archive",
	OpNewsletterDelete:  "newsletter-delete",
	OpNewsletterBulk:    "newsletter-bulk",
	OpNewsletterTags:    "newsletter-tags",
	OpQueueAdd:          "queue-add",
	OpQueueRemove:       "queue-remove",
	OpQueueReorder:      "queue-reorder",
	OpQueueCleanup:      "queue-cleanup",
	OpTagCreate:         "tag-create",
	OpTagUpdate:         "tag-update",
	OpTagDelete:         "tag-delete",
	OpSourceArchive:     "source-archive",
	OpSourceUpdate:      "source-update",
}

// String returns the operation tag's wire-stable name.
func (t OpTag) String() string {
	if name, ok := opTagNames[t]; ok {
		return name
	}
	return "unknown"
}

// scope is one partition category to mark stale.
type scope int

const (
	scopeNewsletterDetails scope = iota
	scopeNewsletterLists
	scopeUnreadCounts
	scopeQueue
	scopeTagList
	scopeSourceList
	scopeSourceGroups
)

var allScopes = []scope{
	scopeNewsletterDetails,
	scopeNewsletterLists,
	scopeUnreadCounts,
	scopeQueue,
	scopeTagList,
	scopeSourceList,
	scopeSourceGroups,
}

// invalidationRules is the single central table mapping operation tags to
// the partition categories they make stale. Omission bugs concentrate
// here, so the table is exhaustive over the OpTag enum and never duplicated
// at call sites.
var invalidationRules = map[OpTag][]scope{
	OpNewsletterRead:    {scopeNewsletterLists, scopeNewsletterDetails, scopeUnreadCounts},
	OpNewsletterLike:    {scopeNewsletterLists, scopeNewsletterDetails},
	OpNewsletterArchive: {scopeNewsletterLists, scopeNewsletterDetails, scopeUnreadCounts},
	OpNewsletterDelete:  {scopeNewsletterLists, scopeNewsletterDetails, scopeUnreadCounts, scopeQueue},
	OpNewsletterBulk:    {scopeNewsletterLists, scopeNewsletterDetails, scopeUnreadCounts},
	OpNewsletterTags:    {scopeNewsletterLists, scopeNewsletterDetails, scopeQueue},
	OpQueueAdd:          {scopeQueue},
	OpQueueRemove:       {scopeQueue},
	OpQueueReorder:      {scopeQueue},
	OpQueueCleanup:      {scopeQueue},
	OpTagCreate:         {scopeTagList},
	OpTagUpdate:         {scopeTagList, scopeNewsletterLists, scopeNewsletterDetails, scopeQueue},
	OpTagDelete:         {scopeTagList, scopeNewsletterLists, scopeNewsletterDetails, scopeQueue},
	OpSourceArchive:     {scopeSourceList, scopeSourceGroups, scopeNewsletterLists, scopeUnreadCounts},
	OpSourceUpdate:      {scopeSourceList, scopeSourceGroups},
}

// InvalidateRelated performs the cross-feature fan-out for one settled
// operation. affectedIDs narrow detail-scope invalidation to specific
// newsletters; other scopes invalidate by namespace prefix. A tag without a
// rule falls back to invalidating every category rather than silently
// doing nothing.
func (c *Coordinator) InvalidateRelated(ctx context.Context, userID string, tag OpTag, affectedIDs ...string) {
	scopes, ok := invalidationRules[tag]
	if !ok {
		c.logger.Debug("no invalidation rule for operation, falling back to full invalidation",
			zap.String("op", tag.String()))
		scopes = allScopes
	}

	for _, sc := range scopes {
		switch sc {
		case scopeNewsletterDetails:
			if len(affectedIDs) > 0 {
				for _, id := range affectedIDs {
					c.store.Stale(ctx, c.keys.NewsletterDetail(id))
				}
			} else {
				c.store.StalePrefix(ctx, c.keys.Prefix(cache.NamespaceNewsletterDetail))
			}
		case scopeNewsletterLists:
			c.store.StalePrefix(ctx, c.keys.Prefix(cache.NamespaceNewsletterList))
		case scopeUnreadCounts:
			c.store.StalePrefix(ctx, c.keys.Prefix(cache.NamespaceUnreadCounts))
		case scopeQueue:
			c.store.Stale(ctx, c.keys.ReadingQueue(userID))
		case scopeTagList:
			c.store.StalePrefix(ctx, c.keys.Prefix(cache.NamespaceTagList))
		case scopeSourceList:
			c.store.Stale(ctx, c.keys.SourceList())
		case scopeSourceGroups:
			c.store.Stale(ctx, c.keys.SourceGroupList())
		}
	}

	c.logger.Debug("related queries invalidated",
		zap.String("op", tag.String()),
		zap.Int("affected", len(affectedIDs)))
}
