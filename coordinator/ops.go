package coordinator

import (
	"sort"

	"github.com/letterdesk/go-newsletter-cache/model"
)

// QueueOp is one provisional operation against a reading-queue partition.
// The set is closed; ApplyQueueOp handles every variant. Operations are
// pure list transforms: the network call they anticipate is owned by the
// mutation layer.
type QueueOp interface {
	queueOp()
}

// AddOp appends a provisional item at the tail. The position is assigned
// from the current length; the server-assigned id arrives on commit.
type AddOp struct {
	Item model.ReadingQueueItem
}

// RemoveOp removes one item by id. Positions are not renumbered
// client-side; the server is the source of truth post-settlement.
type RemoveOp struct {
	ItemID string
}

// ReorderOp applies a full target ordering atomically: either every
// position in the mapping is applied, or (via RevertOp) none are.
type ReorderOp struct {
	Updates []model.PositionUpdate
}

// UpdateTagsOp replaces the denormalized tag set on the embedded newsletter
// of every queue item referencing it.
type UpdateTagsOp struct {
	NewsletterID string
	Tags         []model.Tag
}

// RevertOp replaces the whole partition with a previously captured
// snapshot. Rollback is coarse-grained by design; no field-level diffing.
type RevertOp struct {
	Snapshot []model.ReadingQueueItem
}

func (AddOp) queueOp()        {}
func (RemoveOp) queueOp()     {}
func (ReorderOp) queueOp()    {}
func (UpdateTagsOp) queueOp() {}
func (RevertOp) queueOp()     {}

// ApplyOp transforms a queue list by one operation without touching any
// partition. Handlers use it to compute provisional values, so the list
// transforms live here with the invalidation rules instead of being
// re-implemented per call site.
func ApplyOp(items []model.ReadingQueueItem, op QueueOp) []model.ReadingQueueItem {
	return applyQueueOp(items, op)
}

// applyQueueOp transforms a queue list. The input slice is not mutated.
func applyQueueOp(items []model.ReadingQueueItem, op QueueOp) []model.ReadingQueueItem {
	switch op := op.(type) {
	case AddOp:
		next := make([]model.ReadingQueueItem, len(items), len(items)+1)
		copy(next, items)
		item := op.Item
		item.Position = len(items)
		return append(next, item)

	case RemoveOp:
		next := make([]model.ReadingQueueItem, 0, len(items))
		for _, item := range items {
			if item.ID != op.ItemID {
				next = append(next, item)
			}
		}
		return next

	case ReorderOp:
		target := make(map[string]int, len(op.Updates))
		for _, u := range op.Updates {
			target[u.ID] = u.Position
		}
		next := make([]model.ReadingQueueItem, len(items))
		copy(next, items)
		for i := range next {
			if pos, ok := target[next[i].ID]; ok {
				next[i].Position = pos
			}
		}
		sort.SliceStable(next, func(i, j int) bool {
			return next[i].Position < next[j].Position
		})
		return next

	case UpdateTagsOp:
		next := make([]model.ReadingQueueItem, len(items))
		copy(next, items)
		for i := range next {
			if next[i].NewsletterID != op.NewsletterID || next[i].Newsletter == nil {
				continue
			}
			embedded := *next[i].Newsletter
			tags := make([]model.Tag, len(op.Tags))
			copy(tags, op.Tags)
			embedded.Tags = tags
			next[i].Newsletter = &embedded
		}
		return next

	case RevertOp:
		next := make([]model.ReadingQueueItem, len(op.Snapshot))
		copy(next, op.Snapshot)
		return next
	}

	return items
}
