package coordinator

import (
	"sort"
	"sync"
)

// tagIndex is the reverse index tagID → newsletter ids currently cached
// with that tag, maintained incrementally on every newsletter write. Tag
// deletion fan-out is O(affected) instead of a scan over every cached
// newsletter. The forward map is kept so re-tagging a newsletter retires
// stale memberships.
type tagIndex struct {
	mu      sync.Mutex
	byTag   map[string]map[string]struct{}
	forward map[string][]string
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byTag:   make(map[string]map[string]struct{}),
		forward: make(map[string][]string),
	}
}

// set records that a newsletter is currently cached with exactly these tag
// ids, replacing any previous membership.
func (x *tagIndex) set(newsletterID string, tagIDs []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, old := range x.forward[newsletterID] {
		if members, ok := x.byTag[old]; ok {
			delete(members, newsletterID)
			if len(members) == 0 {
				delete(x.byTag, old)
			}
		}
	}

	x.forward[newsletterID] = append([]string(nil), tagIDs...)
	for _, id := range tagIDs {
		members, ok := x.byTag[id]
		if !ok {
			members = make(map[string]struct{})
			x.byTag[id] = members
		}
		members[newsletterID] = struct{}{}
	}
}

// drop removes a tag from the index and returns the newsletter ids that
// were caching it, sorted for determinism.
func (x *tagIndex) drop(tagID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	members, ok := x.byTag[tagID]
	if !ok {
		return nil
	}
	delete(x.byTag, tagID)

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
		kept := x.forward[id][:0]
		for _, t := range x.forward[id] {
			if t != tagID {
				kept = append(kept, t)
			}
		}
		x.forward[id] = kept
	}
	sort.Strings(ids)
	return ids
}

// newsletters returns the ids currently indexed under a tag.
func (x *tagIndex) newsletters(tagID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids := make([]string, 0, len(x.byTag[tagID]))
	for id := range x.byTag[tagID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// forget removes a newsletter from the index entirely, e.g. after delete.
func (x *tagIndex) forget(newsletterID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, t := range x.forward[newsletterID] {
		if members, ok := x.byTag[t]; ok {
			delete(members, newsletterID)
			if len(members) == 0 {
				delete(x.byTag, t)
			}
		}
	}
	delete(x.forward, newsletterID)
}
