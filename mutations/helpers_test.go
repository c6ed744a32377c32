package mutations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/querycache"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

const testUser = "user-1"

// fakeBackend is a stateful stand-in for the hosted backend: it holds
// server truth, records calls, and fails on demand. One instance backs all
// four repository interfaces.
type fakeBackend struct {
	mu          sync.Mutex
	newsletters map[string]model.Newsletter
	queue       []model.ReadingQueueItem
	tags        map[string]model.Tag
	sources     map[string]model.Source
	groups      []model.SourceGroup

	calls   []string
	failOps map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		newsletters: map[string]model.Newsletter{},
		tags:        map[string]model.Tag{},
		sources:     map[string]model.Source{},
		failOps:     map[string]error{},
	}
}

func (b *fakeBackend) failOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOps[op] = err
}

func (b *fakeBackend) callCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (b *fakeBackend) enter(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, op)
	return b.failOps[op]
}

func (b *fakeBackend) seedNewsletter(n model.Newsletter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newsletters[n.ID] = n
}

func (b *fakeBackend) seedQueue(items ...model.ReadingQueueItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, items...)
}

func (b *fakeBackend) seedTag(t model.Tag) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags[t.ID] = t
}

func (b *fakeBackend) seedSource(s model.Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources[s.ID] = s
}

func (b *fakeBackend) seedGroup(g model.SourceGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups = append(b.groups, g)
}

func (b *fakeBackend) serverSource(id string) model.Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sources[id]
}

func (b *fakeBackend) serverTag(id string) model.Tag {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tags[id]
}

func (b *fakeBackend) serverNewsletter(id string) model.Newsletter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newsletters[id]
}

// --- repository.Newsletters ---

func (b *fakeBackend) GetByID(ctx context.Context, id string) (model.Newsletter, error) {
	if err := b.enter("newsletters.get"); err != nil {
		return model.Newsletter{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.newsletters[id]
	if !ok {
		return model.Newsletter{}, repository.ErrNotFound
	}
	return n, nil
}

func (b *fakeBackend) List(ctx context.Context, userID string, filter repository.NewsletterFilter) ([]model.Newsletter, int, error) {
	if err := b.enter("newsletters.list"); err != nil {
		return nil, 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Newsletter
	for _, n := range b.newsletters {
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		if filter.SourceID != "" && n.SourceID != filter.SourceID {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (b *fakeBackend) Update(ctx context.Context, id string, patch model.NewsletterPatch) (model.Newsletter, error) {
	if err := b.enter("newsletters.update"); err != nil {
		return model.Newsletter{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.newsletters[id]
	if !ok {
		return model.Newsletter{}, repository.ErrNotFound
	}
	n = patch.Apply(n)
	b.newsletters[id] = n
	return n, nil
}

func (b *fakeBackend) Delete(ctx context.Context, id string) error {
	if err := b.enter("newsletters.delete"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.newsletters, id)
	return nil
}

func (b *fakeBackend) BulkUpdate(ctx context.Context, ids []string, patch model.NewsletterPatch) (model.BatchResult, error) {
	if err := b.enter("newsletters.bulk"); err != nil {
		return model.BatchResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	result := model.BatchResult{Errors: []string{}}
	for _, id := range ids {
		if n, ok := b.newsletters[id]; ok {
			b.newsletters[id] = patch.Apply(n)
			result.ProcessedCount++
		} else {
			result.FailedCount++
			result.Errors = append(result.Errors, id)
		}
	}
	return result, nil
}

func (b *fakeBackend) SetTags(ctx context.Context, id string, add, remove []string) (model.Newsletter, error) {
	if err := b.enter("newsletters.set_tags"); err != nil {
		return model.Newsletter{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.newsletters[id]
	if !ok {
		return model.Newsletter{}, repository.ErrNotFound
	}
	for _, tagID := range remove {
		kept := make([]model.Tag, 0, len(n.Tags))
		for _, t := range n.Tags {
			if t.ID != tagID {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
	}
	for _, tagID := range add {
		if t, ok := b.tags[tagID]; ok && !n.HasTag(tagID) {
			n.Tags = append(n.Tags, t)
		}
	}
	b.newsletters[id] = n
	return n, nil
}

func (b *fakeBackend) UnreadCounts(ctx context.Context, userID string) (repository.UnreadCounts, error) {
	if err := b.enter("newsletters.unread"); err != nil {
		return repository.UnreadCounts{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := repository.UnreadCounts{BySource: map[string]int{}}
	for _, n := range b.newsletters {
		if !n.IsRead {
			counts.Total++
			counts.BySource[n.SourceID]++
		}
	}
	return counts, nil
}

// --- repository.ReadingQueue (via queueFake to avoid the List collision) ---

type queueFake struct{ *fakeBackend }

func (q queueFake) List(ctx context.Context, userID string) ([]model.ReadingQueueItem, error) {
	if err := q.enter("queue.list"); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.ReadingQueueItem, len(q.queue))
	copy(out, q.queue)
	for i := range out {
		if n, ok := q.newsletters[out[i].NewsletterID]; ok {
			n := n
			out[i].Newsletter = &n
		} else {
			out[i].Newsletter = nil
		}
	}
	return out, nil
}

func (q queueFake) Add(ctx context.Context, userID, newsletterID string) (model.ReadingQueueItem, error) {
	if err := q.enter("queue.add"); err != nil {
		return model.ReadingQueueItem{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	item := model.ReadingQueueItem{
		ID:           "srv-" + newsletterID,
		UserID:       userID,
		NewsletterID: newsletterID,
		Position:     len(q.queue),
		AddedAt:      time.Now(),
	}
	q.queue = append(q.queue, item)
	return item, nil
}

func (q queueFake) Remove(ctx context.Context, itemID string) error {
	if err := q.enter("queue.remove"); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.queue[:0]
	for _, item := range q.queue {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	q.queue = kept
	return nil
}

func (q queueFake) Reorder(ctx context.Context, userID string, updates []model.PositionUpdate) error {
	if err := q.enter("queue.reorder"); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	target := map[string]int{}
	for _, u := range updates {
		target[u.ID] = u.Position
	}
	for i := range q.queue {
		if pos, ok := target[q.queue[i].ID]; ok {
			q.queue[i].Position = pos
		}
	}
	sort.SliceStable(q.queue, func(i, j int) bool { return q.queue[i].Position < q.queue[j].Position })
	return nil
}

func (q queueFake) CleanupOrphaned(ctx context.Context, userID string) (int, error) {
	if err := q.enter("queue.cleanup"); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.queue[:0]
	removed := 0
	for _, item := range q.queue {
		if _, ok := q.newsletters[item.NewsletterID]; ok {
			kept = append(kept, item)
		} else {
			removed++
		}
	}
	q.queue = kept
	return removed, nil
}

// --- repository.Tags ---

type tagsFake struct{ *fakeBackend }

func (r tagsFake) List(ctx context.Context, userID string) ([]model.Tag, error) {
	if err := r.enter("tags.list"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Tag
	for _, t := range r.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r tagsFake) Create(ctx context.Context, userID string, tag model.Tag) (model.Tag, error) {
	if err := r.enter("tags.create"); err != nil {
		return model.Tag{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tag.ID = "srv-tag-" + tag.Name
	r.tags[tag.ID] = tag
	return tag, nil
}

func (r tagsFake) Update(ctx context.Context, tag model.Tag) (model.Tag, error) {
	if err := r.enter("tags.update"); err != nil {
		return model.Tag{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[tag.ID]; !ok {
		return model.Tag{}, repository.ErrNotFound
	}
	r.tags[tag.ID] = tag
	return tag, nil
}

func (r tagsFake) Delete(ctx context.Context, id string) error {
	if err := r.enter("tags.delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, id)
	// The join rows go with the tag, so embeds lose it too.
	for nid, n := range r.newsletters {
		kept := make([]model.Tag, 0, len(n.Tags))
		for _, t := range n.Tags {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
		r.newsletters[nid] = n
	}
	return nil
}

// --- repository.Sources ---

type sourcesFake struct{ *fakeBackend }

func (r sourcesFake) List(ctx context.Context, userID string) ([]model.Source, error) {
	if err := r.enter("sources.list"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Source
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r sourcesFake) SetArchived(ctx context.Context, id string, archived bool) (model.Source, error) {
	if err := r.enter("sources.set_archived"); err != nil {
		return model.Source{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[id]
	if !ok {
		return model.Source{}, repository.ErrNotFound
	}
	s.IsArchived = archived
	r.sources[id] = s
	return s, nil
}

func (r sourcesFake) Groups(ctx context.Context, userID string) ([]model.SourceGroup, error) {
	if err := r.enter("sources.groups"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SourceGroup, len(r.groups))
	copy(out, r.groups)
	for gi := range out {
		members := make([]model.Source, len(out[gi].Sources))
		copy(members, out[gi].Sources)
		for si := range members {
			// Group embeds reflect current server state.
			if s, ok := r.sources[members[si].ID]; ok {
				members[si] = s
			}
		}
		out[gi].Sources = members
	}
	return out, nil
}

// recordingToaster records every shown toast.
type recordingToaster struct {
	mu     sync.Mutex
	toasts []string
	levels []Level
}

func (t *recordingToaster) Show(level Level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels = append(t.levels, level)
	t.toasts = append(t.toasts, message)
}

func (t *recordingToaster) last() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.toasts) == 0 {
		return "", false
	}
	return t.toasts[len(t.toasts)-1], true
}

func (t *recordingToaster) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.toasts)
}

// testEnv bundles the wired data layer over a fake backend.
type testEnv struct {
	backend *fakeBackend
	coord   *coordinator.Coordinator
	store   *querycache.Store
	keys    *cache.KeyBuilder
	toaster *recordingToaster
	confirm bool
	deps    Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache service: %v", err)
	}
	keys := cache.NewKeyBuilder(nil)
	store := querycache.New(service, nil)
	coord := coordinator.New(store, keys, nil)
	backend := newFakeBackend()
	toaster := &recordingToaster{}

	env := &testEnv{
		backend: backend,
		coord:   coord,
		store:   store,
		keys:    keys,
		toaster: toaster,
		confirm: true,
	}
	env.deps = Deps{
		Repos: repository.Set{
			Newsletters:  backend,
			ReadingQueue: queueFake{backend},
			Tags:         tagsFake{backend},
			Sources:      sourcesFake{backend},
		},
		Coordinator: coord,
		Users:       repository.StaticUser(testUser),
		Toaster:     toaster,
		Confirmer: ConfirmerFunc(func(string) bool {
			return env.confirm
		}),
		Config: Config{ShowToasts: true},
	}
	return env
}

func (env *testEnv) newsletters() *Newsletters { return NewNewsletters(env.deps) }
func (env *testEnv) queue() *Queue             { return NewQueue(env.deps) }
func (env *testEnv) tagsMut() *Tags            { return NewTags(env.deps) }
func (env *testEnv) sourcesMut() *Sources      { return NewSources(env.deps) }

func seedNewsletter(id string, tags ...model.Tag) model.Newsletter {
	if tags == nil {
		tags = []model.Tag{}
	}
	return model.Newsletter{
		ID:         id,
		Title:      "Issue " + id,
		SourceID:   "src-1",
		Tags:       tags,
		ReceivedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var errBackendDown = errors.New("backend unavailable")
