package coordinator

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/querycache"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *querycache.Store, *cache.KeyBuilder) {
	t.Helper()
	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache service: %v", err)
	}
	keys := cache.NewKeyBuilder(nil)
	store := querycache.New(service, nil)
	return New(store, keys, nil), store, keys
}

func newsletter(id string, tags ...model.Tag) model.Newsletter {
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

func queueItem(id string, n model.Newsletter, position int) model.ReadingQueueItem {
	return model.ReadingQueueItem{
		ID:           id,
		UserID:       "user-1",
		NewsletterID: n.ID,
		Position:     position,
		Newsletter:   &n,
	}
}

func TestCoordinator_NewsletterRoundTrip(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	n := newsletter("nl-1", model.Tag{ID: "tag-1", Name: "Go"})
	coord.SetNewsletter(ctx, n)

	got, ok := coord.Newsletter(ctx, "nl-1")
	if !ok {
		t.Fatal("Newsletter() miss after SetNewsletter()")
	}
	if !reflect.DeepEqual(got, n) {
		t.Errorf("Newsletter() = %+v, want %+v", got, n)
	}
	if ids := coord.TaggedNewsletters("tag-1"); !reflect.DeepEqual(ids, []string{"nl-1"}) {
		t.Errorf("TaggedNewsletters() = %v, want [nl-1]", ids)
	}
}

func TestCoordinator_UpdateNewsletterInCache_PatchesEverywhere(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	n1 := newsletter("nl-1")
	n2 := newsletter("nl-2")
	coord.SetNewsletter(ctx, n1)
	coord.SetListPage(ctx, "user-1", nil, ListPage{Newsletters: []model.Newsletter{n1, n2}, Total: 2})
	coord.SetQueue(ctx, "user-1", []model.ReadingQueueItem{queueItem("qi-1", n1, 0)})

	coord.UpdateNewsletterInCache(ctx, "nl-1", model.NewsletterPatch{IsRead: model.Bool(true)}, UpdateOptions{})

	detail, _ := coord.Newsletter(ctx, "nl-1")
	if !detail.IsRead {
		t.Error("detail partition was not patched")
	}

	raw, _ := coord.Store().Snapshot(ctx, coord.Keys().NewsletterList("user-1", nil))
	page := raw.(ListPage)
	if !page.Newsletters[0].IsRead {
		t.Error("list partition was not patched")
	}
	if page.Newsletters[1].IsRead {
		t.Error("patch leaked to an unrelated newsletter in the list")
	}

	items, _ := coord.Queue(ctx, "user-1")
	if !items[0].Newsletter.IsRead {
		t.Error("queue embed was not patched")
	}
}

func TestCoordinator_UpdateNewsletterInCache_ZeroPatchIsNoop(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	n := newsletter("nl-1")
	coord.SetNewsletter(ctx, n)
	coord.UpdateNewsletterInCache(ctx, "nl-1", model.NewsletterPatch{}, UpdateOptions{})

	got, _ := coord.Newsletter(ctx, "nl-1")
	if !reflect.DeepEqual(got, n) {
		t.Errorf("zero patch changed the newsletter: %+v", got)
	}
}

func TestCoordinator_RemoveNewsletter(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	n1 := newsletter("nl-1", model.Tag{ID: "tag-1", Name: "Go"})
	n2 := newsletter("nl-2")
	coord.SetNewsletter(ctx, n1)
	coord.SetListPage(ctx, "user-1", nil, ListPage{Newsletters: []model.Newsletter{n1, n2}, Total: 2})
	coord.SetQueue(ctx, "user-1", []model.ReadingQueueItem{queueItem("qi-1", n1, 0), queueItem("qi-2", n2, 1)})

	coord.RemoveNewsletter(ctx, "nl-1")

	if _, ok := coord.Newsletter(ctx, "nl-1"); ok {
		t.Error("detail partition survived removal")
	}

	raw, _ := coord.Store().Snapshot(ctx, coord.Keys().NewsletterList("user-1", nil))
	page := raw.(ListPage)
	if len(page.Newsletters) != 1 || page.Newsletters[0].ID != "nl-2" {
		t.Errorf("list after removal = %+v", page.Newsletters)
	}
	if page.Total != 1 {
		t.Errorf("list total after removal = %d, want 1", page.Total)
	}

	items, _ := coord.Queue(ctx, "user-1")
	if len(items) != 1 || items[0].NewsletterID != "nl-2" {
		t.Errorf("queue after removal = %+v", items)
	}

	if ids := coord.TaggedNewsletters("tag-1"); len(ids) != 0 {
		t.Errorf("tag index still holds removed newsletter: %v", ids)
	}
}

func TestCoordinator_RemoveTagFromAllNewsletters(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	doomed := model.Tag{ID: "tag-doomed", Name: "Doomed"}
	kept := model.Tag{ID: "tag-kept", Name: "Kept"}
	n1 := newsletter("nl-1", doomed, kept)
	n2 := newsletter("nl-2", doomed)
	n3 := newsletter("nl-3", kept)
	coord.SetNewsletter(ctx, n1)
	coord.SetNewsletter(ctx, n2)
	coord.SetNewsletter(ctx, n3)
	coord.SetListPage(ctx, "user-1", nil, ListPage{Newsletters: []model.Newsletter{n1, n2, n3}, Total: 3})
	coord.SetQueue(ctx, "user-1", []model.ReadingQueueItem{queueItem("qi-1", n1, 0)})

	affected := coord.RemoveTagFromAllNewsletters(ctx, "tag-doomed")
	if !reflect.DeepEqual(affected, []string{"nl-1", "nl-2"}) {
		t.Errorf("affected = %v, want [nl-1 nl-2]", affected)
	}

	got1, _ := coord.Newsletter(ctx, "nl-1")
	if got1.HasTag("tag-doomed") {
		t.Error("nl-1 detail still carries the deleted tag")
	}
	if !got1.HasTag("tag-kept") {
		t.Error("nl-1 lost an unrelated tag")
	}

	raw, _ := coord.Store().Snapshot(ctx, coord.Keys().NewsletterList("user-1", nil))
	page := raw.(ListPage)
	for _, n := range page.Newsletters {
		if n.HasTag("tag-doomed") {
			t.Errorf("list copy of %s still carries the deleted tag", n.ID)
		}
	}

	items, _ := coord.Queue(ctx, "user-1")
	if items[0].Newsletter.HasTag("tag-doomed") {
		t.Error("queue embed still carries the deleted tag")
	}

	got3, _ := coord.Newsletter(ctx, "nl-3")
	if !got3.HasTag("tag-kept") {
		t.Error("unaffected newsletter was modified")
	}

	// Second drop finds nothing; the index was consumed.
	if again := coord.RemoveTagFromAllNewsletters(ctx, "tag-doomed"); again != nil {
		t.Errorf("second removal reported affected ids: %v", again)
	}
}

func TestCoordinator_SetQueueDropsUnresolvableEmbeds(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	n := newsletter("nl-1")
	coord.SetQueue(ctx, "user-1", []model.ReadingQueueItem{
		queueItem("qi-1", n, 0),
		{ID: "qi-broken", UserID: "user-1", NewsletterID: "nl-gone", Position: 1},
	})

	items, ok := coord.Queue(ctx, "user-1")
	if !ok {
		t.Fatal("queue partition missing")
	}
	if len(items) != 1 || items[0].ID != "qi-1" {
		t.Errorf("queue = %+v, want only qi-1", items)
	}
}

func TestApplyQueueOp_Add(t *testing.T) {
	n1 := newsletter("nl-1")
	n2 := newsletter("nl-2")
	items := []model.ReadingQueueItem{queueItem("qi-1", n1, 0)}

	next := ApplyOp(items, AddOp{Item: queueItem("qi-2", n2, 99)})
	if len(next) != 2 {
		t.Fatalf("len = %d, want 2", len(next))
	}
	if next[1].Position != 1 {
		t.Errorf("appended position = %d, want tail position 1", next[1].Position)
	}
	if len(items) != 1 {
		t.Error("input slice was mutated")
	}
}

func TestApplyQueueOp_RemoveKeepsPositions(t *testing.T) {
	n1, n2, n3 := newsletter("nl-1"), newsletter("nl-2"), newsletter("nl-3")
	items := []model.ReadingQueueItem{
		queueItem("qi-1", n1, 0),
		queueItem("qi-2", n2, 1),
		queueItem("qi-3", n3, 2),
	}

	next := ApplyOp(items, RemoveOp{ItemID: "qi-2"})
	if len(next) != 2 {
		t.Fatalf("len = %d, want 2", len(next))
	}
	// No client-side renumbering; the backend settles dense positions.
	if next[0].Position != 0 || next[1].Position != 2 {
		t.Errorf("positions = %d,%d; want 0,2", next[0].Position, next[1].Position)
	}
}

func TestApplyQueueOp_ReorderIsAtomic(t *testing.T) {
	n1, n2, n3 := newsletter("nl-1"), newsletter("nl-2"), newsletter("nl-3")
	items := []model.ReadingQueueItem{
		queueItem("qi-1", n1, 0),
		queueItem("qi-2", n2, 1),
		queueItem("qi-3", n3, 2),
	}

	next := ApplyOp(items, ReorderOp{Updates: []model.PositionUpdate{
		{ID: "qi-1", Position: 2},
		{ID: "qi-2", Position: 0},
		{ID: "qi-3", Position: 1},
	}})

	gotOrder := []string{next[0].ID, next[1].ID, next[2].ID}
	want := []string{"qi-2", "qi-3", "qi-1"}
	if !reflect.DeepEqual(gotOrder, want) {
		t.Errorf("order = %v, want %v", gotOrder, want)
	}
	if items[0].Position != 0 {
		t.Error("input slice was mutated")
	}
}

func TestApplyQueueOp_UpdateTags(t *testing.T) {
	n := newsletter("nl-1", model.Tag{ID: "tag-old", Name: "Old"})
	items := []model.ReadingQueueItem{queueItem("qi-1", n, 0)}

	newTags := []model.Tag{{ID: "tag-new", Name: "New"}}
	next := ApplyOp(items, UpdateTagsOp{NewsletterID: "nl-1", Tags: newTags})

	if !next[0].Newsletter.HasTag("tag-new") || next[0].Newsletter.HasTag("tag-old") {
		t.Errorf("embedded tags = %+v, want only tag-new", next[0].Newsletter.Tags)
	}
	if !items[0].Newsletter.HasTag("tag-old") {
		t.Error("input embed was mutated")
	}
}

func TestApplyQueueOp_Revert(t *testing.T) {
	n1, n2 := newsletter("nl-1"), newsletter("nl-2")
	snapshot := []model.ReadingQueueItem{queueItem("qi-1", n1, 0), queueItem("qi-2", n2, 1)}
	current := []model.ReadingQueueItem{queueItem("qi-2", n2, 0)}

	next := ApplyOp(current, RevertOp{Snapshot: snapshot})
	if !reflect.DeepEqual(next, snapshot) {
		t.Errorf("revert = %+v, want snapshot", next)
	}
}

func TestTagIndex_RetaggingRetiresMembership(t *testing.T) {
	idx := newTagIndex()

	idx.set("nl-1", []string{"tag-a", "tag-b"})
	idx.set("nl-1", []string{"tag-b"})

	if ids := idx.newsletters("tag-a"); len(ids) != 0 {
		t.Errorf("tag-a still indexes %v after retag", ids)
	}
	if ids := idx.newsletters("tag-b"); !reflect.DeepEqual(ids, []string{"nl-1"}) {
		t.Errorf("tag-b indexes %v, want [nl-1]", ids)
	}
}

func TestTagIndex_DropReturnsSorted(t *testing.T) {
	idx := newTagIndex()

	idx.set("nl-b", []string{"tag-1"})
	idx.set("nl-a", []string{"tag-1"})
	idx.set("nl-c", []string{"tag-1"})

	got := idx.drop("tag-1")
	if !reflect.DeepEqual(got, []string{"nl-a", "nl-b", "nl-c"}) {
		t.Errorf("drop() = %v, want sorted ids", got)
	}
	if again := idx.drop("tag-1"); again != nil {
		t.Errorf("second drop() = %v, want nil", again)
	}
}
