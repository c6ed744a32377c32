// Package repository defines the backend contracts the newsletter data
// layer consumes, and the error taxonomy every implementation must honor.
// The backend itself is an opaque CRUD service; implementations live in
// subpackages (see repository/postgrest) or in test fakes.
package repository

import (
	"context"

	"github.com/letterdesk/go-newsletter-cache/model"
)

// NewsletterFilter selects a newsletter list page. Its serialized form is
// part of the cache key, so two equal filters address the same partition.
type NewsletterFilter struct {
	SourceID   string `json:"source_id,omitempty"`
	TagID      string `json:"tag_id,omitempty"`
	IsRead     *bool  `json:"is_read,omitempty"`
	IsArchived *bool  `json:"is_archived,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// UnreadCounts is the unread aggregate: total plus per-source breakdown.
type UnreadCounts struct {
	Total    int            `json:"total"`
	BySource map[string]int `json:"by_source"`
}

// Newsletters is the newsletter CRUD surface.
type Newsletters interface {
	GetByID(ctx context.Context, id string) (model.Newsletter, error)
	List(ctx context.Context, userID string, filter NewsletterFilter) ([]model.Newsletter, int, error)
	Update(ctx context.Context, id string, patch model.NewsletterPatch) (model.Newsletter, error)
	Delete(ctx context.Context, id string) error
	// BulkUpdate applies the patch to every id, returning per-id outcome
	// counts. Partial failure is reported through BatchResult, not through
	// the error return.
	BulkUpdate(ctx context.Context, ids []string, patch model.NewsletterPatch) (model.BatchResult, error)
	// SetTags reconciles the newsletter's tag set server-side from an
	// add/remove diff and returns the updated newsletter.
	SetTags(ctx context.Context, id string, add, remove []string) (model.Newsletter, error)
	UnreadCounts(ctx context.Context, userID string) (UnreadCounts, error)
}

// ReadingQueue is the reading-queue CRUD surface.
type ReadingQueue interface {
	List(ctx context.Context, userID string) ([]model.ReadingQueueItem, error)
	Add(ctx context.Context, userID, newsletterID string) (model.ReadingQueueItem, error)
	Remove(ctx context.Context, itemID string) error
	// Reorder applies the full target ordering server-side. Positions are
	// renumbered densely by the backend after settlement.
	Reorder(ctx context.Context, userID string, updates []model.PositionUpdate) error
	// CleanupOrphaned deletes queue items whose newsletter no longer
	// resolves and reports how many were removed.
	CleanupOrphaned(ctx context.Context, userID string) (int, error)
}

// Tags is the tag CRUD surface.
type Tags interface {
	List(ctx context.Context, userID string) ([]model.Tag, error)
	Create(ctx context.Context, userID string, tag model.Tag) (model.Tag, error)
	Update(ctx context.Context, tag model.Tag) (model.Tag, error)
	Delete(ctx context.Context, id string) error
}

// Sources is the newsletter-source surface, including source groups.
type Sources interface {
	List(ctx context.Context, userID string) ([]model.Source, error)
	SetArchived(ctx context.Context, id string, archived bool) (model.Source, error)
	Groups(ctx context.Context, userID string) ([]model.SourceGroup, error)
}

// Set bundles every repository the data layer consumes.
type Set struct {
	Newsletters  Newsletters
	ReadingQueue ReadingQueue
	Tags         Tags
	Sources      Sources
}

// UserSupplier resolves the current authenticated user, if any. Handlers
// that require authentication fail fast with ErrAuthRequired when ok is
// false.
type UserSupplier interface {
	CurrentUserID(ctx context.Context) (id string, ok bool)
}

// StaticUser is a UserSupplier with a fixed id; empty means unauthenticated.
type StaticUser string

// CurrentUserID implements UserSupplier.
func (u StaticUser) CurrentUserID(context.Context) (string, bool) {
	return string(u), u != ""
}
