package postgrest

import (
	"context"
	"time"

	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// queueSelect embeds the full newsletter (with its own embeds) on every
// queue row. The embed is a left join: rows whose newsletter was deleted
// come back with a null embed and are the cleanup operation's business.
const queueSelect = "*, newsletter:newsletters(*, source:sources(*), tags(*))"

type queueRow struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	NewsletterID string         `json:"newsletter_id"`
	Position     int            `json:"position"`
	Newsletter   *newsletterRow `json:"newsletter,omitempty"`
	AddedAt      time.Time      `json:"added_at"`
}

func (r queueRow) toModel() model.ReadingQueueItem {
	item := model.ReadingQueueItem{
		ID:           r.ID,
		UserID:       r.UserID,
		NewsletterID: r.NewsletterID,
		Position:     r.Position,
		AddedAt:      r.AddedAt,
	}
	if r.Newsletter != nil {
		n := r.Newsletter.toModel()
		item.Newsletter = &n
	}
	return item
}

// ReadingQueue implements repository.ReadingQueue against the reading_queue
// table.
type ReadingQueue struct {
	client *Client
}

// List returns the user's queue ordered by position, newsletter embeds
// included. Orphaned rows (null embed) are returned as-is; presentation
// filtering is the caller's concern.
func (r *ReadingQueue) List(ctx context.Context, userID string) ([]model.ReadingQueueItem, error) {
	rows, err := r.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]model.ReadingQueueItem, len(rows))
	for i, row := range rows {
		items[i] = row.toModel()
	}
	return items, nil
}

// Add appends a newsletter at the tail of the queue and returns the created
// row.
func (r *ReadingQueue) Add(ctx context.Context, userID, newsletterID string) (model.ReadingQueueItem, error) {
	_, tail, err := r.client.sb.From("reading_queue").
		Select("id", "exact", true).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return model.ReadingQueueItem{}, serviceErr("queue.add", err)
	}

	var rows []queueRow
	_, err = r.client.sb.From("reading_queue").
		Insert(map[string]any{
			"user_id":       userID,
			"newsletter_id": newsletterID,
			"position":      tail,
		}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return model.ReadingQueueItem{}, serviceErr("queue.add", err)
	}
	if len(rows) == 0 {
		return model.ReadingQueueItem{}, &repository.ServiceError{Op: "queue.add", Message: "insert returned no row"}
	}
	return rows[0].toModel(), nil
}

// Remove deletes one queue item.
func (r *ReadingQueue) Remove(ctx context.Context, itemID string) error {
	_, _, err := r.client.sb.From("reading_queue").
		Delete("", "").
		Eq("id", itemID).
		Execute()
	if err != nil {
		return serviceErr("queue.remove", err)
	}
	return nil
}

// Reorder writes the target position for every update. PostgREST has no
// multi-row update, so positions land one request at a time; the first
// failure aborts and reports, leaving the backend to renumber densely on
// its next read.
func (r *ReadingQueue) Reorder(ctx context.Context, userID string, updates []model.PositionUpdate) error {
	for _, u := range updates {
		_, _, err := r.client.sb.From("reading_queue").
			Update(map[string]any{"position": u.Position}, "", "").
			Eq("id", u.ID).
			Eq("user_id", userID).
			Execute()
		if err != nil {
			return serviceErr("queue.reorder", err)
		}
	}
	return nil
}

// CleanupOrphaned removes queue rows whose newsletter no longer resolves
// and reports how many went away.
func (r *ReadingQueue) CleanupOrphaned(ctx context.Context, userID string) (int, error) {
	rows, err := r.fetch(ctx, userID)
	if err != nil {
		return 0, err
	}

	var orphaned []string
	for _, row := range rows {
		if row.Newsletter == nil || row.Newsletter.ID == "" {
			orphaned = append(orphaned, row.ID)
		}
	}
	if len(orphaned) == 0 {
		return 0, nil
	}

	_, _, err = r.client.sb.From("reading_queue").
		Delete("", "").
		In("id", orphaned).
		Execute()
	if err != nil {
		return 0, serviceErr("queue.cleanup", err)
	}
	return len(orphaned), nil
}

func (r *ReadingQueue) fetch(ctx context.Context, userID string) ([]queueRow, error) {
	var rows []queueRow
	_, err := r.client.sb.From("reading_queue").
		Select(queueSelect, "", false).
		Eq("user_id", userID).
		Order("position", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, serviceErr("queue.list", err)
	}
	return rows, nil
}
