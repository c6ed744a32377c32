package postgrest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// newsletterSelect embeds the denormalized source and tag rows the cache
// layer expects on every newsletter.
const newsletterSelect = "*, source:sources(*), tags(*)"

// newsletterInnerTagSelect forces an inner join on tags so tag filters
// restrict rows instead of just trimming the embed.
const newsletterInnerTagSelect = "*, source:sources(*), tags!inner(*)"

type newsletterRow struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id,omitempty"`
	Title        string     `json:"title"`
	SourceID     string     `json:"source_id,omitempty"`
	Source       *sourceRow `json:"source,omitempty"`
	Tags         []tagRow   `json:"tags"`
	IsRead       bool       `json:"is_read"`
	IsArchived   bool       `json:"is_archived"`
	IsLiked      bool       `json:"is_liked"`
	IsBookmarked bool       `json:"is_bookmarked"`
	ReceivedAt   time.Time  `json:"received_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

func (r newsletterRow) toModel() model.Newsletter {
	n := model.Newsletter{
		ID:           r.ID,
		Title:        r.Title,
		SourceID:     r.SourceID,
		Tags:         make([]model.Tag, len(r.Tags)),
		IsRead:       r.IsRead,
		IsArchived:   r.IsArchived,
		IsLiked:      r.IsLiked,
		IsBookmarked: r.IsBookmarked,
		ReceivedAt:   r.ReceivedAt,
		ReadAt:       r.ReadAt,
	}
	if r.Source != nil {
		src := r.Source.toModel()
		n.Source = &src
	}
	for i, t := range r.Tags {
		n.Tags[i] = t.toModel()
	}
	return n
}

// Newsletters implements repository.Newsletters against the newsletters
// table and its newsletter_tags join table.
type Newsletters struct {
	client *Client
}

// GetByID fetches one newsletter with its embeds.
func (r *Newsletters) GetByID(ctx context.Context, id string) (model.Newsletter, error) {
	var row newsletterRow
	_, err := r.client.sb.From("newsletters").
		Select(newsletterSelect, "", false).
		Eq("id", id).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return model.Newsletter{}, serviceErr("newsletters.get", err)
	}
	if row.ID == "" {
		return model.Newsletter{}, repository.ErrNotFound
	}
	return row.toModel(), nil
}

// List fetches one filtered page plus the exact total matching the filter.
func (r *Newsletters) List(ctx context.Context, userID string, filter repository.NewsletterFilter) ([]model.Newsletter, int, error) {
	selected := newsletterSelect
	if filter.TagID != "" {
		selected = newsletterInnerTagSelect
	}

	q := r.client.sb.From("newsletters").
		Select(selected, "exact", false).
		Eq("user_id", userID)

	if filter.SourceID != "" {
		q = q.Eq("source_id", filter.SourceID)
	}
	if filter.TagID != "" {
		q = q.Eq("tags.id", filter.TagID)
	}
	if filter.IsRead != nil {
		q = q.Eq("is_read", strconv.FormatBool(*filter.IsRead))
	}
	if filter.IsArchived != nil {
		q = q.Eq("is_archived", strconv.FormatBool(*filter.IsArchived))
	}
	if filter.Limit > 0 {
		q = q.Range(filter.Offset, filter.Offset+filter.Limit-1, "")
	}

	var rows []newsletterRow
	count, err := q.ExecuteTo(&rows)
	if err != nil {
		return nil, 0, serviceErr("newsletters.list", err)
	}

	newsletters := make([]model.Newsletter, len(rows))
	for i, row := range rows {
		newsletters[i] = row.toModel()
	}
	return newsletters, int(count), nil
}

// Update applies the patch columns and returns the updated row.
func (r *Newsletters) Update(ctx context.Context, id string, patch model.NewsletterPatch) (model.Newsletter, error) {
	payload := patchColumns(patch)
	if len(payload) == 0 {
		return r.GetByID(ctx, id)
	}

	var rows []newsletterRow
	_, err := r.client.sb.From("newsletters").
		Update(payload, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return model.Newsletter{}, serviceErr("newsletters.update", err)
	}
	if len(rows) == 0 {
		return model.Newsletter{}, repository.ErrNotFound
	}
	// The update response carries no embeds; refetch for the full shape.
	return r.GetByID(ctx, id)
}

// Delete removes the newsletter row; the join-table rows cascade.
func (r *Newsletters) Delete(ctx context.Context, id string) error {
	_, _, err := r.client.sb.From("newsletters").
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return serviceErr("newsletters.delete", err)
	}
	return nil
}

// BulkUpdate applies one patch to every id in a single request. Ids the
// backend did not return count as failures; the subset that succeeded stays
// applied.
func (r *Newsletters) BulkUpdate(ctx context.Context, ids []string, patch model.NewsletterPatch) (model.BatchResult, error) {
	payload := patchColumns(patch)
	if len(payload) == 0 || len(ids) == 0 {
		return model.BatchResult{Errors: []string{}}, nil
	}

	var rows []newsletterRow
	_, err := r.client.sb.From("newsletters").
		Update(payload, "representation", "").
		In("id", ids).
		ExecuteTo(&rows)
	if err != nil {
		return model.BatchResult{}, serviceErr("newsletters.bulk_update", err)
	}

	updated := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		updated[row.ID] = struct{}{}
	}
	result := model.BatchResult{Errors: []string{}}
	for _, id := range ids {
		if _, ok := updated[id]; ok {
			result.ProcessedCount++
		} else {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("newsletter %s not updated", id))
		}
	}
	return result, nil
}

// SetTags reconciles the join table from an add/remove diff and returns the
// newsletter with its fresh embeds.
func (r *Newsletters) SetTags(ctx context.Context, id string, add, remove []string) (model.Newsletter, error) {
	if len(remove) > 0 {
		_, _, err := r.client.sb.From("newsletter_tags").
			Delete("", "").
			Eq("newsletter_id", id).
			In("tag_id", remove).
			Execute()
		if err != nil {
			return model.Newsletter{}, serviceErr("newsletters.set_tags", err)
		}
	}
	if len(add) > 0 {
		links := make([]map[string]string, len(add))
		for i, tagID := range add {
			links[i] = map[string]string{"newsletter_id": id, "tag_id": tagID}
		}
		_, _, err := r.client.sb.From("newsletter_tags").
			Insert(links, true, "newsletter_id,tag_id", "", "").
			Execute()
		if err != nil {
			return model.Newsletter{}, serviceErr("newsletters.set_tags", err)
		}
	}
	return r.GetByID(ctx, id)
}

// UnreadCounts aggregates unread newsletters per source. The aggregation
// happens client-side over id pairs; PostgREST group-by would need a view.
func (r *Newsletters) UnreadCounts(ctx context.Context, userID string) (repository.UnreadCounts, error) {
	var rows []struct {
		SourceID string `json:"source_id"`
	}
	_, err := r.client.sb.From("newsletters").
		Select("source_id", "", false).
		Eq("user_id", userID).
		Eq("is_read", "false").
		Eq("is_archived", "false").
		ExecuteTo(&rows)
	if err != nil {
		return repository.UnreadCounts{}, serviceErr("newsletters.unread_counts", err)
	}

	counts := repository.UnreadCounts{BySource: make(map[string]int)}
	for _, row := range rows {
		counts.Total++
		if row.SourceID != "" {
			counts.BySource[row.SourceID]++
		}
	}
	return counts, nil
}

// patchColumns maps the set fields of a patch onto update columns. Tag
// changes go through SetTags, not through a column update.
func patchColumns(patch model.NewsletterPatch) map[string]any {
	cols := make(map[string]any)
	if patch.IsRead != nil {
		cols["is_read"] = *patch.IsRead
		if *patch.IsRead {
			cols["read_at"] = time.Now().UTC()
		} else {
			cols["read_at"] = nil
		}
	}
	if patch.IsArchived != nil {
		cols["is_archived"] = *patch.IsArchived
	}
	if patch.IsLiked != nil {
		cols["is_liked"] = *patch.IsLiked
	}
	if patch.IsBookmarked != nil {
		cols["is_bookmarked"] = *patch.IsBookmarked
	}
	return cols
}
