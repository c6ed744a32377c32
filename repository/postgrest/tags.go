package postgrest

import (
	"context"

	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

type tagRow struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
}

func (r tagRow) toModel() model.Tag {
	return model.Tag{ID: r.ID, Name: r.Name, Color: r.Color}
}

// Tags implements repository.Tags against the tags table.
type Tags struct {
	client *Client
}

// List returns the user's tags ordered by name.
func (r *Tags) List(ctx context.Context, userID string) ([]model.Tag, error) {
	var rows []tagRow
	_, err := r.client.sb.From("tags").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("name", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, serviceErr("tags.list", err)
	}
	tags := make([]model.Tag, len(rows))
	for i, row := range rows {
		tags[i] = row.toModel()
	}
	return tags, nil
}

// Create inserts a tag and returns the server-assigned row. The provisional
// id from the caller is discarded; the backend owns identity.
func (r *Tags) Create(ctx context.Context, userID string, tag model.Tag) (model.Tag, error) {
	var rows []tagRow
	_, err := r.client.sb.From("tags").
		Insert(map[string]any{
			"user_id": userID,
			"name":    tag.Name,
			"color":   tag.Color,
		}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return model.Tag{}, serviceErr("tags.create", err)
	}
	if len(rows) == 0 {
		return model.Tag{}, &repository.ServiceError{Op: "tags.create", Message: "insert returned no row"}
	}
	return rows[0].toModel(), nil
}

// Update writes the tag's name and color.
func (r *Tags) Update(ctx context.Context, tag model.Tag) (model.Tag, error) {
	var rows []tagRow
	_, err := r.client.sb.From("tags").
		Update(map[string]any{
			"name":  tag.Name,
			"color": tag.Color,
		}, "representation", "").
		Eq("id", tag.ID).
		ExecuteTo(&rows)
	if err != nil {
		return model.Tag{}, serviceErr("tags.update", err)
	}
	if len(rows) == 0 {
		return model.Tag{}, repository.ErrNotFound
	}
	return rows[0].toModel(), nil
}

// Delete removes the tag and its join-table rows.
func (r *Tags) Delete(ctx context.Context, id string) error {
	_, _, err := r.client.sb.From("newsletter_tags").
		Delete("", "").
		Eq("tag_id", id).
		Execute()
	if err != nil {
		return serviceErr("tags.delete", err)
	}
	_, _, err = r.client.sb.From("tags").
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return serviceErr("tags.delete", err)
	}
	return nil
}
