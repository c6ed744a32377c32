package postgrest

import (
	"context"

	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

type sourceRow struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
}

func (r sourceRow) toModel() model.Source {
	return model.Source{ID: r.ID, Name: r.Name, IsArchived: r.IsArchived}
}

type sourceGroupRow struct {
	ID      string      `json:"id"`
	UserID  string      `json:"user_id,omitempty"`
	Name    string      `json:"name"`
	Sources []sourceRow `json:"sources"`
}

func (r sourceGroupRow) toModel() model.SourceGroup {
	g := model.SourceGroup{ID: r.ID, Name: r.Name, Sources: make([]model.Source, len(r.Sources))}
	for i, s := range r.Sources {
		g.Sources[i] = s.toModel()
	}
	return g
}

// Sources implements repository.Sources against the sources and
// source_groups tables.
type Sources struct {
	client *Client
}

// List returns the user's sources ordered by name.
func (r *Sources) List(ctx context.Context, userID string) ([]model.Source, error) {
	var rows []sourceRow
	_, err := r.client.sb.From("sources").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("name", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, serviceErr("sources.list", err)
	}
	sources := make([]model.Source, len(rows))
	for i, row := range rows {
		sources[i] = row.toModel()
	}
	return sources, nil
}

// SetArchived writes the archived flag and returns the updated source.
func (r *Sources) SetArchived(ctx context.Context, id string, archived bool) (model.Source, error) {
	var rows []sourceRow
	_, err := r.client.sb.From("sources").
		Update(map[string]any{"is_archived": archived}, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return model.Source{}, serviceErr("sources.set_archived", err)
	}
	if len(rows) == 0 {
		return model.Source{}, repository.ErrNotFound
	}
	return rows[0].toModel(), nil
}

// Groups returns the user's source groups with member sources embedded.
func (r *Sources) Groups(ctx context.Context, userID string) ([]model.SourceGroup, error) {
	var rows []sourceGroupRow
	_, err := r.client.sb.From("source_groups").
		Select("*, sources(*)", "", false).
		Eq("user_id", userID).
		Order("name", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, serviceErr("sources.groups", err)
	}
	groups := make([]model.SourceGroup, len(rows))
	for i, row := range rows {
		groups[i] = row.toModel()
	}
	return groups, nil
}
