package model

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ValidateTagInput checks a tag name and color before any network call.
// The name must be non-empty after trimming; the color, when present, must
// be a hex color.
func ValidateTagInput(name, color string) error {
	trimmed := strings.TrimSpace(name)
	return validation.Errors{
		"name": validation.Validate(trimmed,
			validation.Required.Error("tag name cannot be empty"),
			validation.Length(1, 64),
		),
		"color": validation.Validate(color,
			validation.When(color != "", is.HexColor),
		),
	}.Filter()
}

// Validate checks structural invariants of a reorder payload: no empty ids,
// no negative positions, no duplicate targets.
func ValidateReorder(updates []PositionUpdate) error {
	if err := validation.Validate(updates, validation.Required.Error("reorder requires at least one update")); err != nil {
		return err
	}
	seenID := make(map[string]struct{}, len(updates))
	seenPos := make(map[int]struct{}, len(updates))
	for _, u := range updates {
		if err := (validation.Errors{
			"id":       validation.Validate(u.ID, validation.Required),
			"position": validation.Validate(u.Position, validation.Min(0)),
		}).Filter(); err != nil {
			return err
		}
		if _, dup := seenID[u.ID]; dup {
			return validation.NewError("validation_duplicate_id", "duplicate item id in reorder")
		}
		if _, dup := seenPos[u.Position]; dup {
			return validation.NewError("validation_duplicate_position", "duplicate position in reorder")
		}
		seenID[u.ID] = struct{}{}
		seenPos[u.Position] = struct{}{}
	}
	return nil
}
