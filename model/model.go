// Package model defines the cache-facing entities of the newsletter data
// layer. These are the shapes the coordination layer reads and writes; the
// backend schema is owned elsewhere and may differ.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Newsletter is a single received newsletter as cached by the client.
// Source and Tags are denormalized copies; SourceID and the tag ids are the
// authoritative references.
type Newsletter struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SourceID     string     `json:"source_id,omitempty"`
	Source       *Source    `json:"source,omitempty"`
	Tags         []Tag      `json:"tags"`
	IsRead       bool       `json:"is_read"`
	IsArchived   bool       `json:"is_archived"`
	IsLiked      bool       `json:"is_liked"`
	IsBookmarked bool       `json:"is_bookmarked"`
	ReceivedAt   time.Time  `json:"received_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// TagIDs returns the ids of the denormalized tag set.
func (n Newsletter) TagIDs() []string {
	ids := make([]string, len(n.Tags))
	for i, t := range n.Tags {
		ids[i] = t.ID
	}
	return ids
}

// HasTag reports whether the newsletter's denormalized tag set contains id.
func (n Newsletter) HasTag(id string) bool {
	for _, t := range n.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Tag labels newsletters; many-to-many with Newsletter, denormalized into
// every cached newsletter that carries it.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Source is where newsletters come from. One-to-many with Newsletter.
type Source struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
}

// SourceGroup is a user-defined grouping of sources, with the member
// sources denormalized for display.
type SourceGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Sources []Source `json:"sources"`
}

// ReadingQueueItem is one entry in a user's reading queue. Position is
// dense, zero-based and unique per user once the backend settles.
// Newsletter is a denormalized embed for display; NewsletterID is the
// reference.
type ReadingQueueItem struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	NewsletterID string      `json:"newsletter_id"`
	Position     int         `json:"position"`
	Newsletter   *Newsletter `json:"newsletter,omitempty"`
	AddedAt      time.Time   `json:"added_at"`
}

// PositionUpdate is one element of a queue reorder: item id to target
// position. A reorder is applied atomically or not at all.
type PositionUpdate struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// BatchResult reports the per-id outcome of a bulk repository operation.
type BatchResult struct {
	ProcessedCount int      `json:"processed_count"`
	FailedCount    int      `json:"failed_count"`
	Errors         []string `json:"errors"`
}

// NewID returns a fresh identifier for provisionally created records. The
// backend assigns the authoritative id; provisional ids only need to be
// unique within the local cache until commit.
func NewID() string {
	return uuid.NewString()
}
