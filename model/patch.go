package model

// NewsletterPatch is a partial update to a newsletter's mutable fields. Nil
// means "leave unchanged". The same patch shape serves both the optimistic
// cache write and the repository update, so provisional and committed state
// cannot drift structurally.
type NewsletterPatch struct {
	IsRead       *bool  `json:"is_read,omitempty"`
	IsArchived   *bool  `json:"is_archived,omitempty"`
	IsLiked      *bool  `json:"is_liked,omitempty"`
	IsBookmarked *bool  `json:"is_bookmarked,omitempty"`
	Tags         *[]Tag `json:"tags,omitempty"`
}

// Apply returns a copy of n with the patch applied.
func (p NewsletterPatch) Apply(n Newsletter) Newsletter {
	if p.IsRead != nil {
		n.IsRead = *p.IsRead
	}
	if p.IsArchived != nil {
		n.IsArchived = *p.IsArchived
	}
	if p.IsLiked != nil {
		n.IsLiked = *p.IsLiked
	}
	if p.IsBookmarked != nil {
		n.IsBookmarked = *p.IsBookmarked
	}
	if p.Tags != nil {
		tags := make([]Tag, len(*p.Tags))
		copy(tags, *p.Tags)
		n.Tags = tags
	}
	return n
}

// IsZero reports whether the patch changes nothing.
func (p NewsletterPatch) IsZero() bool {
	return p.IsRead == nil && p.IsArchived == nil && p.IsLiked == nil &&
		p.IsBookmarked == nil && p.Tags == nil
}

// Bool is a convenience for building patches.
func Bool(v bool) *bool { return &v }

// TagList is a convenience for building tag patches.
func TagList(tags []Tag) *[]Tag { return &tags }
