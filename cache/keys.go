package cache

import (
	"strings"
	"unicode"
)

// Partition namespaces. Every cache key starts with one of these, which is
// what makes prefix-based fan-out invalidation possible: "all newsletter
// lists" is a single prefix deletion.
const (
	NamespaceNewsletterDetail = "newsletter_detail"
	NamespaceNewsletterList   = "newsletter_list"
	NamespaceReadingQueue     = "reading_queue"
	NamespaceTagList          = "tag_list"
	NamespaceSourceList       = "source_list"
	NamespaceSourceGroupList  = "source_group_list"
	NamespaceUnreadCounts     = "unread_counts"
)

// KeyBuilder produces partition keys for every partition category the
// coordinator touches. Keeping key construction in one place is what keeps
// the invalidation rules and the write paths agreeing on prefixes.
type KeyBuilder struct {
	serializer KeySerializer
}

// NewKeyBuilder returns a KeyBuilder using the provided serializer for
// filter-bearing keys. A nil serializer falls back to the default.
func NewKeyBuilder(serializer KeySerializer) *KeyBuilder {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return &KeyBuilder{serializer: serializer}
}

// NewsletterDetail keys the standalone cached copy of one newsletter.
func (b *KeyBuilder) NewsletterDetail(id string) string {
	return b.serializer.SerializeKey(NamespaceNewsletterDetail, id)
}

// NewsletterList keys one filtered newsletter list page.
func (b *KeyBuilder) NewsletterList(userID string, filter any) string {
	return b.serializer.SerializeKey(NamespaceNewsletterList, userID, filter)
}

// ReadingQueue keys a user's reading queue partition.
func (b *KeyBuilder) ReadingQueue(userID string) string {
	return b.serializer.SerializeKey(NamespaceReadingQueue, userID)
}

// TagList keys a user's tag list partition.
func (b *KeyBuilder) TagList(userID string) string {
	return b.serializer.SerializeKey(NamespaceTagList, userID)
}

// SourceList keys the source list partition.
func (b *KeyBuilder) SourceList() string {
	return NamespaceSourceList
}

// SourceGroupList keys the source-group list partition, which embeds its
// member sources.
func (b *KeyBuilder) SourceGroupList() string {
	return NamespaceSourceGroupList
}

// UnreadCounts keys a user's unread-count aggregate partition.
func (b *KeyBuilder) UnreadCounts(userID string) string {
	return b.serializer.SerializeKey(NamespaceUnreadCounts, userID)
}

// Prefix returns the invalidation prefix for a namespace, covering every
// key in that partition category.
func (b *KeyBuilder) Prefix(namespace string) string {
	return namespace + KeySeparator
}

// Namespace normalizes an arbitrary entity-kind name into a key namespace.
// Punctuation that can show up in reflected type names is stripped rather
// than escaped; leaving it in would break prefix matching.
func Namespace(kind string) string {
	return toSnake(kind)
}

// toSnake converts the provided string to snake_case using ASCII-aware
// rules, aggressively replacing anything that is not a letter, digit or
// underscore.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		case r == '_', r == '-', unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
