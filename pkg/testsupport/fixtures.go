// Package testsupport holds fixture helpers and entity builders shared by
// the package-level tests.
package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/letterdesk/go-newsletter-cache/model"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t *testing.T, path string, dest interface{}) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// NewsletterFixture builds a newsletter with deterministic fields derived
// from n. Useful for seeding fakes without fixture files.
func NewsletterFixture(n int) model.Newsletter {
	return model.Newsletter{
		ID:         fmt.Sprintf("nl-%d", n),
		Title:      fmt.Sprintf("Newsletter %d", n),
		SourceID:   fmt.Sprintf("src-%d", n%3),
		Tags:       []model.Tag{},
		ReceivedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour),
	}
}

// QueueItemFixture builds a queue item at the given position wrapping the
// given newsletter.
func QueueItemFixture(n model.Newsletter, userID string, position int) model.ReadingQueueItem {
	return model.ReadingQueueItem{
		ID:           "qi-" + n.ID,
		UserID:       userID,
		NewsletterID: n.ID,
		Position:     position,
		Newsletter:   &n,
		AddedAt:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// TagFixture builds a tag with deterministic fields derived from n.
func TagFixture(n int) model.Tag {
	return model.Tag{
		ID:    fmt.Sprintf("tag-%d", n),
		Name:  fmt.Sprintf("Tag %d", n),
		Color: "#336699",
	}
}

// SourceFixture builds a source with deterministic fields derived from n.
func SourceFixture(n int) model.Source {
	return model.Source{
		ID:   fmt.Sprintf("src-%d", n),
		Name: fmt.Sprintf("Source %d", n),
	}
}
