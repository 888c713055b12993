// Package comments reconstructs the visible comment set of a project
// from its append-only edit log.
//
// Every stored row is immutable except for its edit_id forward pointer.
// Rows sharing an original_id form a chain; the member with a nil
// edit_id is the chain's tip and carries the content currently shown.
// Resolve derives that view without touching storage, so the
// reconstruction rules are testable in isolation.
package comments

import (
	"sort"
	"time"

	"sprocket/api/internal/store"
)

// Resolved is one visible comment: the chain tip's content paired with
// the chain root's timestamp.
type Resolved struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Edited    bool      `json:"edited"`
}

// Resolve collapses an edit log into one entry per chain, newest first
// by displayed timestamp.
//
// A chain's displayed timestamp is its root's CreatedAt, so an edit
// never moves a comment up the page. A record is the root of its own
// chain exactly when OriginalID == ID, which doubles as the edited flag.
func Resolve(records []store.Comment) []Resolved {
	byID := make(map[int64]store.Comment, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	resolved := make([]Resolved, 0, len(records))
	for _, record := range records {
		if record.EditID != nil {
			// Superseded member; its successor represents the chain.
			continue
		}
		createdAt := record.CreatedAt
		if root, ok := byID[record.OriginalID]; ok {
			createdAt = root.CreatedAt
		}
		resolved = append(resolved, Resolved{
			ID:        record.ID,
			User:      record.User,
			Content:   record.Content,
			CreatedAt: createdAt,
			Edited:    record.OriginalID != record.ID,
		})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if !resolved[i].CreatedAt.Equal(resolved[j].CreatedAt) {
			return resolved[i].CreatedAt.After(resolved[j].CreatedAt)
		}
		return resolved[i].ID > resolved[j].ID
	})
	return resolved
}
