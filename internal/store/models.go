package store

import "time"

type Project struct {
	ID          string
	Name        string
	Description string
	Owner       string
	Private     bool
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Comment is one row of the append-only comment log. A brand-new comment
// references itself through OriginalID; an edit carries its chain root's
// OriginalID and, once superseded, an EditID pointing at its successor.
// Exactly one member of a chain has a nil EditID.
type Comment struct {
	ID         int64
	ProjectID  string
	OriginalID int64
	EditID     *int64
	User       string
	Content    string
	CreatedAt  time.Time
}

// RoleGrant is one row of the role log. Grants are never deleted;
// revocation sets ExpiresAt to the revocation instant so ban history
// stays auditable.
type RoleGrant struct {
	ID          int64
	User        string
	Role        string
	ExpiresAt   *time.Time
	Description *string
	CreatedAt   time.Time
}
