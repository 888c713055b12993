package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	return url
}

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db)
}

func insertTestProject(t *testing.T, s *PostgresStore, id string) {
	t.Helper()
	if err := s.InsertProject(context.Background(), Project{
		ID:    id,
		Name:  "Test Project",
		Owner: "alice",
	}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
}

// TestCommentCreateSelfReferences verifies a new comment's original_id
// equals its own id with no intermediate state.
func TestCommentCreateSelfReferences(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupTestStore(t)
	ctx := context.Background()
	projectID := "itest-create-0001"
	insertTestProject(t, s, projectID)

	id, err := s.InsertComment(ctx, projectID, "alice", "hello")
	if err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	comments, err := s.ListProjectComments(ctx, projectID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	if comments[0].OriginalID != id {
		t.Fatalf("expected original_id=%d, got %d", id, comments[0].OriginalID)
	}
	if comments[0].EditID != nil {
		t.Fatalf("new comment should have nil edit_id")
	}
}

// TestCommentEditKeepsSingleTip verifies the compound edit write leaves
// exactly one chain member without an outgoing edit pointer.
func TestCommentEditKeepsSingleTip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupTestStore(t)
	ctx := context.Background()
	projectID := "itest-edit-0001"
	insertTestProject(t, s, projectID)

	rootID, err := s.InsertComment(ctx, projectID, "alice", "hello")
	if err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	editID, err := s.EditComment(ctx, rootID, projectID, "alice", "hello world")
	if err != nil {
		t.Fatalf("edit comment: %v", err)
	}

	// Edit the chain again through the original id.
	secondEditID, err := s.EditComment(ctx, rootID, projectID, "alice", "hello world!")
	if err != nil {
		t.Fatalf("re-edit comment: %v", err)
	}

	comments, err := s.ListProjectComments(ctx, projectID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}

	tips := 0
	for _, c := range comments {
		if c.OriginalID != rootID {
			t.Fatalf("comment %d has original_id=%d, expected %d", c.ID, c.OriginalID, rootID)
		}
		if c.EditID == nil {
			tips++
			if c.ID != secondEditID {
				t.Fatalf("tip is %d, expected newest edit %d", c.ID, secondEditID)
			}
		}
	}
	if tips != 1 {
		t.Fatalf("expected exactly one tip, got %d", tips)
	}
	if editID == secondEditID {
		t.Fatal("re-edit must append a new record")
	}
}

func TestCommentEditErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupTestStore(t)
	ctx := context.Background()
	projectID := "itest-editerr-001"
	insertTestProject(t, s, projectID)

	id, err := s.InsertComment(ctx, projectID, "alice", "hello")
	if err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	if _, err := s.EditComment(ctx, id, projectID, "mallory", "hijacked"); !errors.Is(err, ErrAuthorMismatch) {
		t.Fatalf("expected ErrAuthorMismatch, got %v", err)
	}
	if _, err := s.EditComment(ctx, id+100000, projectID, "alice", "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	// Failed edits must not leave partial chain state behind.
	comments, err := s.ListProjectComments(ctx, projectID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment after failed edits, got %d", len(comments))
	}
}

func TestRevokeRoleGrantsKeepsHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupTestStore(t)
	ctx := context.Background()
	user := "itest-banned-user"

	if _, err := s.InsertRoleGrant(ctx, RoleGrant{User: user, Role: "banned"}); err != nil {
		t.Fatalf("insert grant: %v", err)
	}

	now := time.Now()
	revoked, err := s.RevokeRoleGrants(ctx, user, "banned", now)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !revoked {
		t.Fatal("expected revocation to affect a row")
	}

	grants, err := s.ListRoleGrants(ctx, user)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) == 0 {
		t.Fatal("revocation must not delete the grant row")
	}
	last := grants[len(grants)-1]
	if last.ExpiresAt == nil {
		t.Fatal("revoked grant should carry the revocation time")
	}

	revoked, err = s.RevokeRoleGrants(ctx, user, "banned", now.Add(time.Second))
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if revoked {
		t.Fatal("second revoke should affect no rows")
	}
}
