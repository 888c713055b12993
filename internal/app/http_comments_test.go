package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"sprocket/api/internal/store"
)

// memComments mimics the append-only comment log: inserts self-reference
// through OriginalID, edits append a successor and point the superseded
// tip's EditID at it.
type memComments struct {
	mu     sync.Mutex
	nextID int64
	items  []store.Comment
}

func (m *memComments) insert(projectID, user, content string, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items = append(m.items, store.Comment{
		ID:         m.nextID,
		ProjectID:  projectID,
		OriginalID: m.nextID,
		User:       user,
		Content:    content,
		CreatedAt:  at,
	})
	return m.nextID
}

func (m *memComments) edit(commentID int64, projectID, user, content string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *store.Comment
	for i := range m.items {
		if m.items[i].ID == commentID && m.items[i].ProjectID == projectID {
			target = &m.items[i]
			break
		}
	}
	if target == nil {
		return 0, sql.ErrNoRows
	}
	if target.User != user {
		return 0, store.ErrAuthorMismatch
	}
	m.nextID++
	newID := m.nextID
	m.items = append(m.items, store.Comment{
		ID:         newID,
		ProjectID:  projectID,
		OriginalID: target.OriginalID,
		User:       user,
		Content:    content,
		CreatedAt:  at,
	})
	for i := range m.items {
		if m.items[i].OriginalID == target.OriginalID && m.items[i].EditID == nil && m.items[i].ID != newID {
			id := newID
			m.items[i].EditID = &id
		}
	}
	return newID, nil
}

func (m *memComments) list(projectID string) []store.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Comment, 0, len(m.items))
	for _, item := range m.items {
		if item.ProjectID == projectID {
			items = append(items, item)
		}
	}
	return items
}

func newCommentServer(mem *memComments) *HTTPServer {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	fs := &fakeStore{
		projectExistsFn: func(_ context.Context, projectID string) (bool, error) {
			return projectID == "p1", nil
		},
		insertCommentFn: func(_ context.Context, projectID, user, content string) (int64, error) {
			tick++
			return mem.insert(projectID, user, content, clock.Add(time.Duration(tick)*time.Minute)), nil
		},
		editCommentFn: func(_ context.Context, commentID int64, projectID, user, content string) (int64, error) {
			tick++
			return mem.edit(commentID, projectID, user, content, clock.Add(time.Duration(tick)*time.Minute))
		},
		listProjectCommentsFn: func(_ context.Context, projectID string) ([]store.Comment, error) {
			return mem.list(projectID), nil
		},
	}
	return newTestServer(fs)
}

func TestCommentLifecycle(t *testing.T) {
	mem := &memComments{}
	server := newCommentServer(mem)
	token := issueTestToken(t, "ada")

	// Create
	recorder := doRequest(t, server, http.MethodPost, "/api/projects/p1/comments", token, `{"content":"first draft"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	created := decodeResponse(t, recorder)
	originalID := int64(created["id"].(float64))

	// Edit
	recorder = doRequest(t, server, http.MethodPatch, "/api/projects/p1/comments/1", token, `{"content":"second draft"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	edited := decodeResponse(t, recorder)
	newID := int64(edited["id"].(float64))
	if newID == originalID {
		t.Fatal("edit must return a new record id")
	}

	// List: one current comment, flagged edited, latest content
	recorder = doRequest(t, server, http.MethodGet, "/api/projects/p1/comments", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("list status = %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	items := payload["comments"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 current comment, got %d", len(items))
	}
	item := items[0].(map[string]any)
	if item["content"] != "second draft" {
		t.Fatalf("content = %v", item["content"])
	}
	if item["edited"] != true {
		t.Fatal("comment should report edited=true")
	}
}

func TestCommentEditByNonAuthor(t *testing.T) {
	mem := &memComments{}
	server := newCommentServer(mem)
	adaToken := issueTestToken(t, "ada")
	eveToken := issueTestToken(t, "eve")

	recorder := doRequest(t, server, http.MethodPost, "/api/projects/p1/comments", adaToken, `{"content":"mine"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d", recorder.Code)
	}

	recorder = doRequest(t, server, http.MethodPatch, "/api/projects/p1/comments/1", eveToken, `{"content":"hijacked"}`)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "AUTHOR_MISMATCH" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestCommentEditUnknownComment(t *testing.T) {
	server := newCommentServer(&memComments{})
	token := issueTestToken(t, "ada")

	recorder := doRequest(t, server, http.MethodPatch, "/api/projects/p1/comments/99", token, `{"content":"ghost"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestCommentEditNonNumericID(t *testing.T) {
	server := newCommentServer(&memComments{})
	token := issueTestToken(t, "ada")

	recorder := doRequest(t, server, http.MethodPatch, "/api/projects/p1/comments/abc", token, `{"content":"x"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestCommentCreateOnUnknownProject(t *testing.T) {
	server := newCommentServer(&memComments{})
	token := issueTestToken(t, "ada")

	recorder := doRequest(t, server, http.MethodPost, "/api/projects/missing/comments", token, `{"content":"lost"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestCommentCreateOversizeBody(t *testing.T) {
	server := newCommentServer(&memComments{})
	token := issueTestToken(t, "ada")

	body := `{"content":"` + strings.Repeat("x", 501) + `"}`
	recorder := doRequest(t, server, http.MethodPost, "/api/projects/p1/comments", token, body)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "PAYLOAD_TOO_LARGE" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestCommentsNewestFirstByChainRoot(t *testing.T) {
	mem := &memComments{}
	server := newCommentServer(mem)
	token := issueTestToken(t, "ada")

	doRequest(t, server, http.MethodPost, "/api/projects/p1/comments", token, `{"content":"older"}`)
	doRequest(t, server, http.MethodPost, "/api/projects/p1/comments", token, `{"content":"newer"}`)
	// Editing the older comment must not float it above the newer one;
	// display order keys on the chain root's timestamp.
	doRequest(t, server, http.MethodPatch, "/api/projects/p1/comments/1", token, `{"content":"older, revised"}`)

	recorder := doRequest(t, server, http.MethodGet, "/api/projects/p1/comments", "", "")
	payload := decodeResponse(t, recorder)
	items := payload["comments"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(items))
	}
	first := items[0].(map[string]any)
	second := items[1].(map[string]any)
	if first["content"] != "newer" {
		t.Fatalf("first = %v", first["content"])
	}
	if second["content"] != "older, revised" {
		t.Fatalf("second = %v", second["content"])
	}
}
