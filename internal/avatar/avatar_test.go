package avatar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProfilePicture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/alice" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"profile":{"images":{"90x90":"https://cdn.example/alice-90.png","60x60":"https://cdn.example/alice-60.png"}}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	got, err := client.ProfilePicture(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ProfilePicture failed: %v", err)
	}
	if got != "https://cdn.example/alice-90.png" {
		t.Fatalf("unexpected avatar url %q", got)
	}
}

func TestProfilePictureEmptyUsername(t *testing.T) {
	client := New("http://unused.example")
	got, err := client.ProfilePicture(context.Background(), "")
	if err != nil {
		t.Fatalf("ProfilePicture failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
}

func TestProfilePictureProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.ProfilePicture(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for provider failure")
	}
}
