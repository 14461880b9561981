package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/types"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	history := []*types.Message{
		types.NewTextMessage(types.RoleUser, "what is **bold**?"),
		types.NewTextMessage(types.RoleAssistant, "It renders as `<strong>`."),
	}
	if err := store.Save(ctx, checkpoint.New("thread-1", 0, history)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	summary := types.NewSummaryMessage("earlier conversation about markdown")
	if err := store.Save(ctx, checkpoint.New("thread-1", 1, append([]*types.Message{summary}, history...))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	h, err := NewHandler(Config{Store: store, Threads: []string{"thread-1"}})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func get(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlerRequiresStore(t *testing.T) {
	if _, err := NewHandler(Config{}); err == nil {
		t.Error("NewHandler without a store must fail")
	}
}

func TestHandlerIndex(t *testing.T) {
	rec := get(t, newTestHandler(t), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ctxpg inspector") {
		t.Errorf("index missing default title:\n%s", body)
	}
	if !strings.Contains(body, `href="/threads/thread-1"`) {
		t.Errorf("index missing thread link:\n%s", body)
	}
}

func TestHandlerThreadListing(t *testing.T) {
	rec := get(t, newTestHandler(t), "/threads/thread-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`href="/threads/thread-1/0"`, `href="/threads/thread-1/1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("thread page missing %q:\n%s", want, body)
		}
	}
}

func TestHandlerCheckpointTranscript(t *testing.T) {
	rec := get(t, newTestHandler(t), "/threads/thread-1/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "(summary)") {
		t.Errorf("summary message not flagged:\n%s", body)
	}
	if !strings.Contains(body, "<strong>bold</strong>") {
		t.Errorf("markdown not rendered:\n%s", body)
	}
}

func TestHandlerNotFound(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{
		"/threads/thread-1/99",
		"/threads/thread-1/notanumber",
		"/unknown",
		"/threads/thread-1/1/extra",
	} {
		if rec := get(t, h, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
