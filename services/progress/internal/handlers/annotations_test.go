package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/example/learning-platform/services/progress/internal/outline"
	"github.com/example/learning-platform/services/progress/internal/store"
)

func TestAddNote_AndList(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/notes",
		`{"section":0,"lesson":0,"timestamp_seconds":42,"content":"  remember this  "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created store.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Content != "remember this" {
		t.Fatalf("expected trimmed content, got %q", created.Content)
	}
	if created.SyncStatus != store.SyncSynced {
		t.Fatalf("expected synced, got %q", created.SyncStatus)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/lessons/l-00/notes", "")
	var resp struct {
		Notes []store.Note `json:"notes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Notes) != 1 || resp.Notes[0].ID != created.ID {
		t.Fatalf("expected the created note, got %+v", resp.Notes)
	}
}

func TestAddNote_EmptyContent(t *testing.T) {
	env := newTestEnv(t, "user-a")

	// Whitespace-only passes required but fails the store's content check.
	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/notes",
		`{"section":0,"lesson":0,"content":"   "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAddNote_InvalidRef(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/notes",
		`{"section":1,"lesson":1,"content":"misplaced"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestDeleteNote_Idempotent(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/notes",
		`{"section":0,"lesson":0,"content":"temp"}`)
	var created store.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec = doJSON(t, env.router, http.MethodDelete, "/v1/notes/"+created.ID, "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete %d: expected 204, got %d", i, rec.Code)
		}
	}
}

func TestAddBookmark_DefaultTitle(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-10/bookmarks",
		`{"section":1,"lesson":0,"timestamp_seconds":90}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created store.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Title != "Advanced – Topic" {
		t.Fatalf("expected default title 'Advanced – Topic', got %q", created.Title)
	}
}

func TestAddBookmark_ExplicitTitleKept(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/bookmarks",
		`{"section":0,"lesson":0,"title":"rewatch before exam"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created store.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Title != "rewatch before exam" {
		t.Fatalf("expected explicit title kept, got %q", created.Title)
	}
}

func TestListBookmarks_JumpTargets(t *testing.T) {
	env := newTestEnv(t, "user-a")

	doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-10/bookmarks",
		`{"section":1,"lesson":0,"timestamp_seconds":90}`)

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/bookmarks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Bookmarks []bookmarkView `json:"bookmarks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Bookmarks) != 1 {
		t.Fatalf("expected one bookmark, got %d", len(resp.Bookmarks))
	}
	bv := resp.Bookmarks[0]
	if bv.JumpCoord != (outline.Coordinate{Section: 1, Lesson: 0}) {
		t.Fatalf("expected jump coord (1,0), got %+v", bv.JumpCoord)
	}
	if bv.JumpTimestamp == nil || *bv.JumpTimestamp != 90 {
		t.Fatalf("expected jump timestamp 90, got %v", bv.JumpTimestamp)
	}
}

func TestDeleteBookmark_Idempotent(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/bookmarks",
		`{"section":0,"lesson":0}`)
	var created store.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec = doJSON(t, env.router, http.MethodDelete, "/v1/bookmarks/"+created.ID, "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete %d: expected 204, got %d", i, rec.Code)
		}
	}
}
