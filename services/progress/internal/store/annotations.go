package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

// ErrEmptyContent rejects notes whose content is empty after trimming.
var ErrEmptyContent = errors.New("note content must not be empty")

// SyncStatus tells the caller which tier an annotation currently lives in.
type SyncStatus string

const (
	SyncSynced       SyncStatus = "synced"
	SyncPendingLocal SyncStatus = "pendingLocal"
)

// Note is a free-text annotation anchored to a lesson and optionally to a
// playback timestamp. Immutable once created except for deletion.
type Note struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Ref              outline.Ref `json:"ref"`
	TimestampSeconds *int        `json:"timestamp_seconds,omitempty"` // nil = not time-anchored
	Content          string      `json:"content"`
	CreatedAt        time.Time   `json:"created_at"`
	SyncStatus       SyncStatus  `json:"sync_status"`
}

// Bookmark marks a jump target inside a lesson. The title is denormalized
// from section/lesson titles at creation time.
type Bookmark struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Ref              outline.Ref `json:"ref"`
	TimestampSeconds *int        `json:"timestamp_seconds,omitempty"`
	Title            string      `json:"title"`
	CreatedAt        time.Time   `json:"created_at"`
	SyncStatus       SyncStatus  `json:"sync_status"`
}

// AnnotationStore is the strict annotation contract: it fails loudly on
// persistence errors. Graceful degradation to a local overlay is the
// responsibility of OverlayAnnotationStore, not of implementations.
// Deletes are idempotent and scoped to the owner; deleting a missing or
// foreign annotation succeeds without revealing whether it ever existed.
type AnnotationStore interface {
	AddNote(ctx context.Context, n Note) (Note, error)
	ListNotes(ctx context.Context, userID, courseID, lessonID string) ([]Note, error)
	DeleteNote(ctx context.Context, userID, noteID string) error

	AddBookmark(ctx context.Context, b Bookmark) (Bookmark, error)
	ListBookmarks(ctx context.Context, userID, courseID string) ([]Bookmark, error)
	DeleteBookmark(ctx context.Context, userID, bookmarkID string) error
}

// DefaultBookmarkTitle builds the generated title used when a caller supplies
// none: "<Section title> – <Lesson title>".
func DefaultBookmarkTitle(sectionTitle, lessonTitle string) string {
	return strings.TrimSpace(sectionTitle) + " – " + strings.TrimSpace(lessonTitle)
}

// JumpTarget projects a bookmark onto the coordinate and optional timestamp a
// player needs to navigate and seek. Pure; mutates nothing.
func JumpTarget(b Bookmark) (outline.Coordinate, *int) {
	return b.Ref.Coord, b.TimestampSeconds
}

// CleanNoteContent trims note content and validates it is non-empty.
func CleanNoteContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
