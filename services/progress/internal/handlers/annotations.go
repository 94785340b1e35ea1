package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/validate"
	"github.com/example/learning-platform/services/progress/internal/catalog"
	"github.com/example/learning-platform/services/progress/internal/outline"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type addNoteRequest struct {
	Section          int    `json:"section" validate:"gte=0"`
	Lesson           int    `json:"lesson" validate:"gte=0"`
	TimestampSeconds *int   `json:"timestamp_seconds,omitempty"`
	Content          string `json:"content" validate:"required"`
}

// AddNote attaches a note to a lesson, optionally anchored to a playback
// timestamp. Duplicate timestamps are fine; notes are a list, not a map.
func AddNote(annotations store.AnnotationStore, provider catalog.Provider, v *validate.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))
		lessonID := strings.TrimSpace(chi.URLParam(r, "lesson_id"))

		var req addNoteRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if details := v.Struct(req); details != nil {
			api.UnprocessableEntity(w, "VALIDATION_FAILED", "Invalid note payload", rid, details)
			return
		}

		ref, ok := resolveAnnotationRef(w, r, provider, rid, courseID, lessonID, req.Section, req.Lesson)
		if !ok {
			return
		}

		n, err := annotations.AddNote(r.Context(), store.Note{
			UserID:           uid,
			Ref:              ref,
			TimestampSeconds: req.TimestampSeconds,
			Content:          req.Content,
		})
		if err != nil {
			if errors.Is(err, store.ErrEmptyContent) {
				api.UnprocessableEntity(w, "EMPTY_CONTENT", "Note content must not be empty", rid, nil)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, n)
	}
}

// ListNotes returns the caller's notes for one lesson, oldest first.
func ListNotes(annotations store.AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))
		lessonID := strings.TrimSpace(chi.URLParam(r, "lesson_id"))

		notes, err := annotations.ListNotes(r.Context(), uid, courseID, lessonID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if notes == nil {
			notes = []store.Note{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"notes": notes})
	}
}

// DeleteNote removes one of the caller's notes. Unknown or foreign ids are
// silent no-ops, so the endpoint leaks nothing and retries are safe.
func DeleteNote(annotations store.AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		noteID := strings.TrimSpace(chi.URLParam(r, "note_id"))

		if err := annotations.DeleteNote(r.Context(), uid, noteID); err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type addBookmarkRequest struct {
	Section          int    `json:"section" validate:"gte=0"`
	Lesson           int    `json:"lesson" validate:"gte=0"`
	TimestampSeconds *int   `json:"timestamp_seconds,omitempty"`
	Title            string `json:"title,omitempty"`
}

// AddBookmark saves a jump target. An empty title gets the
// "Section – Lesson" default derived from the outline.
func AddBookmark(annotations store.AnnotationStore, provider catalog.Provider, v *validate.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))
		lessonID := strings.TrimSpace(chi.URLParam(r, "lesson_id"))

		var req addBookmarkRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if details := v.Struct(req); details != nil {
			api.UnprocessableEntity(w, "VALIDATION_FAILED", "Invalid bookmark payload", rid, details)
			return
		}

		o, ok := loadOutline(w, r, provider, rid, courseID)
		if !ok {
			return
		}
		ref := outline.Ref{
			CourseID: courseID,
			LessonID: lessonID,
			Coord:    outline.Coordinate{Section: req.Section, Lesson: req.Lesson},
		}
		lesson, err := o.Resolve(ref)
		if err != nil {
			api.UnprocessableEntity(w, "INVALID_LESSON_REF", "Lesson reference does not resolve against the course outline", rid, nil)
			return
		}

		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = store.DefaultBookmarkTitle(o.Sections[req.Section].Title, lesson.Title)
		}

		b, err := annotations.AddBookmark(r.Context(), store.Bookmark{
			UserID:           uid,
			Ref:              ref,
			TimestampSeconds: req.TimestampSeconds,
			Title:            title,
		})
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, b)
	}
}

type bookmarkView struct {
	store.Bookmark
	JumpCoord     outline.Coordinate `json:"jump_coord"`
	JumpTimestamp *int               `json:"jump_timestamp_seconds,omitempty"`
}

// ListBookmarks returns the caller's bookmarks for a course with their
// resolved jump targets.
func ListBookmarks(annotations store.AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))

		bookmarks, err := annotations.ListBookmarks(r.Context(), uid, courseID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		views := make([]bookmarkView, 0, len(bookmarks))
		for _, b := range bookmarks {
			coord, ts := store.JumpTarget(b)
			views = append(views, bookmarkView{Bookmark: b, JumpCoord: coord, JumpTimestamp: ts})
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"bookmarks": views})
	}
}

// DeleteBookmark mirrors DeleteNote: owner-scoped, idempotent, silent.
func DeleteBookmark(annotations store.AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		bookmarkID := strings.TrimSpace(chi.URLParam(r, "bookmark_id"))

		if err := annotations.DeleteBookmark(r.Context(), uid, bookmarkID); err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// resolveAnnotationRef validates the lesson reference behind an annotation
// write. Unlike flushes, annotations fail closed when the catalog is down; a
// note pinned to a wrong lesson is worse than a retried request.
func resolveAnnotationRef(w http.ResponseWriter, r *http.Request, provider catalog.Provider, rid, courseID, lessonID string, section, lesson int) (outline.Ref, bool) {
	o, ok := loadOutline(w, r, provider, rid, courseID)
	if !ok {
		return outline.Ref{}, false
	}
	ref := outline.Ref{
		CourseID: courseID,
		LessonID: lessonID,
		Coord:    outline.Coordinate{Section: section, Lesson: lesson},
	}
	if _, err := o.Resolve(ref); err != nil {
		api.UnprocessableEntity(w, "INVALID_LESSON_REF", "Lesson reference does not resolve against the course outline", rid, nil)
		return outline.Ref{}, false
	}
	return ref, true
}
