package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/events"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/validate"
	"github.com/example/learning-platform/services/progress/internal/catalog"
	"github.com/example/learning-platform/services/progress/internal/outline"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type lessonView struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	ContentType     outline.ContentType `json:"content_type"`
	DurationSeconds int                 `json:"duration_seconds,omitempty"`
	ResourceCount   int                 `json:"resource_count,omitempty"`
	Coord           outline.Coordinate  `json:"coord"`
	Completed       bool                `json:"completed"`
	LastPosition    int                 `json:"last_position_seconds,omitempty"`
}

type sectionView struct {
	Title   string       `json:"title"`
	Lessons []lessonView `json:"lessons"`
}

type resumeView struct {
	LessonID        string             `json:"lesson_id"`
	Coord           outline.Coordinate `json:"coord"`
	PositionSeconds int                `json:"position_seconds"`
}

type outlineResponse struct {
	CourseID          string        `json:"course_id"`
	Sections          []sectionView `json:"sections"`
	OverallPercentage int           `json:"overall_percentage"`
	Resume            *resumeView   `json:"resume,omitempty"`
}

// CourseOutline renders the learner's annotated view of a course: the catalog
// outline decorated with completion badges, the overall percentage, and the
// most recently accessed lesson as the resume target.
func CourseOutline(provider catalog.Provider, progress store.ProgressStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))

		o, ok := loadOutline(w, r, provider, rid, courseID)
		if !ok {
			return
		}
		records, err := progress.ListByCourse(r.Context(), uid, courseID)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		byLesson := make(map[string]store.ProgressRecord, len(records))
		for _, rec := range records {
			byLesson[rec.LessonID] = rec
		}
		completed := store.CompletedSet(records)

		resp := outlineResponse{
			CourseID:          o.CourseID,
			Sections:          make([]sectionView, 0, len(o.Sections)),
			OverallPercentage: outline.OverallPercentage(o, completed),
		}
		for si, sec := range o.Sections {
			sv := sectionView{Title: sec.Title, Lessons: make([]lessonView, 0, len(sec.Lessons))}
			for li, l := range sec.Lessons {
				lv := lessonView{
					ID:              l.ID,
					Title:           l.Title,
					ContentType:     l.ContentType,
					DurationSeconds: l.DurationSeconds,
					ResourceCount:   l.ResourceCount,
					Coord:           outline.Coordinate{Section: si, Lesson: li},
				}
				if rec, ok := byLesson[l.ID]; ok {
					lv.Completed = rec.Completed
					lv.LastPosition = rec.LastPosition
				}
				sv.Lessons = append(sv.Lessons, lv)
			}
			resp.Sections = append(resp.Sections, sv)
		}

		if target, ok := store.ResumeTarget(records); ok && o.Contains(target.Coord()) {
			resp.Resume = &resumeView{
				LessonID:        target.LessonID,
				Coord:           target.Coord(),
				PositionSeconds: target.LastPosition,
			}
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// CourseProgress returns the raw ledger records for one course. A learner who
// has not started gets an empty list, not an error.
func CourseProgress(progress store.ProgressStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))

		records, err := progress.ListByCourse(r.Context(), uid, courseID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if records == nil {
			records = []store.ProgressRecord{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
	}
}

type flushRequest struct {
	LessonID          string `json:"lesson_id" validate:"required"`
	Section           int    `json:"section" validate:"gte=0"`
	Lesson            int    `json:"lesson" validate:"gte=0"`
	PositionSeconds   int    `json:"position_seconds" validate:"gte=0"`
	DeltaWatchSeconds int    `json:"delta_watch_seconds" validate:"gte=0"`
	ClientTsMs        int64  `json:"client_ts_ms"`
}

// FlushProgress ingests one playback flush. With JetStream available the
// event is acknowledged with 202 and applied by the consumer; otherwise the
// ledger write happens inline. Either way the lesson reference is checked
// against the catalog outline first, unless the catalog itself is down, in
// which case the flush is accepted unchecked rather than dropped.
func FlushProgress(progress store.ProgressStore, provider catalog.Provider, publisher *EventPublisher, v *validate.Validator, ev *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))

		var req flushRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if details := v.Struct(req); details != nil {
			api.UnprocessableEntity(w, "VALIDATION_FAILED", "Invalid flush payload", rid, details)
			return
		}
		if req.ClientTsMs == 0 {
			req.ClientTsMs = time.Now().UnixMilli()
		}

		ref := outline.Ref{
			CourseID: courseID,
			LessonID: strings.TrimSpace(req.LessonID),
			Coord:    outline.Coordinate{Section: req.Section, Lesson: req.Lesson},
		}
		o, err := provider.Outline(r.Context(), courseID)
		switch {
		case err == nil:
			if _, rerr := o.Resolve(ref); rerr != nil {
				api.UnprocessableEntity(w, "INVALID_LESSON_REF", "Lesson reference does not resolve against the course outline", rid, nil)
				return
			}
		case errors.Is(err, catalog.ErrCourseNotFound):
			api.NotFound(w, "COURSE_NOT_FOUND", "Course not found", rid)
			return
		default:
			// Catalog down: accept the flush unchecked. Losing watch time is
			// worse than storing an unverifiable coordinate.
		}

		if publisher.Enabled() {
			eventID, err := publisher.PublishJSON(SubjectProgressFlush, map[string]any{
				"user_id":             uid,
				"course_id":           courseID,
				"lesson_id":           ref.LessonID,
				"section":             ref.Coord.Section,
				"lesson":              ref.Coord.Lesson,
				"position_seconds":    req.PositionSeconds,
				"delta_watch_seconds": req.DeltaWatchSeconds,
				"client_ts_ms":        req.ClientTsMs,
			})
			if err != nil {
				api.WriteError(w, http.StatusServiceUnavailable, "EVENT_PUBLISH_FAILED", "failed to publish event", rid, nil)
				return
			}
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		rec, err := progress.Flush(r.Context(), store.FlushInput{
			UserID:            uid,
			Ref:               ref,
			PositionSeconds:   req.PositionSeconds,
			DeltaWatchSeconds: req.DeltaWatchSeconds,
			ClientTsMs:        req.ClientTsMs,
		})
		if err != nil {
			ev.Publish(events.SubjectFlushFailed, "flush_failed", uid, map[string]any{
				"course_id": courseID,
				"lesson_id": ref.LessonID,
			})
			api.Unavailable(w, "PERSISTENCE_UNAVAILABLE", "Progress store unavailable", rid)
			return
		}
		ev.Publish(events.SubjectProgressSaved, "progress_saved", uid, map[string]any{
			"course_id": courseID,
			"lesson_id": ref.LessonID,
		})
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

type completeRequest struct {
	Section int `json:"section" validate:"gte=0"`
	Lesson  int `json:"lesson" validate:"gte=0"`
}

// MarkComplete latches a lesson as completed. Repeats are no-ops that return
// the existing record; the completion event fires only on the first
// transition.
func MarkComplete(progress store.ProgressStore, provider catalog.Provider, v *validate.Validator, ev *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))
		lessonID := strings.TrimSpace(chi.URLParam(r, "lesson_id"))

		var req completeRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if details := v.Struct(req); details != nil {
			api.UnprocessableEntity(w, "VALIDATION_FAILED", "Invalid completion payload", rid, details)
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
		if _, err := o.Resolve(ref); err != nil {
			api.UnprocessableEntity(w, "INVALID_LESSON_REF", "Lesson reference does not resolve against the course outline", rid, nil)
			return
		}

		// Microsecond precision so the first-transition check below survives a
		// round trip through timestamptz.
		at := time.Now().UTC().Truncate(time.Microsecond)
		rec, err := progress.MarkComplete(r.Context(), uid, ref, at)
		if err != nil {
			api.Unavailable(w, "PERSISTENCE_UNAVAILABLE", "Progress store unavailable", rid)
			return
		}
		if rec.CompletedAt != nil && rec.CompletedAt.Equal(at) {
			ev.Publish(events.SubjectLessonCompleted, "lesson_completed", uid, map[string]any{
				"course_id": courseID,
				"lesson_id": lessonID,
			})
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

type navigationResponse struct {
	Current           outline.Coordinate  `json:"current"`
	Next              *outline.Coordinate `json:"next,omitempty"`
	Prev              *outline.Coordinate `json:"prev,omitempty"`
	NextLessonID      string              `json:"next_lesson_id,omitempty"`
	PrevLessonID      string              `json:"prev_lesson_id,omitempty"`
	AtEnd             bool                `json:"at_end"`
	AtStart           bool                `json:"at_start"`
	OverallPercentage int                 `json:"overall_percentage"`
}

// Navigation resolves previous/next targets around a coordinate, skipping
// empty sections, plus the learner's overall completion percentage.
func Navigation(provider catalog.Provider, progress store.ProgressStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))

		cur, ok := queryCoord(r)
		if !ok {
			api.BadRequest(w, "INVALID_COORDINATE", "section and lesson must be non-negative integers", rid, nil)
			return
		}

		o, ok := loadOutline(w, r, provider, rid, courseID)
		if !ok {
			return
		}
		if !o.Contains(cur) {
			api.UnprocessableEntity(w, "INVALID_LESSON_REF", "Coordinate is out of bounds for the course outline", rid, nil)
			return
		}

		records, err := progress.ListByCourse(r.Context(), uid, courseID)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		resp := navigationResponse{
			Current:           cur,
			OverallPercentage: outline.OverallPercentage(o, store.CompletedSet(records)),
		}
		if next, ok := outline.Next(o, cur); ok {
			resp.Next = &next
			if l, ok := o.LessonAt(next); ok {
				resp.NextLessonID = l.ID
			}
		} else {
			resp.AtEnd = true
		}
		if prev, ok := outline.Prev(o, cur); ok {
			resp.Prev = &prev
			if l, ok := o.LessonAt(prev); ok {
				resp.PrevLessonID = l.ID
			}
		} else {
			resp.AtStart = true
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

func queryCoord(r *http.Request) (outline.Coordinate, bool) {
	section, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("section")))
	if err != nil || section < 0 {
		return outline.Coordinate{}, false
	}
	lesson, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("lesson")))
	if err != nil || lesson < 0 {
		return outline.Coordinate{}, false
	}
	return outline.Coordinate{Section: section, Lesson: lesson}, true
}

// loadOutline fetches the outline and maps provider failures onto API errors.
// Returns false after writing a response.
func loadOutline(w http.ResponseWriter, r *http.Request, provider catalog.Provider, rid, courseID string) (outline.Outline, bool) {
	o, err := provider.Outline(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, catalog.ErrCourseNotFound) {
			api.NotFound(w, "COURSE_NOT_FOUND", "Course not found", rid)
		} else {
			api.Unavailable(w, "CATALOG_UNAVAILABLE", "Course catalog unavailable", rid)
		}
		return outline.Outline{}, false
	}
	return o, true
}
