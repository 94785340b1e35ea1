package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/events"
	"github.com/example/learning-platform/internal/platform/validate"
	"github.com/example/learning-platform/services/progress/internal/catalog"
	"github.com/example/learning-platform/services/progress/internal/outline"
	"github.com/example/learning-platform/services/progress/internal/store"
)

func testOutline() outline.Outline {
	return outline.Outline{
		CourseID: "course-1",
		Sections: []outline.Section{
			{Title: "Basics", Lessons: []outline.Lesson{
				{ID: "l-00", Title: "Intro", ContentType: outline.ContentVideo, DurationSeconds: 300},
				{ID: "l-01", Title: "Setup", ContentType: outline.ContentText},
			}},
			{Title: "Advanced", Lessons: []outline.Lesson{
				{ID: "l-10", Title: "Topic", ContentType: outline.ContentVideo, DurationSeconds: 600},
				{ID: "l-11", Title: "Wrap-up", ContentType: outline.ContentText},
			}},
		},
	}
}

type testEnv struct {
	router      chi.Router
	progress    *store.InMemoryProgressStore
	annotations *store.InMemoryAnnotationStore
}

// asUser injects the authenticated identity the way the verifier middleware
// would in production.
func asUser(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), uid)))
		})
	}
}

func newTestEnv(t *testing.T, uid string) *testEnv {
	t.Helper()
	env := &testEnv{
		progress:    store.NewInMemoryProgressStore(),
		annotations: store.NewInMemoryAnnotationStore(),
	}
	provider := catalog.NewStatic(testOutline())
	v := validate.New()
	ev := events.New(nil, zap.NewNop())

	r := chi.NewRouter()
	r.Use(asUser(uid))
	r.Get("/v1/courses/{course_id}/outline", CourseOutline(provider, env.progress))
	r.Get("/v1/courses/{course_id}/progress", CourseProgress(env.progress))
	r.Post("/v1/courses/{course_id}/progress/flush", FlushProgress(env.progress, provider, nil, v, ev))
	r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/complete", MarkComplete(env.progress, provider, v, ev))
	r.Get("/v1/courses/{course_id}/navigation", Navigation(provider, env.progress))
	r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/notes", AddNote(env.annotations, provider, v))
	r.Get("/v1/courses/{course_id}/lessons/{lesson_id}/notes", ListNotes(env.annotations))
	r.Delete("/v1/notes/{note_id}", DeleteNote(env.annotations))
	r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/bookmarks", AddBookmark(env.annotations, provider, v))
	r.Get("/v1/courses/{course_id}/bookmarks", ListBookmarks(env.annotations))
	r.Delete("/v1/bookmarks/{bookmark_id}", DeleteBookmark(env.annotations))
	env.router = r
	return env
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestFlushProgress_Sync(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/progress/flush",
		`{"lesson_id":"l-00","section":0,"lesson":0,"position_seconds":30,"delta_watch_seconds":30,"client_ts_ms":1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got store.ProgressRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WatchSeconds != 30 || got.LastPosition != 30 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Completed {
		t.Fatal("flush must not complete a lesson")
	}
}

func TestFlushProgress_AccumulatesAcrossFlushes(t *testing.T) {
	env := newTestEnv(t, "user-a")

	for i := 1; i <= 3; i++ {
		rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/progress/flush",
			`{"lesson_id":"l-00","section":0,"lesson":0,"position_seconds":`+strconv.Itoa(i*30)+`,"delta_watch_seconds":30,"client_ts_ms":`+strconv.Itoa(i*1000)+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("flush %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/progress", "")
	var resp struct {
		Records []store.ProgressRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected one record, got %d", len(resp.Records))
	}
	if resp.Records[0].WatchSeconds != 90 {
		t.Fatalf("expected 90s accumulated, got %d", resp.Records[0].WatchSeconds)
	}
}

func TestFlushProgress_InvalidRef(t *testing.T) {
	env := newTestEnv(t, "user-a")

	// Coordinate exists but the lesson id does not match it.
	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/progress/flush",
		`{"lesson_id":"l-10","section":0,"lesson":0,"position_seconds":5,"delta_watch_seconds":5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestFlushProgress_UnknownCourse(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/missing/progress/flush",
		`{"lesson_id":"l-00","section":0,"lesson":0,"position_seconds":5,"delta_watch_seconds":5}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFlushProgress_ValidationFailure(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/progress/flush",
		`{"section":0,"lesson":0,"delta_watch_seconds":-5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMarkComplete_Idempotent(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/complete",
		`{"section":0,"lesson":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var first store.ProgressRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.Completed || first.CompletedAt == nil {
		t.Fatalf("expected completed record, got %+v", first)
	}

	rec = doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/complete",
		`{"section":0,"lesson":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat complete: expected 200, got %d", rec.Code)
	}
	var second store.ProgressRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatal("repeat completion must keep the original timestamp")
	}
}

func TestMarkComplete_InvalidRef(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/complete",
		`{"section":1,"lesson":0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCourseOutline_BadgesAndResume(t *testing.T) {
	env := newTestEnv(t, "user-a")

	doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-00/complete", `{"section":0,"lesson":0}`)
	doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/lessons/l-01/complete", `{"section":0,"lesson":1}`)
	doJSON(t, env.router, http.MethodPost, "/v1/courses/course-1/progress/flush",
		`{"lesson_id":"l-10","section":1,"lesson":0,"position_seconds":90,"delta_watch_seconds":30,"client_ts_ms":5000}`)

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/outline", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp outlineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OverallPercentage != 50 {
		t.Fatalf("expected 50%%, got %d", resp.OverallPercentage)
	}
	if !resp.Sections[0].Lessons[0].Completed || !resp.Sections[0].Lessons[1].Completed {
		t.Fatal("expected first section fully badged")
	}
	if resp.Sections[1].Lessons[0].Completed {
		t.Fatal("l-10 must not be badged completed")
	}
	if resp.Resume == nil || resp.Resume.LessonID != "l-10" || resp.Resume.PositionSeconds != 90 {
		t.Fatalf("expected resume at l-10@90s, got %+v", resp.Resume)
	}
}

func TestCourseProgress_EmptyForFreshLearner(t *testing.T) {
	env := newTestEnv(t, "user-new")

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Records []store.ProgressRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Records == nil || len(resp.Records) != 0 {
		t.Fatalf("expected empty non-nil records, got %+v", resp.Records)
	}
}

func TestNavigation_AcrossSections(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/navigation?section=0&lesson=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp navigationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Next == nil || *resp.Next != (outline.Coordinate{Section: 1, Lesson: 0}) {
		t.Fatalf("expected next (1,0), got %+v", resp.Next)
	}
	if resp.NextLessonID != "l-10" {
		t.Fatalf("expected next lesson l-10, got %q", resp.NextLessonID)
	}
	if resp.Prev == nil || *resp.Prev != (outline.Coordinate{Section: 0, Lesson: 0}) {
		t.Fatalf("expected prev (0,0), got %+v", resp.Prev)
	}
}

func TestNavigation_AtEnd(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/navigation?section=1&lesson=1", "")
	var resp navigationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.AtEnd || resp.Next != nil {
		t.Fatalf("expected at_end with no next, got %+v", resp)
	}
}

func TestNavigation_BadCoordinate(t *testing.T) {
	env := newTestEnv(t, "user-a")

	rec := doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/navigation?section=abc&lesson=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/v1/courses/course-1/navigation?section=9&lesson=0", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for out-of-bounds, got %d", rec.Code)
	}
}
