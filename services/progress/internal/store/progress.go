package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

var ErrNotFound = errors.New("progress record not found")

// ProgressRecord is the authoritative per-(user, course, lesson) completion
// and resumption state. The coordinate is denormalized for fast lookup
// against an outline snapshot.
type ProgressRecord struct {
	UserID       string     `json:"user_id"`
	CourseID     string     `json:"course_id"`
	LessonID     string     `json:"lesson_id"`
	SectionIndex int        `json:"section"`
	LessonIndex  int        `json:"lesson"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"` // set once on false->true, never cleared
	LastPosition int        `json:"last_position_seconds"`
	WatchSeconds int        `json:"watch_seconds"` // non-decreasing accumulated playback time
	ClientTsMs   int64      `json:"client_ts_ms"`  // stale-write fence for position updates
	LastAccessed time.Time  `json:"last_accessed"`
}

// Coord returns the record's denormalized coordinate.
func (r ProgressRecord) Coord() outline.Coordinate {
	return outline.Coordinate{Section: r.SectionIndex, Lesson: r.LessonIndex}
}

// FlushInput carries one playback flush from a session into the ledger.
// Delivery is at-least-once; a duplicated flush double-counts at most one
// flush interval of watch time, which is accepted.
type FlushInput struct {
	UserID            string
	Ref               outline.Ref
	PositionSeconds   int
	DeltaWatchSeconds int
	ClientTsMs        int64
}

// ProgressStore is the Progress Ledger contract. Writes merge monotonically:
// completion is a one-way latch, watch seconds only grow, and position is
// last-write-wins fenced by the client timestamp so concurrent flushes from
// multiple devices never regress each other.
type ProgressStore interface {
	// ListByCourse never fails for a valid pair; a learner who has not
	// started simply gets an empty slice.
	ListByCourse(ctx context.Context, userID, courseID string) ([]ProgressRecord, error)
	Get(ctx context.Context, userID, courseID, lessonID string) (ProgressRecord, error)
	// Flush creates the record if absent, otherwise applies the monotonic
	// merge. It never touches Completed or CompletedAt.
	Flush(ctx context.Context, in FlushInput) (ProgressRecord, error)
	// MarkComplete latches Completed. Repeat calls are no-ops returning the
	// existing record; CompletedAt keeps its first value.
	MarkComplete(ctx context.Context, userID string, ref outline.Ref, at time.Time) (ProgressRecord, error)
}

// CompletedSet projects records into the completed-coordinate set consumed by
// the navigation resolver.
func CompletedSet(records []ProgressRecord) map[outline.Coordinate]bool {
	out := make(map[outline.Coordinate]bool, len(records))
	for _, r := range records {
		if r.Completed {
			out[r.Coord()] = true
		}
	}
	return out
}

// ResumeTarget picks the most recently accessed record as the place to drop
// the learner back into the course. ok is false when nothing was accessed yet.
func ResumeTarget(records []ProgressRecord) (ProgressRecord, bool) {
	var best ProgressRecord
	found := false
	for _, r := range records {
		if !found || r.LastAccessed.After(best.LastAccessed) {
			best = r
			found = true
		}
	}
	return best, found
}
