package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

// PostgresProgressStore is the production Postgres-backed Progress Ledger.
// The monotonic merge runs inside the upsert so concurrent flushes from
// multiple devices need no application-level locking.
type PostgresProgressStore struct {
	db *pgxpool.Pool
}

func NewPostgresProgressStore(db *pgxpool.Pool) *PostgresProgressStore {
	return &PostgresProgressStore{db: db}
}

// flushSQL applies the monotonic merge: watch seconds accumulate, position is
// last-write-wins fenced by client_ts_ms, last_accessed only moves forward,
// and completion fields are untouched.
const flushSQL = `
INSERT INTO lesson_progress
  (user_id, course_id, lesson_id, section_idx, lesson_idx,
   completed, completed_at, last_position_seconds, watch_seconds, client_ts_ms, last_accessed)
VALUES ($1, $2, $3, $4, $5, false, NULL, $6, $7, $8, $9)
ON CONFLICT (user_id, course_id, lesson_id)
DO UPDATE SET
  last_position_seconds = CASE WHEN lesson_progress.client_ts_ms <= EXCLUDED.client_ts_ms
                               THEN EXCLUDED.last_position_seconds
                               ELSE lesson_progress.last_position_seconds END,
  client_ts_ms  = GREATEST(lesson_progress.client_ts_ms, EXCLUDED.client_ts_ms),
  watch_seconds = lesson_progress.watch_seconds + EXCLUDED.watch_seconds,
  last_accessed = GREATEST(lesson_progress.last_accessed, EXCLUDED.last_accessed)`

const progressCols = `completed, completed_at, last_position_seconds, watch_seconds, client_ts_ms, last_accessed`

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx, letting the flush
// consumer reuse the same merge inside its batch transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApplyFlush runs the flush upsert on db without reading the merged row back.
func ApplyFlush(ctx context.Context, db Execer, in FlushInput) error {
	_, err := db.Exec(ctx, flushSQL, flushArgs(in)...)
	if err != nil {
		return fmt.Errorf("apply flush: %w", err)
	}
	return nil
}

func flushArgs(in FlushInput) []any {
	delta := in.DeltaWatchSeconds
	if delta < 0 {
		delta = 0
	}
	pos := in.PositionSeconds
	if pos < 0 {
		pos = 0
	}
	return []any{
		in.UserID, in.Ref.CourseID, in.Ref.LessonID,
		in.Ref.Coord.Section, in.Ref.Coord.Lesson,
		pos, delta, in.ClientTsMs, time.Now().UTC(),
	}
}

func (s *PostgresProgressStore) Flush(ctx context.Context, in FlushInput) (ProgressRecord, error) {
	out := newRecord(in.UserID, in.Ref)
	q := flushSQL + "\nRETURNING " + progressCols
	err := s.db.QueryRow(ctx, q, flushArgs(in)...).
		Scan(&out.Completed, &out.CompletedAt, &out.LastPosition, &out.WatchSeconds, &out.ClientTsMs, &out.LastAccessed)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("flush progress: %w", err)
	}
	return out, nil
}

func (s *PostgresProgressStore) MarkComplete(ctx context.Context, userID string, ref outline.Ref, at time.Time) (ProgressRecord, error) {
	// COALESCE keeps the first completion timestamp; repeat calls are no-ops.
	q := `
INSERT INTO lesson_progress
  (user_id, course_id, lesson_id, section_idx, lesson_idx,
   completed, completed_at, last_position_seconds, watch_seconds, client_ts_ms, last_accessed)
VALUES ($1, $2, $3, $4, $5, true, $6, 0, 0, 0, $6)
ON CONFLICT (user_id, course_id, lesson_id)
DO UPDATE SET
  completed     = true,
  completed_at  = COALESCE(lesson_progress.completed_at, EXCLUDED.completed_at),
  last_accessed = GREATEST(lesson_progress.last_accessed, EXCLUDED.last_accessed)
RETURNING ` + progressCols

	out := newRecord(userID, ref)
	err := s.db.QueryRow(ctx, q,
		userID, ref.CourseID, ref.LessonID, ref.Coord.Section, ref.Coord.Lesson, at.UTC(),
	).Scan(&out.Completed, &out.CompletedAt, &out.LastPosition, &out.WatchSeconds, &out.ClientTsMs, &out.LastAccessed)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("mark complete: %w", err)
	}
	return out, nil
}

func (s *PostgresProgressStore) ListByCourse(ctx context.Context, userID, courseID string) ([]ProgressRecord, error) {
	q := `SELECT lesson_id, section_idx, lesson_idx, ` + progressCols + `
	      FROM lesson_progress
	      WHERE user_id = $1 AND course_id = $2
	      ORDER BY section_idx, lesson_idx`

	rows, err := s.db.Query(ctx, q, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		r := ProgressRecord{UserID: userID, CourseID: courseID}
		if err := rows.Scan(&r.LessonID, &r.SectionIndex, &r.LessonIndex,
			&r.Completed, &r.CompletedAt, &r.LastPosition, &r.WatchSeconds, &r.ClientTsMs, &r.LastAccessed); err != nil {
			return nil, fmt.Errorf("list progress: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresProgressStore) Get(ctx context.Context, userID, courseID, lessonID string) (ProgressRecord, error) {
	q := `SELECT section_idx, lesson_idx, ` + progressCols + `
	      FROM lesson_progress
	      WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3`

	r := ProgressRecord{UserID: userID, CourseID: courseID, LessonID: lessonID}
	err := s.db.QueryRow(ctx, q, userID, courseID, lessonID).
		Scan(&r.SectionIndex, &r.LessonIndex,
			&r.Completed, &r.CompletedAt, &r.LastPosition, &r.WatchSeconds, &r.ClientTsMs, &r.LastAccessed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressRecord{}, ErrNotFound
		}
		return ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	return r, nil
}
