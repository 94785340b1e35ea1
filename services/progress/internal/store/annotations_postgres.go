package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAnnotationStore persists notes and bookmarks keyed by
// (user_id, lesson_id, annotation_id), matching the player's access pattern.
type PostgresAnnotationStore struct {
	db *pgxpool.Pool
}

func NewPostgresAnnotationStore(db *pgxpool.Pool) *PostgresAnnotationStore {
	return &PostgresAnnotationStore{db: db}
}

func (s *PostgresAnnotationStore) AddNote(ctx context.Context, n Note) (Note, error) {
	content, err := CleanNoteContent(n.Content)
	if err != nil {
		return Note{}, err
	}

	n.ID = uuid.NewString()
	n.Content = content
	n.CreatedAt = time.Now().UTC()
	n.SyncStatus = SyncSynced

	q := `INSERT INTO lesson_notes
	        (id, user_id, course_id, lesson_id, section_idx, lesson_idx, ts_seconds, content, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.Exec(ctx, q,
		n.ID, n.UserID, n.Ref.CourseID, n.Ref.LessonID,
		n.Ref.Coord.Section, n.Ref.Coord.Lesson, n.TimestampSeconds, n.Content, n.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("add note: %w", err)
	}
	return n, nil
}

func (s *PostgresAnnotationStore) ListNotes(ctx context.Context, userID, courseID, lessonID string) ([]Note, error) {
	q := `SELECT id, section_idx, lesson_idx, ts_seconds, content, created_at
	      FROM lesson_notes
	      WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3
	      ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, userID, courseID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		n := Note{UserID: userID, SyncStatus: SyncSynced}
		n.Ref.CourseID = courseID
		n.Ref.LessonID = lessonID
		if err := rows.Scan(&n.ID, &n.Ref.Coord.Section, &n.Ref.Coord.Lesson,
			&n.TimestampSeconds, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresAnnotationStore) DeleteNote(ctx context.Context, userID, noteID string) error {
	// Owner-scoped and idempotent: zero rows affected is still success, and
	// the caller learns nothing about other users' notes.
	_, err := s.db.Exec(ctx, `DELETE FROM lesson_notes WHERE id = $1 AND user_id = $2`, noteID, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *PostgresAnnotationStore) AddBookmark(ctx context.Context, b Bookmark) (Bookmark, error) {
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()
	b.SyncStatus = SyncSynced

	q := `INSERT INTO lesson_bookmarks
	        (id, user_id, course_id, lesson_id, section_idx, lesson_idx, ts_seconds, title, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(ctx, q,
		b.ID, b.UserID, b.Ref.CourseID, b.Ref.LessonID,
		b.Ref.Coord.Section, b.Ref.Coord.Lesson, b.TimestampSeconds, b.Title, b.CreatedAt)
	if err != nil {
		return Bookmark{}, fmt.Errorf("add bookmark: %w", err)
	}
	return b, nil
}

func (s *PostgresAnnotationStore) ListBookmarks(ctx context.Context, userID, courseID string) ([]Bookmark, error) {
	q := `SELECT id, lesson_id, section_idx, lesson_idx, ts_seconds, title, created_at
	      FROM lesson_bookmarks
	      WHERE user_id = $1 AND course_id = $2
	      ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		b := Bookmark{UserID: userID, SyncStatus: SyncSynced}
		b.Ref.CourseID = courseID
		if err := rows.Scan(&b.ID, &b.Ref.LessonID, &b.Ref.Coord.Section, &b.Ref.Coord.Lesson,
			&b.TimestampSeconds, &b.Title, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("list bookmarks: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresAnnotationStore) DeleteBookmark(ctx context.Context, userID, bookmarkID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM lesson_bookmarks WHERE id = $1 AND user_id = $2`, bookmarkID, userID)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}
