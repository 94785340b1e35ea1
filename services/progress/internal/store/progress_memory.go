package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

type progressKey struct {
	userID   string
	courseID string
	lessonID string
}

// InMemoryProgressStore is the development and test implementation of the
// Progress Ledger. The same monotonic merge rules as the Postgres
// implementation apply, guarded by a mutex instead of SQL.
type InMemoryProgressStore struct {
	mu      sync.RWMutex
	records map[progressKey]ProgressRecord
}

func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{records: make(map[progressKey]ProgressRecord)}
}

func (s *InMemoryProgressStore) ListByCourse(_ context.Context, userID, courseID string) ([]ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProgressRecord
	for k, r := range s.records {
		if k.userID == userID && k.courseID == courseID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionIndex != out[j].SectionIndex {
			return out[i].SectionIndex < out[j].SectionIndex
		}
		return out[i].LessonIndex < out[j].LessonIndex
	})
	return out, nil
}

func (s *InMemoryProgressStore) Get(_ context.Context, userID, courseID, lessonID string) (ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[progressKey{userID, courseID, lessonID}]
	if !ok {
		return ProgressRecord{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemoryProgressStore) Flush(_ context.Context, in FlushInput) (ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := progressKey{in.UserID, in.Ref.CourseID, in.Ref.LessonID}
	delta := in.DeltaWatchSeconds
	if delta < 0 {
		delta = 0
	}
	pos := in.PositionSeconds
	if pos < 0 {
		pos = 0
	}

	r, ok := s.records[key]
	if !ok {
		r = newRecord(in.UserID, in.Ref)
	}
	// Monotonic merge: watch time always accumulates, position only moves
	// forward in client-timestamp order.
	r.WatchSeconds += delta
	if in.ClientTsMs >= r.ClientTsMs {
		r.LastPosition = pos
		r.ClientTsMs = in.ClientTsMs
	}
	r.LastAccessed = now

	s.records[key] = r
	return r, nil
}

func (s *InMemoryProgressStore) MarkComplete(_ context.Context, userID string, ref outline.Ref, at time.Time) (ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{userID, ref.CourseID, ref.LessonID}
	r, ok := s.records[key]
	if !ok {
		r = newRecord(userID, ref)
	}
	if !r.Completed {
		r.Completed = true
		at := at.UTC()
		r.CompletedAt = &at
	}
	if at.After(r.LastAccessed) {
		r.LastAccessed = at.UTC()
	}
	s.records[key] = r
	return r, nil
}

func newRecord(userID string, ref outline.Ref) ProgressRecord {
	return ProgressRecord{
		UserID:       userID,
		CourseID:     ref.CourseID,
		LessonID:     ref.LessonID,
		SectionIndex: ref.Coord.Section,
		LessonIndex:  ref.Coord.Lesson,
	}
}
