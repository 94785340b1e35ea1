package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryAnnotationStore is the development and test implementation of the
// annotation contract.
type InMemoryAnnotationStore struct {
	mu        sync.RWMutex
	notes     map[string]Note
	bookmarks map[string]Bookmark
}

func NewInMemoryAnnotationStore() *InMemoryAnnotationStore {
	return &InMemoryAnnotationStore{
		notes:     make(map[string]Note),
		bookmarks: make(map[string]Bookmark),
	}
}

func (s *InMemoryAnnotationStore) AddNote(_ context.Context, n Note) (Note, error) {
	content, err := CleanNoteContent(n.Content)
	if err != nil {
		return Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.NewString()
	n.Content = content
	n.CreatedAt = time.Now().UTC()
	n.SyncStatus = SyncSynced
	s.notes[n.ID] = n
	return n, nil
}

func (s *InMemoryAnnotationStore) ListNotes(_ context.Context, userID, courseID, lessonID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Note
	for _, n := range s.notes {
		if n.UserID == userID && n.Ref.CourseID == courseID && n.Ref.LessonID == lessonID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryAnnotationStore) DeleteNote(_ context.Context, userID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent: missing or foreign notes delete silently.
	if n, ok := s.notes[noteID]; ok && n.UserID == userID {
		delete(s.notes, noteID)
	}
	return nil
}

func (s *InMemoryAnnotationStore) AddBookmark(_ context.Context, b Bookmark) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()
	b.SyncStatus = SyncSynced
	s.bookmarks[b.ID] = b
	return b, nil
}

func (s *InMemoryAnnotationStore) ListBookmarks(_ context.Context, userID, courseID string) ([]Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Bookmark
	for _, b := range s.bookmarks {
		if b.UserID == userID && b.Ref.CourseID == courseID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryAnnotationStore) DeleteBookmark(_ context.Context, userID, bookmarkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.bookmarks[bookmarkID]; ok && b.UserID == userID {
		delete(s.bookmarks, bookmarkID)
	}
	return nil
}
