package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OverlayAnnotationStore layers a local pending tier over an authoritative
// remote store. When a remote write fails the annotation is kept locally with
// SyncStatus pendingLocal and handed back to the caller as if the write had
// succeeded, so the player stays usable while persistence is down. Pending
// entries are replayed on Reconcile.
//
// Validation errors (ErrEmptyContent) are not degraded; they surface to the
// caller unchanged.
type OverlayAnnotationStore struct {
	remote AnnotationStore
	log    *zap.Logger

	mu               sync.Mutex
	pendingNotes     map[string]Note
	pendingBookmarks map[string]Bookmark
}

func NewOverlayAnnotationStore(remote AnnotationStore, log *zap.Logger) *OverlayAnnotationStore {
	return &OverlayAnnotationStore{
		remote:           remote,
		log:              log,
		pendingNotes:     make(map[string]Note),
		pendingBookmarks: make(map[string]Bookmark),
	}
}

func (s *OverlayAnnotationStore) AddNote(ctx context.Context, n Note) (Note, error) {
	content, err := CleanNoteContent(n.Content)
	if err != nil {
		return Note{}, err
	}
	n.Content = content

	created, err := s.remote.AddNote(ctx, n)
	if err == nil {
		return created, nil
	}
	s.log.Warn("annotation store unavailable, keeping note locally", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	n.SyncStatus = SyncPendingLocal
	s.pendingNotes[n.ID] = n
	return n, nil
}

func (s *OverlayAnnotationStore) ListNotes(ctx context.Context, userID, courseID, lessonID string) ([]Note, error) {
	remote, err := s.remote.ListNotes(ctx, userID, courseID, lessonID)
	if err != nil {
		s.log.Warn("annotation store unavailable, serving pending notes only", zap.Error(err))
		remote = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.pendingNotes {
		if n.UserID == userID && n.Ref.CourseID == courseID && n.Ref.LessonID == lessonID {
			remote = append(remote, n)
		}
	}
	return remote, nil
}

func (s *OverlayAnnotationStore) DeleteNote(ctx context.Context, userID, noteID string) error {
	s.mu.Lock()
	if n, ok := s.pendingNotes[noteID]; ok {
		if n.UserID == userID {
			delete(s.pendingNotes, noteID)
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.remote.DeleteNote(ctx, userID, noteID)
}

func (s *OverlayAnnotationStore) AddBookmark(ctx context.Context, b Bookmark) (Bookmark, error) {
	created, err := s.remote.AddBookmark(ctx, b)
	if err == nil {
		return created, nil
	}
	s.log.Warn("annotation store unavailable, keeping bookmark locally", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()
	b.SyncStatus = SyncPendingLocal
	s.pendingBookmarks[b.ID] = b
	return b, nil
}

func (s *OverlayAnnotationStore) ListBookmarks(ctx context.Context, userID, courseID string) ([]Bookmark, error) {
	remote, err := s.remote.ListBookmarks(ctx, userID, courseID)
	if err != nil {
		s.log.Warn("annotation store unavailable, serving pending bookmarks only", zap.Error(err))
		remote = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.pendingBookmarks {
		if b.UserID == userID && b.Ref.CourseID == courseID {
			remote = append(remote, b)
		}
	}
	return remote, nil
}

func (s *OverlayAnnotationStore) DeleteBookmark(ctx context.Context, userID, bookmarkID string) error {
	s.mu.Lock()
	if b, ok := s.pendingBookmarks[bookmarkID]; ok {
		if b.UserID == userID {
			delete(s.pendingBookmarks, bookmarkID)
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.remote.DeleteBookmark(ctx, userID, bookmarkID)
}

// PendingCount reports how many annotations are waiting for reconciliation.
func (s *OverlayAnnotationStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingNotes) + len(s.pendingBookmarks)
}

// Reconcile replays pending annotations against the remote store. Entries
// that sync successfully leave the local tier; the rest stay pending for the
// next pass. Local ids are not preserved across the replay; the remote store
// assigns fresh ones.
func (s *OverlayAnnotationStore) Reconcile(ctx context.Context) {
	s.mu.Lock()
	notes := make([]Note, 0, len(s.pendingNotes))
	for _, n := range s.pendingNotes {
		notes = append(notes, n)
	}
	bookmarks := make([]Bookmark, 0, len(s.pendingBookmarks))
	for _, b := range s.pendingBookmarks {
		bookmarks = append(bookmarks, b)
	}
	s.mu.Unlock()

	for _, n := range notes {
		if _, err := s.remote.AddNote(ctx, n); err != nil {
			s.log.Warn("reconcile note failed", zap.String("note_id", n.ID), zap.Error(err))
			continue
		}
		s.mu.Lock()
		delete(s.pendingNotes, n.ID)
		s.mu.Unlock()
	}
	for _, b := range bookmarks {
		if _, err := s.remote.AddBookmark(ctx, b); err != nil {
			s.log.Warn("reconcile bookmark failed", zap.String("bookmark_id", b.ID), zap.Error(err))
			continue
		}
		s.mu.Lock()
		delete(s.pendingBookmarks, b.ID)
		s.mu.Unlock()
	}
}
