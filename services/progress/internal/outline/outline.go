// Package outline models the read-only course outline snapshot handed out by
// the course catalog, and the pure navigation computations over it.
package outline

import "errors"

// ErrInvalidLessonRef indicates a lesson reference that does not resolve
// against the outline snapshot it is checked under. Never retried.
var ErrInvalidLessonRef = errors.New("lesson reference does not resolve against the course outline")

type ContentType string

const (
	ContentVideo ContentType = "video"
	ContentText  ContentType = "text"
)

// Lesson is a single unit of course content. ResourceCount is the number of
// opaque attachments held by the media service; their content never passes
// through here.
type Lesson struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	ContentType     ContentType `json:"content_type"`
	DurationSeconds int         `json:"duration_seconds,omitempty"`
	ResourceCount   int         `json:"resource_count,omitempty"`
}

// Section is an ordered group of lessons. A section may be empty.
type Section struct {
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

// Outline is an immutable-per-session snapshot of a course's structure.
// Section and lesson order is significant and stable for the lifetime of a
// playback session.
type Outline struct {
	CourseID string    `json:"course_id"`
	Sections []Section `json:"sections"`
}

// Coordinate addresses a lesson by position within an outline snapshot.
type Coordinate struct {
	Section int `json:"section"`
	Lesson  int `json:"lesson"`
}

// Ref identifies a lesson for ledger and annotation operations. The lesson id
// is carried alongside the coordinate so stale coordinates are caught when the
// two disagree.
type Ref struct {
	CourseID string     `json:"course_id"`
	LessonID string     `json:"lesson_id"`
	Coord    Coordinate `json:"coord"`
}

// TotalLessons counts lessons across all sections.
func (o Outline) TotalLessons() int {
	n := 0
	for _, s := range o.Sections {
		n += len(s.Lessons)
	}
	return n
}

// Contains reports whether c is a valid coordinate in this snapshot.
func (o Outline) Contains(c Coordinate) bool {
	if c.Section < 0 || c.Section >= len(o.Sections) {
		return false
	}
	return c.Lesson >= 0 && c.Lesson < len(o.Sections[c.Section].Lessons)
}

// LessonAt returns the lesson at c, if c is in bounds.
func (o Outline) LessonAt(c Coordinate) (Lesson, bool) {
	if !o.Contains(c) {
		return Lesson{}, false
	}
	return o.Sections[c.Section].Lessons[c.Lesson], true
}

// Resolve checks ref against the snapshot and returns the referenced lesson.
// A non-empty LessonID must match the lesson found at the coordinate.
func (o Outline) Resolve(ref Ref) (Lesson, error) {
	if ref.CourseID != "" && ref.CourseID != o.CourseID {
		return Lesson{}, ErrInvalidLessonRef
	}
	l, ok := o.LessonAt(ref.Coord)
	if !ok {
		return Lesson{}, ErrInvalidLessonRef
	}
	if ref.LessonID != "" && ref.LessonID != l.ID {
		return Lesson{}, ErrInvalidLessonRef
	}
	return l, nil
}
