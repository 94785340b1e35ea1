package outline

import "testing"

// twoByTwo is the scenario outline from the player acceptance notes:
// 2 sections of 2 lessons each.
func twoByTwo() Outline {
	return Outline{
		CourseID: "course-1",
		Sections: []Section{
			{Title: "Basics", Lessons: []Lesson{
				{ID: "l-00", Title: "Intro", ContentType: ContentVideo, DurationSeconds: 300},
				{ID: "l-01", Title: "Setup", ContentType: ContentVideo, DurationSeconds: 480},
			}},
			{Title: "Advanced", Lessons: []Lesson{
				{ID: "l-10", Title: "Topic", ContentType: ContentVideo, DurationSeconds: 600},
				{ID: "l-11", Title: "Wrap-up", ContentType: ContentText},
			}},
		},
	}
}

func TestNext_WithinSection(t *testing.T) {
	o := twoByTwo()
	c, ok := Next(o, Coordinate{0, 0})
	if !ok {
		t.Fatal("expected a next lesson")
	}
	if c != (Coordinate{Section: 0, Lesson: 1}) {
		t.Fatalf("expected (0,1), got (%d,%d)", c.Section, c.Lesson)
	}
}

func TestNext_CrossesSectionBoundary(t *testing.T) {
	o := twoByTwo()
	c, ok := Next(o, Coordinate{0, 1})
	if !ok {
		t.Fatal("expected a next lesson")
	}
	if c != (Coordinate{Section: 1, Lesson: 0}) {
		t.Fatalf("expected (1,0), got (%d,%d)", c.Section, c.Lesson)
	}
}

func TestNext_EndOfCourse(t *testing.T) {
	o := twoByTwo()
	if _, ok := Next(o, Coordinate{1, 1}); ok {
		t.Fatal("expected no next lesson at the end of the course")
	}
}

func TestNext_SkipsEmptySections(t *testing.T) {
	o := Outline{Sections: []Section{
		{Title: "A", Lessons: []Lesson{{ID: "a0"}}},
		{Title: "Empty"},
		{Title: "B", Lessons: []Lesson{{ID: "b0"}}},
	}}
	c, ok := Next(o, Coordinate{0, 0})
	if !ok {
		t.Fatal("expected a next lesson past the empty section")
	}
	if c != (Coordinate{Section: 2, Lesson: 0}) {
		t.Fatalf("expected (2,0), got (%d,%d)", c.Section, c.Lesson)
	}
}

func TestPrev_SkipsEmptySections(t *testing.T) {
	o := Outline{Sections: []Section{
		{Title: "A", Lessons: []Lesson{{ID: "a0"}, {ID: "a1"}}},
		{Title: "Empty"},
		{Title: "B", Lessons: []Lesson{{ID: "b0"}}},
	}}
	c, ok := Prev(o, Coordinate{2, 0})
	if !ok {
		t.Fatal("expected a previous lesson past the empty section")
	}
	if c != (Coordinate{Section: 0, Lesson: 1}) {
		t.Fatalf("expected (0,1), got (%d,%d)", c.Section, c.Lesson)
	}
}

func TestPrev_AtCourseStart(t *testing.T) {
	o := twoByTwo()
	if _, ok := Prev(o, Coordinate{0, 0}); ok {
		t.Fatal("expected no previous lesson at the start of the course")
	}
}

func TestNextPrev_InverseAtInteriorPoints(t *testing.T) {
	o := twoByTwo()
	for s := range o.Sections {
		for l := range o.Sections[s].Lessons {
			cur := Coordinate{Section: s, Lesson: l}
			next, ok := Next(o, cur)
			if !ok {
				continue
			}
			back, ok := Prev(o, next)
			if !ok {
				t.Fatalf("Prev(%v) should exist", next)
			}
			if back != cur {
				t.Fatalf("Prev(Next(%v)) = %v, want %v", cur, back, cur)
			}
		}
	}
}

func TestFirst_SkipsEmptyLeadingSection(t *testing.T) {
	o := Outline{Sections: []Section{
		{Title: "Empty"},
		{Title: "A", Lessons: []Lesson{{ID: "a0"}}},
	}}
	c, ok := First(o)
	if !ok {
		t.Fatal("expected a first lesson")
	}
	if c != (Coordinate{Section: 1, Lesson: 0}) {
		t.Fatalf("expected (1,0), got (%d,%d)", c.Section, c.Lesson)
	}
}

func TestOverallPercentage_EmptyOutline(t *testing.T) {
	if got := OverallPercentage(Outline{}, nil); got != 0 {
		t.Fatalf("expected 0 for empty outline, got %d", got)
	}
}

func TestOverallPercentage_NoProgress(t *testing.T) {
	if got := OverallPercentage(twoByTwo(), nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestOverallPercentage_Half(t *testing.T) {
	completed := map[Coordinate]bool{
		{Section: 0, Lesson: 0}: true,
		{Section: 0, Lesson: 1}: true,
	}
	if got := OverallPercentage(twoByTwo(), completed); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if !IsLessonComplete(completed, Coordinate{0, 1}) {
		t.Fatal("expected (0,1) complete")
	}
	if IsLessonComplete(completed, Coordinate{1, 0}) {
		t.Fatal("expected (1,0) incomplete")
	}
}

func TestOverallPercentage_AllComplete(t *testing.T) {
	o := twoByTwo()
	completed := map[Coordinate]bool{}
	for s := range o.Sections {
		for l := range o.Sections[s].Lessons {
			completed[Coordinate{Section: s, Lesson: l}] = true
		}
	}
	if got := OverallPercentage(o, completed); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestOverallPercentage_IgnoresOutOfBoundsRecords(t *testing.T) {
	completed := map[Coordinate]bool{
		{Section: 0, Lesson: 0}: true,
		{Section: 9, Lesson: 9}: true, // stale record from an older outline
	}
	if got := OverallPercentage(twoByTwo(), completed); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
}

func TestResolve(t *testing.T) {
	o := twoByTwo()

	l, err := o.Resolve(Ref{CourseID: "course-1", LessonID: "l-10", Coord: Coordinate{1, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Title != "Topic" {
		t.Fatalf("expected lesson 'Topic', got %q", l.Title)
	}

	if _, err := o.Resolve(Ref{Coord: Coordinate{5, 0}}); err != ErrInvalidLessonRef {
		t.Fatalf("expected ErrInvalidLessonRef for out-of-bounds coord, got %v", err)
	}
	if _, err := o.Resolve(Ref{LessonID: "l-99", Coord: Coordinate{0, 0}}); err != ErrInvalidLessonRef {
		t.Fatalf("expected ErrInvalidLessonRef for mismatched lesson id, got %v", err)
	}
	if _, err := o.Resolve(Ref{CourseID: "other-course", Coord: Coordinate{0, 0}}); err != ErrInvalidLessonRef {
		t.Fatalf("expected ErrInvalidLessonRef for wrong course, got %v", err)
	}
}
