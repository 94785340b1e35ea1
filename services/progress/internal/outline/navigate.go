package outline

import "math"

// Next returns the coordinate of the lesson after c: the next lesson in the
// same section when one exists, otherwise the first lesson of the next
// non-empty section. Empty sections are skipped, never a landing coordinate.
// ok is false when c is the last lesson of the course.
func Next(o Outline, c Coordinate) (Coordinate, bool) {
	if !o.Contains(c) {
		return Coordinate{}, false
	}
	if c.Lesson+1 < len(o.Sections[c.Section].Lessons) {
		return Coordinate{Section: c.Section, Lesson: c.Lesson + 1}, true
	}
	for s := c.Section + 1; s < len(o.Sections); s++ {
		if len(o.Sections[s].Lessons) > 0 {
			return Coordinate{Section: s, Lesson: 0}, true
		}
	}
	return Coordinate{}, false
}

// Prev is the inverse of Next at interior points. ok is false only at the
// very first lesson of the course.
func Prev(o Outline, c Coordinate) (Coordinate, bool) {
	if !o.Contains(c) {
		return Coordinate{}, false
	}
	if c.Lesson > 0 {
		return Coordinate{Section: c.Section, Lesson: c.Lesson - 1}, true
	}
	for s := c.Section - 1; s >= 0; s-- {
		if n := len(o.Sections[s].Lessons); n > 0 {
			return Coordinate{Section: s, Lesson: n - 1}, true
		}
	}
	return Coordinate{}, false
}

// First returns the first valid coordinate of the outline, skipping empty
// leading sections. ok is false for an outline with no lessons at all.
func First(o Outline) (Coordinate, bool) {
	for s := range o.Sections {
		if len(o.Sections[s].Lessons) > 0 {
			return Coordinate{Section: s, Lesson: 0}, true
		}
	}
	return Coordinate{}, false
}

// IsLessonComplete reports whether c appears in the completed set.
func IsLessonComplete(completed map[Coordinate]bool, c Coordinate) bool {
	return completed[c]
}

// OverallPercentage computes rounded completion percentage over the outline.
// An empty outline yields 0, not an error.
func OverallPercentage(o Outline, completed map[Coordinate]bool) int {
	total := o.TotalLessons()
	if total == 0 {
		return 0
	}
	done := 0
	for c, ok := range completed {
		if ok && o.Contains(c) {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
