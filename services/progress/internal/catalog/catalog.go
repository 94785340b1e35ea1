// Package catalog fetches course outline snapshots from the course catalog
// service. The progress service never authors outlines; it only reads them.
package catalog

import (
	"context"
	"errors"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

var ErrCourseNotFound = errors.New("course not found")

// Provider hands out outline snapshots by course id.
type Provider interface {
	Outline(ctx context.Context, courseID string) (outline.Outline, error)
}

// Static serves outlines from a fixed map. Used in tests and local runs
// without a catalog service.
type Static struct {
	Courses map[string]outline.Outline
}

func NewStatic(outlines ...outline.Outline) *Static {
	m := make(map[string]outline.Outline, len(outlines))
	for _, o := range outlines {
		m[o.CourseID] = o
	}
	return &Static{Courses: m}
}

func (s *Static) Outline(_ context.Context, courseID string) (outline.Outline, error) {
	o, ok := s.Courses[courseID]
	if !ok {
		return outline.Outline{}, ErrCourseNotFound
	}
	return o, nil
}
