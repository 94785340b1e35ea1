package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

// Client fetches outlines over HTTP from the catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Outline(ctx context.Context, courseID string) (outline.Outline, error) {
	u := fmt.Sprintf("%s/v1/courses/%s/outline", c.baseURL, url.PathEscape(courseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return outline.Outline{}, fmt.Errorf("catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return outline.Outline{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return outline.Outline{}, ErrCourseNotFound
	default:
		return outline.Outline{}, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var o outline.Outline
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return outline.Outline{}, fmt.Errorf("decode outline: %w", err)
	}
	if o.CourseID == "" {
		o.CourseID = courseID
	}
	return o, nil
}
