package course

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("course not found")

type Course struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// DisplayTitle is what holder-facing emails call the course.
func (c *Course) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "your course"
}

type Repository interface {
	CreateCourse(ctx context.Context, crs Course) (Course, error)
	QueryAllCourses(ctx context.Context) ([]Course, error)
	GetCourseByID(ctx context.Context, id string) (Course, error)
	GetCourseByTitle(ctx context.Context, title string) (Course, error)

	// ConnectUser grants a user access to the course materials.
	// Granting an existing enrollment is a no-op.
	ConnectUser(ctx context.Context, courseID, userID string) error
	// DisconnectUser revokes a user's access grant. Revoking an absent
	// grant is a no-op; the operation is safe to repeat.
	DisconnectUser(ctx context.Context, courseID, userID string) error
	// IsConnected reports whether the user currently holds an access grant.
	IsConnected(ctx context.Context, courseID, userID string) (bool, error)
}
