package quiz

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("quiz score not found")

// defaultTotalQuestions covers legacy records saved without a question count.
const defaultTotalQuestions = 10

type Score struct {
	ID             string    `json:"id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	IsPassing      bool      `json:"is_passing"`

	// Relations; empty on legacy records, which instead carry the
	// denormalized username/email/courseTitle strings below.
	UserID   string `json:"user_id,omitempty"`
	CourseID string `json:"course_id,omitempty"`

	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	CourseTitle string `json:"course_title,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Percentage computes the score as a percentage of the question count.
func (s *Score) Percentage() float64 {
	total := s.TotalQuestions
	if total == 0 {
		total = defaultTotalQuestions
	}
	return float64(s.Score) / float64(total) * 100
}

// Patch carries the fields a relation-repair pass may set; zero values are
// left untouched.
type Patch struct {
	UserID    string
	CourseID  string
	IsPassing *bool
}

type Repository interface {
	CreateScore(ctx context.Context, score Score) (Score, error)
	QueryAllScores(ctx context.Context) ([]Score, error)
	GetScoreByID(ctx context.Context, id string) (Score, error)
	UpdateScore(ctx context.Context, id string, patch Patch) error
}
