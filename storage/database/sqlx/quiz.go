package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cheti/core/quiz"
)

type quizScoreRow struct {
	ID             string      `db:"id"`
	Score          int         `db:"score"`
	TotalQuestions int         `db:"total_questions"`
	IsPassing      bool        `db:"is_passing"`
	UserID         null.String `db:"user_id"`
	CourseID       null.String `db:"course_id"`
	Username       null.String `db:"username"`
	Email          null.String `db:"email"`
	CourseTitle    null.String `db:"course_title"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r quizScoreRow) toScore() quiz.Score {
	return quiz.Score{
		ID:             r.ID,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		IsPassing:      r.IsPassing,
		UserID:         r.UserID.String,
		CourseID:       r.CourseID.String,
		Username:       r.Username.String,
		Email:          r.Email.String,
		CourseTitle:    r.CourseTitle.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) quiz.Repository {
	return &quizRepository{db: db}
}

const selectQuizScore = `
SELECT id, score, total_questions, is_passing, user_id, course_id, username, email, course_title, created_at, updated_at
FROM quiz_score`

func (repo *quizRepository) CreateScore(ctx context.Context, score quiz.Score) (quiz.Score, error) {
	q := `
INSERT INTO quiz_score (id, score, total_questions, is_passing, user_id, course_id, username, email, course_title)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, '')::uuid, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
RETURNING created_at, updated_at`
	err := repo.db.QueryRowxContext(
		ctx, q,
		score.ID, score.Score, score.TotalQuestions, score.IsPassing,
		score.UserID, score.CourseID, score.Username, score.Email, score.CourseTitle,
	).Scan(&score.CreatedAt, &score.UpdatedAt)
	if err != nil {
		return quiz.Score{}, errors.Wrap(err, "inserting quiz score")
	}
	return score, nil
}

func (repo *quizRepository) QueryAllScores(ctx context.Context) ([]quiz.Score, error) {
	var rows []quizScoreRow
	if err := repo.db.SelectContext(ctx, &rows, selectQuizScore); err != nil {
		return nil, errors.Wrap(err, "querying quiz scores")
	}
	scores := make([]quiz.Score, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.toScore())
	}
	return scores, nil
}

func (repo *quizRepository) GetScoreByID(ctx context.Context, id string) (quiz.Score, error) {
	var row quizScoreRow
	if err := repo.db.GetContext(ctx, &row, selectQuizScore+` WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Score{}, quiz.ErrNotFound
		}
		return quiz.Score{}, errors.Wrap(err, "querying quiz score")
	}
	return row.toScore(), nil
}

func (repo *quizRepository) UpdateScore(ctx context.Context, id string, patch quiz.Patch) error {
	q := `
UPDATE quiz_score
SET user_id    = COALESCE(NULLIF($2, '')::uuid, user_id),
    course_id  = COALESCE(NULLIF($3, '')::uuid, course_id),
    is_passing = COALESCE($4, is_passing),
    updated_at = now()
WHERE id = $1`
	isPassing := sql.NullBool{}
	if patch.IsPassing != nil {
		isPassing = sql.NullBool{Bool: *patch.IsPassing, Valid: true}
	}
	res, err := repo.db.ExecContext(ctx, q, id, patch.UserID, patch.CourseID, isPassing)
	if err != nil {
		return errors.Wrap(err, "updating quiz score")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrNotFound
	}
	return nil
}
