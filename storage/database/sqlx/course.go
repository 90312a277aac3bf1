package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core/course"
)

type courseRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

const selectCourse = `
SELECT id, title, created_at, updated_at
FROM course`

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	q := `
INSERT INTO course (id, title)
VALUES ($1, $2)
RETURNING created_at, updated_at`
	if err := repo.db.QueryRowxContext(ctx, q, crs.ID, crs.Title).Scan(&crs.CreatedAt, &crs.UpdatedAt); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, selectCourse); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) getOne(ctx context.Context, q string, args ...interface{}) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "querying course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	return repo.getOne(ctx, selectCourse+` WHERE id = $1`, id)
}

func (repo *courseRepository) GetCourseByTitle(ctx context.Context, title string) (course.Course, error) {
	return repo.getOne(ctx, selectCourse+` WHERE title = $1`, title)
}

func (repo *courseRepository) ConnectUser(ctx context.Context, courseID, userID string) error {
	q := `
INSERT INTO course_user (course_id, user_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, courseID, userID); err != nil {
		return errors.Wrap(err, "connecting user to course")
	}
	return nil
}

func (repo *courseRepository) DisconnectUser(ctx context.Context, courseID, userID string) error {
	// deleting an absent grant affects no rows and is not an error
	q := `DELETE FROM course_user WHERE course_id = $1 AND user_id = $2`
	if _, err := repo.db.ExecContext(ctx, q, courseID, userID); err != nil {
		return errors.Wrap(err, "disconnecting user from course")
	}
	return nil
}

func (repo *courseRepository) IsConnected(ctx context.Context, courseID, userID string) (bool, error) {
	var connected bool
	q := `SELECT EXISTS (SELECT 1 FROM course_user WHERE course_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &connected, q, courseID, userID); err != nil {
		return false, errors.Wrap(err, "checking course enrollment")
	}
	return connected, nil
}
