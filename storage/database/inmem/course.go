package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/cheti/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.table))
	for _, crs := range repo.db.table {
		courses = append(courses, *crs)
	}
	return courses
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = now
	}
	crs.UpdatedAt = now
	repo.db.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) QueryAllCourses(_ context.Context) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *courseRepository) GetCourseByID(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.table[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetCourseByTitle(_ context.Context, title string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, crs := range repo.query() {
		if strings.TrimSpace(crs.Title) == strings.TrimSpace(title) {
			return crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) ConnectUser(_ context.Context, courseID, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[courseID]; !ok {
		return course.ErrNotFound
	}
	if repo.db.enrollments[courseID] == nil {
		repo.db.enrollments[courseID] = make(map[string]bool)
	}
	repo.db.enrollments[courseID][userID] = true
	return nil
}

func (repo *courseRepository) DisconnectUser(_ context.Context, courseID, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	// absent grant is a no-op
	delete(repo.db.enrollments[courseID], userID)
	return nil
}

func (repo *courseRepository) IsConnected(_ context.Context, courseID, userID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.enrollments[courseID][userID], nil
}
