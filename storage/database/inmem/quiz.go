package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/cheti/core/quiz"
)

type quizRepository struct {
	db *quizTable
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db.quiz}
}

func (repo *quizRepository) CreateScore(_ context.Context, score quiz.Score) (quiz.Score, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}
	if score.UpdatedAt.IsZero() {
		score.UpdatedAt = now
	}
	repo.db.table[score.ID] = &score
	return score, nil
}

func (repo *quizRepository) QueryAllScores(_ context.Context) ([]quiz.Score, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	scores := make([]quiz.Score, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		scores = append(scores, *s)
	}
	return scores, nil
}

func (repo *quizRepository) GetScoreByID(_ context.Context, id string) (quiz.Score, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if score, ok := repo.db.table[id]; ok {
		return *score, nil
	}
	return quiz.Score{}, quiz.ErrNotFound
}

func (repo *quizRepository) UpdateScore(_ context.Context, id string, patch quiz.Patch) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	score, ok := repo.db.table[id]
	if !ok {
		return quiz.ErrNotFound
	}
	if patch.UserID != "" {
		score.UserID = patch.UserID
	}
	if patch.CourseID != "" {
		score.CourseID = patch.CourseID
	}
	if patch.IsPassing != nil {
		score.IsPassing = *patch.IsPassing
	}
	score.UpdatedAt = time.Now().UTC()
	return nil
}
