// Package inmemdb provides map-backed repositories for development and
// tests. All tables are guarded by per-table RWMutexes.
package inmemdb

import (
	"sync"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/quiz"
	"github.com/trezcool/cheti/core/user"
)

type (
	DB struct {
		user        *userTable
		course      *courseTable
		quiz        *quizTable
		certificate *certificateTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
		// enrollments maps courseID -> set of userIDs with access
		enrollments map[string]map[string]bool
	}

	quizTable struct {
		sync.RWMutex
		table map[string]*quiz.Score
	}

	certificateTable struct {
		sync.RWMutex
		table map[string]*certificate.Certificate
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			table:       make(map[string]*course.Course),
			enrollments: make(map[string]map[string]bool),
		},
		quiz:        &quizTable{table: make(map[string]*quiz.Score)},
		certificate: &certificateTable{table: make(map[string]*certificate.Certificate)},
	}
	return db, nil
}
