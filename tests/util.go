package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/quiz"
	"github.com/trezcool/cheti/core/user"
)

// NewConfig returns a fixed configuration for tests; no env lookups.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:          true,
		TestMode:       true,
		AppName:        "Cheti",
		Env:            "TEST",
		FromEmail:      "noreply@test.local",
		AdminEmail:     "pas@ryzolve.com",
		RenewalBaseURL: "https://training.ryzolve.com",
		PassThreshold:  70,
		CheckHour:      15,
		CheckMinute:    15,
	}
}

type nopLogger struct{}

var _ core.Logger = (*nopLogger)(nil)

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func NewLogger() core.Logger { return nopLogger{} }

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	isActive bool,
) user.User {
	t.Helper()

	usr := user.User{
		Name:     name,
		Username: uname,
		Email:    email,
		IsActive: isActive,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, title string) course.Course {
	t.Helper()

	crs, err := repo.CreateCourse(context.Background(), course.Course{Title: title})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateQuizScore(t *testing.T, repo quiz.Repository, score quiz.Score, at ...time.Time) quiz.Score {
	t.Helper()

	if len(at) > 0 {
		score.CreatedAt = at[0].UTC()
		score.UpdatedAt = at[0].UTC()
	}
	score, err := repo.CreateScore(context.Background(), score)
	if err != nil {
		t.Fatalf("CreateQuizScore() failed: %v", err)
	}
	return score
}

func CreateCertificate(
	t *testing.T,
	repo certificate.Repository,
	holder *user.User,
	credential *course.Course,
	issued, expiry certificate.Date,
	status certificate.Status,
	notified ...string,
) certificate.Certificate {
	t.Helper()

	cert, err := repo.CreateCertificate(context.Background(), certificate.Certificate{
		Holder:            holder,
		Credential:        credential,
		IssuedDate:        issued,
		ExpiryDate:        expiry,
		Status:            status,
		NotificationsSent: notified,
	})
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}
	return cert
}

// Enroll grants course access and fails the test on error.
func Enroll(t *testing.T, repo course.Repository, courseID, userID string) {
	t.Helper()

	if err := repo.ConnectUser(context.Background(), courseID, userID); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}
