package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/quiz"
	"github.com/trezcool/cheti/core/user"
	emailsvc "github.com/trezcool/cheti/services/email"
	inmemdb "github.com/trezcool/cheti/storage/database/inmem"
	testutil "github.com/trezcool/cheti/tests"
)

type cliFixture struct {
	cli        *commandLine
	usrRepo    user.Repository
	courseRepo course.Repository
	certRepo   certificate.Repository
	quizRepo   quiz.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *cliFixture {
	t.Helper()

	logger = log.New(io.Discard, "", 0)

	conf := testutil.NewConfig()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	quizRepo := inmemdb.NewQuizRepository(db)
	certRepo := inmemdb.NewCertificateRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	cli := &commandLine{
		usrRepo:  usrRepo,
		certSvc:  certificate.NewService(certRepo, courseRepo, mailSvc, testutil.NewLogger(), conf),
		migrator: certificate.NewMigrator(certRepo, usrRepo, courseRepo, quizRepo, testutil.NewLogger(), conf),
	}
	return &cliFixture{
		cli:        cli,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		certRepo:   certRepo,
		quizRepo:   quizRepo,
		mailSvc:    mailSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	fix := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "certificate", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := fix.cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	fix := setup(t)

	usr := testutil.CreateUser(t, fix.usrRepo, "User", "awe", "awe@test.cd", "mdr", true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := fix.cli.run(args)
			if err == nil {
				refreshedUsr, err := fix.usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_checkExpiry(t *testing.T) {
	fix := setup(t)

	usr := testutil.CreateUser(t, fix.usrRepo, "Jane Doe", "jane", "jane@test.cd", "", true)
	crs := testutil.CreateCourse(t, fix.courseRepo, "Forklift Safety")
	testutil.Enroll(t, fix.courseRepo, crs.ID, usr.ID)

	today := certificate.DateOf(time.Now().UTC())
	cert := testutil.CreateCertificate(
		t, fix.certRepo, &usr, &crs,
		today.AddDays(-358), today.AddDays(7),
		certificate.StatusActive,
	)

	if err := fix.cli.run([]string{"admin", "checkexpiry"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	// holder + admin mail for the 7-day reminder
	if got := len(fix.mailSvc.SentMessages); got != 2 {
		t.Errorf("sent %d emails, want 2", got)
	}
	refreshed, err := fix.certRepo.GetCertificateByID(context.Background(), cert.ID)
	if err != nil {
		t.Fatalf("GetCertificateByID() failed: %v", err)
	}
	if !refreshed.HasNotification(certificate.MilestoneSevenDay.Tag()) {
		t.Error("7-day reminder was not recorded")
	}
	if refreshed.Status != certificate.StatusExpiringSoon {
		t.Errorf("status = %s, want %s", refreshed.Status, certificate.StatusExpiringSoon)
	}
}

func Test_commandLine_importCerts(t *testing.T) {
	fix := setup(t)

	usr := testutil.CreateUser(t, fix.usrRepo, "Jane Doe", "jane", "jane@test.cd", "", true)
	crs := testutil.CreateCourse(t, fix.courseRepo, "Forklift Safety")
	testutil.CreateQuizScore(t, fix.quizRepo, quiz.Score{
		Score:          9,
		TotalQuestions: 10,
		UserID:         usr.ID,
		CourseID:       crs.ID,
	}, time.Now().UTC().AddDate(0, -2, 0))

	if err := fix.cli.run([]string{"admin", "importcerts"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	certs, err := fix.certRepo.QueryAllCertificates(context.Background())
	if err != nil {
		t.Fatalf("QueryAllCertificates() failed: %v", err)
	}
	if len(certs) != 1 {
		t.Fatalf("got %d certificates, want 1", len(certs))
	}

	// a second run changes nothing
	if err := fix.cli.run([]string{"admin", "importcerts"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	certs, err = fix.certRepo.QueryAllCertificates(context.Background())
	if err != nil {
		t.Fatalf("QueryAllCertificates() failed: %v", err)
	}
	if len(certs) != 1 {
		t.Fatalf("got %d certificates after rerun, want 1", len(certs))
	}
}

func Test_commandLine_fixDates(t *testing.T) {
	fix := setup(t)

	usr := testutil.CreateUser(t, fix.usrRepo, "Jane Doe", "jane", "jane@test.cd", "", true)
	crs := testutil.CreateCourse(t, fix.courseRepo, "Forklift Safety")
	taken := time.Date(2020, 11, 20, 9, 0, 0, 0, time.UTC)
	score := testutil.CreateQuizScore(t, fix.quizRepo, quiz.Score{
		Score:          9,
		TotalQuestions: 10,
		UserID:         usr.ID,
		CourseID:       crs.ID,
	}, taken)

	cert, err := fix.certRepo.CreateCertificate(context.Background(), certificate.Certificate{
		Holder:      &usr,
		Credential:  &crs,
		QuizScoreID: score.ID,
		IssuedDate:  certificate.NewDate(2021, 3, 1),
		ExpiryDate:  certificate.NewDate(2022, 3, 1),
		Status:      certificate.StatusActive,
	})
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}

	if err := fix.cli.run([]string{"admin", "fixdates"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	refreshed, err2 := fix.certRepo.GetCertificateByID(context.Background(), cert.ID)
	if err2 != nil {
		t.Fatalf("GetCertificateByID() failed: %v", err2)
	}
	if want := certificate.DateOf(taken); !refreshed.IssuedDate.Equal(want) {
		t.Errorf("issued date = %s, want %s", refreshed.IssuedDate, want)
	}
	if want := certificate.DateOf(taken).AddYears(1); !refreshed.ExpiryDate.Equal(want) {
		t.Errorf("expiry date = %s, want %s", refreshed.ExpiryDate, want)
	}
}
