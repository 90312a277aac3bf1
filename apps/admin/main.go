package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	emailsvc "github.com/trezcool/cheti/services/email"
	logsvc "github.com/trezcool/cheti/services/logger"
	"github.com/trezcool/cheti/storage/database"
	sqlxrepos "github.com/trezcool/cheti/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	dbx := sqlx.NewDb(db, "postgres")

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, svcLogger)
	}

	usrRepo := sqlxrepos.NewUserRepository(dbx)
	courseRepo := sqlxrepos.NewCourseRepository(dbx)
	quizRepo := sqlxrepos.NewQuizRepository(dbx)
	certRepo := sqlxrepos.NewCertificateRepository(dbx)

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  usrRepo,
		certSvc:  certificate.NewService(certRepo, courseRepo, mailSvc, svcLogger, conf),
		migrator: certificate.NewMigrator(certRepo, usrRepo, courseRepo, quizRepo, svcLogger, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
