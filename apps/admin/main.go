package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/breakglass"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	zl := logsvc.NewZap(conf).Named("admin")
	logger := logsvc.NewRollbarLogger(zl, conf)
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, errors.Wrap(err, "opening database"))
	defer func() { _ = db.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	errAndDie(logger, errors.Wrap(database.StatusCheck(ctx, db), "checking database"))
	cancel()

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleService(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, logger, conf)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: usrRepo,
		bgSvc:   breakglass.NewService(sqlxrepos.NewBreakGlassRepository(db), usrSvc, mailSvc, logger, conf),
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		_ = logger.Sync()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
