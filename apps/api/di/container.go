// Package di wires the API dependencies with a dig container.
package di

import (
	"context"
	"fmt"
	"log"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/breakglass"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

// EngineMemory keeps all the data in process. Meant for demos and local hacking.
const EngineMemory = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repositories are provided together since they share one storage engine.
	Repositories struct {
		dig.Out
		DB         *sqlx.DB // nil with EngineMemory
		Users      user.Repository
		Courses    course.Repository
		Attendance attendance.Repository
		Grading    grading.Repository
		BreakGlass breakglass.Repository
	}

	ServerParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       user.ServiceInterface
		CourseSvc     course.ServiceInterface
		AttendanceSvc attendance.ServiceInterface
		GradingSvc    grading.ServiceInterface
		BreakGlassSvc breakglass.ServiceInterface
	}
)

func newZap(conf *core.Config) *zap.Logger {
	return logsvc.NewZap(conf)
}

func newLogger(zl *zap.Logger, conf *core.Config) (core.Logger, *logsvc.RollbarLogger) {
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	return logger, logger
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == EngineMemory {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive restarts")
		db := inmemdb.Open()
		return Repositories{
			Users:      inmemdb.NewUserRepository(db),
			Courses:    inmemdb.NewCourseRepository(db),
			Attendance: inmemdb.NewAttendanceRepository(db),
			Grading:    inmemdb.NewGradingRepository(db),
			BreakGlass: inmemdb.NewBreakGlassRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.StatusCheck(ctx, db); err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Repositories{
		DB:         db,
		Users:      sqlxrepos.NewUserRepository(db),
		Courses:    sqlxrepos.NewCourseRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
		Grading:    sqlxrepos.NewGradingRepository(db),
		BreakGlass: sqlxrepos.NewBreakGlassRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func newUserService(repo user.Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) user.ServiceInterface {
	return user.NewService(repo, mailSvc, logger, conf)
}

func newCourseService(repo course.Repository, users user.ServiceInterface) course.ServiceInterface {
	return course.NewService(repo, users)
}

func newAttendanceService(repo attendance.Repository, courses course.ServiceInterface) attendance.ServiceInterface {
	return attendance.NewService(repo, courses)
}

func newGradingService(repo grading.Repository, courses course.ServiceInterface) grading.ServiceInterface {
	return grading.NewService(repo, courses)
}

func newBreakGlassService(
	repo breakglass.Repository,
	users user.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) breakglass.ServiceInterface {
	return breakglass.NewService(repo, users, mailSvc, logger, conf)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf, p.Logger, echoapi.Options{
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		AttendanceSvc: p.AttendanceSvc,
		GradingSvc:    p.GradingSvc,
		BreakGlassSvc: p.BreakGlassSvc,
	})
}

// newScheduler returns a stopped cron running the periodic jobs.
func newScheduler(conf *core.Config, logger core.Logger, bgSvc breakglass.ServiceInterface) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(conf.BreakGlass.ExpirySchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := bgSvc.ExpireStale(ctx, time.Now())
		if err != nil {
			logger.Error("expiring break-glass grants", errors.Wrap(err, "expiring stale grants"))
			return
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("expired %d break-glass grant(s)", n))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling break-glass expiry %q", conf.BreakGlass.ExpirySchedule)
	}
	return c, nil
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(newUserService))
	must(c.Provide(newCourseService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newGradingService))
	must(c.Provide(newBreakGlassService))
	must(c.Provide(newServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
