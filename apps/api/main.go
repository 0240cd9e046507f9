package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/afya/apps/api/echo"
	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/user"
	"github.com/trezcool/afya/core/vaccination"
	appfs "github.com/trezcool/afya/fs"
	emailsvc "github.com/trezcool/afya/services/email"
	logsvc "github.com/trezcool/afya/services/logger"
	reportsvc "github.com/trezcool/afya/services/report"
	"github.com/trezcool/afya/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	repos, err := storage.Open(conf, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = repos.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up reference data
	engine, err := growth.NewWHOEngine()
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading growth references: %v", err), err)
	}
	schedule, err := vaccination.DefaultSchedule()
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading vaccination schedule: %v", err), err)
	}
	evaluator, err := vaccination.NewEvaluator(schedule, conf.Vaccination.UpcomingWindowDays)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up vaccination evaluator: %v", err), err)
	}

	// set up services
	templates, err := core.ParseEmailTemplates(appfs.FS, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, templates, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, templates, logger)
	}
	defer mailSvc.Wait()

	usrSvc := user.NewService(repos.Users)
	childSvc := child.NewService(repos.Children, engine, evaluator)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	user.LoadCommonPasswords(appfs.FS, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			ChildSvc:   childSvc,
			MailSvc:    mailSvc,
			Reporter:   reportsvc.NewExcelReporter(engine, evaluator),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
