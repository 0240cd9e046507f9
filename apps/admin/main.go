package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/user"
	"github.com/trezcool/afya/core/vaccination"
	appfs "github.com/trezcool/afya/fs"
	emailsvc "github.com/trezcool/afya/services/email"
	logsvc "github.com/trezcool/afya/services/logger"
	"github.com/trezcool/afya/storage"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage; migrations are run by the migrate command
	repos, err := storage.Open(conf, false)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

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

	var db *sql.DB
	if repos.DB != nil {
		db = repos.DB.DB
	}

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   user.NewService(repos.Users),
		childSvc: child.NewService(repos.Children, engine, evaluator),
		mailSvc:  mailSvc,
	}
	err = cli.run(os.Args)
	_ = repos.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
