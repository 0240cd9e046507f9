package tests

import (
	"fmt"
	"log"
	"os"
	"testing"

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
	inmemdb "github.com/trezcool/afya/storage/database/inmem"
)

var (
	conf      *core.Config
	db        *inmemdb.DB
	app       *echoapi.Server
	usrRepo   user.Repository
	childRepo child.Repository
	mailSvc   *emailsvc.ConsoleServiceMock

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func TestMain(m *testing.M) {
	if err := setup(); err != nil {
		fmt.Printf("setup(): %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func setup() error {
	conf = core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)

	// set up DB & repos
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	childRepo = inmemdb.NewChildRepository(db)

	// set up reference data
	engine, err := growth.NewWHOEngine()
	if err != nil {
		return err
	}
	schedule, err := vaccination.DefaultSchedule()
	if err != nil {
		return err
	}
	evaluator, err := vaccination.NewEvaluator(schedule, conf.Vaccination.UpcomingWindowDays)
	if err != nil {
		return err
	}

	// set up services
	templates, err := core.ParseEmailTemplates(appfs.FS, conf)
	if err != nil {
		return err
	}
	mailSvc = emailsvc.NewConsoleServiceMock(conf, templates, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(appfs.FS, logger)

	// set up server
	app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    user.NewService(usrRepo),
		ChildSvc:   child.NewService(childRepo, engine, evaluator),
		MailSvc:    mailSvc,
		Reporter:   reportsvc.NewExcelReporter(engine, evaluator),
		Validate:   validate,
		Translator: translator,
	})
	return nil
}

func resetDB() {
	db.Reset()
	mailSvc.Reset()
}
