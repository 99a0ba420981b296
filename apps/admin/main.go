package main

import (
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/importer"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	emailsvc "github.com/trezcool/registrar/services/email"
	logsvc "github.com/trezcool/registrar/services/logger"
	notifysvc "github.com/trezcool/registrar/services/notify"
	"github.com/trezcool/registrar/services/sectionpurge"
	"github.com/trezcool/registrar/storage/docstore"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("ADMIN", conf.Debug), conf)

	store, closer, err := docstore.Open(conf)
	if err != nil {
		logger.Fatal("opening document store", err)
	}

	cli := newCommandLine(conf, store, logger)
	if db, ok := closer.(*sqlx.DB); ok {
		cli.db = db.DB
	}
	err = cli.run(os.Args)
	_ = closer.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, store core.DocumentStore, logger core.Logger) *commandLine {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	section.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.SendgridApiKey != "" {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	} else {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	}
	notifier := notifysvc.New(conf, logger, mailSvc)

	students := student.NewService(store)
	sections := section.NewService(store)
	deleters := []archive.SectionDeleter{archive.StoreDeleter(sections)}
	if purge := sectionpurge.NewClient(conf); purge.Enabled() {
		deleters = append([]archive.SectionDeleter{purge}, deleters...)
	}

	return &commandLine{
		out:      os.Stdout,
		validate: validate,
		usrSvc:   user.NewService(store),
		students: students,
		sections: sections,
		archives: archive.NewService(archive.Deps{
			Store:    store,
			Students: students,
			Sections: sections,
			Logger:   logger,
			Notifier: notifier,
			Deleters: deleters,
		}),
		importer: importer.New(importer.Deps{
			Students:      students,
			Sections:      sections,
			Validate:      validate,
			Translator:    translator,
			Logger:        logger,
			Notifier:      notifier,
			MaxErrors:     conf.Import.MaxErrors,
			MaxDuplicates: conf.Import.MaxDuplicateErrors,
			RowDelay:      conf.Import.RowDelay,
		}),
	}
}
