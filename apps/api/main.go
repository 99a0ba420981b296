package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/registrar/apps/api/echo"
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
	pgstore "github.com/trezcool/registrar/storage/docstore/postgres"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("API", conf.Debug), conf)
	logger.Enable(!conf.Debug)

	storeLogger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("STORE", conf.Debug), conf)

	// set up store
	store, closer, err := docstore.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening document store: %v", err), err)
	}
	defer func() {
		if err = closer.Close(); err != nil {
			storeLogger.Fatal("Failed to close", err)
		}
	}()
	if db, ok := closer.(*sqlx.DB); ok {
		if err = pgstore.Migrate(context.Background(), db.DB, "up"); err != nil {
			storeLogger.Fatal(fmt.Sprintf("migrating: %v", err), err)
		}
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	notifier := notifysvc.New(conf, logger, mailSvc)

	usrSvc := user.NewService(store)
	resetter := user.NewPasswordResetter(usrSvc, mailSvc, conf)
	sectionSvc := section.NewService(store)
	studentSvc := student.NewService(store)

	deleters := []archive.SectionDeleter{archive.StoreDeleter(sectionSvc)}
	if purge := sectionpurge.NewClient(conf); purge.Enabled() {
		deleters = append([]archive.SectionDeleter{purge}, deleters...)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	section.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	user.LoadCommonPasswords(logger)

	archiveSvc := archive.NewService(archive.Deps{
		Store:    store,
		Students: studentSvc,
		Sections: sectionSvc,
		Logger:   logger,
		Notifier: notifier,
		Deleters: deleters,
	})
	imp := importer.New(importer.Deps{
		Students:      studentSvc,
		Sections:      sectionSvc,
		Validate:      validate,
		Translator:    translator,
		Logger:        logger,
		Notifier:      notifier,
		MaxErrors:     conf.Import.MaxErrors,
		MaxDuplicates: conf.Import.MaxDuplicateErrors,
		RowDelay:      conf.Import.RowDelay,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(conf.Store.Engine)

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
			Validate:   validate,
			Translator: translator,
			UserSvc:    usrSvc,
			Resetter:   resetter,
			SectionSvc: sectionSvc,
			StudentSvc: studentSvc,
			ArchiveSvc: archiveSvc,
			Importer:   imp,
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
