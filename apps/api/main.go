package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/laurinbuild/kantine/apps/api/echo"
	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
	"github.com/laurinbuild/kantine/core/catalog"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/payment"
	"github.com/laurinbuild/kantine/core/staff"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
	"github.com/laurinbuild/kantine/services/broker"
	emailsvc "github.com/laurinbuild/kantine/services/email"
	logsvc "github.com/laurinbuild/kantine/services/logger"
	"github.com/laurinbuild/kantine/services/paypal"
	"github.com/laurinbuild/kantine/storage/database"
	sqlxrepos "github.com/laurinbuild/kantine/storage/database/sqlx"
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
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	dbx := sqlx.NewDb(db, "postgres")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up the theme bus; redis fans changes out across instances, the
	// local bus serves single-node runs
	var bus theme.Bus
	if conf.Redis.Address != "" {
		redisBus, err := broker.NewRedisThemeBus(conf, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer redisBus.Close()
		go func() {
			if err := redisBus.StartForwarder(ctx); err != nil {
				logger.Error(fmt.Sprintf("theme forwarder stopped: %v", err), err)
			}
		}()
		bus = redisBus
	} else {
		bus = theme.NewLocalBus()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	userRepo := sqlxrepos.NewUserRepository(dbx)
	usrSvc := user.NewService(userRepo, sqlxrepos.NewPINArchiveRepository(dbx), mailSvc, conf)
	staffSvc := staff.NewService(sqlxrepos.NewStaffRepository(dbx), conf, logger)
	themeSvc := theme.NewService(sqlxrepos.NewSettingsRepository(dbx), bus)
	catalogRepo := sqlxrepos.NewCatalogRepository(dbx)
	catalogSvc := catalog.NewService(catalogRepo, catalogRepo)
	orderSvc := order.NewService(sqlxrepos.NewOrderRepository(dbx), usrSvc, catalogSvc)
	cashbookSvc := cashbook.NewService(sqlxrepos.NewCashbookRepository(dbx), conf)
	paymentSvc := payment.NewService(
		sqlxrepos.NewPaymentRepository(dbx), usrSvc, cashbookSvc, paypal.NewClient(conf, logger), conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Background Workers

	if conf.PayPal.BackgroundPollEnabled && !conf.TestMode {
		go paymentSvc.RunPayPalPoller(ctx)
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			UserSvc:     usrSvc,
			StaffSvc:    staffSvc,
			ThemeSvc:    themeSvc,
			CatalogSvc:  catalogSvc,
			OrderSvc:    orderSvc,
			PaymentSvc:  paymentSvc,
			CashbookSvc: cashbookSvc,
			Bus:         bus,
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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer shutdownCancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
