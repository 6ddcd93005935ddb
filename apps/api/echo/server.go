package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
	"github.com/laurinbuild/kantine/core/catalog"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/payment"
	"github.com/laurinbuild/kantine/core/staff"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
)

type (
	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		UserSvc     *user.Service
		StaffSvc    *staff.Service
		ThemeSvc    *theme.Service
		CatalogSvc  *catalog.Service
		OrderSvc    *order.Service
		PaymentSvc  *payment.Service
		CashbookSvc *cashbook.Service
		Bus         theme.Bus
	}

	Server struct {
		deps         ServerDeps
		app          *echo.Echo
		serverErrors chan error
		shutdown     chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:         deps,
		app:          echo.New(),
		serverErrors: make(chan error, 1),
		shutdown:     make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerStaffAPI(v1, jwt, s.deps.StaffSvc, conf)
	registerThemeAPI(v1, jwt, s.deps.ThemeSvc, s.deps.Bus, s.deps.Logger)
	registerUserAPI(v1, jwt, s.deps.UserSvc)
	registerCatalogAPI(v1, jwt, s.deps.CatalogSvc)
	registerOrderAPI(v1, jwt, s.deps.OrderSvc, s.deps.UserSvc)
	registerPaymentAPI(v1, jwt, s.deps.PaymentSvc)
	registerCashbookAPI(v1, jwt, s.deps.CashbookSvc, conf)
}

// Start runs the listener and reports its terminal error on Errors().
func (s *Server) Start() {
	s.serverErrors <- s.app.Start(s.deps.Conf.Server.Address())
}

// Errors receives the error from the listener failing.
func (s *Server) Errors() <-chan error { return s.serverErrors }

// ShutdownSignal receives OS interrupt/termination signals.
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// signalShutdown triggers a graceful shutdown from within a request.
func (s *Server) signalShutdown() { s.shutdown <- syscall.SIGTERM }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kantine API!")
}
