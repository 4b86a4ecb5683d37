package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/training"
)

const defaultRowLimit = 20

type (
	Options struct {
		Address        string
		Debug          bool
		DisableReqLogs bool
		RowLimit       int
		Logger         core.Logger
		Service        *training.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.RowLimit <= 0 {
		opts.RowLimit = defaultRowLimit
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger)
	s.app.Renderer = newTemplateRenderer()
	s.app.Debug = s.opts.Debug

	h := &reportHandlers{svc: s.opts.Service, rowLimit: s.opts.RowLimit}

	s.app.GET("/", h.dashboard)
	reports := s.app.Group("/reports")
	reports.GET("/breakdown", h.breakdownPage)
	reports.GET("/missing-expiry", h.missingExpiryPage)

	v1 := s.app.Group("/v1")
	v1.GET("/breakdown", h.breakdownJSON)
	v1.GET("/tables/:table", h.listRows)
	v1.GET("/tables/:table/count", h.countRows)
}

func (s *server) Start() error {
	err := s.app.Start(s.opts.Address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
