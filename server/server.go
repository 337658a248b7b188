// Package server mounts the multi-version HTTP gateway: one process
// serves R3/R4/R5 endpoints from the same underlying Library, translating
// resource shapes per release at the boundary.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/library"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/ops"
	"github.com/gofhir/txserver/worker"
)

// fhirJSON is the default response content type.
const fhirJSON = "application/fhir+json"

// requestIDHeader names the server-generated request id header.
const requestIDHeader = "X-Request-Id"

// Endpoint binds a mount path to a FHIR release.
type Endpoint struct {
	MountPath   string              `yaml:"mount"`
	FHIRVersion txserver.FHIRVersion `yaml:"fhirVersion"`
}

// Config configures the gateway.
type Config struct {
	Addr            string
	Endpoints       []Endpoint
	DefaultDeadline time.Duration
	ExpansionCache  int
	BatchWorkers    int
}

// Server is the gateway over a loaded Library.
type Server struct {
	cfg     Config
	lib     *library.Library
	log     zerolog.Logger
	echo    *echo.Echo
	workers *ops.Workers
	pool    *worker.Pool

	// one bound provider per endpoint, built at startup
	providers map[string]*library.Provider
}

// New creates the gateway and binds each endpoint to an independent
// per-release Provider.
func New(cfg Config, lib *library.Library, log zerolog.Logger) (*Server, error) {
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = txserver.DefaultDeadline
	}
	if cfg.ExpansionCache <= 0 {
		cfg.ExpansionCache = 1000
	}
	s := &Server{
		cfg:       cfg,
		lib:       lib,
		log:       log,
		echo:      echo.New(),
		providers: make(map[string]*library.Provider),
	}
	s.workers = ops.NewWorkers(engine.NewMemo(cfg.ExpansionCache, lib.Metrics()), lib.Metrics())
	s.pool = worker.NewPool(cfg.BatchWorkers)

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(echomw.Recover())
	s.echo.Use(s.requestID)
	s.echo.Use(s.accessLog)

	for _, ep := range cfg.Endpoints {
		opCtx := txserver.NewOperationContext()
		prov, iss := lib.CloneWithFHIRVersion(ep.FHIRVersion, opCtx)
		if iss != nil {
			return nil, iss
		}
		s.providers[ep.MountPath] = prov
		s.mount(ep)
	}
	return s, nil
}

// Start serves until the context is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.Addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// requestID stamps every response with a server-generated request id.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := uuid.NewString()
		c.Set("requestID", id)
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

// accessLog writes one structured line per request.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.log.Info().
			Str("requestId", c.Get("requestID").(string)).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	}
}

// opContext builds the OperationContext for a request: the middleware's
// request id, the parsed Accept-Language list and the default deadline.
func (s *Server) opContext(c echo.Context) (*txserver.OperationContext, *txserver.Issue) {
	opCtx := txserver.NewOperationContextWithDeadline(s.cfg.DefaultDeadline)
	if id, ok := c.Get("requestID").(string); ok {
		opCtx.RequestID = id
	}
	languages, err := lang.ParseAcceptLanguage(c.Request().Header.Get("Accept-Language"))
	if err != nil {
		return nil, txserver.BadRequest(err.Error())
	}
	opCtx.Languages = languages
	return opCtx, nil
}

// negotiate enforces strict content negotiation. The JSON wire form is
// served; an explicit XML-only Accept is refused.
func negotiate(c echo.Context) *txserver.Issue {
	accept := c.Request().Header.Get("Accept")
	if accept == "" || accept == "*/*" {
		return nil
	}
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case fhirJSON, "application/json", "text/json", "application/*", "*/*":
			return nil
		}
	}
	return txserver.Error(txserver.IssueTypeNotSupported).
		Diagnostics("no supported content type in Accept: " + accept).
		Status(http.StatusNotAcceptable).Build()
}

// respond writes an operation response in the FHIR wire form.
func respond(c echo.Context, r ops.Response) error {
	c.Response().Header().Set(echo.HeaderContentType, fhirJSON)
	return c.JSON(r.Status, r.Resource)
}

// respondIssue writes an issue as its OperationOutcome.
func respondIssue(c echo.Context, iss *txserver.Issue) error {
	out := model.NewOperationOutcome(model.OutcomeIssue{
		Severity:    string(iss.Severity),
		Code:        string(iss.Code),
		Diagnostics: iss.Diagnostics,
		Expression:  iss.Expression,
	})
	c.Response().Header().Set(echo.HeaderContentType, fhirJSON)
	return c.JSON(iss.Status(), out)
}
