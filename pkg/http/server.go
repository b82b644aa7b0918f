package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FinSignal/pkg/http/middleware"
	applogger "FinSignal/pkg/logger"
)

// ServerOption configures Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	cors            bool
	origins         []string
	registry        *prometheus.Registry
	metricsPath     string
}

// WithPort listens on all interfaces at port.
func WithPort(port int) ServerOption {
	return func(o *serverOptions) { o.addr = net.JoinHostPort("", strconv.Itoa(port)) }
}

// WithTimeouts sets the read, write and graceful shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout, o.writeTimeout, o.shutdownTimeout = read, write, shutdown
	}
}

// WithCORS enables CORS for the given origins; none means any.
func WithCORS(enabled bool, origins ...string) ServerOption {
	return func(o *serverOptions) { o.cors, o.origins = enabled, origins }
}

// WithMetrics records request metrics into reg and exposes it on path.
func WithMetrics(reg *prometheus.Registry, path string) ServerOption {
	return func(o *serverOptions) { o.registry, o.metricsPath = reg, path }
}

// Server runs an Echo instance in the background.
type Server struct {
	e    *echo.Echo
	opts serverOptions
	l    *applogger.Logger
	errc chan error
}

// NewServer builds the middleware chain and mounts handler.
func NewServer(handler Handler, l *applogger.Logger, opts ...ServerOption) *Server {
	o := serverOptions{
		addr:            ":8080",
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if l == nil {
		l = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = o.readTimeout
	e.Server.WriteTimeout = o.writeTimeout

	e.Use(middleware.Recover(l), middleware.RequestLogging(l))
	if o.registry != nil {
		e.Use(middleware.NewHTTPMetrics(o.registry).Middleware())
		if o.metricsPath != "" {
			e.GET(o.metricsPath, echo.WrapHandler(promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})))
		}
	}
	if o.cors {
		e.Use(middleware.CORS(o.origins...))
	}
	if handler != nil {
		handler.RegisterRoutes(e)
	}
	return &Server{e: e, opts: o, l: l, errc: make(chan error, 1)}
}

// Start listens in a goroutine. A listen failure is delivered on Err.
func (s *Server) Start() error {
	go func() {
		s.l.Info("http server listening", applogger.String("addr", s.opts.addr))
		err := s.e.Start(s.opts.addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	return nil
}

func (s *Server) Err() <-chan error { return s.errc }

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		return err
	}
	s.l.Info("http server stopped")
	return nil
}

// Echo exposes the router for in-process requests.
func (s *Server) Echo() *echo.Echo { return s.e }
