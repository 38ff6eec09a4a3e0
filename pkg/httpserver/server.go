package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

type drain struct {
	name string
	fn   func(context.Context) error
}

type config struct {
	addr              string
	readHeaderTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	startHooks        []func(net.Addr)
	drains            []drain
}

// Server runs an http.Server until its context ends or the process receives
// SIGINT or SIGTERM, then shuts it down and runs the registered drains.
type Server struct {
	cfg *config

	mu          sync.Mutex
	srv         *http.Server
	cancelBase  context.CancelFunc
	once        sync.Once
	shutdownErr error
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	cfg := &config{
		addr:              ":8080",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return &Server{cfg: cfg}
}

// Run serves handler and blocks until shutdown completes. Request contexts
// are cancelled when shutdown starts so long-lived streams can end.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	ln, err := net.Listen("tcp", s.cfg.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}

	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.readHeaderTimeout,
		ReadTimeout:       s.cfg.readTimeout,
		WriteTimeout:      s.cfg.writeTimeout,
		IdleTimeout:       s.cfg.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          slog.NewLogLogger(s.cfg.logger.Handler(), slog.LevelWarn),
	}
	s.srv = srv
	s.cancelBase = cancelBase
	s.mu.Unlock()

	s.cfg.logger.LogAttrs(ctx, slog.LevelInfo, "http server started",
		logger.Component("httpserver"),
		slog.String("addr", ln.Addr().String()),
	)
	for _, h := range s.cfg.startHooks {
		h(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-sigCtx.Done():
		s.cfg.logger.LogAttrs(ctx, slog.LevelInfo, "http server stopping", logger.Component("httpserver"))
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		serveErr = <-errCh
	case serveErr = <-errCh:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			cancelBase()
			return errors.Join(ErrStart, serveErr)
		}
		// Shutdown was called directly; wait for it to finish.
		return s.Shutdown(context.WithoutCancel(ctx))
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, serveErr)
	}
	return s.shutdownResult()
}

// Shutdown stops accepting requests, waits for in-flight ones and then runs
// the drains. Repeated calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		srv, cancelBase := s.srv, s.cancelBase
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.shutdownTimeout)
		defer cancel()

		cancelBase()
		var errs []error
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		for _, d := range s.cfg.drains {
			if err := d.fn(ctx); err != nil {
				s.cfg.logger.LogAttrs(ctx, slog.LevelError, "drain failed",
					logger.Component("httpserver"),
					slog.String("drain", d.name),
					logger.Error(err),
				)
				errs = append(errs, err)
			}
		}

		s.mu.Lock()
		if len(errs) > 0 {
			s.shutdownErr = errors.Join(append([]error{ErrShutdown}, errs...)...)
		}
		s.mu.Unlock()
	})
	return s.shutdownResult()
}

func (s *Server) shutdownResult() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownErr
}
