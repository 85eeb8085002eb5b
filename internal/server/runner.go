package server

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/echoframe/internal/admin"
	"github.com/danmuck/echoframe/internal/logging"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	ErrRunnerStarted = errors.New("server: runner already started")
	ErrRunnerStopped = errors.New("server: runner stopped")
)

type RunnerConfig struct {
	Server Config
	// AdminAddr enables the admin HTTP surface when set.
	AdminAddr   string
	AdminToken  string
	CORSOrigins []string
	NodeID      string
	// Workers sets GOMAXPROCS when positive.
	Workers int
	// Log is the process log file. The binary installs it before building
	// the runner.
	Log logging.FileConfig
}

// Runner owns the frame listener, the optional admin server and every
// goroutine serving them.
type Runner struct {
	cfg    RunnerConfig
	srv    *Server
	admin  *admin.Server
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	ln      net.Listener
	adminLn net.Listener
	wg      sync.WaitGroup
	errc    chan error
}

func NewRunner(cfg RunnerConfig, handler session.Handler, logger zerolog.Logger) (*Runner, error) {
	srv, err := New(cfg.Server, handler, logger)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		srv:    srv,
		logger: logger,
		errc:   make(chan error, 2),
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		r.admin = admin.New(admin.Config{
			Addr:        cfg.AdminAddr,
			NodeID:      cfg.NodeID,
			CORSOrigins: cfg.CORSOrigins,
			Token:       cfg.AdminToken,
		}, srv, logger)
	}
	return r, nil
}

func (r *Runner) Server() *Server { return r.srv }

// Start binds the listeners and begins serving. It returns once both are
// accepting.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	if r.started {
		return ErrRunnerStarted
	}
	if r.cfg.Workers > 0 {
		prev := runtime.GOMAXPROCS(r.cfg.Workers)
		r.logger.Debug().Int("workers", r.cfg.Workers).Int("previous", prev).Msg("worker count set")
	}

	ln, err := r.srv.Listen()
	if err != nil {
		return err
	}
	var adminLn net.Listener
	if r.admin != nil {
		adminLn, err = r.admin.Listen()
		if err != nil {
			_ = ln.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.ln = ln
	r.adminLn = adminLn
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.srv.Serve(ctx, ln); err != nil {
			r.errc <- err
		}
	}()
	if r.admin != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.admin.Serve(adminLn); err != nil {
				r.errc <- err
			}
		}()
		r.admin.SetReady(true)
	}
	r.logger.Info().Str("addr", ln.Addr().String()).Msg("runner started")
	return nil
}

// Stop closes the listeners, asks every session to close and waits for all
// serving goroutines. Safe to call more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	if r.admin != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.admin.Shutdown(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("admin shutdown")
		}
		done()
	}
	r.wg.Wait()
	r.logger.Info().Msg("runner stopped")
}

// Run starts, blocks until SIGINT/SIGTERM or a serve failure, then stops.
func (r *Runner) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.RunContext(ctx)
}

func (r *Runner) RunContext(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	var err error
	select {
	case <-ctx.Done():
		r.logger.Info().Msg("shutdown requested")
	case err = <-r.errc:
		r.logger.Error().Err(err).Msg("serve failed")
	}
	r.Stop()
	return err
}

// Addr is the bound frame listener address, nil before Start.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

func (r *Runner) AdminAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adminLn == nil {
		return nil
	}
	return r.adminLn.Addr()
}
