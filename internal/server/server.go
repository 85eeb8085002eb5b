// Package server accepts frame connections and runs one session per connection.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/rs/zerolog"
)

const DefaultListenAddr = "0.0.0.0:12345"

// acceptBackoff paces retries after transient accept failures.
var acceptBackoff = session.BackoffConfig{
	InitialDelay: 5 * time.Millisecond,
	Multiplier:   2.0,
	MaxDelay:     time.Second,
}

type Config struct {
	ListenAddr string
	Session    session.Config
}

type Server struct {
	cfg     Config
	handler session.Handler
	logger  zerolog.Logger
	tlsCfg  *tls.Config

	nextID   atomic.Uint64
	mu       sync.Mutex
	sessions map[uint64]*session.Session
	wg       sync.WaitGroup
}

// New validates transport policy and loads TLS credentials. A credential
// failure here is meant to abort startup.
func New(cfg Config, handler session.Handler, logger zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateServerTransport(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = session.EchoHandler{}
	}
	s := &Server{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		sessions: make(map[uint64]*session.Session),
	}
	if cfg.Session.TLS.Enabled {
		tlsCfg, err := session.ServerTLSConfigFrom(cfg.Session.TLS)
		if err != nil {
			return nil, err
		}
		s.tlsCfg = tlsCfg
	}
	return s, nil
}

// Listen opens the TCP listener, wrapped for TLS when enabled. The handshake
// itself runs inside each session.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	if s.tlsCfg != nil {
		return tls.NewListener(ln, s.tlsCfg), nil
	}
	return ln, nil
}

// Serve runs the accept loop until ctx is done, then closes every tracked
// session and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stopClose := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stopClose()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", s.tlsCfg != nil).
		Msg("frame listener accepting")

	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			attempt++
			delay := session.NextBackoffDelay(acceptBackoff, attempt, nil)
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			if !session.WaitBackoff(ctx, delay) {
				break
			}
			continue
		}
		attempt = 0
		s.startSession(ctx, conn)
	}

	s.closeAll()
	s.wg.Wait()
	s.logger.Info().Msg("frame listener stopped")
	return nil
}

func (s *Server) startSession(ctx context.Context, conn net.Conn) {
	id := s.nextID.Add(1)
	sess := session.New(id, session.NewTransport(conn), s.handler, s.cfg.Session, s.logger)
	s.track(sess)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(id)
		if err := sess.Run(ctx); err != nil {
			s.logger.Debug().Err(err).Uint64("session", id).Msg("session ended with error")
		}
	}()
}

// Sessions returns snapshots of the live sessions ordered by id.
func (s *Server) Sessions() []session.Snapshot {
	s.mu.Lock()
	out := make([]session.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		_ = sess.Close()
	}
}
