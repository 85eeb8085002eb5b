// Package admin serves the operator HTTP surface next to the frame listener.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/echoframe/internal/observability"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

// SessionSource is what the admin surface reads from the frame server.
type SessionSource interface {
	Sessions() []session.Snapshot
	ActiveSessions() int
}

type Config struct {
	Addr        string
	NodeID      string
	CORSOrigins []string
	// Token, when set, is required as a bearer credential on /sessions.
	Token string
}

type Server struct {
	cfg     Config
	source  SessionSource
	logger  zerolog.Logger
	router  *gin.Engine
	httpSrv *http.Server
	started time.Time
	ready   atomic.Bool
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func New(cfg Config, source SessionSource, logger zerolog.Logger) *Server {
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = "echoserver"
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.NodeID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		source:  source,
		logger:  logger,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the /ready check.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
}

// Serve blocks until Shutdown. A graceful shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.httpSrv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
