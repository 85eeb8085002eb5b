package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/echoframe/internal/auth"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.cfg.NodeID,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.started).String(),
			"node":    s.cfg.NodeID,
			"version": Version,
		})
	})

	sessions := s.router.Group("/sessions")
	if token := strings.TrimSpace(s.cfg.Token); token != "" {
		sessions.Use(auth.RequireBearer(auth.StaticToken{Token: token}))
	}
	sessions.GET("", func(c *gin.Context) {
		if s.source == nil {
			c.JSON(http.StatusOK, gin.H{"active": 0, "sessions": []session.Snapshot{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"active":   s.source.ActiveSessions(),
			"sessions": s.source.Sessions(),
		})
	})
}
