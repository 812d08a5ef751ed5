// Package web provides an HTTP status server for the vessel monitor.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/status"
)

const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server serves the status page, JSON and a live websocket stream.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        *zap.SugaredLogger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{tracker: tracker, log: log}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog)

	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	router.GET("/ws", s.wsConnect)

	return router
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Hijacked websocket
// connections are not tracked and end when their clients go away.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func (s *Server) handleIndex(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, snap); err != nil {
		s.log.Warnw("render status page", "error", err)
	}
}

func (s *Server) handleJSON(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.Data(http.StatusOK, "application/json", status.FormatJSON(snap))
}
