// Package web serves the separation session over HTTP and pushes job events
// to browsers through a websocket.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"music-separator/internal/config"
	"music-separator/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Server is the gin front-end of one session.
type Server struct {
	session  *session.Session
	hub      *Hub
	engine   *gin.Engine
	upgrader websocket.Upgrader
	addr     string
	jobCtx   context.Context
}

// NewServer wires routes and starts the event hub. ctx bounds the hub and
// any inference process started through the API.
func NewServer(ctx context.Context, sess *session.Session, rt config.Runtime) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		session: sess,
		hub:     NewHub(),
		engine:  gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(rt.CORSOrigins),
		},
		addr:   rt.HTTPAddr,
		jobCtx: ctx,
	}

	go s.hub.Run(ctx)
	sess.AddSink(s.hub.Broadcast)

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger())
	s.engine.Use(corsMiddleware(rt.CORSOrigins))
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.addr).Info("Web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", s.addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown web server")
		}
		return nil
	}
}

// setupRoutes configures all the HTTP routes.
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/files", s.listFiles)
		api.POST("/files", s.addFiles)
		api.DELETE("/files", s.removeFiles)

		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.putSettings)

		api.GET("/output", s.getOutput)
		api.PUT("/output", s.putOutput)

		api.POST("/jobs", s.startJob)
		api.GET("/jobs/current", s.currentJob)
		api.DELETE("/jobs/current", s.stopJob)

		api.GET("/events", s.listEvents)
		api.GET("/ws", s.serveWebSocket)
	}
}
