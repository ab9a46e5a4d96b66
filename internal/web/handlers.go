package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"music-separator/internal/config"
	"music-separator/internal/domain"
	"music-separator/internal/filelist"
	"music-separator/internal/jobs"
)

type addFilesRequest struct {
	Paths []string `json:"paths"`
}

type removeFilesRequest struct {
	Positions []int `json:"positions"`
}

type outputRequest struct {
	Path string `json:"path"`
}

// health returns the health status of the service.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "music-separator",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) listFiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": s.session.Files()})
}

func (s *Server) addFiles(c *gin.Context) {
	var req addFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	added := s.session.AddFiles(req.Paths)
	c.JSON(http.StatusOK, gin.H{"added": added, "files": s.session.Files()})
}

func (s *Server) removeFiles(c *gin.Context) {
	var req removeFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.session.RemoveFiles(req.Positions); err != nil {
		writeError(c, err, gin.H{"files": s.session.Files()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": s.session.Files()})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Settings())
}

// putSettings commits a complete settings object. Invalid values answer 422
// with the offending field and the unchanged committed settings.
func (s *Server) putSettings(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	committed, err := s.session.ReplaceSettings(req)
	if err != nil {
		extra := gin.H{"settings": committed}
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			extra["field"] = validationErr.Field
		}
		writeError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, committed)
}

func (s *Server) getOutput(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"outputFolder": s.session.OutputFolder()})
}

func (s *Server) putOutput(c *gin.Context) {
	var req outputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.session.SetOutputFolder(req.Path)
	c.JSON(http.StatusOK, gin.H{"outputFolder": s.session.OutputFolder()})
}

func (s *Server) startJob(c *gin.Context) {
	job, err := s.session.Start(s.jobCtx)
	if err != nil {
		writeError(c, err, gin.H{"job": job})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) currentJob(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.CurrentJob())
}

// stopJob blocks until the routine of a running job has returned.
func (s *Server) stopJob(c *gin.Context) {
	s.session.Stop()
	c.JSON(http.StatusOK, s.session.CurrentJob())
}

func (s *Server) listEvents(c *gin.Context) {
	since := int64(0)
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = parsed
	}

	events := s.session.Events(since)
	if events == nil {
		events = []jobs.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) serveWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(s.hub, conn)
	if !s.hub.RegisterClient(client) {
		_ = conn.Close()
		return
	}
	client.StartPumps()
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	for key, value := range extra {
		body[key] = value
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalidSettings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrPrecondition), errors.Is(err, filelist.ErrIndexOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
