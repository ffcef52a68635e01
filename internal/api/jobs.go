package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Meshal1212222/ticket-ticket/internal/scheduler"
)

func (s *Server) handleListJobs(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []scheduler.JobInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Jobs.Jobs()})
}

// handleRunJob runs a job now and waits for it, e.g. to poll X DMs on demand.
func (s *Server) handleRunJob(c *gin.Context) {
	name := c.Param("name")
	if s.deps.Jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	err := s.deps.Jobs.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "job already running"})
	case err != nil:
		s.logger.Warn("manual job run failed", "job", name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"job": name, "ok": false, "error": err.Error()})
	default:
		s.logger.Info("job run manually", "job", name)
		c.JSON(http.StatusOK, gin.H{"job": name, "ok": true})
	}
}
