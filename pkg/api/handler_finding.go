package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/models"
)

// acknowledgeFinding handles PUT /api/v1/findings/:id/acknowledge. Only open
// findings can be acknowledged.
func (s *Server) acknowledgeFinding(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.AcknowledgeFinding(c.Request.Context(), id); err != nil {
		mapStoreError(c, err)
		return
	}
	metrics.FindingTransitions.WithLabelValues("acknowledged").Inc()

	f, err := s.store.GetFinding(c.Request.Context(), id)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, findingsJSON([]models.Finding{f})[0])
}

// reopenFinding handles PUT /api/v1/findings/:id/reopen. Only acknowledged
// findings can be reopened; resolved is terminal.
func (s *Server) reopenFinding(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.ReopenFinding(c.Request.Context(), id); err != nil {
		mapStoreError(c, err)
		return
	}
	metrics.FindingTransitions.WithLabelValues("reopened").Inc()

	f, err := s.store.GetFinding(c.Request.Context(), id)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, findingsJSON([]models.Finding{f})[0])
}
