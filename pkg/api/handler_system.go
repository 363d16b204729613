package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/meta"
	"github.com/loglens/loglens/pkg/models"
)

type systemRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	RetentionDays   *int   `json:"retention_days"`
	TimezoneName    string `json:"timezone_name"`
	TzOffsetMinutes int    `json:"tz_offset_minutes"`
}

// listSystems handles GET /api/v1/systems.
func (s *Server) listSystems(c *gin.Context) {
	systems, err := s.store.ListSystems(c.Request.Context())
	if err != nil {
		mapStoreError(c, err)
		return
	}
	out := make([]systemResponse, 0, len(systems))
	for _, sys := range systems {
		out = append(out, systemJSON(sys))
	}
	c.JSON(http.StatusOK, gin.H{"systems": out})
}

// createSystem handles POST /api/v1/systems.
func (s *Server) createSystem(c *gin.Context) {
	var req systemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TimezoneName != "" {
		if _, err := time.LoadLocation(req.TimezoneName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone name"})
			return
		}
	}

	sys := models.MonitoredSystem{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		RetentionDays:   req.RetentionDays,
		EventSource:     models.EventSourceRelational,
		TimezoneName:    req.TimezoneName,
		TzOffsetMinutes: req.TzOffsetMinutes,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateSystem(c.Request.Context(), sys); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, systemJSON(sys))
}

// updateSystem handles PUT /api/v1/systems/:id.
func (s *Server) updateSystem(c *gin.Context) {
	ctx := c.Request.Context()
	sys, err := s.store.GetSystem(ctx, c.Param("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}

	var req systemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TimezoneName != "" {
		if _, err := time.LoadLocation(req.TimezoneName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone name"})
			return
		}
	}

	sys.Name = req.Name
	sys.Description = req.Description
	sys.RetentionDays = req.RetentionDays
	sys.TimezoneName = req.TimezoneName
	sys.TzOffsetMinutes = req.TzOffsetMinutes
	if err := s.store.UpdateSystem(ctx, sys); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, systemJSON(sys))
}

type logSourceRequest struct {
	Label       string `json:"label" binding:"required"`
	Host        string `json:"host"`
	Program     string `json:"program"`
	SourceIP    string `json:"source_ip"`
	ConnectorID string `json:"connector_id"`
}

// listLogSources handles GET /api/v1/systems/:id/log-sources.
func (s *Server) listLogSources(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}
	sources, err := s.store.LogSourcesForSystem(ctx, systemID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	out := make([]logSourceResponse, 0, len(sources))
	for _, ls := range sources {
		out = append(out, logSourceJSON(ls))
	}
	c.JSON(http.StatusOK, gin.H{"log_sources": out})
}

// createLogSource handles POST /api/v1/systems/:id/log-sources. At least one
// matching hint must be present or the source could never match an event.
func (s *Server) createLogSource(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}

	var req logSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Host == "" && req.Program == "" && req.SourceIP == "" && req.ConnectorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "log source needs at least one matching hint"})
		return
	}

	ls := models.LogSource{
		ID:          uuid.NewString(),
		SystemID:    systemID,
		Label:       req.Label,
		Host:        req.Host,
		Program:     req.Program,
		SourceIP:    req.SourceIP,
		ConnectorID: req.ConnectorID,
	}
	if err := s.store.CreateLogSource(ctx, ls); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, logSourceJSON(ls))
}

// deleteLogSource handles DELETE /api/v1/log-sources/:id.
func (s *Server) deleteLogSource(c *gin.Context) {
	if err := s.store.DeleteLogSource(c.Request.Context(), c.Param("id")); err != nil {
		mapStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listDiscovery handles GET /api/v1/discovery: buffered unmatched events as
// source-creation suggestions.
func (s *Server) listDiscovery(c *gin.Context) {
	entries, err := s.store.ListDiscoveryEntries(c.Request.Context(), intQuery(c, "limit", 100, 1, 1000))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// recalculateScores handles POST /api/v1/systems/:id/recalculate-scores.
func (s *Server) recalculateScores(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}

	updated, err := s.recalc.Recalculate(ctx, systemID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type reevaluateRequest struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// reevaluateSystem handles POST /api/v1/systems/:id/re-evaluate: a manual
// window over the requested span, analyzed immediately with acknowledged
// events excluded and prior context reset so the verdict is fresh.
func (s *Server) reevaluateSystem(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}
	if !s.cfg.AI(ctx).Configured() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "AI is not configured — set an API key in Settings."})
		return
	}

	var req reevaluateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var from, to time.Time
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}

	w, err := s.windowing.CreateManual(ctx, systemID, from, to)
	if err != nil {
		mapStoreError(c, err)
		return
	}

	analyzed, err := s.analyzer.Analyze(ctx, w.ID, meta.Options{ExcludeAcknowledged: true, ResetContext: true})
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"window_id": w.ID, "analyzed": analyzed})
}

type eventAckRequest struct {
	SystemID string    `json:"system_id"`
	From     time.Time `json:"from" binding:"required"`
	To       time.Time `json:"to" binding:"required"`
}

// acknowledgeEvents builds the handler for POST /api/v1/events/acknowledge
// and /unacknowledge: time-range acknowledgement plus an effective score
// rebuild so the dashboard reflects the change immediately.
func (s *Server) acknowledgeEvents(ack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventAckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !req.From.Before(req.To) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "time range is empty"})
			return
		}

		ctx := c.Request.Context()
		count, err := s.store.AcknowledgeEvents(ctx, req.SystemID, req.From, req.To, ack)
		if err != nil {
			mapStoreError(c, err)
			return
		}
		if count > 0 {
			if _, err := s.recalc.Recalculate(ctx, req.SystemID); err != nil {
				mapStoreError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"updated": count})
	}
}
