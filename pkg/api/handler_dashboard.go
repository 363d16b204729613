package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/models"
)

// criterionScore is one cell of the dashboard score grid.
type criterionScore struct {
	CriterionID    int       `json:"criterion_id"`
	Slug           string    `json:"slug"`
	EffectiveValue float64   `json:"effective_value"`
	MetaScore      float64   `json:"meta_score"`
	MaxEventScore  float64   `json:"max_event_score"`
	WindowID       string    `json:"window_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// dashboardSystem is one row of the dashboard overview.
type dashboardSystem struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	OpenFindings int              `json:"open_findings"`
	Scores       []criterionScore `json:"scores"`
}

// dashboardSystems handles GET /api/v1/dashboard/systems: every system with
// its latest per-criterion effective scores and open finding count.
func (s *Server) dashboardSystems(c *gin.Context) {
	ctx := c.Request.Context()
	systems, err := s.store.ListSystems(ctx)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	days := s.cfg.Dashboard(ctx).ScoreDisplayWindowDays
	since := time.Now().UTC().AddDate(0, 0, -days)

	out := make([]dashboardSystem, 0, len(systems))
	for _, sys := range systems {
		row := dashboardSystem{ID: sys.ID, Name: sys.Name, Description: sys.Description}

		scores, err := s.store.EffectiveScoresForSystem(ctx, sys.ID, since)
		if err != nil {
			mapStoreError(c, err)
			return
		}
		// Scores come ordered oldest first; keep the newest per criterion.
		latest := make(map[int]models.EffectiveScore)
		for _, es := range scores {
			latest[es.CriterionID] = es
		}
		for _, crit := range models.Criteria {
			es := latest[crit.ID]
			row.Scores = append(row.Scores, criterionScore{
				CriterionID:    crit.ID,
				Slug:           crit.Slug,
				EffectiveValue: es.EffectiveValue,
				MetaScore:      es.MetaScore,
				MaxEventScore:  es.MaxEventScore,
				WindowID:       es.WindowID,
				UpdatedAt:      es.UpdatedAt,
			})
		}

		if row.OpenFindings, err = s.store.CountOpenFindings(ctx, sys.ID); err != nil {
			mapStoreError(c, err)
			return
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"systems": out})
}

// systemEvents handles GET /api/v1/systems/:id/events.
func (s *Server) systemEvents(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}

	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -1)
	}
	limit := intQuery(c, "limit", 200, 1, 5000)

	events, err := s.store.EventsInRange(ctx, systemID, from, to, limit, false)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": eventsJSON(events)})
}

// systemMeta handles GET /api/v1/systems/:id/meta.
func (s *Server) systemMeta(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}
	limit := intQuery(c, "limit", 50, 1, 500)

	results, err := s.store.MetaResultsForSystem(ctx, systemID, limit)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": metaResultsJSON(results)})
}

// systemFindings handles GET /api/v1/systems/:id/findings with an optional
// status filter.
func (s *Server) systemFindings(c *gin.Context) {
	ctx := c.Request.Context()
	systemID := c.Param("id")
	if _, err := s.store.GetSystem(ctx, systemID); err != nil {
		mapStoreError(c, err)
		return
	}

	status := c.Query("status")
	switch status {
	case "", string(models.FindingOpen), string(models.FindingAcknowledged), string(models.FindingResolved):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	limit := intQuery(c, "limit", 100, 1, 1000)

	findings, err := s.store.ListFindings(ctx, systemID, status, limit)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findingsJSON(findings)})
}

// usageSummary handles GET /api/v1/usage: llm_usage aggregated per model/day.
func (s *Server) usageSummary(c *gin.Context) {
	days := intQuery(c, "days", 30, 1, 365)
	rows, err := s.store.UsageSummary(c.Request.Context(), time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": rows})
}

// intQuery parses a bounded integer query parameter with a default.
func intQuery(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// parseRange reads optional RFC 3339 from/to query parameters. Writes the
// error response itself when a value is malformed.
func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp"})
			return from, to, false
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp"})
			return from, to, false
		}
	}
	return from, to, true
}
