package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/normal"
)

type templateRequest struct {
	SystemID       string `json:"system_id"`
	Pattern        string `json:"pattern"`
	ExampleMessage string `json:"example_message"`
	HostPattern    string `json:"host_pattern"`
	ProgramPattern string `json:"program_pattern"`
	Enabled        *bool  `json:"enabled"`
	Notes          string `json:"notes"`

	// ApplyRetroactively zeroes matching event scores over the display window
	// and rebuilds effective scores.
	ApplyRetroactively bool `json:"apply_retroactively"`
}

// resolvePattern derives the message pattern: explicit pattern (legacy `*`
// syntax auto-converted) or one generated from the example message.
func resolvePattern(req templateRequest) (string, string) {
	pattern := strings.TrimSpace(req.Pattern)
	switch {
	case pattern != "":
		pattern = normal.ConvertLegacyPattern(pattern)
	case req.ExampleMessage != "":
		pattern = normal.GeneratePattern(req.ExampleMessage)
	default:
		return "", "either pattern or example_message is required"
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return "", "invalid pattern: " + err.Error()
	}
	return pattern, ""
}

// listTemplates handles GET /api/v1/normal-behavior-templates.
func (s *Server) listTemplates(c *gin.Context) {
	templates, err := s.store.ListTemplates(c.Request.Context(), false)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// createTemplate handles POST /api/v1/normal-behavior-templates.
func (s *Server) createTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pattern, msg := resolvePattern(req)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	tmpl := models.NormalBehaviorTemplate{
		ID:             uuid.NewString(),
		SystemID:       req.SystemID,
		Pattern:        pattern,
		HostPattern:    req.HostPattern,
		ProgramPattern: req.ProgramPattern,
		ExampleMessage: req.ExampleMessage,
		Enabled:        enabled,
		Notes:          req.Notes,
		CreatedAt:      time.Now().UTC(),
	}
	ctx := c.Request.Context()
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		mapStoreError(c, err)
		return
	}

	resp := gin.H{"template": templateJSON(tmpl)}
	if req.ApplyRetroactively {
		zeroed, err := s.recalc.ApplyTemplate(ctx, tmpl)
		if err != nil {
			mapStoreError(c, err)
			return
		}
		resp["events_zeroed"] = zeroed
	}
	c.JSON(http.StatusCreated, resp)
}

// updateTemplate handles PUT /api/v1/normal-behavior-templates/:id.
func (s *Server) updateTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	tmpl, err := s.store.GetTemplate(ctx, c.Param("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pattern, msg := resolvePattern(req)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	tmpl.SystemID = req.SystemID
	tmpl.Pattern = pattern
	tmpl.HostPattern = req.HostPattern
	tmpl.ProgramPattern = req.ProgramPattern
	tmpl.ExampleMessage = req.ExampleMessage
	tmpl.Notes = req.Notes
	if req.Enabled != nil {
		tmpl.Enabled = *req.Enabled
	}
	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		mapStoreError(c, err)
		return
	}

	resp := gin.H{"template": templateJSON(tmpl)}
	if req.ApplyRetroactively {
		zeroed, err := s.recalc.ApplyTemplate(ctx, tmpl)
		if err != nil {
			mapStoreError(c, err)
			return
		}
		resp["events_zeroed"] = zeroed
	}
	c.JSON(http.StatusOK, resp)
}

// deleteTemplate handles DELETE /api/v1/normal-behavior-templates/:id.
// Already-zeroed scores stay zero; the next scoring run covers new events.
func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.store.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		mapStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type previewRequest struct {
	Pattern        string   `json:"pattern"`
	ExampleMessage string   `json:"example_message"`
	TestMessages   []string `json:"test_messages"`
}

// previewTemplate handles POST /api/v1/normal-behavior-templates/preview:
// shows the generated pattern and which sample messages it would match,
// without persisting anything.
func (s *Server) previewTemplate(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pattern, msg := resolvePattern(templateRequest{Pattern: req.Pattern, ExampleMessage: req.ExampleMessage})
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	re := regexp.MustCompile("(?i)" + pattern)

	matches := make([]bool, len(req.TestMessages))
	for i, m := range req.TestMessages {
		matches[i] = re.MatchString(m)
	}
	resp := gin.H{"pattern": pattern, "matches": matches}
	if req.ExampleMessage != "" {
		resp["example_matches"] = re.MatchString(req.ExampleMessage)
	}
	c.JSON(http.StatusOK, resp)
}
