package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/models"
)

// configKeys is the closed set of writable app_config keys.
var configKeys = map[string]bool{
	"openai_api_key":             true,
	"openai_model":               true,
	"openai_base_url":            true,
	"task_model_config":          true,
	"scoring_system_prompt":      true,
	"meta_system_prompt":         true,
	"rag_system_prompt":          true,
	"dashboard_config":           true,
	"pipeline_config":            true,
	"meta_analysis_config":       true,
	"event_ack_mode":             true,
	"event_ack_prompt":           true,
	"default_retention_days":     true,
	"maintenance_interval_hours": true,
	"discovery_config":           true,
	"privacy_config":             true,
	"redaction_config":           true,
}

func knownConfigKey(key string) bool {
	if configKeys[key] {
		return true
	}
	if slug, ok := strings.CutPrefix(key, "criterion_guide_"); ok {
		_, found := models.CriterionBySlug(slug)
		return found
	}
	return false
}

// getConfig handles GET /api/v1/config/:key. The API key value is never
// echoed back; only whether it is set.
func (s *Server) getConfig(c *gin.Context) {
	key := c.Param("key")
	if !knownConfigKey(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown config key"})
		return
	}

	raw, found, err := s.store.GetConfigValue(c.Request.Context(), key)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	if key == "openai_api_key" {
		c.JSON(http.StatusOK, gin.H{"key": key, "configured": found && len(raw) > 2})
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"key": key, "value": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": json.RawMessage(raw)})
}

// setConfig handles PUT /api/v1/config/:key. The body is the raw JSON value;
// the config cache is invalidated so changes apply on the next read.
func (s *Server) setConfig(c *gin.Context) {
	key := c.Param("key")
	if !knownConfigKey(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown config key"})
		return
	}

	var value json.RawMessage
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON value"})
		return
	}
	if err := s.cfg.Set(c.Request.Context(), key, value); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
