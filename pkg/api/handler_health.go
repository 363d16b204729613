package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/database"
	"github.com/loglens/loglens/pkg/version"
)

// health handles GET /api/v1/health. Only the database is checked; the LLM
// provider is external and must not flip this endpoint unhealthy.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	status := gin.H{
		"status":        "healthy",
		"version":       version.Full(),
		"database":      dbHealth,
		"ai_configured": s.cfg.AI(ctx).Configured(),
	}
	c.JSON(http.StatusOK, status)
}
