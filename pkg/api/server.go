// Package api is the HTTP surface: ingest, dashboard reads, mutations,
// template management, config, the SSE score stream and health.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/database"
	"github.com/loglens/loglens/pkg/ingest"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/meta"
	"github.com/loglens/loglens/pkg/recalc"
	"github.com/loglens/loglens/pkg/store"
	"github.com/loglens/loglens/pkg/windowing"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	db        *database.Client
	store     *store.Store
	cfg       *config.Service
	writer    *ingest.Writer
	windowing *windowing.Service
	analyzer  *meta.Analyzer
	recalc    *recalc.Engine
}

// NewServer creates the API server.
func NewServer(db *database.Client, st *store.Store, cfg *config.Service, client llm.Client) *Server {
	return &Server{
		db:        db,
		store:     st,
		cfg:       cfg,
		writer:    ingest.NewWriter(st, cfg),
		windowing: windowing.NewService(st, cfg),
		analyzer:  meta.NewAnalyzer(st, cfg, client),
		recalc:    recalc.NewEngine(st, cfg),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.POST("/ingest", s.ingestBatch)

		v1.GET("/dashboard/systems", s.dashboardSystems)
		v1.GET("/systems/:id/events", s.systemEvents)
		v1.GET("/systems/:id/meta", s.systemMeta)
		v1.GET("/systems/:id/findings", s.systemFindings)
		v1.GET("/events/search", s.searchEvents)
		v1.GET("/events/facets", s.eventFacets)
		v1.GET("/events/trace", s.eventsByTrace)
		v1.GET("/usage", s.usageSummary)

		v1.PUT("/findings/:id/acknowledge", s.acknowledgeFinding)
		v1.PUT("/findings/:id/reopen", s.reopenFinding)
		v1.POST("/systems/:id/recalculate-scores", s.recalculateScores)
		v1.POST("/systems/:id/re-evaluate", s.reevaluateSystem)
		v1.POST("/events/acknowledge", s.acknowledgeEvents(true))
		v1.POST("/events/unacknowledge", s.acknowledgeEvents(false))

		v1.GET("/systems", s.listSystems)
		v1.POST("/systems", s.createSystem)
		v1.PUT("/systems/:id", s.updateSystem)
		v1.GET("/systems/:id/log-sources", s.listLogSources)
		v1.POST("/systems/:id/log-sources", s.createLogSource)
		v1.DELETE("/log-sources/:id", s.deleteLogSource)
		v1.GET("/discovery", s.listDiscovery)

		v1.GET("/normal-behavior-templates", s.listTemplates)
		v1.POST("/normal-behavior-templates", s.createTemplate)
		v1.PUT("/normal-behavior-templates/:id", s.updateTemplate)
		v1.DELETE("/normal-behavior-templates/:id", s.deleteTemplate)
		v1.POST("/normal-behavior-templates/preview", s.previewTemplate)

		v1.GET("/config/:key", s.getConfig)
		v1.PUT("/config/:key", s.setConfig)

		v1.GET("/scores/stream", s.scoreStream)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
