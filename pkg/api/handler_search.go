package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/store"
)

// searchEvents handles GET /api/v1/events/search. Multi-value filters are
// comma-separated; q is full-text unless q_mode=contains.
func (s *Server) searchEvents(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	p := store.SearchParams{
		Query:     c.Query("q"),
		QueryMode: c.Query("q_mode"),
		SystemIDs: splitMulti(c.Query("system_id")),
		Severity:  splitMulti(c.Query("severity")),
		Hosts:     splitMulti(c.Query("host")),
		Programs:  splitMulti(c.Query("program")),
		SourceIPs: splitMulti(c.Query("source_ip")),
		SortBy:    c.Query("sort_by"),
		SortDesc:  c.Query("sort_dir") != "asc",
		Limit:     intQuery(c, "limit", 100, 1, 1000),
		Offset:    intQuery(c, "offset", 0, 0, 1_000_000),
	}
	if !from.IsZero() {
		p.From = &from
	}
	if !to.IsZero() {
		p.To = &to
	}

	events, err := s.store.SearchEvents(c.Request.Context(), p)
	if err != nil {
		if store.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Search failed. Check your query syntax."})
			return
		}
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": eventsJSON(events)})
}

// eventFacets handles GET /api/v1/events/facets?column=severity.
func (s *Server) eventFacets(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	var fromPtr, toPtr *time.Time
	if !from.IsZero() {
		fromPtr = &from
	}
	if !to.IsZero() {
		toPtr = &to
	}

	facets, err := s.store.EventFacets(c.Request.Context(), c.Query("column"),
		fromPtr, toPtr, intQuery(c, "limit", 20, 1, 100))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facets": facets})
}

// eventsByTrace handles GET /api/v1/events/trace?trace_id=....
func (s *Server) eventsByTrace(c *gin.Context) {
	traceID := c.Query("trace_id")
	if traceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trace_id is required"})
		return
	}
	events, err := s.store.EventsByTrace(c.Request.Context(), traceID, intQuery(c, "limit", 500, 1, 5000))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": eventsJSON(events)})
}

// splitMulti splits a comma-separated filter value, dropping empties.
func splitMulti(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
