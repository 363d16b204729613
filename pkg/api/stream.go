package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/metrics"
)

const (
	// streamPollInterval is the cadence of update/heartbeat frames.
	streamPollInterval = 15 * time.Second

	// streamLookback is how far back each poll looks for new meta results.
	streamLookback = 30 * time.Second
)

// scoreStream handles GET /api/v1/scores/stream. On connect it sends an init
// frame with the system catalogue, then every poll either an update frame
// with meta results created in the lookback span or a heartbeat comment.
// The client may disconnect during any store call, so the context is
// re-checked after every one.
func (s *Server) scoreStream(c *gin.Context) {
	ctx := c.Request.Context()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	metrics.SSEClients.Inc()
	defer metrics.SSEClients.Dec()

	systems, err := s.store.ListSystems(ctx)
	if err != nil || ctx.Err() != nil {
		return
	}
	type initSystem struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	init := struct {
		Type    string       `json:"type"`
		Systems []initSystem `json:"systems"`
	}{Type: "init", Systems: make([]initSystem, 0, len(systems))}
	for _, sys := range systems {
		init.Systems = append(init.Systems, initSystem{ID: sys.ID, Name: sys.Name})
	}
	if !writeFrame(c.Writer, flusher, init) {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		results, systemIDs, err := s.store.MetaResultsSince(ctx, time.Now().UTC().Add(-streamLookback))
		if ctx.Err() != nil {
			return
		}
		if err != nil || len(results) == 0 {
			// Heartbeat keeps proxies from closing the idle connection.
			if _, werr := fmt.Fprint(c.Writer, ": heartbeat\n\n"); werr != nil {
				return
			}
			flusher.Flush()
			continue
		}

		type streamResult struct {
			SystemID string `json:"system_id"`
			metaResultResponse
		}
		update := struct {
			Type    string         `json:"type"`
			Results []streamResult `json:"results"`
		}{Type: "update", Results: make([]streamResult, 0, len(results))}
		for i, m := range results {
			update.Results = append(update.Results, streamResult{
				SystemID:           systemIDs[i],
				metaResultResponse: metaResultJSON(m),
			})
		}
		if !writeFrame(c.Writer, flusher, update) {
			return
		}
	}
}

// writeFrame sends one SSE data frame. Returns false when the client is gone.
func writeFrame(w gin.ResponseWriter, flusher http.Flusher, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
