package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loglens/loglens/pkg/ingest"
)

// maxIngestBody bounds the request body read. 1000 entries of generous size.
const maxIngestBody = 16 << 20

// ingestBatch handles POST /api/v1/ingest. Accepts the three body shapes of
// ingest.ParseBatch and answers 200 only when at least one event was stored.
func (s *Server) ingestBatch(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	entries, err := ingest.ParseBatch(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.writer.Write(c.Request.Context(), entries, c.ClientIP())
	if errors.Is(err, ingest.ErrBatchTooLarge) || errors.Is(err, ingest.ErrEmptyBatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		mapStoreError(c, err)
		return
	}

	if result.Accepted == 0 {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
