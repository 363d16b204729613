package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/normalizer"
	"github.com/loglens/loglens/pkg/redact"
	"github.com/loglens/loglens/pkg/store"
)

// maxBatchSize is the hard cap on entries per ingest request.
const maxBatchSize = 1000

// ErrBatchTooLarge rejects oversized batches outright.
var ErrBatchTooLarge = fmt.Errorf("ingest batch exceeds %d entries", maxBatchSize)

// ErrEmptyBatch rejects bodies that decode to nothing.
var ErrEmptyBatch = errors.New("ingest batch is empty")

// Result reports what happened to one batch.
type Result struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// ParseBatch decodes the three accepted body shapes: {"events": [...]}, a
// bare array, or a single object carrying message/msg.
func ParseBatch(body []byte) ([]map[string]any, error) {
	var wrapped struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Events != nil {
		return wrapped.Events, nil
	}

	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var single map[string]any
	if err := json.Unmarshal(body, &single); err == nil {
		if _, ok := single["message"]; ok {
			return []map[string]any{single}, nil
		}
		if _, ok := single["msg"]; ok {
			return []map[string]any{single}, nil
		}
	}
	return nil, errors.New("unrecognized ingest body shape")
}

// Writer runs batches through reassembly, normalization, redaction and
// matching, then persists accepted events in one transaction. Safe for
// concurrent use; the reassembler serializes its own state.
type Writer struct {
	store       *store.Store
	cfg         *config.Service
	reassembler *normalizer.Reassembler
	redactor    *redact.Redactor
}

// NewWriter wires the ingest path.
func NewWriter(st *store.Store, cfg *config.Service) *Writer {
	return &Writer{
		store:       st,
		cfg:         cfg,
		reassembler: normalizer.NewReassembler(),
		redactor:    redact.NewRedactor(nil),
	}
}

// Write processes one batch. peerAddr is the transport peer of the request,
// used as a source-ip fallback during normalization.
func (w *Writer) Write(ctx context.Context, entries []map[string]any, peerAddr string) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrEmptyBatch
	}
	if len(entries) > maxBatchSize {
		return Result{}, ErrBatchTooLarge
	}

	pipeline := w.cfg.Pipeline(ctx)
	w.redactor.Reload(w.cfg.Redaction(ctx).Patterns)
	discovery := w.cfg.Discovery(ctx)

	now := time.Now()
	if pipeline.MultilineEnabled() {
		entries = w.reassembler.Reassemble(entries, now)
	}

	norm := normalizer.New(normalizer.Options{
		MaxMessageLength: pipeline.MaxEventMessageLength,
		MaxFutureDrift:   time.Duration(pipeline.MaxFutureDriftSeconds) * time.Second,
	})

	sources, err := w.store.ListLogSources(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load log sources: %w", err)
	}
	matcher := NewMatcher(sources)

	systems := make(map[string]models.MonitoredSystem)

	var result Result
	var rows []models.Event
	for _, entry := range entries {
		ev, err := norm.Normalize(entry, peerAddr, now)
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, err.Error())
			metrics.EventsRejected.WithLabelValues("invalid").Inc()
			continue
		}

		ev.Message = w.redactor.RedactMessage(ev.Message)
		ev.Payload = w.redactor.RedactPayload(ev.Payload)

		src, ok := matcher.Match(&ev)
		if !ok {
			result.Rejected++
			metrics.EventsRejected.WithLabelValues("unmatched").Inc()
			if discovery.Enabled {
				w.bufferDiscovery(ev, now)
			}
			continue
		}
		ev.SystemID = src.SystemID
		ev.LogSourceID = src.ID

		sys, found := systems[src.SystemID]
		if !found {
			if sys, err = w.store.GetSystem(ctx, src.SystemID); err != nil {
				slog.Warn("Failed to load system for timezone correction", "system_id", src.SystemID, "error", err)
				sys = models.MonitoredSystem{ID: src.SystemID}
			}
			systems[src.SystemID] = sys
		}
		normalizer.ApplyTimezoneCorrection(&ev, sys, time.UTC)

		ev.ID = uuid.NewString()
		ev.TemplateID = normalizer.TemplateID(ev.Message)
		normalizer.ComputeHash(&ev)
		rows = append(rows, ev)
	}

	if len(rows) > 0 {
		inserted, err := w.insertTx(ctx, rows)
		if err != nil {
			return Result{}, err
		}
		result.Accepted = inserted
		// Duplicates dropped by ON CONFLICT are neither accepted nor errors.
		dupes := len(rows) - inserted
		result.Rejected += dupes
		if dupes > 0 {
			metrics.EventsRejected.WithLabelValues("duplicate").Add(float64(dupes))
		}
		for _, ev := range rows {
			metrics.EventsIngested.WithLabelValues(ev.SystemID).Inc()
		}
	}
	return result, nil
}

// insertTx persists one batch atomically.
func (w *Writer) insertTx(ctx context.Context, rows []models.Event) (int, error) {
	var inserted int
	err := w.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		inserted, err = tx.InsertEvents(ctx, rows)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist ingest batch: %w", err)
	}
	return inserted, nil
}

// bufferDiscovery parks an unmatched event for later source suggestions.
// Fire-and-forget: failures are logged, never surfaced to the shipper.
func (w *Writer) bufferDiscovery(ev models.Event, now time.Time) {
	sample := ev.Message
	if len(sample) > 500 {
		sample = sample[:500]
	}
	entry := models.DiscoveryEntry{
		ID:            uuid.NewString(),
		Host:          ev.Host,
		SourceIP:      ev.SourceIP,
		Program:       ev.Program,
		Facility:      ev.Facility,
		Severity:      ev.Severity,
		MessageSample: sample,
		ReceivedAt:    now.UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.store.InsertDiscoveryEntry(ctx, entry); err != nil {
			slog.Warn("Failed to buffer discovery entry", "host", entry.Host, "error", err)
		}
	}()
}
