package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// insertChunkSize bounds the number of events per INSERT statement.
const insertChunkSize = 100

// eventColumns is the scan/insert column list shared by event queries.
const eventColumns = `id, system_id, log_source_id, connector_id, received_at, timestamp,
	message, severity, host, source_ip, service, facility, program,
	trace_id, span_id, payload, normalized_hash, external_id, template_id, acknowledged_at`

// InsertEvents inserts events in chunks with ON CONFLICT (normalized_hash,
// timestamp) DO NOTHING, so shipper retries are idempotent. Returns the number
// of rows actually written.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	inserted := 0
	for start := 0; start < len(events); start += insertChunkSize {
		end := min(start+insertChunkSize, len(events))
		chunk := events[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO events (` + eventColumns + `) VALUES `)
		args := make([]any, 0, len(chunk)*20)
		for i, ev := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 20
			sb.WriteString("(")
			for j := 1; j <= 20; j++ {
				if j > 1 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", base+j)
			}
			sb.WriteString(")")

			var payload any
			if len(ev.Payload) > 0 {
				raw, err := json.Marshal(ev.Payload)
				if err == nil {
					payload = string(raw)
				}
			}
			args = append(args,
				ev.ID, nullIfEmpty(ev.SystemID), nullIfEmpty(ev.LogSourceID), ev.ConnectorID,
				ev.ReceivedAt, ev.Timestamp, ev.Message, ev.Severity, ev.Host,
				nullIfEmpty(ev.SourceIP), ev.Service, ev.Facility, ev.Program,
				nullIfEmpty(ev.TraceID), nullIfEmpty(ev.SpanID), payload,
				ev.NormalizedHash, nullIfEmpty(ev.ExternalID), nullIfEmpty(ev.TemplateID),
				ev.AcknowledgedAt,
			)
		}
		sb.WriteString(` ON CONFLICT (normalized_hash, timestamp) DO NOTHING`)

		res, err := s.db.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert event chunk: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// UnscoredEvents returns events that do not yet have a full set of criterion
// scores, oldest first, capped at limit.
func (s *Store) UnscoredEvents(ctx context.Context, limit int) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE e.system_id IS NOT NULL
		  AND (SELECT count(*) FROM event_scores sc
		       WHERE sc.event_id = e.id::text AND sc.score_type = 'event') < $1
		ORDER BY e.timestamp ASC, e.id ASC
		LIMIT $2`
	return s.queryEvents(ctx, query, models.CriterionCount, limit)
}

// EventsInRange returns a system's events with timestamp in [from, to),
// newest first with a deterministic secondary sort, capped at limit.
// Acknowledged events are excluded when excludeAcked is set.
func (s *Store) EventsInRange(ctx context.Context, systemID string, from, to time.Time, limit int, excludeAcked bool) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE e.system_id = $1 AND e.timestamp >= $2 AND e.timestamp < $3`
	if excludeAcked {
		query += ` AND e.acknowledged_at IS NULL`
	}
	query += ` ORDER BY e.timestamp DESC, e.id ASC LIMIT $4`
	return s.queryEvents(ctx, query, systemID, from, to, limit)
}

// CountUnscoredInRange counts events in [from, to) for a system that still
// miss at least one criterion score. Zero means the interval is fully scored.
func (s *Store) CountUnscoredInRange(ctx context.Context, systemID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM events e
		WHERE e.system_id = $1 AND e.timestamp >= $2 AND e.timestamp < $3
		  AND (SELECT count(*) FROM event_scores sc
		       WHERE sc.event_id = e.id::text AND sc.score_type = 'event') < $4`,
		systemID, from, to, models.CriterionCount).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unscored events: %w", err)
	}
	return n, nil
}

// CountEventsInRange counts a system's events in [from, to).
func (s *Store) CountEventsInRange(ctx context.Context, systemID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM events
		WHERE system_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		systemID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ackBatchSize bounds one UPDATE statement of the acknowledge path.
const ackBatchSize = 5000

// AcknowledgeEvents sets acknowledged_at for events in [from, to), optionally
// scoped to one system, in batches. Returns the total number of updated rows.
func (s *Store) AcknowledgeEvents(ctx context.Context, systemID string, from, to time.Time, ack bool) (int, error) {
	var value any
	if ack {
		value = time.Now().UTC()
	}
	total := 0
	for {
		query := `UPDATE events SET acknowledged_at = $1
			WHERE (id, timestamp) IN (
				SELECT id, timestamp FROM events
				WHERE timestamp >= $2 AND timestamp < $3`
		args := []any{value, from, to}
		if ack {
			query += ` AND acknowledged_at IS NULL`
		} else {
			query += ` AND acknowledged_at IS NOT NULL`
		}
		if systemID != "" {
			query += ` AND system_id = $4`
			args = append(args, systemID)
		}
		query += fmt.Sprintf(` LIMIT %d)`, ackBatchSize)

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to update acknowledged_at: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < ackBatchSize {
			return total, nil
		}
	}
}

// DeleteEventsBefore removes a system's events older than cutoff together with
// their score rows (no FK: application-enforced integrity).
func (s *Store) DeleteEventsBefore(ctx context.Context, systemID string, cutoff time.Time) (int, error) {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_scores
		WHERE event_id IN (SELECT id::text FROM events WHERE system_id = $1 AND timestamp < $2)`,
		systemID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete event scores: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE system_id = $1 AND timestamp < $2`,
		systemID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// EventsByTrace returns all events carrying the given trace id.
func (s *Store) EventsByTrace(ctx context.Context, traceID string, limit int) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE e.trace_id = $1
		ORDER BY e.timestamp DESC, e.id ASC LIMIT $2`
	return s.queryEvents(ctx, query, traceID, limit)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (models.Event, error) {
	var ev models.Event
	var systemID, logSourceID, sourceIP, traceID, spanID, externalID, templateID sql.NullString
	var payload []byte
	var ackedAt sql.NullTime

	err := rows.Scan(
		&ev.ID, &systemID, &logSourceID, &ev.ConnectorID, &ev.ReceivedAt, &ev.Timestamp,
		&ev.Message, &ev.Severity, &ev.Host, &sourceIP, &ev.Service, &ev.Facility, &ev.Program,
		&traceID, &spanID, &payload, &ev.NormalizedHash, &externalID, &templateID, &ackedAt,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}
	ev.SystemID = systemID.String
	ev.LogSourceID = logSourceID.String
	ev.SourceIP = sourceIP.String
	ev.TraceID = traceID.String
	ev.SpanID = spanID.String
	ev.ExternalID = externalID.String
	ev.TemplateID = templateID.String
	if ackedAt.Valid {
		t := ackedAt.Time
		ev.AcknowledgedAt = &t
	}
	if len(payload) > 0 {
		// Stored JSON that fails to parse is surfaced raw rather than crashing.
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err == nil {
			ev.Payload = m
		} else {
			ev.Payload = map[string]any{"_raw": string(payload)}
		}
	}
	return ev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
