package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// ListSystems returns all monitored systems ordered by name.
func (s *Store) ListSystems(ctx context.Context) ([]models.MonitoredSystem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, retention_days, event_source, timezone_name, tz_offset_minutes, created_at
		 FROM monitored_systems ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query systems: %w", err)
	}
	defer rows.Close()

	var systems []models.MonitoredSystem
	for rows.Next() {
		sys, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// GetSystem loads one monitored system.
func (s *Store) GetSystem(ctx context.Context, id string) (models.MonitoredSystem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, retention_days, event_source, timezone_name, tz_offset_minutes, created_at
		 FROM monitored_systems WHERE id = $1`, id)
	if err != nil {
		return models.MonitoredSystem{}, fmt.Errorf("failed to query system: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.MonitoredSystem{}, err
		}
		return models.MonitoredSystem{}, ErrNotFound
	}
	return scanSystem(rows)
}

// CreateSystem persists a monitored system.
func (s *Store) CreateSystem(ctx context.Context, sys models.MonitoredSystem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitored_systems (id, name, description, retention_days, event_source, timezone_name, tz_offset_minutes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sys.ID, sys.Name, sys.Description, sys.RetentionDays, string(sys.EventSource),
		sys.TimezoneName, sys.TzOffsetMinutes, sys.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert system: %w", err)
	}
	return nil
}

// UpdateSystem updates the mutable attributes of a monitored system.
func (s *Store) UpdateSystem(ctx context.Context, sys models.MonitoredSystem) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitored_systems SET name = $2, description = $3, retention_days = $4,
		   event_source = $5, timezone_name = $6, tz_offset_minutes = $7
		 WHERE id = $1`,
		sys.ID, sys.Name, sys.Description, sys.RetentionDays, string(sys.EventSource),
		sys.TimezoneName, sys.TzOffsetMinutes)
	if err != nil {
		return fmt.Errorf("failed to update system: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSystem(rows *sql.Rows) (models.MonitoredSystem, error) {
	var sys models.MonitoredSystem
	var retention sql.NullInt64
	var source string
	err := rows.Scan(&sys.ID, &sys.Name, &sys.Description, &retention, &source,
		&sys.TimezoneName, &sys.TzOffsetMinutes, &sys.CreatedAt)
	if err != nil {
		return sys, fmt.Errorf("failed to scan system: %w", err)
	}
	if retention.Valid {
		v := int(retention.Int64)
		sys.RetentionDays = &v
	}
	sys.EventSource = models.EventSourceKind(source)
	return sys, nil
}

// ListLogSources returns every log source, ordered by system. The source
// matcher loads the full set and matches in memory.
func (s *Store) ListLogSources(ctx context.Context) ([]models.LogSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, system_id, label, host, program, source_ip, connector_id
		 FROM log_sources ORDER BY system_id, label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query log sources: %w", err)
	}
	defer rows.Close()

	var sources []models.LogSource
	for rows.Next() {
		var ls models.LogSource
		if err := rows.Scan(&ls.ID, &ls.SystemID, &ls.Label, &ls.Host, &ls.Program,
			&ls.SourceIP, &ls.ConnectorID); err != nil {
			return nil, fmt.Errorf("failed to scan log source: %w", err)
		}
		sources = append(sources, ls)
	}
	return sources, rows.Err()
}

// LogSourcesForSystem returns one system's sources.
func (s *Store) LogSourcesForSystem(ctx context.Context, systemID string) ([]models.LogSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, system_id, label, host, program, source_ip, connector_id
		 FROM log_sources WHERE system_id = $1 ORDER BY label`, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log sources: %w", err)
	}
	defer rows.Close()

	var sources []models.LogSource
	for rows.Next() {
		var ls models.LogSource
		if err := rows.Scan(&ls.ID, &ls.SystemID, &ls.Label, &ls.Host, &ls.Program,
			&ls.SourceIP, &ls.ConnectorID); err != nil {
			return nil, fmt.Errorf("failed to scan log source: %w", err)
		}
		sources = append(sources, ls)
	}
	return sources, rows.Err()
}

// CreateLogSource persists a log source.
func (s *Store) CreateLogSource(ctx context.Context, ls models.LogSource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_sources (id, system_id, label, host, program, source_ip, connector_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ls.ID, ls.SystemID, ls.Label, ls.Host, ls.Program, ls.SourceIP, ls.ConnectorID)
	if err != nil {
		return fmt.Errorf("failed to insert log source: %w", err)
	}
	return nil
}

// DeleteLogSource removes a log source.
func (s *Store) DeleteLogSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM log_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete log source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertDiscoveryEntry parks an unmatched ingest record.
func (s *Store) InsertDiscoveryEntry(ctx context.Context, e models.DiscoveryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_buffer (id, host, source_ip, program, facility, severity, message_sample, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Host, e.SourceIP, e.Program, e.Facility, e.Severity, e.MessageSample, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert discovery entry: %w", err)
	}
	return nil
}

// ListDiscoveryEntries returns buffered unmatched records, newest first.
func (s *Store) ListDiscoveryEntries(ctx context.Context, limit int) ([]models.DiscoveryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, host, source_ip, program, facility, severity, message_sample, received_at
		 FROM discovery_buffer ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery buffer: %w", err)
	}
	defer rows.Close()

	var entries []models.DiscoveryEntry
	for rows.Next() {
		var e models.DiscoveryEntry
		if err := rows.Scan(&e.ID, &e.Host, &e.SourceIP, &e.Program, &e.Facility,
			&e.Severity, &e.MessageSample, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneDiscoveryEntries deletes buffered records older than cutoff.
func (s *Store) PruneDiscoveryEntries(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM discovery_buffer WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune discovery buffer: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
