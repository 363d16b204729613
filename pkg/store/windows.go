package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// LatestWindowEnd returns the latest to_ts already windowed for a system.
// ok is false when the system has no windows yet.
func (s *Store) LatestWindowEnd(ctx context.Context, systemID string) (time.Time, bool, error) {
	var toTs time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT to_ts FROM windows WHERE system_id = $1 ORDER BY to_ts DESC LIMIT 1`,
		systemID).Scan(&toTs)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest window: %w", err)
	}
	return toTs, true, nil
}

// InsertWindow persists a window row.
func (s *Store) InsertWindow(ctx context.Context, w models.Window) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO windows (id, system_id, from_ts, to_ts, trigger) VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.SystemID, w.FromTs, w.ToTs, string(w.Trigger))
	if err != nil {
		return fmt.Errorf("failed to insert window: %w", err)
	}
	return nil
}

// GetWindow loads one window.
func (s *Store) GetWindow(ctx context.Context, id string) (models.Window, error) {
	var w models.Window
	var trigger string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, system_id, from_ts, to_ts, trigger FROM windows WHERE id = $1`, id).
		Scan(&w.ID, &w.SystemID, &w.FromTs, &w.ToTs, &trigger)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	if err != nil {
		return w, fmt.Errorf("failed to query window: %w", err)
	}
	w.Trigger = models.WindowTrigger(trigger)
	return w, nil
}

// LatestWindowForSystem returns the most recent window ending after since.
func (s *Store) LatestWindowForSystem(ctx context.Context, systemID string, since time.Time) (models.Window, error) {
	var w models.Window
	var trigger string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, system_id, from_ts, to_ts, trigger FROM windows
		 WHERE system_id = $1 AND to_ts > $2 ORDER BY to_ts DESC LIMIT 1`,
		systemID, since).
		Scan(&w.ID, &w.SystemID, &w.FromTs, &w.ToTs, &trigger)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	if err != nil {
		return w, fmt.Errorf("failed to query latest window: %w", err)
	}
	w.Trigger = models.WindowTrigger(trigger)
	return w, nil
}
