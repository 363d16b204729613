// Package windowing advances per-system analysis windows: fixed scheduled
// intervals behind a guard, plus manual re-evaluation spans.
package windowing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/store"
)

// maxWindowsPerRun bounds catch-up after downtime so one tick cannot create
// an unbounded backlog of meta-analyses.
const maxWindowsPerRun = 48

// Service creates windows.
type Service struct {
	store *store.Store
	cfg   *config.Service
}

// NewService wires the windowing service.
func NewService(st *store.Store, cfg *config.Service) *Service {
	return &Service{store: st, cfg: cfg}
}

// Advance creates scheduled windows for every system and returns the new
// windows across all of them. Intervals are only closed when they sit behind
// the guard and every event inside carries a full score set.
func (s *Service) Advance(ctx context.Context, now time.Time) ([]models.Window, error) {
	systems, err := s.store.ListSystems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}

	interval := time.Duration(s.cfg.Pipeline(ctx).WindowMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	// The guard keeps at least one interval between a window's end and now,
	// so late arrivals and in-flight scoring can land first.
	guard := interval

	var created []models.Window
	for _, sys := range systems {
		windows, err := s.advanceSystem(ctx, sys.ID, interval, now.Add(-guard))
		if err != nil {
			slog.Error("Window advance failed for system", "system_id", sys.ID, "error", err)
			continue
		}
		created = append(created, windows...)
	}
	return created, nil
}

// advanceSystem closes full intervals from the last windowed point up to the
// horizon.
func (s *Service) advanceSystem(ctx context.Context, systemID string, interval time.Duration, horizon time.Time) ([]models.Window, error) {
	last, ok, err := s.store.LatestWindowEnd(ctx, systemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// First run: start at the previous interval boundary before the
		// horizon instead of walking the whole event history.
		last = horizon.Truncate(interval).Add(-interval)
	}

	var created []models.Window
	for from := last; from.Add(interval).Before(horizon) || from.Add(interval).Equal(horizon); from = from.Add(interval) {
		if len(created) >= maxWindowsPerRun {
			break
		}
		to := from.Add(interval)

		count, err := s.store.CountEventsInRange(ctx, systemID, from, to)
		if err != nil {
			return created, err
		}
		if count > 0 {
			unscored, err := s.store.CountUnscoredInRange(ctx, systemID, from, to)
			if err != nil {
				return created, err
			}
			if unscored > 0 {
				// Not fully scored yet; stop here and retry next tick.
				break
			}
		}

		w := models.Window{
			ID:       uuid.NewString(),
			SystemID: systemID,
			FromTs:   from.UTC(),
			ToTs:     to.UTC(),
			Trigger:  models.TriggerScheduled,
		}
		if err := s.store.InsertWindow(ctx, w); err != nil {
			return created, err
		}
		metrics.WindowsCreated.WithLabelValues(string(w.Trigger)).Inc()
		created = append(created, w)
	}
	return created, nil
}

// CreateManual creates one manual window over [from, to). Zero times default
// to the configured re-evaluation span ending now.
func (s *Service) CreateManual(ctx context.Context, systemID string, from, to time.Time) (models.Window, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		days := s.cfg.Dashboard(ctx).ReevalWindowDays
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		return models.Window{}, fmt.Errorf("%w: manual window range is empty", store.ErrInvalidInput)
	}

	w := models.Window{
		ID:       uuid.NewString(),
		SystemID: systemID,
		FromTs:   from.UTC(),
		ToTs:     to.UTC(),
		Trigger:  models.TriggerManual,
	}
	if err := s.store.InsertWindow(ctx, w); err != nil {
		return models.Window{}, err
	}
	metrics.WindowsCreated.WithLabelValues(string(w.Trigger)).Inc()
	return w, nil
}
