// Package recalc rebuilds effective scores after events or scores change
// underneath existing windows. Acknowledging events, marking a pattern as
// normal behavior, or editing a template all invalidate the stored
// max_event_score; the engine recomputes it in SQL and re-blends the stored
// meta score.
package recalc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/store"
)

// Engine recomputes effective scores over the dashboard display window.
type Engine struct {
	store *store.Store
	cfg   *config.Service
}

// NewEngine creates a recalculation engine.
func NewEngine(st *store.Store, cfg *config.Service) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// Recalculate recomputes max_event_score and effective_value for every
// effective_scores row inside the display window, scoped to one system when
// systemID is set. When nothing was updated for a specific system (no
// meta-analysis has produced rows yet) the latest window is seeded from raw
// event scores with a zero meta score, so the dashboard is not blank.
func (e *Engine) Recalculate(ctx context.Context, systemID string) (int64, error) {
	since := e.horizon(ctx)
	wMeta := e.metaWeight(ctx)

	updated, err := e.store.RecalculateEffectiveScores(ctx, systemID, since, wMeta)
	if err != nil {
		return 0, err
	}
	if updated > 0 || systemID == "" {
		slog.Info("Effective scores recalculated", "system_id", systemID, "rows", updated)
		return updated, nil
	}

	w, err := e.store.LatestWindowForSystem(ctx, systemID, since)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := e.store.SeedEffectiveScores(ctx, w, wMeta); err != nil {
		return 0, err
	}
	slog.Info("Effective scores seeded from event scores", "system_id", systemID, "window_id", w.ID)
	return int64(len(models.Criteria)), nil
}

// ApplyTemplate zeroes event scores for messages matching an enabled template
// and recalculates the affected system's effective scores. Used when an
// operator creates or edits a normal-behavior template with retroactive
// application.
func (e *Engine) ApplyTemplate(ctx context.Context, tmpl models.NormalBehaviorTemplate) (int, error) {
	if !tmpl.Enabled {
		return 0, nil
	}
	ids, err := e.store.ZeroScoresForPattern(ctx, tmpl.Pattern, tmpl.SystemID, e.horizon(ctx))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := e.Recalculate(ctx, tmpl.SystemID); err != nil {
		return len(ids), err
	}
	slog.Info("Template applied retroactively",
		"template_id", tmpl.ID, "events_zeroed", len(ids))
	return len(ids), nil
}

func (e *Engine) horizon(ctx context.Context) time.Time {
	days := e.cfg.Dashboard(ctx).ScoreDisplayWindowDays
	return time.Now().UTC().AddDate(0, 0, -days)
}

func (e *Engine) metaWeight(ctx context.Context) float64 {
	w := e.cfg.Pipeline(ctx).EffectiveMetaWeight
	if w <= 0 || w >= 1 {
		return models.MetaWeight
	}
	return w
}
