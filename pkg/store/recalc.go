package store

import (
	"context"
	"fmt"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// RecalculateEffectiveScores recomputes max_event_score for every
// effective_scores row whose window starts after since, excluding
// acknowledged events, and re-blends effective_value from the stored meta
// score. An empty systemID recalculates every system. Returns the number of
// rows updated.
func (s *Store) RecalculateEffectiveScores(ctx context.Context, systemID string, since time.Time, wMeta float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH window_max AS (
			SELECT es.window_id, es.criterion_id, COALESCE(MAX(sc.score), 0) AS new_max
			FROM effective_scores es
			JOIN windows w ON w.id = es.window_id
			LEFT JOIN events e ON e.system_id = w.system_id
				AND e.timestamp >= w.from_ts AND e.timestamp < w.to_ts
				AND e.acknowledged_at IS NULL
			LEFT JOIN event_scores sc ON sc.event_id = e.id::text
				AND sc.criterion_id = es.criterion_id AND sc.score_type = 'event'
			WHERE w.from_ts >= $1 AND ($2 = '' OR es.system_id = $2)
			GROUP BY es.window_id, es.criterion_id
		)
		UPDATE effective_scores es
		SET max_event_score = wm.new_max,
			effective_value = CASE WHEN wm.new_max = 0 THEN 0
				ELSE $3 * es.meta_score + (1 - $3) * wm.new_max END,
			updated_at = now()
		FROM window_max wm
		WHERE es.window_id = wm.window_id AND es.criterion_id = wm.criterion_id`,
		since, systemID, wMeta)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate effective scores: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SeedEffectiveScores inserts baseline effective_scores rows for a window
// from live event scores, with meta_score fixed at zero. Used when
// recalculation found nothing to update, so the dashboard has values until
// the next meta-analysis.
func (s *Store) SeedEffectiveScores(ctx context.Context, w models.Window, wMeta float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO effective_scores (window_id, system_id, criterion_id, effective_value, meta_score, max_event_score, updated_at)
		SELECT $1, $2, c.id,
			CASE WHEN COALESCE(mx.new_max, 0) = 0 THEN 0 ELSE (1 - $5) * mx.new_max END,
			0, COALESCE(mx.new_max, 0), now()
		FROM criteria c
		LEFT JOIN LATERAL (
			SELECT MAX(sc.score) AS new_max
			FROM events e
			JOIN event_scores sc ON sc.event_id = e.id::text
				AND sc.criterion_id = c.id AND sc.score_type = 'event'
			WHERE e.system_id = $2 AND e.timestamp >= $3 AND e.timestamp < $4
			  AND e.acknowledged_at IS NULL
		) mx ON true
		ON CONFLICT (window_id, system_id, criterion_id) DO UPDATE
		SET effective_value = EXCLUDED.effective_value,
			meta_score = EXCLUDED.meta_score,
			max_event_score = EXCLUDED.max_event_score,
			updated_at = now()`,
		w.ID, w.SystemID, w.FromTs, w.ToTs, wMeta)
	if err != nil {
		return fmt.Errorf("failed to seed effective scores: %w", err)
	}
	return nil
}
