package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// InsertMetaResult persists the per-window meta-analysis output.
func (s *Store) InsertMetaResult(ctx context.Context, m models.MetaResult) error {
	scores, err := json.Marshal(m.MetaScores)
	if err != nil {
		return fmt.Errorf("failed to marshal meta scores: %w", err)
	}
	findings, err := json.Marshal(m.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}
	keyIDs, err := json.Marshal(m.KeyEventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal key event ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta_results (id, window_id, meta_scores, summary, findings, recommended_action, key_event_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.WindowID, string(scores), m.Summary, string(findings), m.RecommendedAction, string(keyIDs), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert meta result: %w", err)
	}
	return nil
}

// MetaResultExists reports whether a window already has a meta result.
// Used for meta-analysis idempotency.
func (s *Store) MetaResultExists(ctx context.Context, windowID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM meta_results WHERE window_id = $1`, windowID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check meta result: %w", err)
	}
	return true, nil
}

// RecentSummaries returns the latest window summaries for a system, newest
// first, excluding one window (the one being analyzed).
func (s *Store) RecentSummaries(ctx context.Context, systemID, excludeWindowID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.summary FROM meta_results m
		 JOIN windows w ON w.id = m.window_id
		 WHERE w.system_id = $1 AND m.window_id <> $2 AND m.summary <> ''
		 ORDER BY m.created_at DESC LIMIT $3`,
		systemID, excludeWindowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var sum string
		if err := rows.Scan(&sum); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// MetaResultsSince returns meta results created after the given instant,
// joined to their window's system. Feeds the SSE stream.
func (s *Store) MetaResultsSince(ctx context.Context, since time.Time) ([]models.MetaResult, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.window_id, m.meta_scores, m.summary, m.findings,
		        m.recommended_action, m.key_event_ids, m.created_at, w.system_id
		 FROM meta_results m
		 JOIN windows w ON w.id = m.window_id
		 WHERE m.created_at > $1
		 ORDER BY m.created_at ASC`, since)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query recent meta results: %w", err)
	}
	defer rows.Close()

	var results []models.MetaResult
	var systemIDs []string
	for rows.Next() {
		m, systemID, err := scanMetaResult(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, m)
		systemIDs = append(systemIDs, systemID)
	}
	return results, systemIDs, rows.Err()
}

// MetaResultsForSystem returns a system's meta results, newest first.
func (s *Store) MetaResultsForSystem(ctx context.Context, systemID string, limit int) ([]models.MetaResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.window_id, m.meta_scores, m.summary, m.findings,
		        m.recommended_action, m.key_event_ids, m.created_at, w.system_id
		 FROM meta_results m
		 JOIN windows w ON w.id = m.window_id
		 WHERE w.system_id = $1
		 ORDER BY m.created_at DESC LIMIT $2`, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query meta results: %w", err)
	}
	defer rows.Close()

	var results []models.MetaResult
	for rows.Next() {
		m, _, err := scanMetaResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// scanMetaResult tolerates malformed stored JSON by falling back to the raw
// value rather than failing the query.
func scanMetaResult(rows *sql.Rows) (models.MetaResult, string, error) {
	var m models.MetaResult
	var systemID string
	var scores, findings, keyIDs []byte
	err := rows.Scan(&m.ID, &m.WindowID, &scores, &m.Summary, &findings,
		&m.RecommendedAction, &keyIDs, &m.CreatedAt, &systemID)
	if err != nil {
		return m, "", fmt.Errorf("failed to scan meta result: %w", err)
	}
	if err := json.Unmarshal(scores, &m.MetaScores); err != nil {
		m.MetaScores = map[string]float64{}
	}
	if err := json.Unmarshal(findings, &m.Findings); err != nil {
		m.Findings = []models.FlatFinding{{Text: string(findings), Severity: models.SeverityInfo}}
	}
	if err := json.Unmarshal(keyIDs, &m.KeyEventIDs); err != nil {
		m.KeyEventIDs = nil
	}
	return m, systemID, nil
}

// UpsertEffectiveScore idempotently writes one effective_scores row.
func (s *Store) UpsertEffectiveScore(ctx context.Context, es models.EffectiveScore) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO effective_scores (window_id, system_id, criterion_id, effective_value, meta_score, max_event_score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (window_id, system_id, criterion_id) DO UPDATE SET
		   effective_value = EXCLUDED.effective_value,
		   meta_score = EXCLUDED.meta_score,
		   max_event_score = EXCLUDED.max_event_score,
		   updated_at = EXCLUDED.updated_at`,
		es.WindowID, es.SystemID, es.CriterionID, es.EffectiveValue, es.MetaScore, es.MaxEventScore, es.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert effective score: %w", err)
	}
	return nil
}

// EffectiveScoresForSystem returns the latest effective scores per criterion
// for a system within the display window.
func (s *Store) EffectiveScoresForSystem(ctx context.Context, systemID string, since time.Time) ([]models.EffectiveScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (criterion_id) window_id, system_id, criterion_id,
		        effective_value, meta_score, max_event_score, updated_at
		 FROM effective_scores
		 WHERE system_id = $1 AND updated_at >= $2
		 ORDER BY criterion_id, updated_at DESC`, systemID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query effective scores: %w", err)
	}
	defer rows.Close()

	var scores []models.EffectiveScore
	for rows.Next() {
		var es models.EffectiveScore
		if err := rows.Scan(&es.WindowID, &es.SystemID, &es.CriterionID,
			&es.EffectiveValue, &es.MetaScore, &es.MaxEventScore, &es.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan effective score: %w", err)
		}
		scores = append(scores, es)
	}
	return scores, rows.Err()
}
