package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// UpsertEventScores writes per-criterion score rows, replacing any existing
// value for the same (event, criterion, score_type).
func (s *Store) UpsertEventScores(ctx context.Context, scores []models.EventScore) error {
	if len(scores) == 0 {
		return nil
	}
	for start := 0; start < len(scores); start += insertChunkSize {
		end := min(start+insertChunkSize, len(scores))
		chunk := scores[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO event_scores (event_id, criterion_id, score_type, score) VALUES `)
		args := make([]any, 0, len(chunk)*4)
		for i, sc := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 4
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
			scoreType := sc.ScoreType
			if scoreType == "" {
				scoreType = models.ScoreTypeEvent
			}
			args = append(args, sc.EventID, sc.CriterionID, scoreType, sc.Score)
		}
		sb.WriteString(` ON CONFLICT (event_id, criterion_id, score_type) DO UPDATE SET score = EXCLUDED.score`)

		if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to upsert event scores: %w", err)
		}
	}
	return nil
}

// ScoresForEvents returns event → criterion → score for the given event ids.
func (s *Store) ScoresForEvents(ctx context.Context, eventIDs []string) (map[string]map[int]float64, error) {
	result := make(map[string]map[int]float64)
	if len(eventIDs) == 0 {
		return result, nil
	}
	ph := make([]string, len(eventIDs))
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT event_id, criterion_id, score FROM event_scores
		WHERE score_type = 'event' AND event_id IN (%s)`, strings.Join(ph, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var criterionID int
		var score float64
		if err := rows.Scan(&eventID, &criterionID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan event score: %w", err)
		}
		if result[eventID] == nil {
			result[eventID] = make(map[int]float64, models.CriterionCount)
		}
		result[eventID][criterionID] = score
	}
	return result, rows.Err()
}

// MaxScoresForEvents returns the per-criterion MAX score over the given event
// ids, excluding scores whose event is acknowledged. Criteria with no rows
// report 0.
func (s *Store) MaxScoresForEvents(ctx context.Context, eventIDs []string) (map[int]float64, error) {
	result := make(map[int]float64, models.CriterionCount)
	for _, c := range models.Criteria {
		result[c.ID] = 0
	}
	if len(eventIDs) == 0 {
		return result, nil
	}
	ph := make([]string, len(eventIDs))
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT sc.criterion_id, MAX(sc.score)
		FROM event_scores sc
		JOIN events e ON e.id::text = sc.event_id
		WHERE sc.score_type = 'event' AND sc.event_id IN (%s)
		  AND e.acknowledged_at IS NULL
		GROUP BY sc.criterion_id`, strings.Join(ph, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query max scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var criterionID int
		var maxScore float64
		if err := rows.Scan(&criterionID, &maxScore); err != nil {
			return nil, fmt.Errorf("failed to scan max score: %w", err)
		}
		result[criterionID] = maxScore
	}
	return result, rows.Err()
}

// ZeroScoresForPattern sets event scores to 0 for events whose message matches
// the given case-insensitive regex, scoped to a system when systemID is set,
// over [from, now). Returns the affected event ids.
func (s *Store) ZeroScoresForPattern(ctx context.Context, pattern, systemID string, from time.Time) ([]string, error) {
	query := `SELECT id::text FROM events WHERE timestamp >= $1 AND message ~* $2`
	args := []any{from, pattern}
	if systemID != "" {
		query += ` AND system_id = $3`
		args = append(args, systemID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select matching events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ph := make([]string, len(ids))
	updateArgs := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		updateArgs[i] = id
	}
	update := fmt.Sprintf(`UPDATE event_scores SET score = 0
		WHERE score_type = 'event' AND event_id IN (%s)`, strings.Join(ph, ", "))
	if _, err := s.db.ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, fmt.Errorf("failed to zero scores: %w", err)
	}
	return ids, nil
}
