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

// GetConfigValue returns the raw JSON value for an app_config key.
// ok is false when the key is absent.
func (s *Store) GetConfigValue(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_config WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query config key %q: %w", key, err)
	}
	return raw, true, nil
}

// SetConfigValue upserts an app_config key.
func (s *Store) SetConfigValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal config value: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO app_config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to upsert config key %q: %w", key, err)
	}
	return nil
}

// InsertLLMUsage records one accounting row per LLM call.
func (s *Store) InsertLLMUsage(ctx context.Context, u models.LLMUsage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_usage (id, task, model, input_tokens, output_tokens, request_count, estimated_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Task, u.Model, u.InputTokens, u.OutputTokens, u.RequestCount, u.EstimatedCost, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert llm usage: %w", err)
	}
	return nil
}

// UsageSummaryRow aggregates llm_usage per model and day.
type UsageSummaryRow struct {
	Day           string  `json:"day"`
	Model         string  `json:"model"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	RequestCount  int     `json:"request_count"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// UsageSummary aggregates llm_usage since the given instant.
func (s *Store) UsageSummary(ctx context.Context, since time.Time) ([]UsageSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT to_char(created_at, 'YYYY-MM-DD') AS day, model,
		        COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(request_count), 0), COALESCE(SUM(estimated_cost), 0)
		 FROM llm_usage WHERE created_at >= $1
		 GROUP BY 1, 2 ORDER BY 1 DESC, 2`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	var summary []UsageSummaryRow
	for rows.Next() {
		var r UsageSummaryRow
		if err := rows.Scan(&r.Day, &r.Model, &r.InputTokens, &r.OutputTokens,
			&r.RequestCount, &r.EstimatedCost); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
