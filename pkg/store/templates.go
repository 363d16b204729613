package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loglens/loglens/pkg/models"
)

const templateColumns = `id, system_id, pattern, host_pattern, program_pattern, example_message, enabled, notes, created_at`

// ListTemplates returns normal-behavior templates; enabledOnly filters to
// enabled ones (the matching path).
func (s *Store) ListTemplates(ctx context.Context, enabledOnly bool) ([]models.NormalBehaviorTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM normal_behavior_templates`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.NormalBehaviorTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetTemplate loads one template.
func (s *Store) GetTemplate(ctx context.Context, id string) (models.NormalBehaviorTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM normal_behavior_templates WHERE id = $1`, id)
	if err != nil {
		return models.NormalBehaviorTemplate{}, fmt.Errorf("failed to query template: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.NormalBehaviorTemplate{}, err
		}
		return models.NormalBehaviorTemplate{}, ErrNotFound
	}
	return scanTemplate(rows)
}

// CreateTemplate persists a template.
func (s *Store) CreateTemplate(ctx context.Context, t models.NormalBehaviorTemplate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO normal_behavior_templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, nullIfEmpty(t.SystemID), t.Pattern, t.HostPattern, t.ProgramPattern,
		t.ExampleMessage, t.Enabled, t.Notes, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// UpdateTemplate updates a template's mutable fields.
func (s *Store) UpdateTemplate(ctx context.Context, t models.NormalBehaviorTemplate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE normal_behavior_templates SET system_id = $2, pattern = $3, host_pattern = $4,
		   program_pattern = $5, example_message = $6, enabled = $7, notes = $8
		 WHERE id = $1`,
		t.ID, nullIfEmpty(t.SystemID), t.Pattern, t.HostPattern, t.ProgramPattern,
		t.ExampleMessage, t.Enabled, t.Notes)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM normal_behavior_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTemplate(rows *sql.Rows) (models.NormalBehaviorTemplate, error) {
	var t models.NormalBehaviorTemplate
	var systemID sql.NullString
	err := rows.Scan(&t.ID, &systemID, &t.Pattern, &t.HostPattern, &t.ProgramPattern,
		&t.ExampleMessage, &t.Enabled, &t.Notes, &t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("failed to scan template: %w", err)
	}
	t.SystemID = systemID.String
	return t, nil
}
