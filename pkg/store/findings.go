package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

const findingColumns = `id, system_id, meta_result_id, text, severity, criterion_slug, status,
	fingerprint, occurrence_count, consecutive_misses, reopen_count,
	last_seen_at, resolved_at, resolved_by_meta_id, resolution_evidence, key_event_ids, created_at`

// InsertFinding persists a new finding row.
func (s *Store) InsertFinding(ctx context.Context, f models.Finding) error {
	keyIDs, err := json.Marshal(f.KeyEventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal key event ids: %w", err)
	}
	var evidence any
	if f.ResolutionEvidence != nil {
		raw, err := json.Marshal(f.ResolutionEvidence)
		if err != nil {
			return fmt.Errorf("failed to marshal resolution evidence: %w", err)
		}
		evidence = string(raw)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO findings (`+findingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		f.ID, f.SystemID, nullIfEmpty(f.MetaResultID), f.Text, f.Severity,
		nullIfEmpty(f.CriterionSlug), string(f.Status), f.Fingerprint,
		f.OccurrenceCount, f.ConsecutiveMisses, f.ReopenCount,
		f.LastSeenAt, f.ResolvedAt, nullIfEmpty(f.ResolvedByMetaID), evidence, string(keyIDs), f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert finding: %w", err)
	}
	return nil
}

// GetFinding loads one finding.
func (s *Store) GetFinding(ctx context.Context, id string) (models.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE id = $1`, id)
	if err != nil {
		return models.Finding{}, fmt.Errorf("failed to query finding: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Finding{}, err
		}
		return models.Finding{}, ErrNotFound
	}
	return scanFinding(rows)
}

// ActiveFindings returns a system's open and acknowledged findings, newest
// last-seen first.
func (s *Store) ActiveFindings(ctx context.Context, systemID string, limit int) ([]models.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings
		WHERE system_id = $1 AND status IN ('open', 'acknowledged')
		ORDER BY last_seen_at DESC`
	args := []any{systemID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryFindings(ctx, query, args...)
}

// ListFindings returns a system's findings filtered by status ('' = all).
func (s *Store) ListFindings(ctx context.Context, systemID, status string, limit int) ([]models.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE system_id = $1`
	args := []any{systemID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY last_seen_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return s.queryFindings(ctx, query, args...)
}

// RecentResolvedFindings returns findings resolved after since, for
// recurring-issue detection.
func (s *Store) RecentResolvedFindings(ctx context.Context, systemID string, since time.Time) ([]models.Finding, error) {
	return s.queryFindings(ctx,
		`SELECT `+findingColumns+` FROM findings
		 WHERE system_id = $1 AND status = 'resolved' AND resolved_at >= $2
		 ORDER BY resolved_at DESC`, systemID, since)
}

// TouchFinding applies a dedup match: bump occurrence, refresh last_seen,
// reset misses, and escalate severity upward only.
func (s *Store) TouchFinding(ctx context.Context, id, severity string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE findings SET
		   occurrence_count = occurrence_count + 1,
		   last_seen_at = $2,
		   consecutive_misses = 0,
		   severity = CASE WHEN $3 <> '' AND
		       array_position(ARRAY['info','low','medium','high','critical'], $3::text) >
		       array_position(ARRAY['info','low','medium','high','critical'], severity)
		     THEN $3 ELSE severity END
		 WHERE id = $1 AND status IN ('open', 'acknowledged')`,
		id, now, severity)
	if err != nil {
		return fmt.Errorf("failed to touch finding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmFindingsActive resets consecutive_misses and refreshes last_seen_at
// for the given findings.
func (s *Store) ConfirmFindingsActive(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ph := make([]string, len(ids))
	args := []any{now}
	for i, id := range ids {
		args = append(args, id)
		ph[i] = fmt.Sprintf("$%d", len(args))
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE findings SET consecutive_misses = 0, last_seen_at = $1
		 WHERE id IN (%s) AND status IN ('open', 'acknowledged')`, strings.Join(ph, ", ")), args...)
	if err != nil {
		return fmt.Errorf("failed to confirm findings active: %w", err)
	}
	return nil
}

// IncrementMisses adds one consecutive miss to every open/acknowledged finding
// of a system except the excluded ids.
func (s *Store) IncrementMisses(ctx context.Context, systemID string, excludeIDs []string) error {
	query := `UPDATE findings SET consecutive_misses = consecutive_misses + 1
		WHERE system_id = $1 AND status IN ('open', 'acknowledged')`
	args := []any{systemID}
	if len(excludeIDs) > 0 {
		ph := make([]string, len(excludeIDs))
		for i, id := range excludeIDs {
			args = append(args, id)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(` AND id NOT IN (%s)`, strings.Join(ph, ", "))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment misses: %w", err)
	}
	return nil
}

// ResolveFinding closes a finding with event evidence. Resolved findings are
// terminal: the update only applies to open/acknowledged rows.
func (s *Store) ResolveFinding(ctx context.Context, id, metaResultID string, evidence models.ResolutionEvidence, now time.Time) error {
	raw, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution evidence: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE findings SET status = 'resolved', resolved_at = $2,
		   resolved_by_meta_id = $3, resolution_evidence = $4
		 WHERE id = $1 AND status IN ('open', 'acknowledged')`,
		id, now, nullIfEmpty(metaResultID), string(raw))
	if err != nil {
		return fmt.Errorf("failed to resolve finding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AcknowledgeFinding transitions open → acknowledged.
func (s *Store) AcknowledgeFinding(ctx context.Context, id string) error {
	return s.transitionFinding(ctx, id, string(models.FindingOpen), string(models.FindingAcknowledged))
}

// ReopenFinding transitions acknowledged → open. Resolved findings stay
// resolved; recurring issues get a new row instead.
func (s *Store) ReopenFinding(ctx context.Context, id string) error {
	return s.transitionFinding(ctx, id, string(models.FindingAcknowledged), string(models.FindingOpen))
}

func (s *Store) transitionFinding(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE findings SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition finding: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish a bad transition from a missing row.
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM findings WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query finding status: %w", err)
		}
		return fmt.Errorf("%w: finding is %s, cannot transition to %s", ErrConflict, status, to)
	}
	return nil
}

// CountOpenFindings counts a system's open findings (not acknowledged).
func (s *Store) CountOpenFindings(ctx context.Context, systemID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM findings WHERE system_id = $1 AND status = 'open'`, systemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open findings: %w", err)
	}
	return n, nil
}

// OpenFindingsForEviction returns open findings ordered lowest priority first
// (severity rank ascending, then last_seen_at ascending).
func (s *Store) OpenFindingsForEviction(ctx context.Context, systemID string) ([]models.Finding, error) {
	return s.queryFindings(ctx,
		`SELECT `+findingColumns+` FROM findings
		 WHERE system_id = $1 AND status = 'open'
		 ORDER BY array_position(ARRAY['info','low','medium','high','critical'], severity) ASC,
		          last_seen_at ASC`, systemID)
}

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func scanFinding(rows *sql.Rows) (models.Finding, error) {
	var f models.Finding
	var metaResultID, criterionSlug, resolvedBy sql.NullString
	var status string
	var resolvedAt sql.NullTime
	var evidence, keyIDs []byte

	err := rows.Scan(&f.ID, &f.SystemID, &metaResultID, &f.Text, &f.Severity,
		&criterionSlug, &status, &f.Fingerprint, &f.OccurrenceCount,
		&f.ConsecutiveMisses, &f.ReopenCount, &f.LastSeenAt, &resolvedAt,
		&resolvedBy, &evidence, &keyIDs, &f.CreatedAt)
	if err != nil {
		return f, fmt.Errorf("failed to scan finding: %w", err)
	}
	f.MetaResultID = metaResultID.String
	f.CriterionSlug = criterionSlug.String
	f.Status = models.FindingStatus(status)
	f.ResolvedByMetaID = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	if len(evidence) > 0 {
		var ev models.ResolutionEvidence
		if err := json.Unmarshal(evidence, &ev); err == nil {
			f.ResolutionEvidence = &ev
		} else {
			f.ResolutionEvidence = &models.ResolutionEvidence{Text: string(evidence)}
		}
	}
	if err := json.Unmarshal(keyIDs, &f.KeyEventIDs); err != nil {
		f.KeyEventIDs = nil
	}
	return f, nil
}
