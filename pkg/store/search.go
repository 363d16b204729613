package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// SearchParams describes an events search. Multi-value filters are OR-ed
// within a field and AND-ed across fields.
type SearchParams struct {
	Query     string
	QueryMode string // "fts" (default) or "contains"
	SystemIDs []string
	Severity  []string
	Hosts     []string
	Programs  []string
	SourceIPs []string
	From      *time.Time
	To        *time.Time
	SortBy    string // one of sortColumns
	SortDesc  bool
	Limit     int
	Offset    int
}

// sortColumns is the closed set of sortable columns; anything else is a
// validation error, never interpolated SQL.
var sortColumns = map[string]string{
	"timestamp":   "timestamp",
	"received_at": "received_at",
	"severity":    "severity",
	"host":        "host",
	"program":     "program",
	"system_id":   "system_id",
}

// SearchEvents runs a filtered, paginated events search. Queries always carry
// a deterministic secondary sort (timestamp DESC, id ASC).
func (s *Store) SearchEvents(ctx context.Context, p SearchParams) ([]models.Event, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	multi := func(col string, values []string) {
		if len(values) == 0 {
			return
		}
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = arg(v)
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
	}

	multi("system_id", p.SystemIDs)
	multi("severity", p.Severity)
	multi("host", p.Hosts)
	multi("program", p.Programs)
	multi("source_ip", p.SourceIPs)

	if p.From != nil {
		conds = append(conds, "timestamp >= "+arg(*p.From))
	}
	if p.To != nil {
		conds = append(conds, "timestamp < "+arg(*p.To))
	}
	if p.Query != "" {
		if p.QueryMode == "contains" {
			conds = append(conds, "message ILIKE "+arg("%"+escapeLike(p.Query)+"%"))
		} else {
			conds = append(conds, "to_tsvector('english', message) @@ plainto_tsquery('english', "+arg(p.Query)+")")
		}
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	orderBy := "timestamp"
	if p.SortBy != "" {
		col, ok := sortColumns[p.SortBy]
		if !ok {
			return nil, NewValidationError("sort", "unsupported sort column")
		}
		orderBy = col
	}
	dir := "DESC"
	if p.SortBy != "" && !p.SortDesc {
		dir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, timestamp DESC, id ASC", orderBy, dir)

	limit := p.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if p.Offset > 0 {
		query += " OFFSET " + arg(p.Offset)
	}

	return s.queryEvents(ctx, query, args...)
}

// FacetCount is one value bucket of an events facet.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// facetColumns is the closed set of facetable columns.
var facetColumns = map[string]bool{
	"severity":  true,
	"host":      true,
	"program":   true,
	"system_id": true,
	"facility":  true,
}

// EventFacets returns the top value buckets for a facetable column.
func (s *Store) EventFacets(ctx context.Context, column string, from, to *time.Time, limit int) ([]FacetCount, error) {
	if !facetColumns[column] {
		return nil, NewValidationError("facet", "unsupported facet column")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var conds []string
	var args []any
	if from != nil {
		args = append(args, *from)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conds = append(conds, fmt.Sprintf("timestamp < $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT COALESCE(%s::text, '') AS value, count(*) AS cnt
		FROM events%s GROUP BY 1 ORDER BY cnt DESC LIMIT $%d`, column, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facets: %w", err)
	}
	defer rows.Close()

	var facets []FacetCount
	for rows.Next() {
		var f FacetCount
		if err := rows.Scan(&f.Value, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan facet: %w", err)
		}
		facets = append(facets, f)
	}
	return facets, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
