package api

import (
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// Models carry no JSON tags; the wire shapes live here so store types can
// change without breaking dashboard clients.

type eventResponse struct {
	ID             string         `json:"id"`
	SystemID       string         `json:"system_id"`
	Timestamp      time.Time      `json:"timestamp"`
	ReceivedAt     time.Time      `json:"received_at"`
	Message        string         `json:"message"`
	Severity       string         `json:"severity"`
	Host           string         `json:"host,omitempty"`
	SourceIP       string         `json:"source_ip,omitempty"`
	Service        string         `json:"service,omitempty"`
	Facility       string         `json:"facility,omitempty"`
	Program        string         `json:"program,omitempty"`
	TraceID        string         `json:"trace_id,omitempty"`
	SpanID         string         `json:"span_id,omitempty"`
	TemplateID     string         `json:"template_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

func eventsJSON(events []models.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			ID:             ev.ID,
			SystemID:       ev.SystemID,
			Timestamp:      ev.Timestamp,
			ReceivedAt:     ev.ReceivedAt,
			Message:        ev.Message,
			Severity:       ev.Severity,
			Host:           ev.Host,
			SourceIP:       ev.SourceIP,
			Service:        ev.Service,
			Facility:       ev.Facility,
			Program:        ev.Program,
			TraceID:        ev.TraceID,
			SpanID:         ev.SpanID,
			TemplateID:     ev.TemplateID,
			Payload:        ev.Payload,
			AcknowledgedAt: ev.AcknowledgedAt,
		})
	}
	return out
}

type metaResultResponse struct {
	ID                string               `json:"id"`
	WindowID          string               `json:"window_id"`
	MetaScores        map[string]float64   `json:"meta_scores"`
	Summary           string               `json:"summary"`
	Findings          []models.FlatFinding `json:"findings"`
	RecommendedAction string               `json:"recommended_action,omitempty"`
	KeyEventIDs       []string             `json:"key_event_ids,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

func metaResultJSON(m models.MetaResult) metaResultResponse {
	return metaResultResponse{
		ID:                m.ID,
		WindowID:          m.WindowID,
		MetaScores:        m.MetaScores,
		Summary:           m.Summary,
		Findings:          m.Findings,
		RecommendedAction: m.RecommendedAction,
		KeyEventIDs:       m.KeyEventIDs,
		CreatedAt:         m.CreatedAt,
	}
}

func metaResultsJSON(results []models.MetaResult) []metaResultResponse {
	out := make([]metaResultResponse, 0, len(results))
	for _, m := range results {
		out = append(out, metaResultJSON(m))
	}
	return out
}

type findingResponse struct {
	ID                 string                     `json:"id"`
	SystemID           string                     `json:"system_id"`
	Text               string                     `json:"text"`
	Severity           string                     `json:"severity"`
	CriterionSlug      string                     `json:"criterion_slug,omitempty"`
	Status             string                     `json:"status"`
	OccurrenceCount    int                        `json:"occurrence_count"`
	ConsecutiveMisses  int                        `json:"consecutive_misses"`
	ReopenCount        int                        `json:"reopen_count"`
	CreatedAt          time.Time                  `json:"created_at"`
	LastSeenAt         time.Time                  `json:"last_seen_at"`
	ResolvedAt         *time.Time                 `json:"resolved_at,omitempty"`
	ResolutionEvidence *models.ResolutionEvidence `json:"resolution_evidence,omitempty"`
	KeyEventIDs        []string                   `json:"key_event_ids,omitempty"`
}

func findingsJSON(findings []models.Finding) []findingResponse {
	out := make([]findingResponse, 0, len(findings))
	for _, f := range findings {
		out = append(out, findingResponse{
			ID:                 f.ID,
			SystemID:           f.SystemID,
			Text:               f.Text,
			Severity:           f.Severity,
			CriterionSlug:      f.CriterionSlug,
			Status:             string(f.Status),
			OccurrenceCount:    f.OccurrenceCount,
			ConsecutiveMisses:  f.ConsecutiveMisses,
			ReopenCount:        f.ReopenCount,
			CreatedAt:          f.CreatedAt,
			LastSeenAt:         f.LastSeenAt,
			ResolvedAt:         f.ResolvedAt,
			ResolutionEvidence: f.ResolutionEvidence,
			KeyEventIDs:        f.KeyEventIDs,
		})
	}
	return out
}

type systemResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	RetentionDays   *int      `json:"retention_days,omitempty"`
	EventSource     string    `json:"event_source"`
	TimezoneName    string    `json:"timezone_name,omitempty"`
	TzOffsetMinutes int       `json:"tz_offset_minutes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func systemJSON(sys models.MonitoredSystem) systemResponse {
	return systemResponse{
		ID:              sys.ID,
		Name:            sys.Name,
		Description:     sys.Description,
		RetentionDays:   sys.RetentionDays,
		EventSource:     string(sys.EventSource),
		TimezoneName:    sys.TimezoneName,
		TzOffsetMinutes: sys.TzOffsetMinutes,
		CreatedAt:       sys.CreatedAt,
	}
}

type logSourceResponse struct {
	ID          string `json:"id"`
	SystemID    string `json:"system_id"`
	Label       string `json:"label"`
	Host        string `json:"host,omitempty"`
	Program     string `json:"program,omitempty"`
	SourceIP    string `json:"source_ip,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`
}

func logSourceJSON(ls models.LogSource) logSourceResponse {
	return logSourceResponse{
		ID:          ls.ID,
		SystemID:    ls.SystemID,
		Label:       ls.Label,
		Host:        ls.Host,
		Program:     ls.Program,
		SourceIP:    ls.SourceIP,
		ConnectorID: ls.ConnectorID,
	}
}

type templateResponse struct {
	ID             string    `json:"id"`
	SystemID       string    `json:"system_id,omitempty"`
	Pattern        string    `json:"pattern"`
	HostPattern    string    `json:"host_pattern,omitempty"`
	ProgramPattern string    `json:"program_pattern,omitempty"`
	ExampleMessage string    `json:"example_message,omitempty"`
	Enabled        bool      `json:"enabled"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func templateJSON(t models.NormalBehaviorTemplate) templateResponse {
	return templateResponse{
		ID:             t.ID,
		SystemID:       t.SystemID,
		Pattern:        t.Pattern,
		HostPattern:    t.HostPattern,
		ProgramPattern: t.ProgramPattern,
		ExampleMessage: t.ExampleMessage,
		Enabled:        t.Enabled,
		Notes:          t.Notes,
		CreatedAt:      t.CreatedAt,
	}
}
