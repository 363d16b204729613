package models

import (
	"time"
)

// Event is one normalized log record. Events are immutable after ingest
// except for AcknowledgedAt.
type Event struct {
	ID             string
	SystemID       string
	LogSourceID    string
	ConnectorID    string
	ReceivedAt     time.Time
	Timestamp      time.Time // partition key; always UTC
	Message        string
	Severity       string // canonical RFC 5424 lowercase
	Host           string
	SourceIP       string
	Service        string
	Facility       string
	Program        string
	TraceID        string
	SpanID         string
	Payload        map[string]any
	NormalizedHash string
	ExternalID     string
	TemplateID     string
	AcknowledgedAt *time.Time
	FutureClamped  bool
}

// EventScore is one per-criterion score row for an event.
type EventScore struct {
	EventID     string
	CriterionID int
	ScoreType   string
	Score       float64
}

// ScoreTypeEvent is the score_type for per-event LLM scores.
const ScoreTypeEvent = "event"
