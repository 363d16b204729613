package models

import "time"

// EventSourceKind selects where a system's events live.
type EventSourceKind string

const (
	EventSourceRelational EventSourceKind = "relational"
	EventSourceExternal   EventSourceKind = "external"
)

// MonitoredSystem is a logical tenant owning sources, events, windows and findings.
type MonitoredSystem struct {
	ID              string
	Name            string
	Description     string
	RetentionDays   *int // nil → global default
	EventSource     EventSourceKind
	TimezoneName    string // IANA name, e.g. "Europe/Berlin"
	TzOffsetMinutes int    // fixed UTC offset, used when TimezoneName is empty
	CreatedAt       time.Time
}

// LogSource is one stream feeding a system, with matching hints used by the
// source matcher. Empty hint fields never match.
type LogSource struct {
	ID          string
	SystemID    string
	Label       string
	Host        string
	Program     string
	SourceIP    string
	ConnectorID string
}

// DiscoveryEntry is an unmatched ingest record parked for later
// source-creation suggestions.
type DiscoveryEntry struct {
	ID            string
	Host          string
	SourceIP      string
	Program       string
	Facility      string
	Severity      string
	MessageSample string
	ReceivedAt    time.Time
}
