package models

import "time"

// FindingStatus is the lifecycle state of a finding.
type FindingStatus string

const (
	FindingOpen         FindingStatus = "open"
	FindingAcknowledged FindingStatus = "acknowledged"
	FindingResolved     FindingStatus = "resolved"
)

// Finding severity levels, ordered info < low < medium < high < critical.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank maps a finding severity to its ordering rank. Unknown
// severities rank as info.
func SeverityRank(sev string) int {
	switch sev {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ResolutionEvidence is the stored proof that closed a finding.
type ResolutionEvidence struct {
	Text         string   `json:"text"`
	EventIDs     []string `json:"event_ids"`
	Reason       string   `json:"reason,omitempty"`
	AutoResolved bool     `json:"auto_resolved,omitempty"`
}

// Finding is a persistent tracked issue with an explicit lifecycle.
// Resolved findings are never reopened; recurring issues get a fresh row.
type Finding struct {
	ID                 string
	SystemID           string
	MetaResultID       string
	Text               string
	Severity           string
	CriterionSlug      string // empty → matches any criterion during dedup
	Status             FindingStatus
	Fingerprint        string
	OccurrenceCount    int
	ConsecutiveMisses  int
	ReopenCount        int
	CreatedAt          time.Time
	LastSeenAt         time.Time
	ResolvedAt         *time.Time
	ResolvedByMetaID   string
	ResolutionEvidence *ResolutionEvidence
	KeyEventIDs        []string
}
