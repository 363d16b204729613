package models

import "time"

// WindowTrigger records how a window was created.
type WindowTrigger string

const (
	TriggerScheduled WindowTrigger = "scheduled"
	TriggerManual    WindowTrigger = "manual"
)

// Window is a closed time interval [FromTs, ToTs) for one system.
type Window struct {
	ID       string
	SystemID string
	FromTs   time.Time
	ToTs     time.Time
	Trigger  WindowTrigger
}

// MetaResult is the persisted per-window LLM meta-analysis output.
type MetaResult struct {
	ID                string
	WindowID          string
	MetaScores        map[string]float64 // criterion slug → score
	Summary           string
	Findings          []FlatFinding // legacy flat array kept for dashboard compatibility
	RecommendedAction string
	KeyEventIDs       []string
	CreatedAt         time.Time
}

// FlatFinding is the legacy embedded finding shape inside meta_results.
type FlatFinding struct {
	Text      string `json:"text"`
	Severity  string `json:"severity"`
	Criterion string `json:"criterion,omitempty"`
}

// EffectiveScore is the dashboard-facing per-criterion value for one window.
type EffectiveScore struct {
	WindowID       string
	SystemID       string
	CriterionID    int
	EffectiveValue float64
	MetaScore      float64
	MaxEventScore  float64
	UpdatedAt      time.Time
}

// MetaWeight is the blending weight of the meta score in effective values.
const MetaWeight = 0.7

// BlendEffective computes the canonical effective value. The meta score is
// voided when no event contributed a non-zero score: the LLM's conclusion
// cannot outrank an all-quiet window.
func BlendEffective(metaScore, maxEventScore, wMeta float64) float64 {
	if maxEventScore == 0 {
		return 0
	}
	return wMeta*metaScore + (1-wMeta)*maxEventScore
}
