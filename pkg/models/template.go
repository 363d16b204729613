package models

import "time"

// NormalBehaviorTemplate is a user-authored pattern marking matching events as
// routine. Global templates (empty SystemID) apply to every system.
type NormalBehaviorTemplate struct {
	ID             string
	SystemID       string
	Pattern        string // anchored ^…$ regex, matched case-insensitively
	HostPattern    string
	ProgramPattern string
	ExampleMessage string
	Enabled        bool
	Notes          string
	CreatedAt      time.Time
}

// LLMUsage is one accounting row per LLM call.
type LLMUsage struct {
	ID            string
	Task          string // "scoring" | "meta"
	Model         string
	InputTokens   int
	OutputTokens  int
	RequestCount  int
	EstimatedCost float64
	CreatedAt     time.Time
}
