// Package llm talks to an OpenAI-compatible chat-completions endpoint for
// event scoring and window meta-analysis. Responses are parsed tolerantly:
// fenced JSON, bare arrays and missing fields all degrade to zero values
// instead of failing the pipeline.
package llm

import "context"

// Credentials selects the endpoint and model for one call. They come from the
// per-system AI configuration, not from process environment.
type Credentials struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EventLine is one 1-indexed line presented to the model.
type EventLine struct {
	Index       int
	Message     string
	Severity    string
	Host        string
	Program     string
	Occurrences int
}

// ScoreRequest scores a batch of representative events.
type ScoreRequest struct {
	Creds             Credentials
	Events            []EventLine
	SystemDescription string
	SourceLabels      []string
	SystemPrompt      string // empty uses the default scoring prompt
	CriterionGuides   map[string]string
}

// ScoreResponse carries one row of six floats per input event, padded or
// truncated to the event count.
type ScoreResponse struct {
	Scores [][]float64
	Usage  Usage
}

// ContextFinding is an open finding shown to the meta model.
type ContextFinding struct {
	Index           int    `json:"index"`
	Text            string `json:"text"`
	Severity        string `json:"severity"`
	Criterion       string `json:"criterion,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	LastSeenAt      string `json:"last_seen_at"`
	OccurrenceCount int    `json:"occurrence_count"`

	// Internal bookkeeping the model is told to echo back untouched.
	DBID              string `json:"_dbId"`
	Fingerprint       string `json:"_fingerprint"`
	ConsecutiveMisses int    `json:"_consecutive_misses"`
}

// MetaContext is the history given to the meta model.
type MetaContext struct {
	PreviousSummaries []string
	OpenFindings      []ContextFinding
}

// MetaRequest analyzes one window.
type MetaRequest struct {
	Creds             Credentials
	Events            []EventLine
	SystemDescription string
	SourceLabels      []string
	Context           MetaContext
	SystemPrompt      string // empty uses the default meta prompt
	AckPrompt         string // extra instructions when acknowledged events are context-only
}

// NewFinding is one LLM-proposed finding.
type NewFinding struct {
	Text      string `json:"text"`
	Severity  string `json:"severity"`
	Criterion string `json:"criterion,omitempty"`
}

// Resolution is one claimed resolution with evidence. Plain-integer entries
// from older prompts parse with no event refs and are rejected downstream.
type Resolution struct {
	Index     int    `json:"index"`
	Evidence  string `json:"evidence"`
	EventRefs []int  `json:"event_refs"`
}

// MetaResponse is the parsed meta-analysis result.
type MetaResponse struct {
	MetaScores         map[string]float64
	Summary            string
	NewFindings        []NewFinding
	Resolved           []Resolution
	StillActiveIndices []int
	RecommendedAction  string
	Usage              Usage
}

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Requests     int
}

// Client is the LLM contract the pipeline depends on.
type Client interface {
	ScoreEvents(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
	MetaAnalyze(ctx context.Context, req MetaRequest) (*MetaResponse, error)
}
