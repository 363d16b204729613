package config

// AIConfig holds LLM connection settings from app_config.
type AIConfig struct {
	APIKey  string `json:"openai_api_key"`
	Model   string `json:"openai_model"`
	BaseURL string `json:"openai_base_url"`

	// Per-task model overrides; empty falls back to Model.
	ScoringModel string `json:"scoring_model"`
	MetaModel    string `json:"meta_model"`
	RAGModel     string `json:"rag_model"`
}

// ModelFor resolves the model for a task ("scoring", "meta", "rag").
func (c AIConfig) ModelFor(task string) string {
	switch task {
	case "scoring":
		if c.ScoringModel != "" {
			return c.ScoringModel
		}
	case "meta":
		if c.MetaModel != "" {
			return c.MetaModel
		}
	case "rag":
		if c.RAGModel != "" {
			return c.RAGModel
		}
	}
	return c.Model
}

// Configured reports whether an API key is set; the pipeline skips LLM work
// otherwise.
func (c AIConfig) Configured() bool {
	return c.APIKey != ""
}

// DashboardConfig controls score display and re-evaluation spans.
type DashboardConfig struct {
	ScoreDisplayWindowDays int `json:"score_display_window_days"`
	ReevalWindowDays       int `json:"reeval_window_days"`
	ReevalMaxEvents        int `json:"reeval_max_events"`
}

// PipelineConfig controls the adaptive scheduler and normalization knobs.
type PipelineConfig struct {
	MinIntervalMinutes     int     `json:"pipeline_min_interval_minutes"`
	MaxIntervalMinutes     int     `json:"pipeline_max_interval_minutes"`
	WindowMinutes          int     `json:"window_minutes"`
	ScoringLimitPerRun     int     `json:"scoring_limit_per_run"`
	EffectiveMetaWeight    float64 `json:"effective_score_meta_weight"`
	NormalizeSQLStatements bool    `json:"normalize_sql_statements"`
	MultilineReassembly    *bool   `json:"multiline_reassembly"`
	MaxFutureDriftSeconds  int     `json:"max_future_drift_seconds"`
	MaxEventMessageLength  int     `json:"max_event_message_length"`
}

// MultilineEnabled treats the absent key as enabled.
func (c PipelineConfig) MultilineEnabled() bool {
	return c.MultilineReassembly == nil || *c.MultilineReassembly
}

// MetaConfig controls meta-analysis behavior.
type MetaConfig struct {
	MaxEvents               int     `json:"meta_max_events"`
	ContextSummaries        int     `json:"meta_context_summaries"`
	PrioritizeHighScores    bool    `json:"meta_prioritize_high_scores"`
	DedupThreshold          float64 `json:"finding_dedup_threshold"`
	MaxNewFindingsPerWindow int     `json:"max_new_findings_per_window"`
	RecurringLookbackDays   int     `json:"recurring_lookback_days"`
	MaxOpenFindings         int     `json:"max_open_findings_per_system"`

	// Legacy auto-resolve fields: accepted but unused. Resolution is only by
	// event evidence.
	AutoResolveAfterMisses int `json:"auto_resolve_after_misses,omitempty"`
	FlappingThreshold      int `json:"flapping_threshold,omitempty"`
}

// AckMode controls how acknowledged events enter meta-analysis.
type AckMode string

const (
	AckModeSkip        AckMode = "skip"
	AckModeContextOnly AckMode = "context_only"
)

// PrivacyConfig is the toggle-per-category LLM privacy filter settings.
// It transforms events in memory before LLM calls; stored data is unaffected.
type PrivacyConfig struct {
	Enabled        bool     `json:"enabled"`
	IPv4           bool     `json:"ipv4"`
	IPv6           bool     `json:"ipv6"`
	Email          bool     `json:"email"`
	Phone          bool     `json:"phone"`
	URL            bool     `json:"url"`
	UserPaths      bool     `json:"user_paths"`
	MAC            bool     `json:"mac"`
	CreditCard     bool     `json:"credit_card"`
	Passwords      bool     `json:"passwords"`
	APIKeys        bool     `json:"api_keys"`
	Usernames      bool     `json:"usernames"`
	StripHost      bool     `json:"strip_host"`
	StripProgram   bool     `json:"strip_program"`
	CustomPatterns []string `json:"custom_patterns"`
}

// DiscoveryConfig toggles the unmatched-event discovery buffer.
type DiscoveryConfig struct {
	Enabled bool `json:"enabled"`
}

// RedactionConfig carries extra user regex patterns applied at ingest.
type RedactionConfig struct {
	Patterns []string `json:"patterns"`
}
