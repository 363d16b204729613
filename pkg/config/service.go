// Package config serves runtime settings stored in the app_config table.
// Values are cached with a short TTL so UI changes take effect without a
// restart; admin writes call Invalidate() to drop the cache immediately.
package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// cacheTTL is how long a fetched app_config value is served from memory.
const cacheTTL = 30 * time.Second

// ConfigStore is the subset of the store used by the config service.
type ConfigStore interface {
	GetConfigValue(ctx context.Context, key string) (json.RawMessage, bool, error)
	SetConfigValue(ctx context.Context, key string, value any) error
}

type cachedValue struct {
	raw       json.RawMessage
	found     bool
	fetchedAt time.Time
}

// Service reads typed runtime settings from app_config with a TTL cache.
// Safe for concurrent use.
type Service struct {
	store ConfigStore

	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewService creates a config service over the store.
func NewService(store ConfigStore) *Service {
	return &Service{
		store: store,
		cache: make(map[string]cachedValue),
	}
}

// Invalidate drops all cached values; the next read hits the store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedValue)
}

// raw returns the cached or freshly fetched JSON value for a key.
func (s *Service) raw(ctx context.Context, key string) (json.RawMessage, bool) {
	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < cacheTTL {
		return cached.raw, cached.found
	}

	raw, found, err := s.store.GetConfigValue(ctx, key)
	if err != nil {
		slog.Error("Failed to read app_config, using defaults", "key", key, "error", err)
		return nil, false
	}

	s.mu.Lock()
	s.cache[key] = cachedValue{raw: raw, found: found, fetchedAt: time.Now()}
	s.mu.Unlock()
	return raw, found
}

// get unmarshals a key into out; returns false (leaving out untouched) when
// the key is absent or malformed.
func (s *Service) get(ctx context.Context, key string, out any) bool {
	raw, found := s.raw(ctx, key)
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		slog.Warn("Malformed app_config value, using defaults", "key", key, "error", err)
		return false
	}
	return true
}

// getString reads a bare JSON string key.
func (s *Service) getString(ctx context.Context, key string) string {
	var v string
	s.get(ctx, key, &v)
	return v
}

// AI resolves the LLM connection settings, merging the task_model_config key.
func (s *Service) AI(ctx context.Context) AIConfig {
	cfg := AIConfig{
		APIKey:  s.getString(ctx, "openai_api_key"),
		Model:   s.getString(ctx, "openai_model"),
		BaseURL: s.getString(ctx, "openai_base_url"),
	}
	var tasks struct {
		ScoringModel string `json:"scoring_model"`
		MetaModel    string `json:"meta_model"`
		RAGModel     string `json:"rag_model"`
	}
	if s.get(ctx, "task_model_config", &tasks) {
		cfg.ScoringModel = tasks.ScoringModel
		cfg.MetaModel = tasks.MetaModel
		cfg.RAGModel = tasks.RAGModel
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return cfg
}

// Dashboard returns the dashboard config with range clamping.
func (s *Service) Dashboard(ctx context.Context) DashboardConfig {
	cfg := defaultDashboardConfig()
	s.get(ctx, "dashboard_config", &cfg)
	cfg.ScoreDisplayWindowDays = clampInt(cfg.ScoreDisplayWindowDays, 1, 90, 7)
	cfg.ReevalWindowDays = clampInt(cfg.ReevalWindowDays, 1, 90, 7)
	cfg.ReevalMaxEvents = clampInt(cfg.ReevalMaxEvents, 50, 10000, 500)
	return cfg
}

// Pipeline returns the pipeline config with defaults filled in.
func (s *Service) Pipeline(ctx context.Context) PipelineConfig {
	cfg := defaultPipelineConfig()
	s.get(ctx, "pipeline_config", &cfg)
	def := defaultPipelineConfig()
	if cfg.MinIntervalMinutes <= 0 {
		cfg.MinIntervalMinutes = def.MinIntervalMinutes
	}
	if cfg.MaxIntervalMinutes < cfg.MinIntervalMinutes {
		cfg.MaxIntervalMinutes = def.MaxIntervalMinutes
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = def.WindowMinutes
	}
	if cfg.ScoringLimitPerRun <= 0 {
		cfg.ScoringLimitPerRun = def.ScoringLimitPerRun
	}
	if cfg.EffectiveMetaWeight <= 0 || cfg.EffectiveMetaWeight > 1 {
		cfg.EffectiveMetaWeight = def.EffectiveMetaWeight
	}
	if cfg.MaxFutureDriftSeconds <= 0 {
		cfg.MaxFutureDriftSeconds = def.MaxFutureDriftSeconds
	}
	if cfg.MaxEventMessageLength <= 0 {
		cfg.MaxEventMessageLength = def.MaxEventMessageLength
	}
	return cfg
}

// Meta returns the meta-analysis config with defaults filled in.
func (s *Service) Meta(ctx context.Context) MetaConfig {
	cfg := defaultMetaConfig()
	s.get(ctx, "meta_analysis_config", &cfg)
	def := defaultMetaConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.ContextSummaries <= 0 {
		cfg.ContextSummaries = def.ContextSummaries
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		cfg.DedupThreshold = def.DedupThreshold
	}
	if cfg.MaxNewFindingsPerWindow <= 0 {
		cfg.MaxNewFindingsPerWindow = def.MaxNewFindingsPerWindow
	}
	if cfg.RecurringLookbackDays <= 0 {
		cfg.RecurringLookbackDays = def.RecurringLookbackDays
	}
	if cfg.MaxOpenFindings <= 0 {
		cfg.MaxOpenFindings = def.MaxOpenFindings
	}
	return cfg
}

// EventAckMode returns how acknowledged events enter meta-analysis.
func (s *Service) EventAckMode(ctx context.Context) AckMode {
	switch AckMode(s.getString(ctx, "event_ack_mode")) {
	case AckModeSkip:
		return AckModeSkip
	case AckModeContextOnly:
		return AckModeContextOnly
	default:
		return AckModeContextOnly
	}
}

// EventAckPrompt returns the extra prompt text describing acknowledged events.
func (s *Service) EventAckPrompt(ctx context.Context) string {
	return s.getString(ctx, "event_ack_prompt")
}

// ScoringSystemPrompt returns the custom scoring prompt override, if any.
func (s *Service) ScoringSystemPrompt(ctx context.Context) string {
	return s.getString(ctx, "scoring_system_prompt")
}

// MetaSystemPrompt returns the custom meta-analysis prompt override, if any.
func (s *Service) MetaSystemPrompt(ctx context.Context) string {
	return s.getString(ctx, "meta_system_prompt")
}

// CriterionGuide returns the per-criterion scoring guideline override, if any.
func (s *Service) CriterionGuide(ctx context.Context, slug string) string {
	return s.getString(ctx, "criterion_guide_"+slug)
}

// Privacy returns the LLM privacy filter settings.
func (s *Service) Privacy(ctx context.Context) PrivacyConfig {
	var cfg PrivacyConfig
	s.get(ctx, "privacy_config", &cfg)
	return cfg
}

// Discovery returns the discovery buffer settings (enabled by default).
func (s *Service) Discovery(ctx context.Context) DiscoveryConfig {
	cfg := DiscoveryConfig{Enabled: true}
	s.get(ctx, "discovery_config", &cfg)
	return cfg
}

// Redaction returns extra user redaction patterns applied at ingest.
func (s *Service) Redaction(ctx context.Context) RedactionConfig {
	var cfg RedactionConfig
	s.get(ctx, "redaction_config", &cfg)
	return cfg
}

// DefaultRetention returns the global retention fallback in days.
func (s *Service) DefaultRetention(ctx context.Context) int {
	var days int
	if s.get(ctx, "default_retention_days", &days) && days > 0 {
		return days
	}
	return DefaultRetentionDays
}

// MaintenanceInterval returns the retention maintenance cadence.
func (s *Service) MaintenanceInterval(ctx context.Context) time.Duration {
	var hours int
	if s.get(ctx, "maintenance_interval_hours", &hours) && hours > 0 {
		return time.Duration(hours) * time.Hour
	}
	return DefaultMaintenanceIntervalHours * time.Hour
}

// Set writes an app_config key and invalidates the cache.
func (s *Service) Set(ctx context.Context, key string, value any) error {
	if err := s.store.SetConfigValue(ctx, key, value); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}
