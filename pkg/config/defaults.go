package config

// Defaults applied when app_config keys are absent or out of range.

func defaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		ScoreDisplayWindowDays: 7,
		ReevalWindowDays:       7,
		ReevalMaxEvents:        500,
	}
}

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinIntervalMinutes:    15,
		MaxIntervalMinutes:    120,
		WindowMinutes:         5,
		ScoringLimitPerRun:    500,
		EffectiveMetaWeight:   0.7,
		MaxFutureDriftSeconds: 300,
		MaxEventMessageLength: 8192,
	}
}

func defaultMetaConfig() MetaConfig {
	return MetaConfig{
		MaxEvents:               200,
		ContextSummaries:        5,
		PrioritizeHighScores:    true,
		DedupThreshold:          0.6,
		MaxNewFindingsPerWindow: 3,
		RecurringLookbackDays:   14,
		MaxOpenFindings:         50,
	}
}

// DefaultRetentionDays is the global event retention fallback.
const DefaultRetentionDays = 90

// DefaultMaintenanceIntervalHours is the retention maintenance cadence.
const DefaultMaintenanceIntervalHours = 6

func clampInt(v, lo, hi, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
