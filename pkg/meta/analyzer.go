// Package meta runs the per-window meta-analysis. It condenses a window's
// scored events into template lines, consults the LLM with recent history and
// open findings, and drives the finding lifecycle (dedup, resolution with
// guardrails, dormancy counting, eviction) plus the effective score blend.
package meta

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/normal"
	"github.com/loglens/loglens/pkg/redact"
	"github.com/loglens/loglens/pkg/store"
)

const (
	// maxContextFindings caps open findings shown to the model.
	maxContextFindings = 30

	// Context sanitation overlap thresholds.
	findingTemplateOverlap = 0.5
	summaryTemplateOverlap = 0.4
	summaryAckedOverlap    = 0.3

	summaryNoEvents   = "No significant events in this window."
	summaryAllRoutine = "All events in this window scored as routine."

	evictionEvidence = "Auto-closed: evicted due to open findings cap"
	normalEvidence   = "Event type marked as normal behavior by operator"
)

// Analyzer runs meta-analysis for windows.
type Analyzer struct {
	store *store.Store
	cfg   *config.Service
	llm   llm.Client
}

// NewAnalyzer wires the analyzer.
func NewAnalyzer(st *store.Store, cfg *config.Service, client llm.Client) *Analyzer {
	return &Analyzer{store: st, cfg: cfg, llm: client}
}

// Options tunes one analysis call.
type Options struct {
	// ExcludeAcknowledged drops acknowledged events regardless of the
	// configured ack mode. Used by manual re-evaluation.
	ExcludeAcknowledged bool

	// ResetContext runs the analysis fresh: no previous summaries and no
	// open findings are shown to the model. Dedup against open findings
	// still applies so re-evaluation cannot duplicate them.
	ResetContext bool
}

// Analyze runs the meta-analysis for one window. Returns false when the
// window was already analyzed. All lifecycle writes happen in one
// transaction.
func (a *Analyzer) Analyze(ctx context.Context, windowID string, opts Options) (bool, error) {
	exists, err := a.store.MetaResultExists(ctx, windowID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	window, err := a.store.GetWindow(ctx, windowID)
	if err != nil {
		return false, fmt.Errorf("failed to load window: %w", err)
	}
	sys, err := a.store.GetSystem(ctx, window.SystemID)
	if err != nil {
		return false, fmt.Errorf("failed to load system: %w", err)
	}
	sources, err := a.store.LogSourcesForSystem(ctx, window.SystemID)
	if err != nil {
		return false, fmt.Errorf("failed to load log sources: %w", err)
	}

	metaCfg := a.cfg.Meta(ctx)
	ackMode := a.cfg.EventAckMode(ctx)
	pipeline := a.cfg.Pipeline(ctx)
	now := time.Now().UTC()

	limit := metaCfg.MaxEvents
	if window.Trigger == models.TriggerManual {
		if n := a.cfg.Dashboard(ctx).ReevalMaxEvents; n > 0 {
			limit = n
		}
	}

	excludeAcked := opts.ExcludeAcknowledged || ackMode == config.AckModeSkip
	events, err := a.store.EventsInRange(ctx, window.SystemID, window.FromTs, window.ToTs, limit, excludeAcked)
	if err != nil {
		return false, fmt.Errorf("failed to load window events: %w", err)
	}

	templates, err := a.store.ListTemplates(ctx, true)
	if err != nil {
		return false, fmt.Errorf("failed to load templates: %w", err)
	}
	matcher := normal.NewMatcher(templates)
	events, _ = matcher.Filter(events)

	if len(events) == 0 {
		return true, a.writeSynthetic(ctx, window, pipeline, summaryNoEvents, now, false)
	}

	eventIDs := make([]string, 0, len(events))
	for _, ev := range events {
		eventIDs = append(eventIDs, ev.ID)
	}
	scores, err := a.store.ScoresForEvents(ctx, eventIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load event scores: %w", err)
	}

	lines := buildLines(events, scores)
	if allZero(lines) {
		// All-routine shortcut skips the LLM but still counts dormancy.
		return true, a.writeSynthetic(ctx, window, pipeline, summaryAllRoutine, now, true)
	}

	lines = compactLines(lines)

	privacy := redact.NewPrivacyFilter(a.cfg.Privacy(ctx))
	for i := range lines {
		filtered := privacy.Apply(models.Event{
			Message: lines[i].Message,
			Host:    lines[i].Host,
			Program: lines[i].Program,
		})
		lines[i].Message = filtered.Message
		lines[i].Host = filtered.Host
		lines[i].Program = filtered.Program
	}

	if metaCfg.PrioritizeHighScores {
		prioritize(lines)
	}

	var summaries []string
	if !opts.ResetContext {
		summaries, err = a.store.RecentSummaries(ctx, window.SystemID, windowID, metaCfg.ContextSummaries)
		if err != nil {
			return false, fmt.Errorf("failed to load recent summaries: %w", err)
		}
	}
	open, err := a.store.ActiveFindings(ctx, window.SystemID, maxContextFindings)
	if err != nil {
		return false, fmt.Errorf("failed to load active findings: %w", err)
	}

	open, summaries, autoResolved := a.sanitizeContext(ctx, matcher, open, summaries, window, opts)

	presented := open
	if opts.ResetContext {
		presented = nil
	}

	resp, err := a.callLLM(ctx, sys, sources, lines, summaries, presented, privacy)
	if err != nil {
		// Stale scores must not outlive a failed analysis. Zero the window
		// without a meta result row so the next tick retries it.
		if zerr := a.zeroWindowScores(ctx, window, pipeline, now); zerr != nil {
			slog.Error("Failed to zero effective scores after LLM failure",
				"window_id", window.ID, "error", zerr)
		}
		return false, fmt.Errorf("meta analysis LLM call failed: %w", err)
	}

	p := a.buildPlan(ctx, window, lines, events, presented, open, resp, metaCfg, now)
	p.autoResolved = autoResolved

	if err := a.persist(ctx, window, pipeline, eventIDs, p, now); err != nil {
		return false, err
	}
	metrics.MetaAnalyses.Inc()
	a.recordUsage(ctx, resp.Usage)
	return true, nil
}

// sanitizeContext applies the normal-behavior overlap rules to the open
// findings and previous summaries before they reach the model. Returns the
// findings auto-resolved by template overlap; they are persisted later with
// the rest of the plan.
func (a *Analyzer) sanitizeContext(ctx context.Context, matcher *normal.Matcher, open []models.Finding, summaries []string, window models.Window, opts Options) ([]models.Finding, []string, []models.Finding) {
	patternWords := matcher.PatternWords()

	var autoResolved []models.Finding
	if len(patternWords) > 0 {
		var keptFindings []models.Finding
		for _, f := range open {
			fw := significantWords(f.Text)
			if anyOverlapAtLeast(patternWords, fw, findingTemplateOverlap) {
				autoResolved = append(autoResolved, f)
			} else {
				keptFindings = append(keptFindings, f)
			}
		}
		open = keptFindings

		var keptSummaries []string
		for _, s := range summaries {
			if !anyOverlapAtLeast(patternWords, significantWords(s), summaryTemplateOverlap) {
				keptSummaries = append(keptSummaries, s)
			}
		}
		summaries = keptSummaries
	}

	if opts.ExcludeAcknowledged {
		summaries = a.dropAckedSummaries(ctx, window, summaries)
	}
	return open, summaries, autoResolved
}

func anyOverlapAtLeast(wordLists [][]string, text map[string]bool, frac float64) bool {
	for _, words := range wordLists {
		if wordOverlapAtLeast(words, text, frac) {
			return true
		}
	}
	return false
}

// dropAckedSummaries removes previous summaries that restate acknowledged
// events of this window.
func (a *Analyzer) dropAckedSummaries(ctx context.Context, window models.Window, summaries []string) []string {
	if len(summaries) == 0 {
		return summaries
	}
	all, err := a.store.EventsInRange(ctx, window.SystemID, window.FromTs, window.ToTs, 1000, false)
	if err != nil {
		slog.Warn("Failed to load acknowledged events for context sanitation", "window_id", window.ID, "error", err)
		return summaries
	}
	var ackedWords []map[string]bool
	for _, ev := range all {
		if ev.AcknowledgedAt != nil {
			ackedWords = append(ackedWords, significantWords(ev.Message))
		}
	}
	if len(ackedWords) == 0 {
		return summaries
	}
	var kept []string
	for _, s := range summaries {
		sw := significantWords(s)
		drop := false
		for _, aw := range ackedWords {
			if overlapFraction(aw, sw) >= summaryAckedOverlap {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, s)
		}
	}
	return kept
}

// callLLM assembles the meta request.
func (a *Analyzer) callLLM(ctx context.Context, sys models.MonitoredSystem, sources []models.LogSource, lines []line, summaries []string, open []models.Finding, privacy *redact.PrivacyFilter) (*llm.MetaResponse, error) {
	ai := a.cfg.AI(ctx)
	labels := make([]string, 0, len(sources))
	for _, s := range sources {
		labels = append(labels, s.Label)
	}

	eventLines := make([]llm.EventLine, 0, len(lines))
	for _, l := range lines {
		eventLines = append(eventLines, llm.EventLine{
			Index:       l.Index,
			Message:     l.Message,
			Severity:    l.Severity,
			Host:        l.Host,
			Program:     l.Program,
			Occurrences: l.Occurrences,
		})
	}

	ctxFindings := make([]llm.ContextFinding, 0, len(open))
	for i, f := range open {
		ctxFindings = append(ctxFindings, llm.ContextFinding{
			Index:             i + 1,
			Text:              privacy.FilterText(f.Text),
			Severity:          f.Severity,
			Criterion:         f.CriterionSlug,
			Status:            string(f.Status),
			CreatedAt:         f.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			LastSeenAt:        f.LastSeenAt.UTC().Format("2006-01-02 15:04:05"),
			OccurrenceCount:   f.OccurrenceCount,
			DBID:              f.ID,
			Fingerprint:       f.Fingerprint,
			ConsecutiveMisses: f.ConsecutiveMisses,
		})
	}

	filteredSummaries := make([]string, 0, len(summaries))
	for _, s := range summaries {
		filteredSummaries = append(filteredSummaries, privacy.FilterText(s))
	}

	ackPrompt := ""
	if a.cfg.EventAckMode(ctx) == config.AckModeContextOnly {
		ackPrompt = a.cfg.EventAckPrompt(ctx)
	}

	return a.llm.MetaAnalyze(ctx, llm.MetaRequest{
		Creds: llm.Credentials{
			APIKey:  ai.APIKey,
			BaseURL: ai.BaseURL,
			Model:   ai.ModelFor("meta"),
		},
		Events:            eventLines,
		SystemDescription: sys.Description,
		SourceLabels:      labels,
		Context: llm.MetaContext{
			PreviousSummaries: filteredSummaries,
			OpenFindings:      ctxFindings,
		},
		SystemPrompt: a.cfg.MetaSystemPrompt(ctx),
		AckPrompt:    ackPrompt,
	})
}

func allZero(lines []line) bool {
	for _, l := range lines {
		if l.MaxScore > 0 {
			return false
		}
	}
	return true
}

func (a *Analyzer) recordUsage(ctx context.Context, usage llm.Usage) {
	if usage.Requests == 0 {
		return
	}
	ai := a.cfg.AI(ctx)
	u := models.LLMUsage{
		ID:            uuid.NewString(),
		Task:          "meta",
		Model:         ai.ModelFor("meta"),
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		RequestCount:  usage.Requests,
		EstimatedCost: float64(usage.InputTokens)/1000*0.00015 + float64(usage.OutputTokens)/1000*0.0006,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.store.InsertLLMUsage(ctx, u); err != nil {
		slog.Warn("Failed to record LLM usage", "task", u.Task, "error", err)
	}
}
