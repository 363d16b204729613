// Package scoring runs the per-event LLM scoring job: select unscored events,
// filter normal behavior, collapse to message templates and persist six
// criterion scores per event.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/normal"
	"github.com/loglens/loglens/pkg/normalizer"
	"github.com/loglens/loglens/pkg/store"
)

// Rough per-1K-token pricing used for the usage ledger. Real billing happens
// at the provider; this only has to be in the right ballpark for dashboards.
const (
	inputCostPer1K  = 0.00015
	outputCostPer1K = 0.0006
)

// Job scores unscored events in batches.
type Job struct {
	store *store.Store
	cfg   *config.Service
	llm   llm.Client
}

// NewJob wires the scoring job.
func NewJob(st *store.Store, cfg *config.Service, client llm.Client) *Job {
	return &Job{store: st, cfg: cfg, llm: client}
}

// Run performs one scoring pass and returns how many events got scores.
func (j *Job) Run(ctx context.Context) (int, error) {
	ai := j.cfg.AI(ctx)
	if !ai.Configured() {
		return 0, nil
	}
	pipeline := j.cfg.Pipeline(ctx)

	events, err := j.store.UnscoredEvents(ctx, pipeline.ScoringLimitPerRun)
	if err != nil {
		return 0, fmt.Errorf("failed to select unscored events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	templates, err := j.store.ListTemplates(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to load normal-behavior templates: %w", err)
	}
	matcher := normal.NewMatcher(templates)

	bySystem := make(map[string][]models.Event)
	var systemOrder []string
	for _, ev := range events {
		if _, seen := bySystem[ev.SystemID]; !seen {
			systemOrder = append(systemOrder, ev.SystemID)
		}
		bySystem[ev.SystemID] = append(bySystem[ev.SystemID], ev)
	}

	scored := 0
	for _, systemID := range systemOrder {
		n, err := j.scoreSystem(ctx, ai, matcher, systemID, bySystem[systemID])
		if err != nil {
			slog.Error("Scoring failed for system", "system_id", systemID, "error", err)
			continue
		}
		scored += n
	}
	return scored, nil
}

// scoreSystem scores one system's batch. Template-matching events and LLM
// failures both produce all-zero score rows so no event is re-queued forever.
func (j *Job) scoreSystem(ctx context.Context, ai config.AIConfig, matcher *normal.Matcher, systemID string, events []models.Event) (int, error) {
	kept, excluded := matcher.Filter(events)
	if excluded > 0 {
		slog.Info("Excluded normal-behavior events from scoring", "system_id", systemID, "excluded", excluded)
	}

	keptIDs := make(map[string]bool, len(kept))
	for _, ev := range kept {
		keptIDs[ev.ID] = true
	}
	var rows []models.EventScore
	for _, ev := range events {
		if !keptIDs[ev.ID] {
			rows = append(rows, zeroScores(ev.ID)...)
		}
	}

	if len(kept) > 0 {
		groups := groupByTemplate(kept)

		scores, usage, err := j.callLLM(ctx, ai, systemID, groups)
		if err != nil {
			slog.Warn("LLM scoring failed, writing zero scores", "system_id", systemID, "error", err)
			for _, ev := range kept {
				rows = append(rows, zeroScores(ev.ID)...)
			}
		} else {
			for gi, g := range groups {
				for _, memberID := range g.memberIDs {
					for ci, c := range models.Criteria {
						rows = append(rows, models.EventScore{
							EventID:     memberID,
							CriterionID: c.ID,
							ScoreType:   models.ScoreTypeEvent,
							Score:       scores[gi][ci],
						})
					}
				}
			}
			j.recordUsage(ctx, ai.ModelFor("scoring"), usage)
		}
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := j.store.UpsertEventScores(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to persist event scores: %w", err)
	}
	return len(rows) / models.CriterionCount, nil
}

// templateGroup is one representative with its member event ids.
type templateGroup struct {
	rep       models.Event
	memberIDs []string
}

// groupByTemplate collapses events sharing a parameterized-message template
// to one representative, preserving first-seen order.
func groupByTemplate(events []models.Event) []templateGroup {
	index := make(map[string]int)
	var groups []templateGroup
	for _, ev := range events {
		key := ev.TemplateID
		if key == "" {
			key = normalizer.TemplateID(ev.Message)
		}
		if i, ok := index[key]; ok {
			groups[i].memberIDs = append(groups[i].memberIDs, ev.ID)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, templateGroup{rep: ev, memberIDs: []string{ev.ID}})
	}
	return groups
}

// callLLM scores the representatives and returns one row of six floats per
// group.
func (j *Job) callLLM(ctx context.Context, ai config.AIConfig, systemID string, groups []templateGroup) ([][]float64, llm.Usage, error) {
	sys, err := j.store.GetSystem(ctx, systemID)
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("failed to load system: %w", err)
	}
	sources, err := j.store.LogSourcesForSystem(ctx, systemID)
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("failed to load log sources: %w", err)
	}
	labels := make([]string, 0, len(sources))
	for _, s := range sources {
		labels = append(labels, s.Label)
	}

	lines := make([]llm.EventLine, 0, len(groups))
	for i, g := range groups {
		lines = append(lines, llm.EventLine{
			Index:       i + 1,
			Message:     g.rep.Message,
			Severity:    g.rep.Severity,
			Host:        g.rep.Host,
			Program:     g.rep.Program,
			Occurrences: len(g.memberIDs),
		})
	}

	guides := make(map[string]string, models.CriterionCount)
	for _, c := range models.Criteria {
		if g := j.cfg.CriterionGuide(ctx, c.Slug); g != "" {
			guides[c.Slug] = g
		}
	}

	resp, err := j.llm.ScoreEvents(ctx, llm.ScoreRequest{
		Creds: llm.Credentials{
			APIKey:  ai.APIKey,
			BaseURL: ai.BaseURL,
			Model:   ai.ModelFor("scoring"),
		},
		Events:            lines,
		SystemDescription: sys.Description,
		SourceLabels:      labels,
		SystemPrompt:      j.cfg.ScoringSystemPrompt(ctx),
		CriterionGuides:   guides,
	})
	if err != nil {
		return nil, llm.Usage{}, err
	}
	return resp.Scores, resp.Usage, nil
}

func (j *Job) recordUsage(ctx context.Context, model string, usage llm.Usage) {
	if usage.Requests == 0 {
		return
	}
	cost := float64(usage.InputTokens)/1000*inputCostPer1K + float64(usage.OutputTokens)/1000*outputCostPer1K
	u := models.LLMUsage{
		ID:            uuid.NewString(),
		Task:          "scoring",
		Model:         model,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		RequestCount:  usage.Requests,
		EstimatedCost: cost,
		CreatedAt:     time.Now().UTC(),
	}
	if err := j.store.InsertLLMUsage(ctx, u); err != nil {
		slog.Warn("Failed to record LLM usage", "task", u.Task, "error", err)
	}
}

func zeroScores(eventID string) []models.EventScore {
	rows := make([]models.EventScore, 0, models.CriterionCount)
	for _, c := range models.Criteria {
		rows = append(rows, models.EventScore{
			EventID:     eventID,
			CriterionID: c.ID,
			ScoreType:   models.ScoreTypeEvent,
			Score:       0,
		})
	}
	return rows
}
