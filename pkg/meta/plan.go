package meta

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/findings"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/store"
)

// plan collects every lifecycle decision of one analysis before the single
// persistence transaction applies it.
type plan struct {
	metaResult   models.MetaResult
	newFindings  []models.Finding
	touches      []touch
	resolutions  []resolution
	stillActive  []string
	skipMisses   bool
	missExcludes []string
	autoResolved []models.Finding
}

// touch is a dedup match update: occurrence bump, miss reset, upward-only
// severity escalation.
type touch struct {
	id       string
	severity string
}

type resolution struct {
	findingID string
	evidence  models.ResolutionEvidence
}

// buildPlan turns the LLM response into lifecycle decisions (steps: dedup,
// recurring detection, resolution guardrails, still-active confirmation, the
// dormancy safeguard). presented are the findings the model was shown and is
// what its 1-based indices refer to; allOpen is the full open set, which dedup
// always runs against even when the context was suppressed.
func (a *Analyzer) buildPlan(ctx context.Context, window models.Window, lines []line, events []models.Event, presented, allOpen []models.Finding, resp *llm.MetaResponse, metaCfg config.MetaConfig, now time.Time) *plan {
	p := &plan{}

	lineByIndex := make(map[int]line, len(lines))
	for _, l := range lines {
		lineByIndex[l.Index] = l
	}

	// Intra-batch dedup, then dedup against the open findings.
	candidates := make([]findings.Candidate, 0, len(resp.NewFindings))
	for _, f := range resp.NewFindings {
		candidates = append(candidates, findings.Candidate{
			Text:          f.Text,
			Severity:      f.Severity,
			CriterionSlug: f.Criterion,
		})
	}
	candidates = findings.DedupBatch(candidates, metaCfg.DedupThreshold)

	matcher := findings.NewMatcher(allOpen, metaCfg.DedupThreshold)
	var survivors []findings.Candidate
	for _, c := range candidates {
		if existing := matcher.Match(c); existing != nil {
			p.touches = append(p.touches, touch{id: existing.ID, severity: c.Severity})
			p.missExcludes = append(p.missExcludes, existing.ID)
			continue
		}
		survivors = append(survivors, c)
	}

	// Insertion cap keeps the highest severities.
	if metaCfg.MaxNewFindingsPerWindow > 0 && len(survivors) > metaCfg.MaxNewFindingsPerWindow {
		sort.SliceStable(survivors, func(i, j int) bool {
			return models.SeverityRank(survivors[i].Severity) > models.SeverityRank(survivors[j].Severity)
		})
		survivors = survivors[:metaCfg.MaxNewFindingsPerWindow]
	}

	// Recurring detection against recently resolved findings.
	lookback := now.AddDate(0, 0, -metaCfg.RecurringLookbackDays)
	resolved, err := a.store.RecentResolvedFindings(ctx, window.SystemID, lookback)
	if err != nil {
		resolved = nil
	}
	for i, c := range survivors {
		if prev := findings.MatchRecurring(c, resolved, metaCfg.DedupThreshold); prev != nil && prev.ResolvedAt != nil {
			survivors[i].Text = findings.RecurringText(c.Text, *prev.ResolvedAt)
		}
	}

	var flat []models.FlatFinding
	for _, c := range survivors {
		f := models.Finding{
			ID:              uuid.NewString(),
			SystemID:        window.SystemID,
			Text:            c.Text,
			Severity:        c.Severity,
			CriterionSlug:   c.CriterionSlug,
			Status:          models.FindingOpen,
			Fingerprint:     findings.Fingerprint(c.Text),
			OccurrenceCount: 1,
			CreatedAt:       now,
			LastSeenAt:      now,
			KeyEventIDs:     findings.LinkKeyEvents(c.Text, events),
		}
		p.newFindings = append(p.newFindings, f)
		p.missExcludes = append(p.missExcludes, f.ID)
		flat = append(flat, models.FlatFinding{Text: c.Text, Severity: c.Severity, Criterion: c.CriterionSlug})
	}

	// Resolutions with guardrails. Presented findings were 1-indexed.
	resolvedThisWindow := make(map[string]bool)
	for _, r := range resp.Resolved {
		if r.Index < 1 || r.Index > len(presented) {
			continue
		}
		f := presented[r.Index-1]

		var refIDs []string
		var refMsgs []string
		var refSevs []string
		for _, ref := range r.EventRefs {
			l, ok := lineByIndex[ref]
			if !ok {
				continue
			}
			refIDs = append(refIDs, l.EventID)
			refMsgs = append(refMsgs, l.Message)
			refSevs = append(refSevs, l.Severity)
		}

		if rejected := rejectResolution(f, r.Evidence, refIDs, refMsgs, refSevs); rejected {
			// A failed resolution still proves the finding is alive.
			p.touches = append(p.touches, touch{id: f.ID, severity: f.Severity})
			p.missExcludes = append(p.missExcludes, f.ID)
			continue
		}

		p.resolutions = append(p.resolutions, resolution{
			findingID: f.ID,
			evidence:  models.ResolutionEvidence{Text: r.Evidence, EventIDs: refIDs},
		})
		p.missExcludes = append(p.missExcludes, f.ID)
		resolvedThisWindow[f.ID] = true
	}

	// Still-active confirmations, skipping findings resolved this window.
	for _, idx := range resp.StillActiveIndices {
		if idx < 1 || idx > len(presented) {
			continue
		}
		f := presented[idx-1]
		if resolvedThisWindow[f.ID] {
			continue
		}
		p.stillActive = append(p.stillActive, f.ID)
		p.missExcludes = append(p.missExcludes, f.ID)
	}

	// When the model classified nothing despite open findings, the window
	// says nothing about dormancy. A suppressed context counts the same
	// way: a re-evaluation that never saw the findings cannot miss them.
	p.skipMisses = len(allOpen) > 0 && len(resp.StillActiveIndices) == 0 && len(resp.Resolved) == 0

	keyIDs := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.MaxScore > 0 {
			keyIDs = append(keyIDs, l.EventID)
		}
	}
	p.metaResult = models.MetaResult{
		ID:                uuid.NewString(),
		WindowID:          window.ID,
		MetaScores:        resp.MetaScores,
		Summary:           resp.Summary,
		Findings:          flat,
		RecommendedAction: resp.RecommendedAction,
		KeyEventIDs:       keyIDs,
		CreatedAt:         now,
	}
	return p
}

// rejectResolution applies the resolution guardrails. True means rejected.
func rejectResolution(f models.Finding, evidence string, refIDs, refMsgs, refSevs []string) bool {
	if len(refIDs) == 0 {
		return true
	}
	if evidenceContradicts(evidence) {
		return true
	}
	if allErrorSeverity(refSevs) {
		return true
	}
	allSelfRef := true
	for _, msg := range refMsgs {
		if !selfReferential(msg, f.Text) {
			allSelfRef = false
			break
		}
	}
	return allSelfRef
}

// persist applies the plan in one transaction, then the effective scores.
func (a *Analyzer) persist(ctx context.Context, window models.Window, pipeline config.PipelineConfig, eventIDs []string, p *plan, now time.Time) error {
	maxScores, err := a.store.MaxScoresForEvents(ctx, eventIDs)
	if err != nil {
		return fmt.Errorf("failed to compute max event scores: %w", err)
	}
	metaCfg := a.cfg.Meta(ctx)

	return a.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.InsertMetaResult(ctx, p.metaResult); err != nil {
			return err
		}

		for _, f := range p.autoResolved {
			ev := models.ResolutionEvidence{Reason: normalEvidence, AutoResolved: true}
			if err := tx.ResolveFinding(ctx, f.ID, p.metaResult.ID, ev, now); err != nil {
				return err
			}
		}

		for i := range p.newFindings {
			p.newFindings[i].MetaResultID = p.metaResult.ID
			if err := tx.InsertFinding(ctx, p.newFindings[i]); err != nil {
				return err
			}
		}

		for _, t := range p.touches {
			if err := tx.TouchFinding(ctx, t.id, t.severity, now); err != nil {
				return err
			}
		}

		for _, r := range p.resolutions {
			if err := tx.ResolveFinding(ctx, r.findingID, p.metaResult.ID, r.evidence, now); err != nil {
				return err
			}
		}

		if len(p.stillActive) > 0 {
			if err := tx.ConfirmFindingsActive(ctx, p.stillActive, now); err != nil {
				return err
			}
		}

		if !p.skipMisses {
			if err := tx.IncrementMisses(ctx, window.SystemID, p.missExcludes); err != nil {
				return err
			}
		}

		if err := evictExcessFindings(ctx, tx, window.SystemID, p.metaResult.ID, metaCfg.MaxOpenFindings, now); err != nil {
			return err
		}

		return upsertEffectiveScores(ctx, tx, window, p.metaResult.MetaScores, maxScores, pipeline.EffectiveMetaWeight, now)
	})
}

// writeSynthetic persists a no-LLM meta result with zero effective scores.
// incrementMisses distinguishes the all-routine shortcut (dormancy still
// counts) from the empty-window case.
func (a *Analyzer) writeSynthetic(ctx context.Context, window models.Window, pipeline config.PipelineConfig, summary string, now time.Time, incrementMisses bool) error {
	scores := make(map[string]float64, models.CriterionCount)
	for _, c := range models.Criteria {
		scores[c.Slug] = 0
	}
	result := models.MetaResult{
		ID:         uuid.NewString(),
		WindowID:   window.ID,
		MetaScores: scores,
		Summary:    summary,
		CreatedAt:  now,
	}

	return a.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.InsertMetaResult(ctx, result); err != nil {
			return err
		}
		if incrementMisses {
			if err := tx.IncrementMisses(ctx, window.SystemID, nil); err != nil {
				return err
			}
		}
		return upsertEffectiveScores(ctx, tx, window, scores, nil, pipeline.EffectiveMetaWeight, now)
	})
}

// zeroWindowScores clears the window's effective scores without writing a
// meta result, so a window whose analysis failed neither keeps stale scores
// nor counts as analyzed.
func (a *Analyzer) zeroWindowScores(ctx context.Context, window models.Window, pipeline config.PipelineConfig, now time.Time) error {
	scores := make(map[string]float64, models.CriterionCount)
	for _, c := range models.Criteria {
		scores[c.Slug] = 0
	}
	return a.store.WithTx(ctx, func(tx *store.Store) error {
		return upsertEffectiveScores(ctx, tx, window, scores, nil, pipeline.EffectiveMetaWeight, now)
	})
}

// upsertEffectiveScores blends per-criterion meta and max event scores. A
// zero max voids the meta score: the model cannot outrank a quiet window.
func upsertEffectiveScores(ctx context.Context, tx *store.Store, window models.Window, metaScores map[string]float64, maxScores map[int]float64, wMeta float64, now time.Time) error {
	if wMeta <= 0 || wMeta > 1 {
		wMeta = models.MetaWeight
	}
	for _, c := range models.Criteria {
		maxEvent := maxScores[c.ID]
		metaEff := metaScores[c.Slug]
		if maxEvent == 0 {
			metaEff = 0
		}
		es := models.EffectiveScore{
			WindowID:       window.ID,
			SystemID:       window.SystemID,
			CriterionID:    c.ID,
			EffectiveValue: models.BlendEffective(metaEff, maxEvent, wMeta),
			MetaScore:      metaEff,
			MaxEventScore:  maxEvent,
			UpdatedAt:      now,
		}
		if err := tx.UpsertEffectiveScore(ctx, es); err != nil {
			return err
		}
	}
	return nil
}

// evictExcessFindings closes the lowest-priority open findings beyond the
// cap, ordered by severity rank then staleness.
func evictExcessFindings(ctx context.Context, tx *store.Store, systemID, metaResultID string, maxOpen int, now time.Time) error {
	if maxOpen <= 0 {
		return nil
	}
	count, err := tx.CountOpenFindings(ctx, systemID)
	if err != nil {
		return err
	}
	excess := count - maxOpen
	if excess <= 0 {
		return nil
	}
	victims, err := tx.OpenFindingsForEviction(ctx, systemID)
	if err != nil {
		return err
	}
	for i := 0; i < excess && i < len(victims); i++ {
		ev := models.ResolutionEvidence{Text: evictionEvidence, EventIDs: []string{}, AutoResolved: true}
		if err := tx.ResolveFinding(ctx, victims[i].ID, metaResultID, ev, now); err != nil {
			return err
		}
	}
	return nil
}
