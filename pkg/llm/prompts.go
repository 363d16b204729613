package llm

import (
	"fmt"
	"strings"
)

// DefaultCriterionGuides are the baseline per-criterion scoring guidelines.
// Each is overridable through app_config ("criterion_guide_<slug>").
var DefaultCriterionGuides = map[string]string{
	"it_security":             "Authentication failures, privilege escalation, unexpected access patterns, firewall denials, malware indicators. Routine successful logins score 0.",
	"performance_degradation": "Latency growth, queue buildup, resource saturation, slow queries, throttling. One-off slow operations with no trend score low.",
	"failure_prediction":      "Precursors of outage: disk nearly full, memory pressure, flapping links, repeated retries, hardware warnings.",
	"anomaly":                 "Deviations from this system's usual patterns: unusual volume, new message types, odd hours, unexpected hosts.",
	"compliance_audit":        "Audit-relevant actions: configuration changes, permission changes, data exports, policy violations.",
	"operational_risk":        "Conditions that threaten service continuity: failed backups, certificate expiry, crashed services, restart loops.",
}

// DefaultScoringPrompt is the base system prompt for event scoring. The
// {{criteria}} marker is replaced with the six guideline blocks.
const DefaultScoringPrompt = `You are a log analysis engine. For every numbered event you receive, produce a risk score between 0.0 and 1.0 for each of six criteria. 0 means routine, 1 means severe. Score independently per criterion.

Criteria, in order:
{{criteria}}

Respond with JSON only: {"scores": [[s1,s2,s3,s4,s5,s6], ...]}, one array of six floats per input event, in input order.`

// DefaultMetaPrompt is the base system prompt for window meta-analysis.
const DefaultMetaPrompt = `You are a log analysis engine reviewing one time window of scored events for a monitored system, together with recent history and currently open findings.

Produce JSON only, with these fields:
- "meta_scores": object with keys it_security, performance_degradation, failure_prediction, anomaly, compliance_audit, operational_risk, each a float in [0,1] rating the window as a whole.
- "summary": one short paragraph describing what happened in the window.
- "new_findings": array of {"text", "severity" (critical|high|medium|low|info), "criterion" (slug or null)} for genuinely new issues. Do not repeat open findings.
- "resolved_indices": array of {"index", "evidence", "event_refs": [line numbers]} only when events in THIS window prove an open finding is fixed. Evidence must cite recovery, not recurrence.
- "still_active_indices": array of open-finding indices this window confirms are still happening.
- "recommended_action": optional short operator guidance.`

// substituteCriterionGuides expands the {{criteria}} marker with the guide
// blocks, falling back to defaults per criterion.
func substituteCriterionGuides(prompt string, overrides map[string]string) string {
	var b strings.Builder
	for i, slug := range criterionSlugs() {
		guide := overrides[slug]
		if guide == "" {
			guide = DefaultCriterionGuides[slug]
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, slug, guide)
	}
	return strings.ReplaceAll(prompt, "{{criteria}}", strings.TrimRight(b.String(), "\n"))
}

// buildScoringUserPrompt renders the event lines and system context.
func buildScoringUserPrompt(req ScoreRequest) string {
	var b strings.Builder
	writeSystemContext(&b, req.SystemDescription, req.SourceLabels)
	fmt.Fprintf(&b, "Events (%d):\n", len(req.Events))
	for _, ev := range req.Events {
		writeEventLine(&b, ev)
	}
	return b.String()
}

// buildMetaUserPrompt renders the window lines plus history context.
func buildMetaUserPrompt(req MetaRequest) string {
	var b strings.Builder
	writeSystemContext(&b, req.SystemDescription, req.SourceLabels)

	if len(req.Context.PreviousSummaries) > 0 {
		b.WriteString("Previous window summaries, newest first:\n")
		for _, s := range req.Context.PreviousSummaries {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(req.Context.OpenFindings) > 0 {
		b.WriteString("Open findings (refer to them by index):\n")
		for _, f := range req.Context.OpenFindings {
			fmt.Fprintf(&b, "[%d] (%s, %s, seen %dx, last %s) %s\n",
				f.Index, f.Severity, f.Status, f.OccurrenceCount, f.LastSeenAt, f.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Events in this window (%d lines):\n", len(req.Events))
	for _, ev := range req.Events {
		writeEventLine(&b, ev)
	}
	return b.String()
}

func writeSystemContext(b *strings.Builder, description string, labels []string) {
	if description != "" {
		fmt.Fprintf(b, "System: %s\n", description)
	}
	if len(labels) > 0 {
		fmt.Fprintf(b, "Log sources: %s\n", strings.Join(labels, ", "))
	}
	b.WriteString("\n")
}

func writeEventLine(b *strings.Builder, ev EventLine) {
	fmt.Fprintf(b, "[%d]", ev.Index)
	if ev.Severity != "" {
		fmt.Fprintf(b, " <%s>", ev.Severity)
	}
	if ev.Host != "" {
		fmt.Fprintf(b, " %s", ev.Host)
	}
	if ev.Program != "" {
		fmt.Fprintf(b, " %s:", ev.Program)
	}
	fmt.Fprintf(b, " %s", ev.Message)
	if ev.Occurrences > 1 {
		fmt.Fprintf(b, " (x%d)", ev.Occurrences)
	}
	b.WriteString("\n")
}
