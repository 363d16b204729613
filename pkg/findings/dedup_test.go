package findings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func setOf(tokens ...string) map[string]bool {
	s := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

func TestJaccard(t *testing.T) {
	a := setOf("disk", "full", "web", "volume", "root")
	b := setOf("disk", "full", "web", "volume", "boot")
	// 4 shared of 6 union.
	assert.InDelta(t, 4.0/6.0, Jaccard(a, b), 1e-9)

	assert.Equal(t, 0.0, Jaccard(nil, b))
	assert.Equal(t, 1.0, Jaccard(a, a))
}

func TestJaccardThresholdBoundary(t *testing.T) {
	// 6 shared, union 10 = exactly 0.6: dedup.
	a := setOf("a1", "a2", "a3", "a4", "a5", "a6", "x1", "x2")
	b := setOf("a1", "a2", "a3", "a4", "a5", "a6", "y1", "y2")
	assert.GreaterOrEqual(t, Jaccard(a, b), 0.6)

	// 6 shared, union 11 < 0.6: insert.
	c := setOf("a1", "a2", "a3", "a4", "a5", "a6", "y1", "y2", "y3")
	assert.Less(t, Jaccard(a, c), 0.6)
}

func TestEscalateSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, EscalateSeverity(models.SeverityMedium, models.SeverityHigh))
	assert.Equal(t, models.SeverityHigh, EscalateSeverity(models.SeverityHigh, models.SeverityLow))
	assert.Equal(t, models.SeverityCritical, EscalateSeverity(models.SeverityCritical, models.SeverityCritical))
}

func TestDedupBatchKeepsHigherSeverity(t *testing.T) {
	batch := []Candidate{
		{Text: "repeated authentication failures from host db-01", Severity: models.SeverityMedium, CriterionSlug: "it_security"},
		{Text: "repeated authentication failures from host db-01 observed", Severity: models.SeverityHigh, CriterionSlug: "it_security"},
		{Text: "disk latency rising on storage node", Severity: models.SeverityLow, CriterionSlug: "performance_degradation"},
	}
	out := DedupBatch(batch, 0.6)
	require.Len(t, out, 2)
	assert.Equal(t, models.SeverityHigh, out[0].Severity)
	assert.Equal(t, "performance_degradation", out[1].CriterionSlug)
}

func TestDedupBatchDifferentCriteriaNotCollapsed(t *testing.T) {
	batch := []Candidate{
		{Text: "repeated authentication failures from host db-01", Severity: models.SeverityMedium, CriterionSlug: "it_security"},
		{Text: "repeated authentication failures from host db-01", Severity: models.SeverityMedium, CriterionSlug: "compliance_audit"},
	}
	assert.Len(t, DedupBatch(batch, 0.6), 2)
}

func TestMatcherFingerprintMatch(t *testing.T) {
	existing := []models.Finding{
		{ID: "f1", Text: "Disk /dev/sda1 at 95% (host web-01)", CriterionSlug: "operational_risk"},
	}
	m := NewMatcher(existing, 0.6)

	got := m.Match(Candidate{Text: "Disk /dev/sda1 at 96% (host web-01)", CriterionSlug: "operational_risk"})
	require.NotNil(t, got)
	assert.Equal(t, "f1", got.ID)
}

func TestMatcherEmptyCriterionMatchesAny(t *testing.T) {
	existing := []models.Finding{
		{ID: "f1", Text: "Disk /dev/sda1 at 95% (host web-01)", CriterionSlug: ""},
	}
	m := NewMatcher(existing, 0.6)
	got := m.Match(Candidate{Text: "Disk /dev/sda1 at 96% (host web-01)", CriterionSlug: "operational_risk"})
	require.NotNil(t, got)
	assert.Equal(t, "f1", got.ID)
}

func TestMatcherCriterionMismatchBlocksMatch(t *testing.T) {
	existing := []models.Finding{
		{ID: "f1", Text: "Disk /dev/sda1 at 95% (host web-01)", CriterionSlug: "it_security"},
	}
	m := NewMatcher(existing, 0.6)
	assert.Nil(t, m.Match(Candidate{Text: "Disk /dev/sda1 at 96% (host web-01)", CriterionSlug: "operational_risk"}))
}

func TestMatcherJaccardFallback(t *testing.T) {
	// Corpus of one: TF-IDF skipped, Jaccard decides.
	existing := []models.Finding{
		{ID: "f1", Text: "repeated ssh login failures targeting host bastion account admin", CriterionSlug: "it_security"},
	}
	m := NewMatcher(existing, 0.6)
	got := m.Match(Candidate{
		Text:          "repeated ssh login failures targeting host bastion account root",
		CriterionSlug: "it_security",
	})
	require.NotNil(t, got)
	assert.Equal(t, "f1", got.ID)
}

func TestMatcherNoMatchInserts(t *testing.T) {
	existing := []models.Finding{
		{ID: "f1", Text: "disk usage climbing on web-01", CriterionSlug: "operational_risk"},
	}
	m := NewMatcher(existing, 0.6)
	assert.Nil(t, m.Match(Candidate{Text: "kernel oom killer terminated postgres", CriterionSlug: "operational_risk"}))
}

func TestMatchRecurring(t *testing.T) {
	resolvedAt := time.Date(2026, 8, 19, 10, 30, 0, 0, time.UTC)
	resolved := []models.Finding{
		{
			ID:            "old",
			Text:          "Disk /dev/sda1 at 95% (host web-01)",
			CriterionSlug: "operational_risk",
			Status:        models.FindingResolved,
			ResolvedAt:    &resolvedAt,
		},
	}
	got := MatchRecurring(Candidate{Text: "Disk /dev/sda1 at 97% (host web-01)", CriterionSlug: "operational_risk"}, resolved, 0.6)
	require.NotNil(t, got)
	assert.Equal(t, "old", got.ID)

	text := RecurringText("Disk /dev/sda1 at 97% (host web-01)", *got.ResolvedAt)
	assert.Equal(t, "Recurring: Disk /dev/sda1 at 97% (host web-01) (previously resolved 2026-08-19 10:30:00)", text)
}

func TestLinkKeyEvents(t *testing.T) {
	events := []models.Event{
		{ID: "e1", Message: "disk usage on /dev/sda1 reached 95 percent on host web-01"},
		{ID: "e2", Message: "ntp clock drift corrected"},
	}
	ids := LinkKeyEvents("Disk /dev/sda1 at 95% (host web-01)", events)
	assert.Equal(t, []string{"e1"}, ids)
}
