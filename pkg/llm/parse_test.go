package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no language", "```\n[1,2]\n```", `[1,2]`},
		{"prose around", "Here you go:\n{\"a\":1}\nHope that helps.", `{"a":1}`},
		{"bare array", `[ [0.1,0,0,0,0,0] ]`, `[ [0.1,0,0,0,0,0] ]`},
		{"no json", "I cannot help with that.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestParseScoresWrappedObject(t *testing.T) {
	scores, err := ParseScores(`{"scores":[[0.1,0.2,0.3,0.4,0.5,0.6],[0,0,0,0,0,0]]}`, 2)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, scores[0])
}

func TestParseScoresBareArrayPadded(t *testing.T) {
	// One row for three events: missing rows are zero, short rows padded.
	scores, err := ParseScores(`[[0.9,0.8]]`, 3)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, []float64{0.9, 0.8, 0, 0, 0, 0}, scores[0])
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, scores[1])
}

func TestParseScoresTruncatesAndClamps(t *testing.T) {
	scores, err := ParseScores(`{"scores":[[2,-1,0.5,0,0,0,0.9],[0,0,0,0,0,0]]}`, 1)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, []float64{1, 0, 0.5, 0, 0, 0}, scores[0])
}

func TestParseScoresNoJSON(t *testing.T) {
	_, err := ParseScores("sorry, no", 1)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseMetaResponseFull(t *testing.T) {
	content := "```json\n" + `{
		"meta_scores": {"it_security": 0.7, "anomaly": 0.2},
		"summary": "Repeated auth failures on bastion.",
		"new_findings": [
			{"text": "Brute force against bastion", "severity": "high", "criterion": "it_security"},
			{"text": "", "severity": "low"},
			{"text": "Oddity", "severity": "weird", "criterion": "not_a_slug"}
		],
		"resolved_indices": [
			{"index": 2, "evidence": "backup completed successfully", "event_refs": [4]},
			5
		],
		"still_active_indices": [1, 3],
		"recommended_action": "Block the source IP."
	}` + "\n```"

	resp, err := ParseMetaResponse(content)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, resp.MetaScores["it_security"], 1e-9)
	assert.Zero(t, resp.MetaScores["operational_risk"])
	assert.Len(t, resp.MetaScores, 6)
	assert.Equal(t, "Repeated auth failures on bastion.", resp.Summary)

	require.Len(t, resp.NewFindings, 2)
	assert.Equal(t, "high", resp.NewFindings[0].Severity)
	// Unknown severity and criterion degrade instead of failing.
	assert.Equal(t, "info", resp.NewFindings[1].Severity)
	assert.Empty(t, resp.NewFindings[1].Criterion)

	require.Len(t, resp.Resolved, 2)
	assert.Equal(t, 2, resp.Resolved[0].Index)
	assert.Equal(t, []int{4}, resp.Resolved[0].EventRefs)
	// Legacy plain index survives with no evidence; guardrails reject it.
	assert.Equal(t, 5, resp.Resolved[1].Index)
	assert.Empty(t, resp.Resolved[1].EventRefs)

	assert.Equal(t, []int{1, 3}, resp.StillActiveIndices)
	assert.Equal(t, "Block the source IP.", resp.RecommendedAction)
}

func TestParseMetaResponseEmptyObject(t *testing.T) {
	resp, err := ParseMetaResponse(`{}`)
	require.NoError(t, err)
	assert.Len(t, resp.MetaScores, 6)
	assert.Empty(t, resp.NewFindings)
	assert.Empty(t, resp.Resolved)
}

func TestSubstituteCriterionGuides(t *testing.T) {
	prompt := substituteCriterionGuides("Criteria:\n{{criteria}}", map[string]string{
		"anomaly": "Custom anomaly guidance.",
	})
	assert.Contains(t, prompt, "4. anomaly: Custom anomaly guidance.")
	assert.Contains(t, prompt, "1. it_security: "+DefaultCriterionGuides["it_security"])
	assert.NotContains(t, prompt, "{{criteria}}")
}

func TestBuildMetaUserPrompt(t *testing.T) {
	req := MetaRequest{
		SystemDescription: "Edge firewall cluster",
		SourceLabels:      []string{"pfsense", "suricata"},
		Context: MetaContext{
			PreviousSummaries: []string{"Quiet window."},
			OpenFindings: []ContextFinding{
				{Index: 1, Text: "Flapping WAN link", Severity: "medium", Status: "open", OccurrenceCount: 3, LastSeenAt: "2026-08-24 10:00:00"},
			},
		},
		Events: []EventLine{
			{Index: 1, Message: "link down", Severity: "error", Host: "fw-01", Occurrences: 4},
		},
	}
	got := buildMetaUserPrompt(req)
	assert.Contains(t, got, "System: Edge firewall cluster")
	assert.Contains(t, got, "pfsense, suricata")
	assert.Contains(t, got, "- Quiet window.")
	assert.Contains(t, got, "[1] (medium, open, seen 3x, last 2026-08-24 10:00:00) Flapping WAN link")
	assert.Contains(t, got, "[1] <error> fw-01 link down (x4)")
}
