package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func scoresFor(vals map[string]float64) map[string]map[int]float64 {
	out := make(map[string]map[int]float64)
	for id, v := range vals {
		out[id] = map[int]float64{1: v}
	}
	return out
}

func TestBuildLinesGroupsByTemplate(t *testing.T) {
	events := []models.Event{
		{ID: "e1", TemplateID: "tpl-a", Message: "disk usage 91%", Severity: "warning"},
		{ID: "e2", TemplateID: "tpl-a", Message: "disk usage 92%", Severity: "warning"},
		{ID: "e3", TemplateID: "tpl-b", Message: "link down", Severity: "error"},
	}
	scores := scoresFor(map[string]float64{"e1": 0.2, "e2": 0.6, "e3": 0.9})

	lines := buildLines(events, scores)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Index)
	assert.Equal(t, "e1", lines[0].EventID)
	assert.Equal(t, 2, lines[0].Occurrences)
	// Group max score is the max over members.
	assert.InDelta(t, 0.6, lines[0].MaxScore, 1e-9)
	assert.Equal(t, 2, lines[1].Index)
	assert.Equal(t, "e3", lines[1].EventID)
}

func TestCompactLinesDropsZeroScores(t *testing.T) {
	lines := []line{
		{Index: 1, EventID: "e1", MaxScore: 0},
		{Index: 2, EventID: "e2", MaxScore: 0.5},
		{Index: 3, EventID: "e3", MaxScore: 0},
		{Index: 4, EventID: "e4", MaxScore: 0.1},
		{Index: 5, EventID: "e5", MaxScore: 0},
		{Index: 6, EventID: "e6", MaxScore: 0},
	}
	out := compactLines(lines)
	require.Len(t, out, 2)
	assert.Equal(t, "e2", out[0].EventID)
	assert.Equal(t, 1, out[0].Index)
	assert.Equal(t, "e4", out[1].EventID)
	assert.Equal(t, 2, out[1].Index)
}

func TestCompactLinesKeepsShortLists(t *testing.T) {
	lines := []line{
		{Index: 1, EventID: "e1", MaxScore: 0},
		{Index: 2, EventID: "e2", MaxScore: 0.5},
	}
	assert.Len(t, compactLines(lines), 2)
}

func TestPrioritizeStableSort(t *testing.T) {
	lines := []line{
		{Index: 1, EventID: "low", MaxScore: 0.1},
		{Index: 2, EventID: "high", MaxScore: 0.9},
		{Index: 3, EventID: "mid-a", MaxScore: 0.5},
		{Index: 4, EventID: "mid-b", MaxScore: 0.5},
	}
	prioritize(lines)
	assert.Equal(t, "high", lines[0].EventID)
	assert.Equal(t, "mid-a", lines[1].EventID)
	assert.Equal(t, "mid-b", lines[2].EventID)
	assert.Equal(t, "low", lines[3].EventID)
	for i, l := range lines {
		assert.Equal(t, i+1, l.Index)
	}
}

func TestAllZero(t *testing.T) {
	assert.True(t, allZero([]line{{MaxScore: 0}, {MaxScore: 0}}))
	assert.False(t, allZero([]line{{MaxScore: 0}, {MaxScore: 0.01}}))
	assert.True(t, allZero(nil))
}
