package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func TestGroupByTemplate(t *testing.T) {
	events := []models.Event{
		{ID: "e1", TemplateID: "tpl-a", Message: "disk usage 91%"},
		{ID: "e2", TemplateID: "tpl-a", Message: "disk usage 92%"},
		{ID: "e3", TemplateID: "tpl-b", Message: "link down"},
		{ID: "e4", TemplateID: "tpl-a", Message: "disk usage 93%"},
	}
	groups := groupByTemplate(events)
	require.Len(t, groups, 2)
	assert.Equal(t, "e1", groups[0].rep.ID)
	assert.Equal(t, []string{"e1", "e2", "e4"}, groups[0].memberIDs)
	assert.Equal(t, []string{"e3"}, groups[1].memberIDs)
}

func TestGroupByTemplateFallsBackToMessage(t *testing.T) {
	// Events without a stored template id still collapse when their messages
	// parameterize identically.
	events := []models.Event{
		{ID: "e1", Message: "session 4211 closed"},
		{ID: "e2", Message: "session 977 closed"},
		{ID: "e3", Message: "session opened"},
	}
	groups := groupByTemplate(events)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"e1", "e2"}, groups[0].memberIDs)
}

func TestZeroScores(t *testing.T) {
	rows := zeroScores("e1")
	require.Len(t, rows, models.CriterionCount)
	seen := make(map[int]bool)
	for _, r := range rows {
		assert.Equal(t, "e1", r.EventID)
		assert.Equal(t, models.ScoreTypeEvent, r.ScoreType)
		assert.Zero(t, r.Score)
		seen[r.CriterionID] = true
	}
	assert.Len(t, seen, models.CriterionCount)
}
