package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func TestMatcherOrder(t *testing.T) {
	sources := []models.LogSource{
		{ID: "s-conn", SystemID: "sys1", ConnectorID: "conn-9"},
		{ID: "s-host", SystemID: "sys1", Host: "web-01"},
		{ID: "s-ip", SystemID: "sys2", SourceIP: "10.0.0.5"},
		{ID: "s-prog", SystemID: "sys2", Program: "nginx"},
	}
	m := NewMatcher(sources)

	tests := []struct {
		name   string
		ev     models.Event
		wantID string
	}{
		{"connector beats host", models.Event{ConnectorID: "conn-9", Host: "web-01"}, "s-conn"},
		{"host beats source ip", models.Event{Host: "web-01", SourceIP: "10.0.0.5"}, "s-host"},
		{"source ip beats program", models.Event{SourceIP: "10.0.0.5", Program: "nginx"}, "s-ip"},
		{"program alone", models.Event{Program: "nginx"}, "s-prog"},
		{"case insensitive", models.Event{Host: "WEB-01"}, "s-host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, ok := m.Match(&tt.ev)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, src.ID)
		})
	}
}

func TestMatcherNoMatch(t *testing.T) {
	m := NewMatcher([]models.LogSource{{ID: "s1", Host: "web-01"}})
	_, ok := m.Match(&models.Event{Host: "db-01", Program: "postgres"})
	assert.False(t, ok)
}

func TestMatcherEmptyHintsNeverMatch(t *testing.T) {
	m := NewMatcher([]models.LogSource{{ID: "s1", SystemID: "sys1"}})
	_, ok := m.Match(&models.Event{Host: "", Program: ""})
	assert.False(t, ok)
}

func TestParseBatchShapes(t *testing.T) {
	wrapped, err := ParseBatch([]byte(`{"events":[{"message":"a"},{"message":"b"}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 2)

	bare, err := ParseBatch([]byte(`[{"message":"a"}]`))
	require.NoError(t, err)
	assert.Len(t, bare, 1)

	single, err := ParseBatch([]byte(`{"msg":"lonely"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "lonely", single[0]["msg"])

	_, err = ParseBatch([]byte(`{"no":"message"}`))
	assert.Error(t, err)

	_, err = ParseBatch([]byte(`"just a string"`))
	assert.Error(t, err)
}
