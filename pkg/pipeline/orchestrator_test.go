package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loglens/loglens/pkg/config"
)

// fakeConfigStore serves fixed app_config values without a database.
type fakeConfigStore struct {
	values map[string]string
}

func (f *fakeConfigStore) GetConfigValue(_ context.Context, key string) (json.RawMessage, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(v), true, nil
}

func (f *fakeConfigStore) SetConfigValue(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.values[key] = string(raw)
	return nil
}

func newTestOrchestrator(pipelineJSON string) *Orchestrator {
	store := &fakeConfigStore{values: map[string]string{}}
	if pipelineJSON != "" {
		store.values["pipeline_config"] = pipelineJSON
	}
	return &Orchestrator{cfg: config.NewService(store)}
}

func TestAdaptResetsOnActivity(t *testing.T) {
	o := newTestOrchestrator(`{"pipeline_min_interval_minutes":15,"pipeline_max_interval_minutes":120}`)
	o.interval = 60 * time.Minute

	o.adapt(context.Background(), true)
	assert.Equal(t, 15*time.Minute, o.interval)
}

func TestAdaptDoublesWhenIdle(t *testing.T) {
	o := newTestOrchestrator(`{"pipeline_min_interval_minutes":15,"pipeline_max_interval_minutes":120}`)
	o.interval = 15 * time.Minute

	o.adapt(context.Background(), false)
	assert.Equal(t, 30*time.Minute, o.interval)

	o.adapt(context.Background(), false)
	assert.Equal(t, 60*time.Minute, o.interval)

	o.adapt(context.Background(), false)
	assert.Equal(t, 120*time.Minute, o.interval)

	// Capped at the max.
	o.adapt(context.Background(), false)
	assert.Equal(t, 120*time.Minute, o.interval)
}

func TestAdaptHonorsRuntimeBoundsChange(t *testing.T) {
	store := &fakeConfigStore{values: map[string]string{
		"pipeline_config": `{"pipeline_min_interval_minutes":15,"pipeline_max_interval_minutes":120}`,
	}}
	cfg := config.NewService(store)
	o := &Orchestrator{cfg: cfg}
	o.interval = 5 * time.Minute

	// Interval below a raised minimum snaps up.
	store.values["pipeline_config"] = `{"pipeline_min_interval_minutes":30,"pipeline_max_interval_minutes":120}`
	cfg.Invalidate()
	o.adapt(context.Background(), false)
	assert.Equal(t, 30*time.Minute, o.interval)
}

func TestTickSkipsWhenRunning(t *testing.T) {
	o := newTestOrchestrator("")
	o.interval = 15 * time.Minute
	o.running = true

	// A tick during a running pass must not invoke the pipeline; with nil
	// services a real pass would panic.
	o.tick(context.Background())
	assert.True(t, o.running)
}
