package meta

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/store"
)

// fakeConfigStore serves app_config keys from a map.
type fakeConfigStore map[string]string

func (f fakeConfigStore) GetConfigValue(_ context.Context, key string) (json.RawMessage, bool, error) {
	raw, ok := f[key]
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

func (f fakeConfigStore) SetConfigValue(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f[key] = string(raw)
	return nil
}

// fakeLLM records the last meta request and serves a canned response.
type fakeLLM struct {
	metaResp *llm.MetaResponse
	metaErr  error
	lastMeta *llm.MetaRequest
}

func (f *fakeLLM) ScoreEvents(context.Context, llm.ScoreRequest) (*llm.ScoreResponse, error) {
	return nil, errors.New("unexpected scoring call")
}

func (f *fakeLLM) MetaAnalyze(_ context.Context, req llm.MetaRequest) (*llm.MetaResponse, error) {
	f.lastMeta = &req
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.metaResp, nil
}

func newTestAnalyzer(t *testing.T, cfgStore config.ConfigStore, client llm.Client) (*Analyzer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if cfgStore == nil {
		cfgStore = fakeConfigStore{}
	}
	return NewAnalyzer(store.New(db), config.NewService(cfgStore), client), mock
}

var eventRowColumns = []string{
	"id", "system_id", "log_source_id", "connector_id", "received_at", "timestamp",
	"message", "severity", "host", "source_ip", "service", "facility", "program",
	"trace_id", "span_id", "payload", "normalized_hash", "external_id", "template_id",
	"acknowledged_at",
}

func oneEventRow(ts time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(eventRowColumns).AddRow(
		"ev-1", "sys-1", nil, "", ts, ts,
		"disk failure on /dev/sda", "error", "web-01", nil, "", "", "smartd",
		nil, nil, nil, "hash-1", nil, nil,
		nil,
	)
}

func systemRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "retention_days", "event_source",
		"timezone_name", "tz_offset_minutes", "created_at",
	}).AddRow("sys-1", "orders", "", nil, "relational", "", 0, time.Now())
}

var findingRowColumns = []string{
	"id", "system_id", "meta_result_id", "text", "severity", "criterion_slug", "status",
	"fingerprint", "occurrence_count", "consecutive_misses", "reopen_count",
	"last_seen_at", "resolved_at", "resolved_by_meta_id", "resolution_evidence",
	"key_event_ids", "created_at",
}

// expectAnalysisInputs mocks the read path up to and including the event
// scores: window lookup, system, sources, one scored error event, no
// templates.
func expectAnalysisInputs(mock sqlmock.Sqlmock, trigger string, limit int, from, to time.Time) {
	mock.ExpectQuery(`SELECT 1 FROM meta_results`).
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectQuery(`FROM windows WHERE id`).
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "system_id", "from_ts", "to_ts", "trigger"}).
			AddRow("w-1", "sys-1", from, to, trigger))
	mock.ExpectQuery(`FROM monitored_systems WHERE id`).
		WithArgs("sys-1").
		WillReturnRows(systemRow())
	mock.ExpectQuery(`FROM log_sources`).
		WithArgs("sys-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM events e`).
		WithArgs("sys-1", from, to, limit).
		WillReturnRows(oneEventRow(from))
	mock.ExpectQuery(`FROM normal_behavior_templates`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM event_scores`).
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "criterion_id", "score"}).
			AddRow("ev-1", 1, 7.5))
}

func TestAnalyzeZeroesScoresWhenLLMFails(t *testing.T) {
	client := &fakeLLM{metaErr: errors.New("upstream 503")}
	a, mock := newTestAnalyzer(t, nil, client)

	from := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	expectAnalysisInputs(mock, "scheduled", 200, from, to)
	mock.ExpectQuery(`SELECT m.summary FROM meta_results`).
		WillReturnRows(sqlmock.NewRows([]string{"summary"}))
	mock.ExpectQuery(`status IN \('open', 'acknowledged'\)`).
		WillReturnRows(sqlmock.NewRows(findingRowColumns))

	// The failed window keeps no stale scores: every criterion is zeroed,
	// and no meta result row is written so the next run retries.
	mock.ExpectBegin()
	for _, c := range models.Criteria {
		mock.ExpectExec(`INSERT INTO effective_scores`).
			WithArgs("w-1", "sys-1", c.ID, 0.0, 0.0, 0.0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	ok, err := a.Analyze(context.Background(), "w-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meta analysis LLM call failed")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyzeResetContextRunsFresh(t *testing.T) {
	client := &fakeLLM{metaResp: &llm.MetaResponse{
		MetaScores: map[string]float64{"anomaly": 6},
		Summary:    "One anomalous disk failure burst.",
	}}
	a, mock := newTestAnalyzer(t, nil, client)

	from := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	lastSeen := from.Add(-time.Hour)

	// A manual window uses the re-evaluation event cap, and with the context
	// reset there is no summary query at all.
	expectAnalysisInputs(mock, "manual", 500, from, to)
	mock.ExpectQuery(`status IN \('open', 'acknowledged'\)`).
		WithArgs("sys-1", maxContextFindings).
		WillReturnRows(sqlmock.NewRows(findingRowColumns).AddRow(
			"f-1", "sys-1", nil, "Repeated disk errors on web-01", "high", nil, "open",
			"fp-1", 3, 0, 0,
			lastSeen, nil, nil, nil,
			`["ev-9"]`, lastSeen,
		))

	mock.ExpectQuery(`status = 'resolved' AND resolved_at`).
		WillReturnRows(sqlmock.NewRows(findingRowColumns))
	mock.ExpectQuery(`MAX\(sc\.score\)`).
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"criterion_id", "max"}))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO meta_results`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The model saw no findings, so the window says nothing about dormancy
	// and no misses are counted.
	mock.ExpectQuery(`SELECT count\(\*\) FROM findings`).
		WithArgs("sys-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	for range models.Criteria {
		mock.ExpectExec(`INSERT INTO effective_scores`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	ok, err := a.Analyze(context.Background(), "w-1", Options{ExcludeAcknowledged: true, ResetContext: true})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NotNil(t, client.lastMeta)
	assert.Empty(t, client.lastMeta.Context.PreviousSummaries)
	assert.Empty(t, client.lastMeta.Context.OpenFindings)
	assert.NoError(t, mock.ExpectationsWereMet())
}
