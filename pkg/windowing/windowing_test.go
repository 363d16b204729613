package windowing

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/config"
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

func newTestService(t *testing.T, cfgStore config.ConfigStore) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if cfgStore == nil {
		cfgStore = fakeConfigStore{}
	}
	return NewService(store.New(db), config.NewService(cfgStore)), mock
}

func oneSystemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "retention_days", "event_source",
		"timezone_name", "tz_offset_minutes", "created_at",
	}).AddRow("sys-1", "orders", "", nil, "relational", "", 0, time.Now())
}

func TestAdvanceCreatesFullIntervals(t *testing.T) {
	svc, mock := newTestService(t, fakeConfigStore{
		"pipeline_config": `{"window_minutes": 60}`,
	})

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	// Horizon is now minus one interval guard: 11:00. Last window ended 09:00,
	// so two full intervals close.
	mock.ExpectQuery(`FROM monitored_systems`).WillReturnRows(oneSystemRows())
	mock.ExpectQuery(`SELECT to_ts FROM windows`).
		WillReturnRows(sqlmock.NewRows([]string{"to_ts"}).
			AddRow(time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)))
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT count\(\*\) FROM events`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectQuery(`SELECT count\(\*\) FROM events e`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`INSERT INTO windows`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	created, err := svc.Advance(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), created[0].FromTs)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), created[0].ToTs)
	assert.Equal(t, time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC), created[1].ToTs)
	assert.Equal(t, models.TriggerScheduled, created[0].Trigger)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceWaitsForUnscoredEvents(t *testing.T) {
	svc, mock := newTestService(t, fakeConfigStore{
		"pipeline_config": `{"window_minutes": 60}`,
	})

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM monitored_systems`).WillReturnRows(oneSystemRows())
	mock.ExpectQuery(`SELECT to_ts FROM windows`).
		WillReturnRows(sqlmock.NewRows([]string{"to_ts"}).
			AddRow(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)))
	mock.ExpectQuery(`SELECT count\(\*\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`SELECT count\(\*\) FROM events e`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	created, err := svc.Advance(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceFirstRunStartsAtBoundary(t *testing.T) {
	svc, mock := newTestService(t, fakeConfigStore{
		"pipeline_config": `{"window_minutes": 60}`,
	})

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM monitored_systems`).WillReturnRows(oneSystemRows())
	mock.ExpectQuery(`SELECT to_ts FROM windows`).
		WillReturnError(sql.ErrNoRows)
	// An empty interval still closes, without the unscored check.
	mock.ExpectQuery(`SELECT count\(\*\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO windows`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := svc.Advance(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), created[0].FromTs)
	assert.Equal(t, time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC), created[0].ToTs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateManualDefaultsToReevalSpan(t *testing.T) {
	svc, mock := newTestService(t, nil)

	mock.ExpectExec(`INSERT INTO windows`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w, err := svc.CreateManual(context.Background(), "sys-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.TriggerManual, w.Trigger)
	assert.Equal(t, "sys-1", w.SystemID)
	assert.Equal(t, 7*24*time.Hour, w.ToTs.Sub(w.FromTs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateManualRejectsEmptyRange(t *testing.T) {
	svc, _ := newTestService(t, nil)

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	_, err := svc.CreateManual(context.Background(), "sys-1", at, at)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
