package cleanup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/store"
)

// nopConfigStore serves no config values, so the service runs on defaults.
type nopConfigStore struct{}

func (nopConfigStore) GetConfigValue(context.Context, string) (json.RawMessage, bool, error) {
	return nil, false, nil
}

func (nopConfigStore) SetConfigValue(context.Context, string, any) error {
	return nil
}

func systemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "retention_days", "event_source",
		"timezone_name", "tz_offset_minutes", "created_at",
	}).
		AddRow("sys-a", "edge-router", "", nil, "relational", "", 0, time.Now()).
		AddRow("sys-b", "web-frontend", "", 7, "relational", "", 0, time.Now())
}

func TestEnforceRetentionDeletesPerSystem(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM monitored_systems`).WillReturnRows(systemRows())

	// sys-a falls back to the 90-day default, sys-b has its own 7 days.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`DELETE FROM event_scores`).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`DELETE FROM events`).
			WillReturnResult(sqlmock.NewResult(0, 3))
	}

	svc := NewService(store.New(db), config.NewService(nopConfigStore{}), nil)
	svc.enforceRetention(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneDiscovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM discovery_buffer`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	svc := NewService(store.New(db), config.NewService(nopConfigStore{}), nil)
	svc.pruneDiscovery(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllSurvivesListFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM monitored_systems`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectExec(`DELETE FROM discovery_buffer`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// A nil partition DB skips partition maintenance; the discovery prune
	// still runs after the system listing fails.
	svc := NewService(store.New(db), config.NewService(nopConfigStore{}), nil)
	svc.runAll(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}
