package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestAcknowledgeFindingTransitions(t *testing.T) {
	st, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE findings SET status`).
		WithArgs("f-1", "open", "acknowledged").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.AcknowledgeFinding(context.Background(), "f-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReopenResolvedFindingConflicts(t *testing.T) {
	st, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE findings SET status`).
		WithArgs("f-1", "acknowledged", "open").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM findings`).
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("resolved"))

	err := st.ReopenFinding(context.Background(), "f-1")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionMissingFindingNotFound(t *testing.T) {
	st, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE findings SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM findings`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := st.AcknowledgeFinding(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveFindingIsTerminalGuarded(t *testing.T) {
	st, mock := newTestStore(t)
	// The status predicate keeps already-resolved rows untouched.
	mock.ExpectExec(`UPDATE findings SET status = 'resolved'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	evidence := models.ResolutionEvidence{
		Text:     "service recovered after restart",
		EventIDs: []string{"ev-9"},
	}
	err := st.ResolveFinding(context.Background(), "f-1", "meta-1", evidence, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFindingScansRow(t *testing.T) {
	st, mock := newTestStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM findings WHERE id`).
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "system_id", "meta_result_id", "text", "severity", "criterion_slug",
			"status", "fingerprint", "occurrence_count", "consecutive_misses",
			"reopen_count", "last_seen_at", "resolved_at", "resolved_by_meta_id",
			"resolution_evidence", "key_event_ids", "created_at",
		}).AddRow(
			"f-1", "sys-1", nil, "repeated auth failures from one host", "high", "it_security",
			"open", "abcd1234", 3, 0, 0, now, nil, nil, nil, `["ev-1","ev-2"]`, now,
		))

	f, err := st.GetFinding(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "high", f.Severity)
	assert.Equal(t, "it_security", f.CriterionSlug)
	assert.Equal(t, []string{"ev-1", "ev-2"}, f.KeyEventIDs)
	assert.Nil(t, f.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFindingNotFound(t *testing.T) {
	st, mock := newTestStore(t)
	mock.ExpectQuery(`FROM findings WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.GetFinding(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}
