package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanupMaintainerRequiresRetention(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := NewCleanupMaintainer(store, CleanupMaintainerConfig{})
	assert.Error(t, err)
}

func TestNewCleanupMaintainerRequiresStore(t *testing.T) {
	_, err := NewCleanupMaintainer(nil, CleanupMaintainerConfig{Retention: time.Hour})
	assert.ErrorIs(t, err, ErrDBRequired)
}

func TestCleanupMaintainerEnsureDeletesCompletedOnly(t *testing.T) {
	store, mock := newMockStore(t)

	maintainer, err := NewCleanupMaintainer(store, CleanupMaintainerConfig{Retention: 24 * time.Hour})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(hashtext\(\$1\)\)`).
		WithArgs("outbox:cleanup:outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM outbox_events WHERE id IN \(\s*SELECT id FROM outbox_events WHERE status = \$1 AND processed_at IS NOT NULL AND processed_at <= \$2 ORDER BY id LIMIT \$3\s*\)`).
		WithArgs("COMPLETED", sqlmock.AnyArg(), defaultCleanupLimit).
		WillReturnResult(sqlmock.NewResult(0, 42))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(hashtext\(\$1\)\)`).
		WithArgs("outbox:cleanup:outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(true))

	result, err := maintainer.Ensure(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, result.Completed)
	assert.Zero(t, result.DeadLetter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupMaintainerEnsureSkipsWithoutLock(t *testing.T) {
	store, mock := newMockStore(t)

	maintainer, err := NewCleanupMaintainer(store, CleanupMaintainerConfig{Retention: 24 * time.Hour})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(hashtext\(\$1\)\)`).
		WithArgs("outbox:cleanup:outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(false))

	result, err := maintainer.Ensure(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupMaintainerIncludesDeadLetterWithinRemainingBudget(t *testing.T) {
	store, mock := newMockStore(t)

	maintainer, err := NewCleanupMaintainer(store, CleanupMaintainerConfig{
		Retention:         24 * time.Hour,
		Limit:             100,
		IncludeDeadLetter: true,
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM outbox_events WHERE id IN \(\s*SELECT id FROM outbox_events WHERE status = \$1 AND processed_at`).
		WithArgs("COMPLETED", sqlmock.AnyArg(), 100).
		WillReturnResult(sqlmock.NewResult(0, 60))
	mock.ExpectExec(`DELETE FROM outbox_events WHERE id IN \(\s*SELECT id FROM outbox_events WHERE status = \$1 AND created_at`).
		WithArgs("DEAD_LETTER", sqlmock.AnyArg(), 40).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectQuery(`SELECT pg_advisory_unlock`).WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(true))

	result, err := maintainer.Ensure(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 60, result.Completed)
	assert.EqualValues(t, 5, result.DeadLetter)
}
