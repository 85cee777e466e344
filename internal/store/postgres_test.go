// internal/store/postgres_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

var queueCols = []string{
	"id", "application_id", "level", "status", "assigned_to", "claimed_at",
	"priority_score", "sla_deadline", "escalated", "created_at", "completed_at",
}

func queueRow(mock sqlmock.Sqlmock, id, status string, assignedTo interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(queueCols).
		AddRow(id, "app-1", 1, status, assignedTo, nil, 0, now.Add(72*time.Hour), false, now, nil)
}

func TestPostgres_ClaimQueueEntry_Wins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec("UPDATE review_queue").
		WithArgs("q-1", "rev-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM review_queue WHERE id").
		WithArgs("q-1").
		WillReturnRows(queueRow(mock, "q-1", "claimed", "rev-1"))

	entry, err := s.ClaimQueueEntry(context.Background(), "q-1", "rev-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.QueueClaimed, entry.Status)
	require.NotNil(t, entry.AssignedTo)
	assert.Equal(t, "rev-1", *entry.AssignedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ClaimQueueEntry_LostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec("UPDATE review_queue").
		WithArgs("q-1", "rev-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM review_queue WHERE id").
		WithArgs("q-1").
		WillReturnRows(queueRow(mock, "q-1", "claimed", "rev-1"))

	_, err = s.ClaimQueueEntry(context.Background(), "q-1", "rev-2", time.Now().UTC())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed))
	assert.True(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ClaimQueueEntry_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec("UPDATE review_queue").
		WithArgs("q-missing", "rev-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM review_queue WHERE id").
		WithArgs("q-missing").
		WillReturnRows(sqlmock.NewRows(queueCols))

	_, err = s.ClaimQueueEntry(context.Background(), "q-missing", "rev-1", time.Now().UTC())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertQueueEntry_MapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec("INSERT INTO review_queue").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "review_queue_live_uniq"})

	err = s.InsertQueueEntry(context.Background(), &models.QueueEntry{
		ID: "q-1", ApplicationID: "app-1", Level: 1, Status: models.QueuePending,
		SLADeadline: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDuplicateQueueEntry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Transact_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_actions").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.Transact(context.Background(), func(tx Store) error {
		return tx.AppendAction(context.Background(), &models.ReviewAction{
			ID: "a-1", ApplicationID: "app-1", Action: models.ActionSubmitted,
			CreatedAt: time.Now().UTC(),
		})
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Transact_CommitsAndJoinsNested(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_actions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.Transact(context.Background(), func(tx Store) error {
		// Nested call must reuse the open transaction, not begin a second one.
		return tx.Transact(context.Background(), func(inner Store) error {
			return inner.AppendAction(context.Background(), &models.ReviewAction{
				ID: "a-1", ApplicationID: "app-1", Action: models.ActionSubmitted,
				CreatedAt: time.Now().UTC(),
			})
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetApplication_DecodesJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "status", "current_level", "region", "district", "constituency",
		"snapshot", "eligibility_score", "eligibility_flags", "identifier", "submitted_at",
		"changes_deadline", "final_decision_at", "created_at", "updated_at",
	}).AddRow(
		"app-1", "farmer_screening", "under_review", 1, "ashanti", "d1", "c1",
		[]byte(`{"fullName":"Ama Mensah","applicantAge":34}`), 50,
		[]byte(`["late_submission"]`), nil, now, nil, nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM applications WHERE id").
		WithArgs("app-1").
		WillReturnRows(rows)

	app, err := s.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Ama Mensah", app.Snapshot["fullName"])
	assert.Equal(t, []string{"late_submission"}, app.EligibilityFlags)
	assert.Nil(t, app.ChangesDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListQueueEntries_AppendsFilterClauses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectQuery("FROM review_queue q(.+)JOIN applications a(.+)a.region = \\$2(.+)q.assigned_to = \\$3").
		WithArgs(1, "ashanti", "rev-1").
		WillReturnRows(sqlmock.NewRows(queueCols))

	entries, err := s.ListQueueEntries(context.Background(), 1, ListFilter{
		Region: "ashanti", AssignedTo: "rev-1",
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
