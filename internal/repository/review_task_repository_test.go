package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/models"
)

var reviewTaskRowColumns = []string{"id", "record_id", "assigned_by", "assigned_to", "assignee_name", "creator_name", "status", "description", "record_summary", "created_at", "updated_at"}

func TestReviewTaskCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReviewTaskRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_tasks")).
		WithArgs(sqlmock.AnyArg(), int64(7), "admin-1", "fac-1", "Dr. Rao", "Admin", "pending", "check roll", "Physics (2026-10-01)", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	task := &models.ReviewTask{
		RecordID:      7,
		AssignedBy:    "admin-1",
		AssignedTo:    "fac-1",
		AssigneeName:  "Dr. Rao",
		CreatorName:   "Admin",
		Description:   "check roll",
		RecordSummary: "Physics (2026-10-01)",
	}
	require.NoError(t, repo.Create(context.Background(), task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTaskListAssignedMatchesIDOrName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReviewTaskRepository(db)

	rows := sqlmock.NewRows(reviewTaskRowColumns).
		AddRow("t1", int64(7), "admin-1", "fac-1", "Dr. Rao", "Admin", "pending", "d", "s", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_tasks WHERE assigned_to = $1 OR ($2 <> '' AND assignee_name = $2) ORDER BY created_at DESC LIMIT 50")).
		WithArgs("fac-1", "Dr. Rao").
		WillReturnRows(rows)

	tasks, err := repo.ListAssignedTo(context.Background(), "fac-1", "Dr. Rao")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTaskUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReviewTaskRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_tasks SET status = $2")).
		WithArgs("nope", models.TaskStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "nope", models.TaskStatusCompleted, time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
