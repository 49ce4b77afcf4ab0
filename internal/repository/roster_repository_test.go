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

var studentRowColumns = []string{"id", "roll_no", "name", "email", "status", "created_at", "updated_at"}

func TestStudentListDefaultsAndSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, roll_no, name, email, status, created_at, updated_at FROM students WHERE 1=1 AND (LOWER(name) LIKE $1 OR CAST(roll_no AS TEXT) LIKE $1) ORDER BY roll_no ASC LIMIT 20 OFFSET 0")).
		WithArgs("%asha%").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(int64(1), int64(101), "Asha", nil, "active", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1")).
		WithArgs("%asha%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "Asha", SortBy: "drop table"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, students, 1)
	assert.Equal(t, int64(101), students[0].RollNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDirectoryIsDistinctAndCapped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (roll_no)")).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))
	_, err := repo.Directory(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentActiveRosterIsUncapped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`ORDER BY roll_no ASC, id ASC$`).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))
	_, err := repo.ActiveRoster(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentFindByRollsEmptySkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	students, err := repo.FindByRolls(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 9), sql.ErrNoRows)
}

func TestUpsertRosterCountsInsertsAndUpdates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (roll_no)")).
		WithArgs(int64(101), "Asha", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (roll_no)")).
		WithArgs(int64(102), "Bilal", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	inserted, updated, err := repo.UpsertRoster(context.Background(), []models.RosterImportRow{
		{Line: 2, RollNo: 101, Name: "Asha"},
		{Line: 3, RollNo: 102, Name: "Bilal"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRosterRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("ON CONFLICT").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, _, err := repo.UpsertRoster(context.Background(), []models.RosterImportRow{{Line: 2, RollNo: 101, Name: "Asha"}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacultyListActiveOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM faculty WHERE status = 'active' ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	_, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLectureCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLectureRepository(db)

	start := "09:00"
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lectures")).
		WithArgs("Physics", start, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	lecture := &models.Lecture{Name: "Physics", DefaultStartTime: &start}
	require.NoError(t, repo.Create(context.Background(), lecture))
	assert.Equal(t, int64(4), lecture.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
