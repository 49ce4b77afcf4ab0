package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/export"
)

type mockStudentRepo struct {
	students  []models.Student
	upserted  []models.RosterImportRow
	upsertErr error
	created   *models.Student
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return m.students, len(m.students), nil
}

func (m *mockStudentRepo) Directory(ctx context.Context) ([]models.Student, error) {
	return m.students, nil
}

func (m *mockStudentRepo) ActiveRoster(ctx context.Context) ([]models.Student, error) {
	return m.students, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	for i := range m.students {
		if m.students[i].ID == id {
			s := m.students[i]
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByRoll(ctx context.Context, roll int64) (*models.Student, error) {
	for i := range m.students {
		if m.students[i].RollNo == roll {
			s := m.students[i]
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = int64(len(m.students) + 1)
	m.created = student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error { return nil }

func (m *mockStudentRepo) Delete(ctx context.Context, id int64) error {
	if _, err := m.FindByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (m *mockStudentRepo) UpsertRoster(ctx context.Context, rows []models.RosterImportRow) (int, int, error) {
	if m.upsertErr != nil {
		return 0, 0, m.upsertErr
	}
	m.upserted = rows
	return len(rows) - 1, 1, nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf
}

func TestImportRosterParsesAndReportsErrors(t *testing.T) {
	repo := &mockStudentRepo{}
	audit := &recordingAudit{}
	svc := NewStudentService(repo, audit, nil, validator.New(), zap.NewNop())

	file := workbook(t, [][]interface{}{
		{"Roll", "Name", "Email"},
		{101, "Asha", "asha@example.com"},
		{102, "Bilal", ""},
		{"abc", "Bad Roll", ""},
		{103, "", ""},
		{101, "Asha Again", ""},
		{},
		{104, "Chen", "not-an-email"},
	})

	res, err := svc.ImportRoster(context.Background(), file, "admin-1")
	require.NoError(t, err)
	require.Len(t, repo.upserted, 2)
	assert.Equal(t, int64(101), repo.upserted[0].RollNo)
	require.NotNil(t, repo.upserted[0].Email)
	assert.Nil(t, repo.upserted[1].Email)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 4, res.Skipped)
	require.Len(t, res.Errors, 4)
	assert.Equal(t, 4, res.Errors[0].Line)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRosterImport, audit.logs[0].Action)
}

func TestImportRosterRejectsGarbage(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil, validator.New(), zap.NewNop())
	_, err := svc.ImportRoster(context.Background(), bytes.NewBufferString("not a workbook"), "admin-1")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportRosterRoundTrips(t *testing.T) {
	email := "asha@example.com"
	repo := &mockStudentRepo{students: []models.Student{{ID: 1, RollNo: 101, Name: "Asha", Email: &email}, {ID: 2, RollNo: 102, Name: "Bilal"}}}
	svc := NewStudentService(repo, nil, nil, validator.New(), zap.NewNop())

	file, err := svc.ExportRoster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "roster.xlsx", file.Filename)

	rows, err := export.ReadRows(bytes.NewReader(file.Content))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"101", "Asha", "asha@example.com"}, rows[1])
}

func TestCreateStudentDuplicateRoll(t *testing.T) {
	repo := &mockStudentRepo{students: []models.Student{{ID: 1, RollNo: 101, Name: "Asha"}}}
	svc := NewStudentService(repo, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.StudentRequest{RollNo: 101, Name: "Other"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	student, err := svc.Create(context.Background(), models.StudentRequest{RollNo: 102, Name: " Bilal "})
	require.NoError(t, err)
	assert.Equal(t, "Bilal", student.Name)
}

func TestUpdateStudentKeepsOwnRoll(t *testing.T) {
	repo := &mockStudentRepo{students: []models.Student{{ID: 1, RollNo: 101, Name: "Asha", Status: models.UserStatusActive}}}
	svc := NewStudentService(repo, nil, nil, validator.New(), zap.NewNop())

	student, err := svc.Update(context.Background(), 1, models.StudentRequest{RollNo: 101, Name: "Asha K"})
	require.NoError(t, err)
	assert.Equal(t, "Asha K", student.Name)
	assert.Equal(t, models.UserStatusActive, student.Status)
}

func TestLectureServiceValidatesTimes(t *testing.T) {
	svc := NewLectureService(nil, validator.New(), zap.NewNop())
	bad := "25:00"
	_, err := svc.Create(context.Background(), models.LectureRequest{Name: "Physics", DefaultStartTime: &bad})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

type memoryFacultyRepo struct {
	rows map[int64]*models.Faculty
}

func (m *memoryFacultyRepo) List(ctx context.Context, activeOnly bool) ([]models.Faculty, error) {
	return nil, nil
}

func (m *memoryFacultyRepo) FindByID(ctx context.Context, id int64) (*models.Faculty, error) {
	f, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *f
	return &copy, nil
}

func (m *memoryFacultyRepo) Create(ctx context.Context, f *models.Faculty) error {
	f.ID = int64(len(m.rows) + 1)
	m.rows[f.ID] = f
	return nil
}

func (m *memoryFacultyRepo) Update(ctx context.Context, f *models.Faculty) error { return nil }

func (m *memoryFacultyRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func TestRosterWritesDropAnalyticsCache(t *testing.T) {
	cache := &recordingInvalidator{}
	repo := &mockStudentRepo{students: []models.Student{{ID: 1, RollNo: 101, Name: "Asha"}}}
	svc := NewStudentService(repo, nil, cache, validator.New(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, models.StudentRequest{RollNo: 102, Name: "Bilal"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, 1, models.StudentRequest{RollNo: 101, Name: "Asha K"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1))
	_, err = svc.ImportRoster(ctx, workbook(t, [][]interface{}{{"Roll", "Name"}, {103, "Chen"}, {104, "Dev"}}), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{AnalyticsCachePattern, AnalyticsCachePattern, AnalyticsCachePattern, AnalyticsCachePattern}, cache.patterns)

	_, err = svc.Create(ctx, models.StudentRequest{RollNo: 101, Name: "Taken"})
	require.Error(t, err)
	assert.Len(t, cache.patterns, 4, "rejected writes keep the cache")
}

func TestFacultyWritesDropAnalyticsCache(t *testing.T) {
	cache := &recordingInvalidator{}
	svc := NewFacultyService(&memoryFacultyRepo{rows: map[int64]*models.Faculty{}}, cache, validator.New(), zap.NewNop())
	ctx := context.Background()

	f, err := svc.Create(ctx, models.FacultyRequest{Name: "Dr. Rao"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, f.ID, models.FacultyRequest{Name: "Dr. R. Rao"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, f.ID))
	assert.Len(t, cache.patterns, 3)

	assert.Error(t, svc.Delete(ctx, f.ID))
	assert.Len(t, cache.patterns, 3)
}
