package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type mockRecordRepo struct {
	created  *models.AttendanceRecord
	details  []models.AttendanceDetail
	replaced bool
	missing  bool
	filter   models.RecordFilter
}

func (m *mockRecordRepo) CreateWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error {
	record.ID = 11
	m.created = record
	m.details = details
	return nil
}

func (m *mockRecordRepo) ReplaceWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error {
	if m.missing {
		return sql.ErrNoRows
	}
	m.replaced = true
	m.details = details
	return nil
}

func (m *mockRecordRepo) DeleteWithDetails(ctx context.Context, id int64) error {
	if m.missing {
		return sql.ErrNoRows
	}
	return nil
}

func (m *mockRecordRepo) FindWithDetails(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	if m.missing {
		return nil, sql.ErrNoRows
	}
	return &models.AttendanceRecord{ID: id}, nil
}

func (m *mockRecordRepo) List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error) {
	m.filter = filter
	return nil, nil
}

type stubDirectory struct {
	students []models.Student
}

func (s stubDirectory) ActiveRoster(ctx context.Context) ([]models.Student, error) {
	return s.students, nil
}

func (s stubDirectory) FindByRoll(ctx context.Context, roll int64) (*models.Student, error) {
	for _, st := range s.students {
		if st.RollNo == roll {
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

// memoryList mimics LPUSH+LTRIM on a single process.
type memoryList struct {
	lists map[string][]json.RawMessage
}

func newMemoryList() *memoryList {
	return &memoryList{lists: map[string][]json.RawMessage{}}
}

func (m *memoryList) PushCapped(ctx context.Context, key string, value interface{}, limit int64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	list := append([]json.RawMessage{raw}, m.lists[key]...)
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	m.lists[key] = list
	return nil
}

func (m *memoryList) Range(ctx context.Context, key string, limit int64) ([]json.RawMessage, error) {
	list := m.lists[key]
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func newRecordsFixture() (*RecordsService, *mockRecordRepo, *memoryList, *recordingPublisher) {
	repo := &mockRecordRepo{}
	list := newMemoryList()
	pub := &recordingPublisher{}
	roster := stubDirectory{students: []models.Student{
		{RollNo: 101, Name: "Asha"},
		{RollNo: 102, Name: "Bilal"},
		{RollNo: 103, Name: "Chen"},
	}}
	svc := NewRecordsService(RecordsServiceDeps{Records: repo, Roster: roster, ScanLog: list, Publisher: pub}, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	return svc, repo, list, pub
}

func manualRequest() models.ManualRecordRequest {
	return models.ManualRecordRequest{
		Date:          "2024-03-01",
		StartTime:     "09:00",
		EndTime:       "10:00",
		LectureName:   "Chemistry",
		FacultyName:   "Dr. Iyer",
		SelectedRolls: []int64{101, 103, 101},
	}
}

func TestRecordsCreateManualMarksRoster(t *testing.T) {
	svc, repo, _, pub := newRecordsFixture()

	record, err := svc.CreateManual(context.Background(), manualRequest(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, "09:00 to 10:00", record.TimeSlot)
	assert.Equal(t, "Friday", record.Day)
	assert.Equal(t, models.LectureTypeRegular, record.LectureType)
	assert.Equal(t, 2, record.PresentCount)
	assert.Equal(t, 3, record.TotalCount)
	require.NotNil(t, record.CreatedBy)

	require.Len(t, repo.details, 3)
	statuses := map[int64]models.AttendanceStatus{}
	for _, d := range repo.details {
		statuses[d.StudentRoll] = d.Status
	}
	assert.Equal(t, models.AttendanceStatusPresent, statuses[101])
	assert.Equal(t, models.AttendanceStatusAbsent, statuses[102])
	assert.Equal(t, models.AttendanceStatusPresent, statuses[103])
	assert.Len(t, pub.events, 2)
}

func TestRecordsCreateManualValidation(t *testing.T) {
	svc, _, _, _ := newRecordsFixture()

	req := manualRequest()
	req.StartTime = "9am"
	_, err := svc.CreateManual(context.Background(), req, "fac-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = manualRequest()
	req.SelectedRolls = []int64{999}
	_, err = svc.CreateManual(context.Background(), req, "fac-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
}

func TestRecordsCreateManualCoversWholeRoster(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		selected []int64
	}{
		{name: "small class", size: 3, selected: []int64{1, 3}},
		{name: "at the picker cap", size: 500, selected: []int64{1, 500}},
		{name: "beyond the picker cap", size: 750, selected: []int64{1, 501, 750}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			students := make([]models.Student, 0, tc.size)
			for roll := 1; roll <= tc.size; roll++ {
				students = append(students, models.Student{RollNo: int64(roll), Name: fmt.Sprintf("Student %d", roll)})
			}
			repo := &mockRecordRepo{}
			svc := NewRecordsService(RecordsServiceDeps{Records: repo, Roster: stubDirectory{students: students}}, nil, nil)

			req := manualRequest()
			req.SelectedRolls = tc.selected
			record, err := svc.CreateManual(context.Background(), req, "fac-1")
			require.NoError(t, err)
			assert.Equal(t, tc.size, record.TotalCount)
			assert.Equal(t, len(tc.selected), record.PresentCount)
			assert.Len(t, repo.details, tc.size)
		})
	}
}

func TestRecordsTimeSlotWithoutEnd(t *testing.T) {
	assert.Equal(t, "09:00", manualTimeSlot("09:00", ""))
	assert.Equal(t, "", manualTimeSlot("", ""))
}

func TestRecordsUpdateMissing(t *testing.T) {
	svc, repo, _, _ := newRecordsFixture()
	repo.missing = true

	_, err := svc.UpdateManual(context.Background(), 5, manualRequest(), "fac-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), 5, "fac-1"), appErrors.ErrNotFound)
	_, err = svc.Get(context.Background(), 5)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRecordsListLimits(t *testing.T) {
	svc, repo, _, _ := newRecordsFixture()

	records, err := svc.List(context.Background(), models.RecordFilter{Lecture: " Chemistry "}, false)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
	assert.Equal(t, 20, repo.filter.Limit)
	assert.Equal(t, "Chemistry", repo.filter.Lecture)

	_, err = svc.List(context.Background(), models.RecordFilter{}, true)
	require.NoError(t, err)
	assert.Equal(t, 200, repo.filter.Limit)
}

func TestRecordsLookupRollKeepsCappedLog(t *testing.T) {
	svc, _, list, _ := newRecordsFixture()

	found, err := svc.LookupRoll(context.Background(), 102, "op-1")
	require.NoError(t, err)
	assert.True(t, found.Found)
	assert.Equal(t, "Bilal", found.Name)

	missing, err := svc.LookupRoll(context.Background(), 404, "op-1")
	require.NoError(t, err)
	assert.False(t, missing.Found)

	for i := 0; i < 60; i++ {
		_, err := svc.LookupRoll(context.Background(), 101, "op-1")
		require.NoError(t, err)
	}
	assert.Len(t, list.lists["ams:scanlog:op-1"], 50)

	log, err := svc.ScanLog(context.Background(), "op-1")
	require.NoError(t, err)
	require.Len(t, log, 50)
	assert.Equal(t, int64(101), log[0].RollNo)

	_, err = svc.LookupRoll(context.Background(), 0, "op-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
