package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type mockTaskRepo struct {
	tasks map[string]*models.ReviewTask
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*models.ReviewTask{}}
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	stored := *task
	m.tasks[task.ID] = &stored
	return nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*models.ReviewTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored := *task
	return &stored, nil
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error {
	task, ok := m.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	task.Status = status
	task.UpdatedAt = &at
	return nil
}

func (m *mockTaskRepo) ListAssignedTo(ctx context.Context, userID, name string) ([]models.ReviewTask, error) {
	var out []models.ReviewTask
	for _, task := range m.tasks {
		if task.AssignedTo == userID || (name != "" && task.AssigneeName == name) {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) ListCreatedBy(ctx context.Context, userID, name string) ([]models.ReviewTask, error) {
	var out []models.ReviewTask
	for _, task := range m.tasks {
		if task.AssignedBy == userID || (name != "" && task.CreatorName == name) {
			out = append(out, *task)
		}
	}
	return out, nil
}

type stubTaskRecords struct{}

func (stubTaskRecords) FindByID(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	if id != 9 {
		return nil, sql.ErrNoRows
	}
	return &models.AttendanceRecord{ID: 9, LectureName: "Biology", Date: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)}, nil
}

type stubTaskUsers struct{}

func (stubTaskUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if id != "3f1c9b4e-8f4a-4a43-9a57-0d1b2b6b7c11" {
		return nil, sql.ErrNoRows
	}
	return &models.User{ID: id, FullName: "Prof. Mehta", Role: models.RoleFaculty}, nil
}

const taskAssigneeID = "3f1c9b4e-8f4a-4a43-9a57-0d1b2b6b7c11"

func newTaskFixture() (*TaskService, *mockTaskRepo, *recordingNotifier, *recordingPublisher) {
	repo := newMockTaskRepo()
	notifier := &recordingNotifier{}
	pub := &recordingPublisher{}
	svc := NewTaskService(TaskServiceDeps{Tasks: repo, Records: stubTaskRecords{}, Users: stubTaskUsers{}, Notifier: notifier, Publisher: pub}, nil, nil)
	return svc, repo, notifier, pub
}

func TestTaskCreateNotifiesAssignee(t *testing.T) {
	svc, _, notifier, pub := newTaskFixture()

	task, err := svc.Create(context.Background(), models.CreateTaskRequest{RecordID: 9, AssignedTo: taskAssigneeID, Description: " check roll "}, facultyClaims())
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, "Biology (2024-02-20)", task.RecordSummary)
	assert.Equal(t, "Prof. Mehta", task.AssigneeName)
	assert.Equal(t, "Dr. Rao", task.CreatorName)
	assert.Equal(t, "check roll", task.Description)

	require.Len(t, notifier.pushed[taskAssigneeID], 1)
	assert.Contains(t, notifier.pushed[taskAssigneeID][0].Message, "Biology (2024-02-20)")
	require.Len(t, pub.events, 1)
	assert.Equal(t, "review_tasks", pub.events[0].Table)
}

func TestTaskCreateRejections(t *testing.T) {
	svc, _, _, _ := newTaskFixture()

	_, err := svc.Create(context.Background(), models.CreateTaskRequest{RecordID: 9, AssignedTo: taskAssigneeID, Description: "x"}, studentClaims(101))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Create(context.Background(), models.CreateTaskRequest{RecordID: 10, AssignedTo: taskAssigneeID, Description: "x"}, facultyClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Create(context.Background(), models.CreateTaskRequest{RecordID: 9, AssignedTo: "not-a-uuid", Description: "x"}, facultyClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTaskUpdateStatusPermissions(t *testing.T) {
	svc, _, notifier, _ := newTaskFixture()
	task, err := svc.Create(context.Background(), models.CreateTaskRequest{RecordID: 9, AssignedTo: taskAssigneeID, Description: "check"}, facultyClaims())
	require.NoError(t, err)

	stranger := &models.JWTClaims{UserID: "x", Role: models.RoleFaculty}
	_, err = svc.UpdateStatus(context.Background(), task.ID, models.UpdateTaskStatusRequest{Status: models.TaskStatusCompleted}, stranger)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateStatus(context.Background(), task.ID, models.UpdateTaskStatusRequest{Status: "archived"}, stranger)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assignee := &models.JWTClaims{UserID: taskAssigneeID, Role: models.RoleFaculty, FullName: "Prof. Mehta"}
	updated, err := svc.UpdateStatus(context.Background(), task.ID, models.UpdateTaskStatusRequest{Status: models.TaskStatusCompleted}, assignee)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, updated.Status)
	require.NotNil(t, updated.UpdatedAt)

	feed := notifier.pushed["fac-1"]
	require.Len(t, feed, 1)
	assert.Equal(t, models.NotificationSuccess, feed[0].Type)

	_, err = svc.UpdateStatus(context.Background(), "missing", models.UpdateTaskStatusRequest{Status: models.TaskStatusRejected}, assignee)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTaskBoard(t *testing.T) {
	svc, repo, _, _ := newTaskFixture()
	repo.tasks["legacy"] = &models.ReviewTask{ID: "legacy", AssignedTo: "old-id", AssigneeName: "Dr. Rao", AssignedBy: "adm"}
	repo.tasks["mine"] = &models.ReviewTask{ID: "mine", AssignedTo: "other", AssignedBy: "fac-1"}

	board, err := svc.Board(context.Background(), facultyClaims())
	require.NoError(t, err)
	require.Len(t, board.AssignedToMe, 1)
	assert.Equal(t, "legacy", board.AssignedToMe[0].ID)
	require.Len(t, board.Outbound, 1)
	assert.Equal(t, "mine", board.Outbound[0].ID)

	_, err = svc.Board(context.Background(), studentClaims(101))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
