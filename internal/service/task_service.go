package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/realtime"
)

type taskRepository interface {
	Create(ctx context.Context, task *models.ReviewTask) error
	FindByID(ctx context.Context, id string) (*models.ReviewTask, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error
	ListAssignedTo(ctx context.Context, userID, name string) ([]models.ReviewTask, error)
	ListCreatedBy(ctx context.Context, userID, name string) ([]models.ReviewTask, error)
}

type taskRecordReader interface {
	FindByID(ctx context.Context, id int64) (*models.AttendanceRecord, error)
}

type taskUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TaskServiceDeps groups the collaborators of TaskService.
type TaskServiceDeps struct {
	Tasks     taskRepository
	Records   taskRecordReader
	Users     taskUserReader
	Notifier  notificationPusher
	Publisher realtime.Publisher
	Cache     cacheInvalidator
}

// TaskService assigns attendance records for review.
type TaskService struct {
	tasks     taskRepository
	records   taskRecordReader
	users     taskUserReader
	notifier  notificationPusher
	emit      changeEmitter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskService builds the service.
func NewTaskService(deps TaskServiceDeps, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	registerAttendanceValidations(validate)
	return &TaskService{
		tasks:     deps.Tasks,
		records:   deps.Records,
		users:     deps.Users,
		notifier:  deps.Notifier,
		emit:      newChangeEmitter(deps.Publisher, deps.Cache, logger),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create assigns a review of a record to another user.
func (s *TaskService) Create(ctx context.Context, req models.CreateTaskRequest, actor *models.JWTClaims) (*models.ReviewTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot assign tasks")
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid task payload")
	}

	record, err := s.records.FindByID(ctx, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	assignee, err := s.users.FindByID(ctx, req.AssignedTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}

	task := &models.ReviewTask{
		RecordID:      record.ID,
		AssignedBy:    actor.UserID,
		AssignedTo:    assignee.ID,
		AssigneeName:  assignee.FullName,
		CreatorName:   actor.FullName,
		Status:        models.TaskStatusPending,
		Description:   req.Description,
		RecordSummary: fmt.Sprintf("%s (%s)", record.LectureName, record.DateString()),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}

	s.emit.changed(ctx, realtime.TableTasks, "insert", task.ID)
	s.notify(ctx, assignee.ID, models.Notification{
		Title:   "New review task",
		Message: fmt.Sprintf("%s asked you to review %s", displayName(actor.FullName), task.RecordSummary),
		Type:    models.NotificationUpdate,
	})
	return task, nil
}

// UpdateStatus moves a task along. Only the assignee, the creator or an admin may do so.
func (s *TaskService) UpdateStatus(ctx context.Context, id string, req models.UpdateTaskStatusRequest, actor *models.JWTClaims) (*models.ReviewTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be pending, in_progress, completed or rejected")
	}
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	isAssignee := task.AssignedTo == actor.UserID
	isCreator := task.AssignedBy == actor.UserID
	if !isAssignee && !isCreator && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assignee or creator can update this task")
	}

	at := s.now().UTC()
	if err := s.tasks.UpdateStatus(ctx, id, req.Status, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	task.Status = req.Status
	task.UpdatedAt = &at

	s.emit.changed(ctx, realtime.TableTasks, "update", task.ID)
	if !isCreator {
		s.notify(ctx, task.AssignedBy, models.Notification{
			Title:   "Task updated",
			Message: fmt.Sprintf("%s marked %s as %s", displayName(actor.FullName), task.RecordSummary, strings.ReplaceAll(string(req.Status), "_", " ")),
			Type:    taskNotificationType(req.Status),
		})
	}
	return task, nil
}

// Board returns tasks assigned to and created by the actor.
func (s *TaskService) Board(ctx context.Context, actor *models.JWTClaims) (*models.TaskBoard, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "task board is not available to students")
	}
	assigned, err := s.tasks.ListAssignedTo(ctx, actor.UserID, actor.FullName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tasks")
	}
	outbound, err := s.tasks.ListCreatedBy(ctx, actor.UserID, actor.FullName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tasks")
	}
	if assigned == nil {
		assigned = []models.ReviewTask{}
	}
	if outbound == nil {
		outbound = []models.ReviewTask{}
	}
	return &models.TaskBoard{AssignedToMe: assigned, Outbound: outbound}, nil
}

func (s *TaskService) notify(ctx context.Context, userID string, n models.Notification) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Push(ctx, userID, n); err != nil {
		s.logger.Warn("failed to push task notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func taskNotificationType(status models.TaskStatus) models.NotificationType {
	switch status {
	case models.TaskStatusCompleted:
		return models.NotificationSuccess
	case models.TaskStatusRejected:
		return models.NotificationError
	default:
		return models.NotificationUpdate
	}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Someone"
	}
	return name
}
