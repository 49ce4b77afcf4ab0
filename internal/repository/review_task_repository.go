package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ams-api/internal/models"
)

const (
	reviewTaskColumns = "id, record_id, assigned_by, assigned_to, assignee_name, creator_name, status, description, record_summary, created_at, updated_at"
	taskBoardLimit    = 50
)

// ReviewTaskRepository persists review tasks.
type ReviewTaskRepository struct {
	db *sqlx.DB
}

// NewReviewTaskRepository constructs the repository.
func NewReviewTaskRepository(db *sqlx.DB) *ReviewTaskRepository {
	return &ReviewTaskRepository{db: db}
}

// Create inserts a task, defaulting id, status and created_at.
func (r *ReviewTaskRepository) Create(ctx context.Context, task *models.ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO review_tasks (id, record_id, assigned_by, assigned_to, assignee_name, creator_name, status, description, record_summary, created_at)
VALUES (:id, :record_id, :assigned_by, :assigned_to, :assignee_name, :creator_name, :status, :description, :record_summary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create review task: %w", err)
	}
	return nil
}

// FindByID returns a task.
func (r *ReviewTaskRepository) FindByID(ctx context.Context, id string) (*models.ReviewTask, error) {
	var task models.ReviewTask
	if err := r.db.GetContext(ctx, &task, `SELECT `+reviewTaskColumns+` FROM review_tasks WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find review task: %w", err)
	}
	return &task, nil
}

// UpdateStatus changes the status and stamps updated_at.
func (r *ReviewTaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE review_tasks SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("update review task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAssignedTo returns tasks assigned to the user id or, for legacy rows, to the user's name.
func (r *ReviewTaskRepository) ListAssignedTo(ctx context.Context, userID, name string) ([]models.ReviewTask, error) {
	return r.listBy(ctx, "assigned_to", "assignee_name", userID, name)
}

// ListCreatedBy returns tasks created by the user id or name.
func (r *ReviewTaskRepository) ListCreatedBy(ctx context.Context, userID, name string) ([]models.ReviewTask, error) {
	return r.listBy(ctx, "assigned_by", "creator_name", userID, name)
}

func (r *ReviewTaskRepository) listBy(ctx context.Context, idColumn, nameColumn, userID, name string) ([]models.ReviewTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM review_tasks WHERE %s = $1 OR ($2 <> '' AND %s = $2) ORDER BY created_at DESC LIMIT %d`,
		reviewTaskColumns, idColumn, nameColumn, taskBoardLimit)
	var tasks []models.ReviewTask
	if err := r.db.SelectContext(ctx, &tasks, query, userID, name); err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	return tasks, nil
}
