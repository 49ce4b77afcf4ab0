package models

import "time"

// TaskStatus is the lifecycle state of a review task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusRejected   TaskStatus = "rejected"
)

// ReviewTask asks a user to review an attendance record.
type ReviewTask struct {
	ID            string     `db:"id" json:"id"`
	RecordID      int64      `db:"record_id" json:"record_id"`
	AssignedBy    string     `db:"assigned_by" json:"assigned_by"`
	AssignedTo    string     `db:"assigned_to" json:"assigned_to"`
	AssigneeName  string     `db:"assignee_name" json:"assignee_name"`
	CreatorName   string     `db:"creator_name" json:"creator_name"`
	Status        TaskStatus `db:"status" json:"status"`
	Description   string     `db:"description" json:"description"`
	RecordSummary string     `db:"record_summary" json:"record_summary"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// CreateTaskRequest assigns a review task.
type CreateTaskRequest struct {
	RecordID    int64  `json:"record_id" validate:"required,gt=0"`
	AssignedTo  string `json:"assigned_to" validate:"required,uuid"`
	Description string `json:"description" validate:"required,max=2000"`
}

// UpdateTaskStatusRequest moves a task along its lifecycle.
type UpdateTaskStatusRequest struct {
	Status TaskStatus `json:"status" validate:"required,task_status"`
}

// TaskBoard splits tasks by direction relative to the viewer.
type TaskBoard struct {
	AssignedToMe []ReviewTask `json:"assigned_to_me"`
	Outbound     []ReviewTask `json:"outbound"`
}
