package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/response"
)

type taskService interface {
	Create(ctx context.Context, req models.CreateTaskRequest, actor *models.JWTClaims) (*models.ReviewTask, error)
	UpdateStatus(ctx context.Context, id string, req models.UpdateTaskStatusRequest, actor *models.JWTClaims) (*models.ReviewTask, error)
	Board(ctx context.Context, actor *models.JWTClaims) (*models.TaskBoard, error)
}

// TaskHandler exposes review tasks.
type TaskHandler struct {
	service taskService
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(svc taskService) *TaskHandler {
	return &TaskHandler{service: svc}
}

// Board godoc
// @Summary Review task board
// @Description Tasks assigned to the caller and tasks the caller created
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) Board(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	board, err := h.service.Board(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Create godoc
// @Summary Assign a review task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body models.CreateTaskRequest true "Task payload"
// @Success 201 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.CreateTaskRequest
	if !bindJSON(c, &req, "invalid task payload") {
		return
	}
	task, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// UpdateStatus godoc
// @Summary Move a task to a new status
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body models.UpdateTaskStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/status [patch]
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.UpdateTaskStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	task, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}
