package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/response"
)

type facultyService interface {
	List(ctx context.Context) ([]models.Faculty, error)
	ListActive(ctx context.Context) ([]models.Faculty, error)
	Create(ctx context.Context, req models.FacultyRequest) (*models.Faculty, error)
	Update(ctx context.Context, id int64, req models.FacultyRequest) (*models.Faculty, error)
	Delete(ctx context.Context, id int64) error
}

type lectureService interface {
	List(ctx context.Context) ([]models.Lecture, error)
	Create(ctx context.Context, req models.LectureRequest) (*models.Lecture, error)
	Update(ctx context.Context, id int64, req models.LectureRequest) (*models.Lecture, error)
	Delete(ctx context.Context, id int64) error
}

// CatalogHandler manages faculty and lecture reference data.
type CatalogHandler struct {
	faculty  facultyService
	lectures lectureService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(faculty facultyService, lectures lectureService) *CatalogHandler {
	return &CatalogHandler{faculty: faculty, lectures: lectures}
}

// ListFaculty godoc
// @Summary List faculty
// @Tags Faculty
// @Produce json
// @Param active query bool false "Only active faculty, as used by the session form"
// @Success 200 {object} response.Envelope
// @Router /faculty [get]
func (h *CatalogHandler) ListFaculty(c *gin.Context) {
	var (
		items []models.Faculty
		err   error
	)
	if active, _ := strconv.ParseBool(c.Query("active")); active {
		items, err = h.faculty.ListActive(c.Request.Context())
	} else {
		items, err = h.faculty.List(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateFaculty godoc
// @Summary Create faculty
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body models.FacultyRequest true "Faculty payload"
// @Success 201 {object} response.Envelope
// @Router /faculty [post]
func (h *CatalogHandler) CreateFaculty(c *gin.Context) {
	var req models.FacultyRequest
	if !bindJSON(c, &req, "invalid faculty payload") {
		return
	}
	item, err := h.faculty.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateFaculty godoc
// @Summary Update faculty
// @Tags Faculty
// @Accept json
// @Produce json
// @Param id path int true "Faculty ID"
// @Param payload body models.FacultyRequest true "Faculty payload"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id} [put]
func (h *CatalogHandler) UpdateFaculty(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req models.FacultyRequest
	if !bindJSON(c, &req, "invalid faculty payload") {
		return
	}
	item, err := h.faculty.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteFaculty godoc
// @Summary Delete faculty
// @Tags Faculty
// @Param id path int true "Faculty ID"
// @Success 204 {object} response.Envelope
// @Router /faculty/{id} [delete]
func (h *CatalogHandler) DeleteFaculty(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.faculty.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListLectures godoc
// @Summary List lectures
// @Tags Lectures
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lectures [get]
func (h *CatalogHandler) ListLectures(c *gin.Context) {
	items, err := h.lectures.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateLecture godoc
// @Summary Create lecture
// @Tags Lectures
// @Accept json
// @Produce json
// @Param payload body models.LectureRequest true "Lecture payload"
// @Success 201 {object} response.Envelope
// @Router /lectures [post]
func (h *CatalogHandler) CreateLecture(c *gin.Context) {
	var req models.LectureRequest
	if !bindJSON(c, &req, "invalid lecture payload") {
		return
	}
	item, err := h.lectures.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateLecture godoc
// @Summary Update lecture
// @Tags Lectures
// @Accept json
// @Produce json
// @Param id path int true "Lecture ID"
// @Param payload body models.LectureRequest true "Lecture payload"
// @Success 200 {object} response.Envelope
// @Router /lectures/{id} [put]
func (h *CatalogHandler) UpdateLecture(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req models.LectureRequest
	if !bindJSON(c, &req, "invalid lecture payload") {
		return
	}
	item, err := h.lectures.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteLecture godoc
// @Summary Delete lecture
// @Tags Lectures
// @Param id path int true "Lecture ID"
// @Success 204 {object} response.Envelope
// @Router /lectures/{id} [delete]
func (h *CatalogHandler) DeleteLecture(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.lectures.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
