package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type lectureRepository interface {
	List(ctx context.Context) ([]models.Lecture, error)
	FindByID(ctx context.Context, id int64) (*models.Lecture, error)
	Create(ctx context.Context, l *models.Lecture) error
	Update(ctx context.Context, l *models.Lecture) error
	Delete(ctx context.Context, id int64) error
}

// LectureService manages the lecture catalogue.
type LectureService struct {
	repo      lectureRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLectureService constructs the service.
func NewLectureService(repo lectureRepository, validate *validator.Validate, logger *zap.Logger) *LectureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerAttendanceValidations(validate)
	return &LectureService{repo: repo, validator: validate, logger: logger}
}

// List returns all lectures.
func (s *LectureService) List(ctx context.Context) ([]models.Lecture, error) {
	lectures, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lectures")
	}
	if lectures == nil {
		lectures = []models.Lecture{}
	}
	return lectures, nil
}

// Create adds a lecture.
func (s *LectureService) Create(ctx context.Context, req models.LectureRequest) (*models.Lecture, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecture payload")
	}
	l := &models.Lecture{Name: strings.TrimSpace(req.Name), DefaultStartTime: req.DefaultStartTime, DefaultEndTime: req.DefaultEndTime}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecture")
	}
	return l, nil
}

// Update replaces a lecture.
func (s *LectureService) Update(ctx context.Context, id int64, req models.LectureRequest) (*models.Lecture, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecture payload")
	}
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecture not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecture")
	}
	l.Name, l.DefaultStartTime, l.DefaultEndTime = strings.TrimSpace(req.Name), req.DefaultStartTime, req.DefaultEndTime
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lecture")
	}
	return l, nil
}

// Delete removes a lecture.
func (s *LectureService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lecture not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lecture")
	}
	return nil
}
