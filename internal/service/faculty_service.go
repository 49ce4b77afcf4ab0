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

type facultyRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Faculty, error)
	FindByID(ctx context.Context, id int64) (*models.Faculty, error)
	Create(ctx context.Context, f *models.Faculty) error
	Update(ctx context.Context, f *models.Faculty) error
	Delete(ctx context.Context, id int64) error
}

// FacultyService manages teaching staff.
type FacultyService struct {
	repo      facultyRepository
	emit      changeEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacultyService constructs the service. Writes drop cached analytics through cache, which may be nil.
func NewFacultyService(repo facultyRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyService{repo: repo, emit: newChangeEmitter(nil, cache, logger), validator: validate, logger: logger}
}

// List returns faculty ordered by name.
func (s *FacultyService) List(ctx context.Context) ([]models.Faculty, error) {
	return s.list(ctx, false)
}

// ListActive returns the faculty offered on the session form.
func (s *FacultyService) ListActive(ctx context.Context) ([]models.Faculty, error) {
	return s.list(ctx, true)
}

func (s *FacultyService) list(ctx context.Context, activeOnly bool) ([]models.Faculty, error) {
	faculty, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty")
	}
	if faculty == nil {
		faculty = []models.Faculty{}
	}
	return faculty, nil
}

// Create adds a faculty member.
func (s *FacultyService) Create(ctx context.Context, req models.FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	f := &models.Faculty{RollNo: req.RollNo, Name: strings.TrimSpace(req.Name), Email: req.Email, Department: req.Department, Status: req.Status}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}
	s.emit.invalidate(ctx)
	return f, nil
}

// Update replaces a faculty member.
func (s *FacultyService) Update(ctx context.Context, id int64, req models.FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	f.RollNo, f.Name, f.Email, f.Department = req.RollNo, strings.TrimSpace(req.Name), req.Email, req.Department
	if req.Status != "" {
		f.Status = req.Status
	}
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty")
	}
	s.emit.invalidate(ctx)
	return f, nil
}

// Delete removes a faculty member.
func (s *FacultyService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete faculty")
	}
	s.emit.invalidate(ctx)
	return nil
}
