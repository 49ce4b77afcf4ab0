package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Directory(ctx context.Context) ([]models.Student, error)
	ActiveRoster(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindByRoll(ctx context.Context, roll int64) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id int64) error
	UpsertRoster(ctx context.Context, rows []models.RosterImportRow) (inserted, updated int, err error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RosterFile is a rendered roster download.
type RosterFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StudentService handles roster use cases.
type StudentService struct {
	repo      studentRepository
	audit     auditWriter
	emit      changeEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
// Roster writes drop cached analytics through cache, which may be nil.
func NewStudentService(repo studentRepository, audit auditWriter, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, emit: newChangeEmitter(nil, cache, logger), validator: validate, logger: logger}
}

// List returns a page of students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Directory returns the deduplicated active roster.
func (s *StudentService) Directory(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.Directory(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a roster entry with a unique roll.
func (s *StudentService) Create(ctx context.Context, req models.StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.ensureRollFree(ctx, req.RollNo, 0); err != nil {
		return nil, err
	}
	student := &models.Student{RollNo: req.RollNo, Name: strings.TrimSpace(req.Name), Email: req.Email, Status: req.Status}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.emit.invalidate(ctx)
	return student, nil
}

// Update replaces a roster entry.
func (s *StudentService) Update(ctx context.Context, id int64, req models.StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRollFree(ctx, req.RollNo, id); err != nil {
		return nil, err
	}
	student.RollNo = req.RollNo
	student.Name = strings.TrimSpace(req.Name)
	student.Email = req.Email
	if req.Status != "" {
		student.Status = req.Status
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.emit.invalidate(ctx)
	return student, nil
}

// Delete removes a roster entry.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.emit.invalidate(ctx)
	return nil
}

// ImportRoster reads the first sheet of an xlsx workbook and upserts its rows by roll.
// Row 1 is a header. Columns are roll, name and an optional email.
func (s *StudentService) ImportRoster(ctx context.Context, r io.Reader, actorID string) (*models.RosterImportResult, error) {
	rows, err := export.ReadRows(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "could not read spreadsheet")
	}

	result := &models.RosterImportResult{Errors: []models.RosterImportError{}}
	seen := make(map[int64]int)
	var parsed []models.RosterImportRow
	for i, cells := range rows {
		line := i + 1
		if i == 0 || blankRow(cells) {
			continue
		}
		row, msg := parseRosterRow(line, cells)
		if msg != "" {
			result.Skipped++
			result.Errors = append(result.Errors, models.RosterImportError{Line: line, Message: msg})
			continue
		}
		if first, dup := seen[row.RollNo]; dup {
			result.Skipped++
			result.Errors = append(result.Errors, models.RosterImportError{Line: line, Message: fmt.Sprintf("duplicate roll %d (first seen on line %d)", row.RollNo, first)})
			continue
		}
		seen[row.RollNo] = line
		parsed = append(parsed, row)
	}

	inserted, updated, err := s.repo.UpsertRoster(ctx, parsed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import roster")
	}
	result.Imported, result.Updated = inserted, updated
	if inserted+updated > 0 {
		s.emit.invalidate(ctx)
	}

	if s.audit != nil {
		values := []byte(fmt.Sprintf(`{"imported":%d,"updated":%d,"skipped":%d}`, inserted, updated, result.Skipped))
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{UserID: &actorID, Action: models.AuditActionRosterImport, Resource: "students", NewValues: values}); err != nil {
			s.logger.Warn("failed to record roster import audit log", zap.Error(err))
		}
	}
	s.logger.Info("roster imported", zap.Int("imported", inserted), zap.Int("updated", updated), zap.Int("skipped", result.Skipped))
	return result, nil
}

// ExportRoster renders the active roster as an xlsx workbook.
func (s *StudentService) ExportRoster(ctx context.Context) (*RosterFile, error) {
	students, err := s.repo.ActiveRoster(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	renderer := export.NewXLSXExporter()
	content, err := renderer.Render(RosterDataset(students))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RosterFile{Filename: "roster." + renderer.Extension(), ContentType: renderer.ContentType(), Content: content}, nil
}

// RosterDataset projects students into the roll, name and email columns.
func RosterDataset(students []models.Student) export.Dataset {
	data := export.Dataset{Title: "Roster", Headers: []string{"Roll No", "Name", "Email"}}
	for _, st := range students {
		email := ""
		if st.Email != nil {
			email = *st.Email
		}
		data.Rows = append(data.Rows, map[string]string{
			"Roll No": strconv.FormatInt(st.RollNo, 10),
			"Name":    st.Name,
			"Email":   email,
		})
	}
	return data
}

func (s *StudentService) ensureRollFree(ctx context.Context, roll, selfID int64) error {
	existing, err := s.repo.FindByRoll(ctx, roll)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
	}
	if existing.ID != selfID {
		return appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
	}
	return nil
}

func parseRosterRow(line int, cells []string) (models.RosterImportRow, string) {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	roll, err := strconv.ParseInt(strings.TrimSuffix(cell(0), ".0"), 10, 64)
	if err != nil || roll <= 0 {
		return models.RosterImportRow{}, fmt.Sprintf("invalid roll %q", cell(0))
	}
	name := cell(1)
	if name == "" {
		return models.RosterImportRow{}, "name is required"
	}
	row := models.RosterImportRow{Line: line, RollNo: roll, Name: name}
	if email := cell(2); email != "" {
		if !strings.Contains(email, "@") {
			return models.RosterImportRow{}, fmt.Sprintf("invalid email %q", email)
		}
		row.Email = &email
	}
	return row, ""
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
