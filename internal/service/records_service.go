package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/realtime"
)

const (
	recordListLimit     = 20
	recordListFullLimit = 200
	scanLogKeyPrefix    = "ams:scanlog:"
	scanLogLimit        = 50
)

type recordRepository interface {
	CreateWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error
	ReplaceWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error
	DeleteWithDetails(ctx context.Context, id int64) error
	FindWithDetails(ctx context.Context, id int64) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error)
}

type rosterDirectory interface {
	ActiveRoster(ctx context.Context) ([]models.Student, error)
	FindByRoll(ctx context.Context, roll int64) (*models.Student, error)
}

// RecordsServiceDeps groups the collaborators of RecordsService.
type RecordsServiceDeps struct {
	Records   recordRepository
	Roster    rosterDirectory
	ScanLog   listStore
	Audit     auditWriter
	Publisher realtime.Publisher
	Cache     cacheInvalidator
}

// RecordsService handles manual roll-marking and record browsing.
type RecordsService struct {
	records   recordRepository
	roster    rosterDirectory
	scanLog   listStore
	audit     auditWriter
	emit      changeEmitter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecordsService builds the service.
func NewRecordsService(deps RecordsServiceDeps, validate *validator.Validate, logger *zap.Logger) *RecordsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	registerAttendanceValidations(validate)
	return &RecordsService{
		records:   deps.Records,
		roster:    deps.Roster,
		scanLog:   deps.ScanLog,
		audit:     deps.Audit,
		emit:      newChangeEmitter(deps.Publisher, deps.Cache, logger),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateManual records a sitting marked by hand. Every roster student gets a detail.
func (s *RecordsService) CreateManual(ctx context.Context, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error) {
	record, details, err := s.buildManual(ctx, req)
	if err != nil {
		return nil, err
	}
	if actorID != "" {
		record.CreatedBy = &actorID
	}
	if err := s.records.CreateWithDetails(ctx, record, details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance record")
	}
	record.Details = details

	id := strconv.FormatInt(record.ID, 10)
	s.emit.changed(ctx, realtime.TableRecords, "insert", id)
	s.emit.publish(ctx, realtime.TableDetails, "insert", id)
	s.recordAudit(ctx, actorID, models.AuditActionRecordCreate, record.ID, record)
	return record, nil
}

// UpdateManual replaces a record and its details in one transaction.
func (s *RecordsService) UpdateManual(ctx context.Context, id int64, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error) {
	record, details, err := s.buildManual(ctx, req)
	if err != nil {
		return nil, err
	}
	record.ID = id
	if err := s.records.ReplaceWithDetails(ctx, record, details); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	record.Details = details

	rid := strconv.FormatInt(id, 10)
	s.emit.changed(ctx, realtime.TableRecords, "update", rid)
	s.emit.publish(ctx, realtime.TableDetails, "update", rid)
	s.recordAudit(ctx, actorID, models.AuditActionRecordUpdate, id, record)
	return record, nil
}

// Delete removes a record with its details.
func (s *RecordsService) Delete(ctx context.Context, id int64, actorID string) error {
	if err := s.records.DeleteWithDetails(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}
	s.emit.changed(ctx, realtime.TableRecords, "delete", strconv.FormatInt(id, 10))
	s.recordAudit(ctx, actorID, models.AuditActionRecordDelete, id, nil)
	return nil
}

// List returns recent records with details. full raises the cap from 20 to 200.
func (s *RecordsService) List(ctx context.Context, filter models.RecordFilter, full bool) ([]models.AttendanceRecord, error) {
	filter.Limit = recordListLimit
	if full {
		filter.Limit = recordListFullLimit
	}
	filter.Lecture = strings.TrimSpace(filter.Lecture)
	filter.Faculty = strings.TrimSpace(filter.Faculty)
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// Get returns one record with its details.
func (s *RecordsService) Get(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	record, err := s.records.FindWithDetails(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

// LookupRoll resolves a typed roll and appends the result to the operator's scan log.
func (s *RecordsService) LookupRoll(ctx context.Context, roll int64, actorID string) (*models.ScanLogEntry, error) {
	if roll <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roll number must be positive")
	}
	entry := &models.ScanLogEntry{RollNo: roll, At: s.now().UTC()}
	student, err := s.roster.FindByRoll(ctx, roll)
	switch {
	case err == nil:
		entry.Found = true
		entry.Name = student.Name
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
	}

	if s.scanLog != nil && actorID != "" {
		if err := s.scanLog.PushCapped(ctx, scanLogKeyPrefix+actorID, entry, scanLogLimit); err != nil {
			s.logger.Warn("failed to append scan log", zap.String("user_id", actorID), zap.Error(err))
		}
	}
	return entry, nil
}

// ScanLog returns the operator's recent lookups, newest first.
func (s *RecordsService) ScanLog(ctx context.Context, actorID string) ([]models.ScanLogEntry, error) {
	out := []models.ScanLogEntry{}
	if s.scanLog == nil {
		return out, nil
	}
	raw, err := s.scanLog.Range(ctx, scanLogKeyPrefix+actorID, scanLogLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scan log")
	}
	for _, item := range raw {
		var entry models.ScanLogEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// buildManual validates req and expands it against the roster: selected rolls are P, the rest A.
func (s *RecordsService) buildManual(ctx context.Context, req models.ManualRecordRequest) (*models.AttendanceRecord, []models.AttendanceDetail, error) {
	req.LectureName = strings.TrimSpace(req.LectureName)
	req.FacultyName = strings.TrimSpace(req.FacultyName)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Validation(err, "invalid attendance record")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}

	students, err := s.roster.ActiveRoster(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	onRoster := make(map[int64]bool, len(students))
	for _, st := range students {
		onRoster[st.RollNo] = true
	}

	selected := make(map[int64]bool, len(req.SelectedRolls))
	var unknown []string
	for _, roll := range req.SelectedRolls {
		if !onRoster[roll] {
			unknown = append(unknown, strconv.FormatInt(roll, 10))
			continue
		}
		selected[roll] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown roll numbers: "+strings.Join(unknown, ", "))
	}

	now := s.now().UTC()
	details := make([]models.AttendanceDetail, 0, len(students))
	for _, st := range students {
		status := models.AttendanceStatusAbsent
		if selected[st.RollNo] {
			status = models.AttendanceStatusPresent
		}
		details = append(details, models.AttendanceDetail{
			StudentRoll: st.RollNo,
			StudentName: st.Name,
			Status:      status,
			Timestamp:   now,
		})
	}

	day := strings.TrimSpace(req.Day)
	if day == "" {
		day = date.Weekday().String()
	}
	record := &models.AttendanceRecord{
		Date:         date,
		Day:          day,
		TimeSlot:     manualTimeSlot(req.StartTime, req.EndTime),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		LectureName:  req.LectureName,
		LectureType:  strings.TrimSpace(req.LectureType),
		FacultyName:  req.FacultyName,
		IsProxy:      req.IsProxy,
		PresentCount: len(selected),
		TotalCount:   len(details),
	}
	if record.LectureType == "" {
		record.LectureType = models.LectureTypeRegular
	}
	if req.IsProxy && req.OriginalFacultyName != nil && strings.TrimSpace(*req.OriginalFacultyName) != "" {
		original := strings.TrimSpace(*req.OriginalFacultyName)
		record.OriginalFacultyName = &original
	}
	return record, details, nil
}

func manualTimeSlot(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + " to " + end
	case start != "":
		return start
	default:
		return ""
	}
}

func (s *RecordsService) recordAudit(ctx context.Context, actorID, action string, recordID int64, record *models.AttendanceRecord) {
	if s.audit == nil || actorID == "" {
		return
	}
	resourceID := strconv.FormatInt(recordID, 10)
	entry := &models.AuditLog{UserID: &actorID, Action: action, Resource: "attendance_records", ResourceID: &resourceID}
	if record != nil {
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"lecture": record.LectureName,
			"present": record.PresentCount,
			"total":   record.TotalCount,
		})
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.String("action", action), zap.Error(err))
	}
}
