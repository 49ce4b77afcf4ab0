package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/internal/repository"
	"github.com/noah-isme/ams-api/pkg/database"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/qr"
	"github.com/noah-isme/ams-api/pkg/realtime"
)

// Check-in outcomes exported as the result label of attendance_checkins_total.
const (
	CheckinAccepted      = "accepted"
	CheckinInvalid       = "invalid"
	CheckinExpired       = "expired"
	CheckinNotFound      = "not_found"
	CheckinClosed        = "closed"
	CheckinTokenMismatch = "token_mismatch"
	CheckinDeviceReused  = "device_reused"
	CheckinDuplicate     = "duplicate"
)

const (
	sessionTimeSlotLive = "Live"
	clockLayout         = "15:04"
)

type sessionRecordRepository interface {
	CreateRecord(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id int64) (*models.AttendanceRecord, error)
	Renew(ctx context.Context, id int64, token string, expiresAt time.Time) error
	End(ctx context.Context, id int64, endTime string, at time.Time) (*models.AttendanceRecord, error)
	ExpireSessions(ctx context.Context, endTime string, now time.Time) ([]int64, error)
	CountPresent(ctx context.Context, recordID int64) (int, error)
	DeviceUsed(ctx context.Context, recordID int64, deviceID string) (bool, error)
	MarkPresent(ctx context.Context, detail *models.AttendanceDetail, exclusiveDevice bool) error
	MarkPresentBatch(ctx context.Context, recordID int64, students []models.Student) ([]int64, error)
}

type sessionRosterReader interface {
	CountActive(ctx context.Context) (int, error)
	FindByRoll(ctx context.Context, roll int64) (*models.Student, error)
	FindByRolls(ctx context.Context, rolls []int64) ([]models.Student, error)
}

type notificationPusher interface {
	Push(ctx context.Context, userID string, n models.Notification) error
}

type checkinRecorder interface {
	RecordCheckin(result string)
}

// SessionConfig tunes QR session lifetimes.
type SessionConfig struct {
	TTL              time.Duration
	DefaultClassSize int
	DeviceCheck      bool
	// ImageBasePath prefixes the QR image URL returned with a session.
	ImageBasePath string
}

// SessionServiceDeps groups the collaborators of SessionService. Only Records and Roster are required.
type SessionServiceDeps struct {
	Records   sessionRecordRepository
	Roster    sessionRosterReader
	Audit     auditWriter
	Notifier  notificationPusher
	Publisher realtime.Publisher
	Cache     cacheInvalidator
	Metrics   checkinRecorder
}

// SessionService runs QR attendance sessions from start to finalization.
type SessionService struct {
	records   sessionRecordRepository
	roster    sessionRosterReader
	audit     auditWriter
	notifier  notificationPusher
	emit      changeEmitter
	metrics   checkinRecorder
	validator *validator.Validate
	cfg       SessionConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService builds the service.
func NewSessionService(deps SessionServiceDeps, cfg SessionConfig, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	registerAttendanceValidations(validate)
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.DefaultClassSize <= 0 {
		cfg.DefaultClassSize = 45
	}
	return &SessionService{
		records:   deps.Records,
		roster:    deps.Roster,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		emit:      newChangeEmitter(deps.Publisher, deps.Cache, logger),
		metrics:   deps.Metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start opens a session and returns its first payload.
func (s *SessionService) Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims) (*dto.SessionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleFaculty {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only faculty can start sessions")
	}
	req.LectureName = strings.TrimSpace(req.LectureName)
	req.FacultyName = strings.TrimSpace(req.FacultyName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lecture and faculty are required")
	}

	classSize, err := s.roster.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count roster")
	}
	if classSize <= 0 {
		classSize = s.cfg.DefaultClassSize
	}

	// records and reports share the UTC calendar
	now := s.now().UTC()
	token := newSessionToken()
	expiresAt := now.Add(s.cfg.TTL)
	creator := actor.UserID
	record := &models.AttendanceRecord{
		Date:         time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Day:          now.Weekday().String(),
		TimeSlot:     sessionTimeSlotLive,
		StartTime:    now.Format(clockLayout),
		LectureName:  req.LectureName,
		LectureType:  strings.TrimSpace(req.LectureType),
		FacultyName:  req.FacultyName,
		IsProxy:      req.IsProxy,
		TotalCount:   classSize,
		IsActive:     true,
		SessionToken: &token,
		ExpiresAt:    &expiresAt,
		CreatedBy:    &creator,
	}
	if req.IsProxy && req.OriginalFacultyName != nil && strings.TrimSpace(*req.OriginalFacultyName) != "" {
		original := strings.TrimSpace(*req.OriginalFacultyName)
		record.OriginalFacultyName = &original
	}
	if err := s.records.CreateRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}

	s.emit.changed(ctx, realtime.TableRecords, "insert", strconv.FormatInt(record.ID, 10))
	s.recordAudit(ctx, actor.UserID, models.AuditActionSessionStart, record.ID)
	s.logger.Info("session started", zap.Int64("record_id", record.ID), zap.String("lecture", record.LectureName), zap.String("user_id", actor.UserID))
	return s.sessionResponse(record, actor.RollNo)
}

// QRImage renders the current session payload as a PNG.
func (s *SessionService) QRImage(ctx context.Context, recordID int64, actor *models.JWTClaims) ([]byte, error) {
	record, err := s.ownedActiveRecord(ctx, recordID, actor)
	if err != nil {
		return nil, err
	}
	png, err := qr.RenderSession(s.payloadFor(record, actor.RollNo))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

// Renew rotates the session token and extends its expiry. A lapsed session is reopened.
func (s *SessionService) Renew(ctx context.Context, recordID int64, actor *models.JWTClaims) (*dto.SessionResponse, error) {
	record, err := s.ownedRecord(ctx, recordID, actor)
	if err != nil {
		return nil, err
	}
	token := newSessionToken()
	expiresAt := s.now().Add(s.cfg.TTL)
	if err := s.records.Renew(ctx, recordID, token, expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renew session")
	}
	record.SessionToken = &token
	record.ExpiresAt = &expiresAt
	record.IsActive = true

	s.emit.changed(ctx, realtime.TableRecords, "update", strconv.FormatInt(recordID, 10))
	return s.sessionResponse(record, actor.RollNo)
}

// End finalizes the session with the live present count.
func (s *SessionService) End(ctx context.Context, recordID int64, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if _, err := s.ownedRecord(ctx, recordID, actor); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	record, err := s.records.End(ctx, recordID, now.Format(clockLayout), now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	s.emit.changed(ctx, realtime.TableRecords, "update", strconv.FormatInt(recordID, 10))
	s.recordAudit(ctx, actor.UserID, models.AuditActionSessionEnd, recordID)
	s.logger.Info("session ended", zap.Int64("record_id", recordID), zap.Int("present", record.PresentCount))
	return record, nil
}

// ExpireStale finalizes every active session whose expiry has passed and returns how many were closed.
func (s *SessionService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ids, err := s.records.ExpireSessions(ctx, now.Format(clockLayout), now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire sessions")
	}
	for _, id := range ids {
		s.emit.publish(ctx, realtime.TableRecords, "update", strconv.FormatInt(id, 10))
	}
	if len(ids) > 0 {
		s.emit.invalidate(ctx)
		s.logger.Info("expired sessions finalized", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// LiveCount reports the present count of a session as it runs.
func (s *SessionService) LiveCount(ctx context.Context, recordID int64) (*dto.LiveCountResponse, error) {
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	present, err := s.records.CountPresent(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count check-ins")
	}
	return &dto.LiveCountResponse{
		RecordID:  recordID,
		Present:   present,
		Total:     record.TotalCount,
		Active:    record.IsActive,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Batch builds a batch payload for rolls collected outside the scan flow.
func (s *SessionService) Batch(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) (*dto.BatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one valid roll is required")
	}
	record, err := s.ownedActiveRecord(ctx, recordID, actor)
	if err != nil {
		return nil, err
	}
	payload, err := qr.NewBatchPayload(record.ID, *record.SessionToken, record.LectureName, req.Rolls, s.now())
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one valid roll is required")
	}
	content, err := qr.Encode(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode batch")
	}
	return &dto.BatchResponse{Payload: payload, QRContent: content}, nil
}

// BatchImage renders a batch payload as a PNG.
func (s *SessionService) BatchImage(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) ([]byte, error) {
	batch, err := s.Batch(ctx, recordID, req, actor)
	if err != nil {
		return nil, err
	}
	png, err := qr.RenderBatch(batch.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

// Scan checks a student in. Each rejection maps to a distinct error shown to the student.
func (s *SessionService) Scan(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent || actor.RollNo <= 0 {
		return nil, appErrors.ErrNoRollNumber
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(CheckinInvalid, appErrors.ErrInvalidQR)
	}

	payload, err := qr.DecodeSession(req.Payload)
	if err != nil {
		return nil, s.reject(CheckinInvalid, appErrors.ErrInvalidQR)
	}
	now := s.now()
	if payload.Expired(now) {
		return nil, s.reject(CheckinExpired, appErrors.ErrQRExpired)
	}
	record, err := s.records.FindByID(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reject(CheckinNotFound, appErrors.ErrSessionNotFound)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !record.IsActive || (record.ExpiresAt != nil && now.After(*record.ExpiresAt)) {
		return nil, s.reject(CheckinClosed, appErrors.ErrSessionClosed)
	}
	if record.SessionToken == nil || *record.SessionToken != payload.Token {
		return nil, s.reject(CheckinTokenMismatch, appErrors.ErrTokenMismatch)
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if s.cfg.DeviceCheck && deviceID != "" {
		used, err := s.records.DeviceUsed(ctx, record.ID, deviceID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify device")
		}
		if used {
			return nil, s.reject(CheckinDeviceReused, appErrors.ErrDeviceReused)
		}
	}

	name := s.studentName(ctx, actor)
	detail := &models.AttendanceDetail{
		RecordID:    record.ID,
		StudentRoll: actor.RollNo,
		StudentName: name,
		Timestamp:   now.UTC(),
	}
	if deviceID != "" {
		detail.DeviceID = &deviceID
	}
	if err := s.records.MarkPresent(ctx, detail, s.cfg.DeviceCheck); err != nil {
		if errors.Is(err, repository.ErrDeviceUsed) {
			return nil, s.reject(CheckinDeviceReused, appErrors.ErrDeviceReused)
		}
		if database.IsUniqueViolation(err) {
			return nil, s.reject(CheckinDuplicate, appErrors.ErrAlreadyCheckedIn)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	if s.metrics != nil {
		s.metrics.RecordCheckin(CheckinAccepted)
	}
	s.emit.changed(ctx, realtime.TableDetails, "insert", strconv.FormatInt(detail.ID, 10))
	if record.CreatedBy != nil {
		s.notify(ctx, *record.CreatedBy, models.Notification{
			Title:   "New check-in",
			Message: fmt.Sprintf("%s (%d) checked in to %s", name, actor.RollNo, record.LectureName),
			Type:    models.NotificationSuccess,
		})
	}

	return &dto.ScanResult{
		RecordID:    record.ID,
		LectureName: record.LectureName,
		Message:     "Marked Present for " + record.LectureName,
		MarkedAt:    detail.Timestamp,
	}, nil
}

// RedeemBatch marks every known roll in a batch payload present, skipping existing marks.
func (s *SessionService) RedeemBatch(ctx context.Context, req dto.RedeemBatchRequest, actor *models.JWTClaims) (*dto.RedeemBatchResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleFaculty {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only faculty can redeem batches")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.ErrInvalidQR
	}
	payload, err := qr.DecodeBatch(req.Payload)
	if err != nil {
		return nil, appErrors.ErrInvalidQR
	}
	record, err := s.findRecord(ctx, payload.RecordID)
	if err != nil {
		return nil, err
	}
	if !record.IsActive {
		return nil, appErrors.ErrSessionClosed
	}
	if record.SessionToken == nil || *record.SessionToken != payload.Token {
		return nil, appErrors.ErrTokenMismatch
	}

	rolls := qr.NormalizeRolls(payload.Rolls)
	students, err := s.roster.FindByRolls(ctx, rolls)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batch rolls")
	}
	known := make(map[int64]bool, len(students))
	for _, st := range students {
		known[st.RollNo] = true
	}

	marked, err := s.records.MarkPresentBatch(ctx, record.ID, students)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record batch")
	}
	markedSet := make(map[int64]bool, len(marked))
	for _, roll := range marked {
		markedSet[roll] = true
	}

	result := &dto.RedeemBatchResult{RecordID: record.ID, Marked: []int64{}, Skipped: []int64{}, Unknown: []int64{}}
	for _, roll := range rolls {
		switch {
		case !known[roll]:
			result.Unknown = append(result.Unknown, roll)
		case markedSet[roll]:
			result.Marked = append(result.Marked, roll)
		default:
			result.Skipped = append(result.Skipped, roll)
		}
	}

	if len(result.Marked) > 0 {
		s.emit.changed(ctx, realtime.TableDetails, "insert", strconv.FormatInt(record.ID, 10))
	}
	s.logger.Info("batch redeemed",
		zap.Int64("record_id", record.ID),
		zap.Int("marked", len(result.Marked)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("unknown", len(result.Unknown)),
	)
	return result, nil
}

func (s *SessionService) findRecord(ctx context.Context, recordID int64) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return record, nil
}

// ownedRecord loads a record the actor may manage: its creator or any admin.
func (s *SessionService) ownedRecord(ctx context.Context, recordID int64, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !record.CreatedByUser(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session creator can manage this session")
	}
	return record, nil
}

func (s *SessionService) ownedActiveRecord(ctx context.Context, recordID int64, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	record, err := s.ownedRecord(ctx, recordID, actor)
	if err != nil {
		return nil, err
	}
	if !record.IsActive || record.SessionToken == nil {
		return nil, appErrors.ErrSessionClosed
	}
	return record, nil
}

func (s *SessionService) payloadFor(record *models.AttendanceRecord, issuerRoll int64) qr.SessionPayload {
	var token string
	if record.SessionToken != nil {
		token = *record.SessionToken
	}
	var expiresAt time.Time
	if record.ExpiresAt != nil {
		expiresAt = *record.ExpiresAt
	}
	return qr.NewSessionPayload(record.ID, token, record.LectureName, record.FacultyName, issuerRoll, expiresAt)
}

func (s *SessionService) sessionResponse(record *models.AttendanceRecord, issuerRoll int64) (*dto.SessionResponse, error) {
	payload := s.payloadFor(record, issuerRoll)
	content, err := qr.Encode(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode session payload")
	}
	resp := &dto.SessionResponse{
		Record:    record,
		Payload:   payload,
		QRContent: content,
		ImageURL:  fmt.Sprintf("%s/sessions/%d/qr", s.cfg.ImageBasePath, record.ID),
	}
	if record.ExpiresAt != nil {
		resp.ExpiresAt = *record.ExpiresAt
	}
	return resp, nil
}

// studentName prefers the roster name and falls back to the token name.
func (s *SessionService) studentName(ctx context.Context, actor *models.JWTClaims) string {
	student, err := s.roster.FindByRoll(ctx, actor.RollNo)
	if err == nil && student != nil && student.Name != "" {
		return student.Name
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to resolve student name", zap.Int64("roll", actor.RollNo), zap.Error(err))
	}
	if actor.FullName != "" {
		return actor.FullName
	}
	return "Student " + strconv.FormatInt(actor.RollNo, 10)
}

func (s *SessionService) reject(result string, err *appErrors.Error) error {
	if s.metrics != nil {
		s.metrics.RecordCheckin(result)
	}
	return err
}

func (s *SessionService) notify(ctx context.Context, userID string, n models.Notification) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Push(ctx, userID, n); err != nil {
		s.logger.Warn("failed to push notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *SessionService) recordAudit(ctx context.Context, userID, action string, recordID int64) {
	if s.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(recordID, 10)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{UserID: &userID, Action: action, Resource: "attendance_records", ResourceID: &resourceID}); err != nil {
		s.logger.Warn("failed to record session audit log", zap.String("action", action), zap.Error(err))
	}
}

func newSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
