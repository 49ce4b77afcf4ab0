package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	RollExists(ctx context.Context, roll int64) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	BulkUpdateStatus(ctx context.Context, ids []string, status models.UserStatus) (int64, error)
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type accessForgetter interface {
	Forget(ctx context.Context, userIDs ...string)
}

type studentCountsReader interface {
	StudentCounts(ctx context.Context, roll int64) (present, total int, err error)
}

// UserService handles admin user management workflows.
type UserService struct {
	repo      userRepository
	stats     studentCountsReader
	access    accessForgetter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. Status changes are pushed to access so open tokens stop working.
func NewUserService(repo userRepository, stats studentCountsReader, access accessForgetter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, stats: stats, access: access, validator: validate, logger: logger}
}

// List returns paginated users ordered by role then name.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions a profile. Students must carry a unique roll number.
func (s *UserService) Create(ctx context.Context, req models.CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if req.Role == models.RoleStudent && req.RollNo == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roll number is required for students")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if err := s.ensureRollFree(ctx, req.RollNo); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Status:       models.UserStatusActive,
		RollNo:       req.RollNo,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, actorID, models.AuditActionUserCreate, user.ID, nil, newPayload, meta)
	return user, nil
}

// Update applies the provided profile changes.
func (s *UserService) Update(ctx context.Context, id string, req models.UpdateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "roll_no": user.RollNo})

	if req.Email != nil && !strings.EqualFold(*req.Email, user.Email) {
		if _, err := s.repo.FindByEmail(ctx, *req.Email); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
		}
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.RollNo != nil && *req.RollNo != user.Roll() {
		if err := s.ensureRollFree(ctx, req.RollNo); err != nil {
			return nil, err
		}
		user.RollNo = req.RollNo
	}
	if user.Role == models.RoleStudent && user.RollNo == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roll number is required for students")
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "roll_no": user.RollNo})
	s.audit(ctx, actorID, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, meta)
	return user, nil
}

// ToggleStatus flips a profile between active and blocked. Blocking revokes refresh tokens.
func (s *UserService) ToggleStatus(ctx context.Context, id string, actorID string, meta models.LoginRequest) (*models.User, error) {
	if id == actorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot change your own status")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Status
	next := models.UserStatusBlocked
	if user.Blocked() {
		next = models.UserStatusActive
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user status")
	}
	if next == models.UserStatusBlocked {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke tokens of blocked user", zap.String("user_id", id), zap.Error(err))
		}
	}
	user.Status = next
	s.forgetAccess(ctx, id)

	oldPayload, _ := json.Marshal(map[string]interface{}{"status": previous})
	newPayload, _ := json.Marshal(map[string]interface{}{"status": next})
	s.audit(ctx, actorID, models.AuditActionUserStatus, id, oldPayload, newPayload, meta)
	return user, nil
}

// BulkStatus sets the status of several profiles and returns how many changed. The actor is never included.
func (s *UserService) BulkStatus(ctx context.Context, req models.BulkStatusRequest, actorID string, meta models.LoginRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk status payload")
	}
	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id != actorID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.BulkUpdateStatus(ctx, ids, req.Status)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user statuses")
	}
	if req.Status == models.UserStatusBlocked {
		for _, id := range ids {
			if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
				s.logger.Warn("failed to revoke tokens of blocked user", zap.String("user_id", id), zap.Error(err))
			}
		}
	}
	s.forgetAccess(ctx, ids...)
	newPayload, _ := json.Marshal(map[string]interface{}{"ids": ids, "status": req.Status})
	s.audit(ctx, actorID, models.AuditActionUserStatus, "bulk", nil, newPayload, meta)
	return n, nil
}

// Delete removes a profile.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.forgetAccess(ctx, id)
	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.audit(ctx, actorID, models.AuditActionUserDelete, id, oldPayload, nil, meta)
	return nil
}

func (s *UserService) forgetAccess(ctx context.Context, ids ...string) {
	if s.access != nil {
		s.access.Forget(ctx, ids...)
	}
}

// AttendanceStats returns present, absent and percentage for one roll.
func (s *UserService) AttendanceStats(ctx context.Context, roll int64) (*models.StudentAttendanceStats, error) {
	if roll <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roll number is required")
	}
	present, total, err := s.stats.StudentCounts(ctx, roll)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance stats")
	}
	return &models.StudentAttendanceStats{
		RollNo:  roll,
		Present: present,
		Absent:  total - present,
		Total:   total,
		Percent: percentOf(present, total),
	}, nil
}

func (s *UserService) ensureRollFree(ctx context.Context, roll *int64) error {
	if roll == nil {
		return nil
	}
	exists, err := s.repo.RollExists(ctx, *roll)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "roll number already taken")
	}
	return nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues []byte, meta models.LoginRequest) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// percentOf returns part/whole as a percentage rounded to one decimal.
func percentOf(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
