package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

const recentHistoryLimit = 5

type activityWriter interface {
	TouchActivity(ctx context.Context, id string, ts time.Time) error
}

type throttleStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type studentHistoryReader interface {
	StudentCounts(ctx context.Context, roll int64) (present, total int, err error)
	RecentForStudent(ctx context.Context, roll int64, limit int) ([]models.StudentHistoryEntry, error)
}

// ProfileService keeps presence fresh and serves the student's own history.
type ProfileService struct {
	users    activityWriter
	throttle throttleStore
	history  studentHistoryReader
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewProfileService builds the service. interval bounds how often last_active_at is written per user.
func NewProfileService(users activityWriter, throttle throttleStore, history studentHistoryReader, interval time.Duration, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileService{users: users, throttle: throttle, history: history, interval: interval, logger: logger, now: time.Now}
}

// Heartbeat updates last_active_at at most once per interval. It reports whether a write happened.
func (s *ProfileService) Heartbeat(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, appErrors.ErrUnauthorized
	}
	acquired, err := s.throttle.Acquire(ctx, "presence:"+userID, s.interval)
	if err != nil {
		// without the throttle every call writes
		s.logger.Warn("presence throttle unavailable", zap.Error(err))
		acquired = true
	}
	if !acquired {
		return false, nil
	}
	if err := s.users.TouchActivity(ctx, userID, s.now().UTC()); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update activity")
	}
	return true, nil
}

// MyAttendance returns the caller's totals and the most recent marks.
func (s *ProfileService) MyAttendance(ctx context.Context, roll int64) (*models.StudentHistory, error) {
	if roll <= 0 {
		return nil, appErrors.ErrNoRollNumber
	}
	present, total, err := s.history.StudentCounts(ctx, roll)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	recent, err := s.history.RecentForStudent(ctx, roll, recentHistoryLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	if recent == nil {
		recent = []models.StudentHistoryEntry{}
	}
	return &models.StudentHistory{
		RollNo:  roll,
		Present: present,
		Total:   total,
		Percent: percentOf(present, total),
		Recent:  recent,
	}, nil
}
