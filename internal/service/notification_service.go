package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

const (
	notificationKeyPrefix = "ams:notifications:"
	notificationFeedLimit = 5
)

type listStore interface {
	PushCapped(ctx context.Context, key string, value interface{}, limit int64) error
	Range(ctx context.Context, key string, limit int64) ([]json.RawMessage, error)
}

// NotificationService keeps a short per-user feed in Redis.
type NotificationService struct {
	store  listStore
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService builds the service.
func NewNotificationService(store listStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, logger: logger, now: time.Now}
}

// Push prepends n to the user's feed, keeping the newest five.
func (s *NotificationService) Push(ctx context.Context, userID string, n models.Notification) error {
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if n.Type == "" {
		n.Type = models.NotificationUpdate
	}
	if err := s.store.PushCapped(ctx, notificationKeyPrefix+userID, n, notificationFeedLimit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}
	return nil
}

// List returns the user's feed, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]models.Notification, error) {
	raw, err := s.store.Range(ctx, notificationKeyPrefix+userID, notificationFeedLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	out := make([]models.Notification, 0, len(raw))
	for _, entry := range raw {
		var n models.Notification
		if err := json.Unmarshal(entry, &n); err != nil {
			s.logger.Warn("skipping unreadable notification", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
