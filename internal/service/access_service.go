package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

const accountStatusKeyPrefix = "account:status:"

type accountStatusReader interface {
	Status(ctx context.Context, id string) (models.UserStatus, error)
}

type accountStatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// AccessService decides whether an authenticated account may still use the API.
// Access tokens outlive a block, so every secured request consults the account status.
type AccessService struct {
	users  accountStatusReader
	cache  accountStatusCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewAccessService builds the service. Statuses are cached for ttl; a nil cache reads postgres every time.
func NewAccessService(users accountStatusReader, cache accountStatusCache, ttl time.Duration, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AccessService{users: users, cache: cache, ttl: ttl, logger: logger}
}

// CheckActive returns ErrAccountBlocked for blocked accounts and ErrUnauthorized for deleted ones.
func (s *AccessService) CheckActive(ctx context.Context, userID string) error {
	if userID == "" {
		return appErrors.ErrUnauthorized
	}
	status, err := s.status(ctx, userID)
	if err != nil {
		return err
	}
	if status == models.UserStatusBlocked {
		return appErrors.ErrAccountBlocked
	}
	return nil
}

// Forget drops cached statuses so the next request reads the new value.
func (s *AccessService) Forget(ctx context.Context, userIDs ...string) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, accountStatusKeyPrefix+id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("account status cache drop failed", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}

func (s *AccessService) status(ctx context.Context, userID string) (models.UserStatus, error) {
	key := accountStatusKeyPrefix + userID
	if s.cache != nil {
		var cached models.UserStatus
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil && cached != "":
			return cached, nil
		case err != nil && !errors.Is(err, appErrors.ErrCacheMiss):
			s.logger.Warn("account status cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	status, err := s.users.Status(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify account status")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, status, s.ttl); err != nil {
			s.logger.Warn("account status cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return status, nil
}
