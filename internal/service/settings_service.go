package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context, key string) (*models.AdminSetting, error)
	Upsert(ctx context.Context, setting *models.AdminSetting) error
}

// SettingsService manages dashboard panel visibility.
type SettingsService struct {
	repo   settingsRepository
	audit  auditWriter
	logger *zap.Logger
}

// NewSettingsService builds the service.
func NewSettingsService(repo settingsRepository, audit auditWriter, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, audit: audit, logger: logger}
}

// PanelVisibility returns the hidden flag of every panel. Admins always see every panel.
func (s *SettingsService) PanelVisibility(ctx context.Context, role models.UserRole) (models.PanelVisibility, error) {
	if role == models.RoleAdmin {
		return models.DefaultPanelVisibility(), nil
	}
	return s.stored(ctx)
}

// UpdatePanelVisibility merges flags into the stored map. Unknown panel keys are rejected.
func (s *SettingsService) UpdatePanelVisibility(ctx context.Context, flags models.PanelVisibility, actor *models.JWTClaims) (models.PanelVisibility, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change panel visibility")
	}
	if len(flags) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no panels supplied")
	}
	known := models.DefaultPanelVisibility()
	var unknown []string
	for key := range flags {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown panels: "+strings.Join(unknown, ", "))
	}

	current, err := s.stored(ctx)
	if err != nil {
		return nil, err
	}
	for key, hidden := range flags {
		current[key] = hidden
	}
	value, err := json.Marshal(current)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode panel visibility")
	}
	actorID := actor.UserID
	if err := s.repo.Upsert(ctx, &models.AdminSetting{Key: models.AdminSettingPanelVisibility, Value: value, UpdatedBy: &actorID}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save panel visibility")
	}

	if s.audit != nil {
		resourceID := models.AdminSettingPanelVisibility
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{UserID: &actorID, Action: models.AuditActionSettingsUpdate, Resource: "admin_settings", ResourceID: &resourceID, NewValues: value}); err != nil {
			s.logger.Warn("failed to record settings audit log", zap.Error(err))
		}
	}
	return current, nil
}

// stored reads the persisted flags over the all-visible defaults.
func (s *SettingsService) stored(ctx context.Context) (models.PanelVisibility, error) {
	out := models.DefaultPanelVisibility()
	setting, err := s.repo.Get(ctx, models.AdminSettingPanelVisibility)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load panel visibility")
	}
	var saved map[string]bool
	if err := json.Unmarshal(setting.Value, &saved); err != nil {
		s.logger.Warn("ignoring unreadable panel visibility", zap.Error(err))
		return out, nil
	}
	for key, hidden := range saved {
		if _, ok := out[key]; ok {
			out[key] = hidden
		}
	}
	return out, nil
}
