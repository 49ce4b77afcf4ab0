package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ams-api/internal/models"
)

// SettingsRepository persists admin settings rows.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches a single setting by key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.AdminSetting, error) {
	const query = `SELECT key, value, updated_by, updated_at FROM admin_settings WHERE key = $1`
	var setting models.AdminSetting
	if err := r.db.GetContext(ctx, &setting, query, key); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert inserts or replaces a setting.
func (r *SettingsRepository) Upsert(ctx context.Context, setting *models.AdminSetting) error {
	const query = `INSERT INTO admin_settings (key, value, updated_by, updated_at)
VALUES (:key, :value, :updated_by, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	setting.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("upsert admin setting: %w", err)
	}
	return nil
}
