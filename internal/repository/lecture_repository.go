package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ams-api/internal/models"
)

const lectureColumns = "id, name, default_start_time, default_end_time, created_at, updated_at"

// LectureRepository persists lectures.
type LectureRepository struct {
	db *sqlx.DB
}

// NewLectureRepository builds the repository.
func NewLectureRepository(db *sqlx.DB) *LectureRepository {
	return &LectureRepository{db: db}
}

// List returns lectures ordered by name.
func (r *LectureRepository) List(ctx context.Context) ([]models.Lecture, error) {
	var lectures []models.Lecture
	if err := r.db.SelectContext(ctx, &lectures, `SELECT `+lectureColumns+` FROM lectures ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}
	return lectures, nil
}

// FindByID fetches a lecture.
func (r *LectureRepository) FindByID(ctx context.Context, id int64) (*models.Lecture, error) {
	var l models.Lecture
	if err := r.db.GetContext(ctx, &l, `SELECT `+lectureColumns+` FROM lectures WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find lecture: %w", err)
	}
	return &l, nil
}

// Create inserts a lecture.
func (r *LectureRepository) Create(ctx context.Context, l *models.Lecture) error {
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	const query = `INSERT INTO lectures (name, default_start_time, default_end_time, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, l.Name, l.DefaultStartTime, l.DefaultEndTime, l.CreatedAt, l.UpdatedAt).Scan(&l.ID); err != nil {
		return fmt.Errorf("create lecture: %w", err)
	}
	return nil
}

// Update replaces mutable fields.
func (r *LectureRepository) Update(ctx context.Context, l *models.Lecture) error {
	l.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lectures SET name = :name, default_start_time = :default_start_time, default_end_time = :default_end_time, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, l)
	if err != nil {
		return fmt.Errorf("update lecture: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a lecture.
func (r *LectureRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lectures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lecture: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
