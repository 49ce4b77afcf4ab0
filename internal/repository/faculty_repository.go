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

const facultyColumns = "id, roll_no, name, email, department, status, created_at, updated_at"

// FacultyRepository persists teaching staff.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository builds the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// List returns faculty ordered by name. activeOnly limits to active members.
func (r *FacultyRepository) List(ctx context.Context, activeOnly bool) ([]models.Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY name ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, query); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	return faculty, nil
}

// FindByID fetches a faculty member.
func (r *FacultyRepository) FindByID(ctx context.Context, id int64) (*models.Faculty, error) {
	var f models.Faculty
	if err := r.db.GetContext(ctx, &f, `SELECT `+facultyColumns+` FROM faculty WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find faculty: %w", err)
	}
	return &f, nil
}

// Create inserts a faculty member.
func (r *FacultyRepository) Create(ctx context.Context, f *models.Faculty) error {
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	if f.Status == "" {
		f.Status = models.UserStatusActive
	}
	const query = `INSERT INTO faculty (roll_no, name, email, department, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, f.RollNo, f.Name, f.Email, f.Department, f.Status, f.CreatedAt, f.UpdatedAt).Scan(&f.ID); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// Update replaces mutable fields.
func (r *FacultyRepository) Update(ctx context.Context, f *models.Faculty) error {
	f.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculty SET roll_no = :roll_no, name = :name, email = :email, department = :department, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, f)
	if err != nil {
		return fmt.Errorf("update faculty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a faculty member.
func (r *FacultyRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM faculty WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
