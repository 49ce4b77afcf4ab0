package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/database"
)

const (
	studentColumns = "id, roll_no, name, email, status, created_at, updated_at"
	directoryLimit = 500
)

// StudentRepository handles persistence for the roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns a page of students with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR CAST(roll_no AS TEXT) LIKE $%d)", idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"roll_no": true, "name": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "roll_no"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, sortBy, sortOrder, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Directory returns the active roster, one row per roll, ordered by roll and capped at 500.
func (r *StudentRepository) Directory(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT DISTINCT ON (roll_no) %s FROM students WHERE status = 'active' ORDER BY roll_no ASC, id ASC LIMIT %d`, studentColumns, directoryLimit)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list student directory: %w", err)
	}
	return students, nil
}

// ActiveRoster returns every active student, one row per roll, ordered by roll.
func (r *StudentRepository) ActiveRoster(ctx context.Context) ([]models.Student, error) {
	query := `SELECT DISTINCT ON (roll_no) ` + studentColumns + ` FROM students WHERE status = 'active' ORDER BY roll_no ASC, id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list active roster: %w", err)
	}
	return students, nil
}

// CountActive returns the number of active students.
func (r *StudentRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students WHERE status = 'active'`); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return total, nil
}

// FindByID fetches a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByRoll fetches a student by roll number.
func (r *StudentRepository) FindByRoll(ctx context.Context, roll int64) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE roll_no = $1 LIMIT 1`, roll); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by roll: %w", err)
	}
	return &student, nil
}

// FindByRolls returns the students holding any of the rolls.
func (r *StudentRepository) FindByRolls(ctx context.Context, rolls []int64) ([]models.Student, error) {
	if len(rolls) == 0 {
		return nil, nil
	}
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, `SELECT `+studentColumns+` FROM students WHERE roll_no = ANY($1) ORDER BY roll_no ASC`, pq.Array(rolls)); err != nil {
		return nil, fmt.Errorf("find students by rolls: %w", err)
	}
	return students, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt, student.UpdatedAt = now, now
	if student.Status == "" {
		student.Status = models.UserStatusActive
	}
	const query = `INSERT INTO students (roll_no, name, email, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, student.RollNo, student.Name, student.Email, student.Status, student.CreatedAt, student.UpdatedAt).Scan(&student.ID); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update replaces mutable fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET roll_no = :roll_no, name = :name, email = :email, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a student row.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertRoster inserts or updates rows keyed by roll in one transaction.
// It returns how many rows were inserted and how many updated.
func (r *StudentRepository) UpsertRoster(ctx context.Context, rows []models.RosterImportRow) (inserted, updated int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	const query = `INSERT INTO students (roll_no, name, email, status, created_at, updated_at)
VALUES ($1, $2, $3, 'active', $4, $4)
ON CONFLICT (roll_no)
DO UPDATE SET name = EXCLUDED.name, email = COALESCE(EXCLUDED.email, students.email), updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, row := range rows {
			var isInsert bool
			if err := tx.QueryRowxContext(ctx, query, row.RollNo, row.Name, row.Email, now).Scan(&isInsert); err != nil {
				return fmt.Errorf("upsert roster row %d: %w", row.Line, err)
			}
			if isInsert {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}
