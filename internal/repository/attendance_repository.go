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
	recordColumns = "id, date, day, time_slot, start_time, end_time, lecture_name, lecture_type, faculty_name, is_proxy, original_faculty_name, present_count, total_count, is_active, session_token, expires_at, created_by, created_at, updated_at"
	detailColumns = "id, attendance_record_id, student_roll, student_name, status, device_id, timestamp"
)

// ErrDeviceUsed is returned by MarkPresent when the device already checked in on the record.
var ErrDeviceUsed = errors.New("device already used on record")

// AttendanceRepository persists attendance records and their per-student details.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository builds the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateRecord inserts a bare record, used when opening a QR session.
func (r *AttendanceRepository) CreateRecord(ctx context.Context, record *models.AttendanceRecord) error {
	return insertRecord(ctx, r.db, record)
}

// CreateWithDetails inserts a record and all of its details in one transaction.
func (r *AttendanceRepository) CreateWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertRecord(ctx, tx, record); err != nil {
			return err
		}
		return insertDetails(ctx, tx, record.ID, details)
	})
}

// ReplaceWithDetails deletes a record's details, updates the record and reinserts the details atomically.
func (r *AttendanceRepository) ReplaceWithDetails(ctx context.Context, record *models.AttendanceRecord, details []models.AttendanceDetail) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_details WHERE attendance_record_id = $1`, record.ID); err != nil {
			return fmt.Errorf("clear attendance details: %w", err)
		}
		record.UpdatedAt = time.Now().UTC()
		const query = `UPDATE attendance_records SET date = :date, day = :day, time_slot = :time_slot, start_time = :start_time, end_time = :end_time,
lecture_name = :lecture_name, lecture_type = :lecture_type, faculty_name = :faculty_name, is_proxy = :is_proxy,
original_faculty_name = :original_faculty_name, present_count = :present_count, total_count = :total_count, updated_at = :updated_at
WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, query, record)
		if err != nil {
			return fmt.Errorf("update attendance record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sql.ErrNoRows
		}
		return insertDetails(ctx, tx, record.ID, details)
	})
}

// DeleteWithDetails removes the details and then the record.
func (r *AttendanceRepository) DeleteWithDetails(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_details WHERE attendance_record_id = $1`, id); err != nil {
			return fmt.Errorf("delete attendance details: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete attendance record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// FindByID returns a record without details.
func (r *AttendanceRepository) FindByID(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// FindWithDetails returns a record with its details attached.
func (r *AttendanceRepository) FindWithDetails(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records := []models.AttendanceRecord{*record}
	if err := r.attachDetails(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

// List returns records newest first with details. A zero limit returns every match.
func (r *AttendanceRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.DateTo.Format("2006-01-02"))
	}
	if filter.Lecture != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(lecture_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.Lecture)
	}
	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(faculty_name)) = LOWER(TRIM($%d))", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	if err := r.attachDetails(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Renew rotates the session token and reopens the session until expiresAt.
func (r *AttendanceRepository) Renew(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	const query = `UPDATE attendance_records SET session_token = $2, is_active = TRUE, expires_at = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, token, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const closeSessionSet = `is_active = FALSE, end_time = $1, time_slot = r.start_time || ' to ' || $1,
present_count = (SELECT COUNT(DISTINCT d.student_roll) FROM attendance_details d WHERE d.attendance_record_id = r.id AND d.status = 'P'),
updated_at = $2`

// End closes a session, snapshotting the live present count.
func (r *AttendanceRepository) End(ctx context.Context, id int64, endTime string, at time.Time) (*models.AttendanceRecord, error) {
	query := `UPDATE attendance_records r SET ` + closeSessionSet + ` WHERE r.id = $3 RETURNING r.*`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, endTime, at, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("end session: %w", err)
	}
	return &record, nil
}

// ExpireSessions closes every active session whose expiry has passed and returns their ids.
func (r *AttendanceRepository) ExpireSessions(ctx context.Context, endTime string, now time.Time) ([]int64, error) {
	query := `UPDATE attendance_records r SET ` + closeSessionSet + ` WHERE r.is_active = TRUE AND r.expires_at IS NOT NULL AND r.expires_at < $2 RETURNING r.id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, endTime, now); err != nil {
		return nil, fmt.Errorf("expire sessions: %w", err)
	}
	return ids, nil
}

// CountPresent returns the number of distinct rolls marked present on a record.
func (r *AttendanceRepository) CountPresent(ctx context.Context, recordID int64) (int, error) {
	var n int
	const query = `SELECT COUNT(DISTINCT student_roll) FROM attendance_details WHERE attendance_record_id = $1 AND status = 'P'`
	if err := r.db.GetContext(ctx, &n, query, recordID); err != nil {
		return 0, fmt.Errorf("count present: %w", err)
	}
	return n, nil
}

// DeviceUsed reports whether deviceID already checked in on the record.
func (r *AttendanceRepository) DeviceUsed(ctx context.Context, recordID int64, deviceID string) (bool, error) {
	var used bool
	const query = `SELECT EXISTS(SELECT 1 FROM attendance_details WHERE attendance_record_id = $1 AND device_id = $2)`
	if err := r.db.GetContext(ctx, &used, query, recordID, deviceID); err != nil {
		return false, fmt.Errorf("check device: %w", err)
	}
	return used, nil
}

// MarkPresent inserts a present detail and bumps the record's present_count.
// With exclusiveDevice the record row is locked and a device seen before yields ErrDeviceUsed.
// A duplicate roll surfaces the driver's unique violation.
func (r *AttendanceRepository) MarkPresent(ctx context.Context, detail *models.AttendanceDetail, exclusiveDevice bool) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if detail.Timestamp.IsZero() {
			detail.Timestamp = time.Now().UTC()
		}
		if exclusiveDevice && detail.DeviceID != nil {
			var id int64
			if err := tx.GetContext(ctx, &id, `SELECT id FROM attendance_records WHERE id = $1 FOR UPDATE`, detail.RecordID); err != nil {
				return fmt.Errorf("lock attendance record: %w", err)
			}
			var used bool
			const check = `SELECT EXISTS(SELECT 1 FROM attendance_details WHERE attendance_record_id = $1 AND device_id = $2)`
			if err := tx.GetContext(ctx, &used, check, detail.RecordID, *detail.DeviceID); err != nil {
				return fmt.Errorf("check device: %w", err)
			}
			if used {
				return ErrDeviceUsed
			}
		}
		detail.Status = models.AttendanceStatusPresent
		const insert = `INSERT INTO attendance_details (attendance_record_id, student_roll, student_name, status, device_id, timestamp) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
		if err := tx.QueryRowxContext(ctx, insert, detail.RecordID, detail.StudentRoll, detail.StudentName, detail.Status, detail.DeviceID, detail.Timestamp).Scan(&detail.ID); err != nil {
			return fmt.Errorf("insert attendance detail: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE attendance_records SET present_count = present_count + 1, updated_at = $2 WHERE id = $1`, detail.RecordID, detail.Timestamp); err != nil {
			return fmt.Errorf("bump present count: %w", err)
		}
		return nil
	})
}

// MarkPresentBatch inserts present details, skipping rolls that already have a row, and returns the rolls inserted.
func (r *AttendanceRepository) MarkPresentBatch(ctx context.Context, recordID int64, students []models.Student) ([]int64, error) {
	marked := make([]int64, 0, len(students))
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const insert = `INSERT INTO attendance_details (attendance_record_id, student_roll, student_name, status, timestamp)
VALUES ($1, $2, $3, 'P', $4)
ON CONFLICT (attendance_record_id, student_roll) DO NOTHING
RETURNING student_roll`
		for _, s := range students {
			var roll int64
			err := tx.QueryRowxContext(ctx, insert, recordID, s.RollNo, s.Name, now).Scan(&roll)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert batch detail: %w", err)
			}
			marked = append(marked, roll)
		}
		if len(marked) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE attendance_records SET present_count = present_count + $2, updated_at = $3 WHERE id = $1`, recordID, len(marked), now); err != nil {
			return fmt.Errorf("bump present count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// StudentCounts returns present and total detail counts for a roll.
func (r *AttendanceRepository) StudentCounts(ctx context.Context, roll int64) (present, total int, err error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = 'P') AS present, COUNT(*) AS total FROM attendance_details WHERE student_roll = $1`
	var row struct {
		Present int `db:"present"`
		Total   int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, roll); err != nil {
		return 0, 0, fmt.Errorf("count student attendance: %w", err)
	}
	return row.Present, row.Total, nil
}

// RecentForStudent returns the latest details of a roll joined with the record.
func (r *AttendanceRepository) RecentForStudent(ctx context.Context, roll int64, limit int) ([]models.StudentHistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT d.id, d.attendance_record_id, d.status, r.lecture_name, r.date, d.timestamp
FROM attendance_details d JOIN attendance_records r ON r.id = d.attendance_record_id
WHERE d.student_roll = $1 ORDER BY d.id DESC LIMIT $2`
	var entries []models.StudentHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, roll, limit); err != nil {
		return nil, fmt.Errorf("list student history: %w", err)
	}
	return entries, nil
}

func (r *AttendanceRepository) attachDetails(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, len(records))
	index := make(map[int64]int, len(records))
	for i := range records {
		ids[i] = records[i].ID
		index[records[i].ID] = i
	}
	var details []models.AttendanceDetail
	query := `SELECT ` + detailColumns + ` FROM attendance_details WHERE attendance_record_id = ANY($1) ORDER BY student_roll ASC`
	if err := r.db.SelectContext(ctx, &details, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list attendance details: %w", err)
	}
	for _, d := range details {
		if i, ok := index[d.RecordID]; ok {
			records[i].Details = append(records[i].Details, d)
		}
	}
	return nil
}

func insertRecord(ctx context.Context, q sqlx.QueryerContext, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	if record.LectureType == "" {
		record.LectureType = models.LectureTypeRegular
	}
	const query = `INSERT INTO attendance_records (date, day, time_slot, start_time, end_time, lecture_name, lecture_type, faculty_name, is_proxy,
original_faculty_name, present_count, total_count, is_active, session_token, expires_at, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`
	err := q.QueryRowxContext(ctx, query,
		record.Date.Format("2006-01-02"), record.Day, record.TimeSlot, record.StartTime, record.EndTime,
		record.LectureName, record.LectureType, record.FacultyName, record.IsProxy,
		record.OriginalFacultyName, record.PresentCount, record.TotalCount, record.IsActive,
		record.SessionToken, record.ExpiresAt, record.CreatedBy, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

func insertDetails(ctx context.Context, e sqlx.ExtContext, recordID int64, details []models.AttendanceDetail) error {
	if len(details) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range details {
		details[i].RecordID = recordID
		if details[i].Timestamp.IsZero() {
			details[i].Timestamp = now
		}
	}
	const query = `INSERT INTO attendance_details (attendance_record_id, student_roll, student_name, status, device_id, timestamp)
VALUES (:attendance_record_id, :student_roll, :student_name, :status, :device_id, :timestamp)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, details); err != nil {
		return fmt.Errorf("insert attendance details: %w", err)
	}
	return nil
}
