package models

import "time"

// AttendanceStatus is the per-student mark on a record.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "P"
	AttendanceStatusAbsent  AttendanceStatus = "A"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// Default lecture type applied when none is supplied.
const LectureTypeRegular = "Regular"

// AttendanceRecord is one lecture sitting, created by a QR session or manual marking.
type AttendanceRecord struct {
	ID                  int64              `db:"id" json:"id"`
	Date                time.Time          `db:"date" json:"date"`
	Day                 string             `db:"day" json:"day"`
	TimeSlot            string             `db:"time_slot" json:"time_slot"`
	StartTime           string             `db:"start_time" json:"start_time"`
	EndTime             string             `db:"end_time" json:"end_time"`
	LectureName         string             `db:"lecture_name" json:"lecture_name"`
	LectureType         string             `db:"lecture_type" json:"lecture_type"`
	FacultyName         string             `db:"faculty_name" json:"faculty_name"`
	IsProxy             bool               `db:"is_proxy" json:"is_proxy"`
	OriginalFacultyName *string            `db:"original_faculty_name" json:"original_faculty_name,omitempty"`
	PresentCount        int                `db:"present_count" json:"present_count"`
	TotalCount          int                `db:"total_count" json:"total_count"`
	IsActive            bool               `db:"is_active" json:"is_active"`
	SessionToken        *string            `db:"session_token" json:"-"`
	ExpiresAt           *time.Time         `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy           *string            `db:"created_by" json:"created_by,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
	Details             []AttendanceDetail `db:"-" json:"attendance_details,omitempty"`
}

// DateString formats the record date as YYYY-MM-DD.
func (r *AttendanceRecord) DateString() string {
	return r.Date.Format("2006-01-02")
}

// CreatedByUser reports whether userID started the record.
func (r *AttendanceRecord) CreatedByUser(userID string) bool {
	return r.CreatedBy != nil && *r.CreatedBy == userID
}

// AttendanceDetail is a single student's mark on a record.
type AttendanceDetail struct {
	ID          int64            `db:"id" json:"id"`
	RecordID    int64            `db:"attendance_record_id" json:"attendance_record_id"`
	StudentRoll int64            `db:"student_roll" json:"student_roll"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
	DeviceID    *string          `db:"device_id" json:"device_id,omitempty"`
	Timestamp   time.Time        `db:"timestamp" json:"timestamp"`
}

// StudentHistoryEntry is a detail joined with its record for the student dashboard.
type StudentHistoryEntry struct {
	DetailID    int64            `db:"id" json:"id"`
	RecordID    int64            `db:"attendance_record_id" json:"attendance_record_id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	LectureName string           `db:"lecture_name" json:"lecture_name"`
	Date        time.Time        `db:"date" json:"date"`
	Timestamp   time.Time        `db:"timestamp" json:"timestamp"`
}

// StudentHistory summarizes one student's attendance.
type StudentHistory struct {
	RollNo  int64                 `json:"roll_no"`
	Present int                   `json:"present"`
	Total   int                   `json:"total"`
	Percent float64               `json:"pct"`
	Recent  []StudentHistoryEntry `json:"recent"`
}

// RecordFilter scopes attendance record listings.
type RecordFilter struct {
	Date     *time.Time
	DateFrom *time.Time
	DateTo   *time.Time
	Lecture  string
	Faculty  string
	Limit    int
}

// ManualRecordRequest is the manual roll-marking form.
type ManualRecordRequest struct {
	Date                string  `json:"date" validate:"required,datetime=2006-01-02"`
	Day                 string  `json:"day"`
	StartTime           string  `json:"start_time" validate:"omitempty,hhmm"`
	EndTime             string  `json:"end_time" validate:"omitempty,hhmm"`
	LectureName         string  `json:"lecture_name" validate:"required"`
	LectureType         string  `json:"lecture_type"`
	FacultyName         string  `json:"faculty_name" validate:"required"`
	IsProxy             bool    `json:"is_proxy"`
	OriginalFacultyName *string `json:"original_faculty_name"`
	SelectedRolls       []int64 `json:"selected_rolls" validate:"dive,gt=0"`
}

// ScanLogEntry is a manual roll lookup kept in the operator's recent log.
type ScanLogEntry struct {
	RollNo int64     `json:"roll_no"`
	Name   string    `json:"name,omitempty"`
	Found  bool      `json:"found"`
	At     time.Time `json:"at"`
}
