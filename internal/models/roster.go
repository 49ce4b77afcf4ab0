package models

import "time"

// Student is a roster entry identified by roll number.
type Student struct {
	ID        int64      `db:"id" json:"id"`
	RollNo    int64      `db:"roll_no" json:"roll_no"`
	Name      string     `db:"name" json:"name"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Status    UserStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search   string
	Status   *UserStatus
	Page     int
	PageSize int
	SortBy   string
	// SortOrder is asc or desc.
	SortOrder string
}

// StudentRequest creates or replaces a roster entry.
type StudentRequest struct {
	RollNo int64      `json:"roll_no" validate:"required,gt=0"`
	Name   string     `json:"name" validate:"required"`
	Email  *string    `json:"email" validate:"omitempty,email"`
	Status UserStatus `json:"status" validate:"omitempty,oneof=active blocked"`
}

// RosterImportRow is a parsed spreadsheet row.
type RosterImportRow struct {
	Line   int
	RollNo int64
	Name   string
	Email  *string
}

// RosterImportError describes a rejected spreadsheet row.
type RosterImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// RosterImportResult summarizes a roster upload.
type RosterImportResult struct {
	Imported int                 `json:"imported"`
	Updated  int                 `json:"updated"`
	Skipped  int                 `json:"skipped"`
	Errors   []RosterImportError `json:"errors"`
}

// Faculty is a teaching staff entry.
type Faculty struct {
	ID         int64      `db:"id" json:"id"`
	RollNo     *int64     `db:"roll_no" json:"roll_no,omitempty"`
	Name       string     `db:"name" json:"name"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Department *string    `db:"department" json:"department,omitempty"`
	Status     UserStatus `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FacultyRequest creates or replaces a faculty entry.
type FacultyRequest struct {
	RollNo     *int64     `json:"roll_no" validate:"omitempty,gt=0"`
	Name       string     `json:"name" validate:"required"`
	Email      *string    `json:"email" validate:"omitempty,email"`
	Department *string    `json:"department"`
	Status     UserStatus `json:"status" validate:"omitempty,oneof=active blocked"`
}

// Lecture is a course offered for attendance.
type Lecture struct {
	ID               int64     `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	DefaultStartTime *string   `db:"default_start_time" json:"default_start_time,omitempty"`
	DefaultEndTime   *string   `db:"default_end_time" json:"default_end_time,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LectureRequest creates or replaces a lecture.
type LectureRequest struct {
	Name             string  `json:"name" validate:"required"`
	DefaultStartTime *string `json:"default_start_time" validate:"omitempty,hhmm"`
	DefaultEndTime   *string `json:"default_end_time" validate:"omitempty,hhmm"`
}
