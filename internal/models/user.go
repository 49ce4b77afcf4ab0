package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleFaculty UserRole = "faculty"
	RoleStudent UserRole = "student"
)

// Valid reports whether the role is supported.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return true
	default:
		return false
	}
}

// UserStatus is the access state of a profile.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

// User represents an application profile stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Status       UserStatus `db:"status" json:"status"`
	RollNo       *int64     `db:"roll_no" json:"roll_no,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	LastActiveAt *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Blocked reports whether the profile is access restricted.
func (u *User) Blocked() bool {
	return u.Status == UserStatusBlocked
}

// Roll returns the roll number or zero.
func (u *User) Roll() int64 {
	if u.RollNo == nil {
		return 0
	}
	return *u.RollNo
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Status   *UserStatus
	Search   string
	Page     int
	PageSize int
}

// CreateUserRequest is the admin payload for provisioning a profile.
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	FullName string   `json:"full_name" validate:"required"`
	Role     UserRole `json:"role" validate:"required,oneof=admin faculty student"`
	RollNo   *int64   `json:"roll_no" validate:"omitempty,gt=0"`
}

// UpdateUserRequest carries optional profile changes.
type UpdateUserRequest struct {
	Email    *string   `json:"email" validate:"omitempty,email"`
	FullName *string   `json:"full_name" validate:"omitempty,min=1"`
	Role     *UserRole `json:"role" validate:"omitempty,oneof=admin faculty student"`
	RollNo   *int64    `json:"roll_no" validate:"omitempty,gt=0"`
	Password *string   `json:"password" validate:"omitempty,min=6"`
}

// BulkStatusRequest changes the status of several profiles at once.
type BulkStatusRequest struct {
	IDs    []string   `json:"ids" validate:"required,min=1,dive,uuid"`
	Status UserStatus `json:"status" validate:"required,oneof=active blocked"`
}

// StudentAttendanceStats is the per-student aggregate shown in user management.
type StudentAttendanceStats struct {
	RollNo  int64   `db:"roll_no" json:"roll_no"`
	Present int     `db:"present" json:"present"`
	Absent  int     `db:"absent" json:"absent"`
	Total   int     `db:"total" json:"total"`
	Percent float64 `json:"pct"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
