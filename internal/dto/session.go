package dto

import (
	"time"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/qr"
)

// StartSessionRequest opens a QR attendance session.
type StartSessionRequest struct {
	LectureName         string  `json:"lecture_name" validate:"required"`
	FacultyName         string  `json:"faculty_name" validate:"required"`
	LectureType         string  `json:"lecture_type"`
	IsProxy             bool    `json:"is_proxy"`
	OriginalFacultyName *string `json:"original_faculty_name"`
}

// SessionResponse returns the record with the payload encoded in its code.
type SessionResponse struct {
	Record    *models.AttendanceRecord `json:"record"`
	Payload   qr.SessionPayload        `json:"payload"`
	QRContent string                   `json:"qr_content"`
	ExpiresAt time.Time                `json:"expires_at"`
	ImageURL  string                   `json:"image_url"`
}

// ScanRequest is submitted by a student after scanning.
type ScanRequest struct {
	Payload  string `json:"payload" validate:"required"`
	DeviceID string `json:"device_id" validate:"omitempty,max=128"`
}

// ScanResult confirms a check-in.
type ScanResult struct {
	RecordID    int64     `json:"record_id"`
	LectureName string    `json:"lecture_name"`
	Message     string    `json:"message"`
	MarkedAt    time.Time `json:"marked_at"`
}

// LiveCountResponse reports progress of an open session.
type LiveCountResponse struct {
	RecordID  int64      `json:"record_id"`
	Present   int        `json:"present"`
	Total     int        `json:"total"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// BatchRequest lists rolls collected offline for a session.
type BatchRequest struct {
	Rolls []int64 `json:"rolls" validate:"required,min=1,dive,gt=0"`
}

// BatchResponse returns the batch payload and its encoded content.
type BatchResponse struct {
	Payload   qr.BatchPayload `json:"payload"`
	QRContent string          `json:"qr_content"`
}

// RedeemBatchRequest submits a scanned batch payload.
type RedeemBatchRequest struct {
	Payload string `json:"payload" validate:"required"`
}

// RedeemBatchResult splits the batch rolls by outcome.
type RedeemBatchResult struct {
	RecordID int64   `json:"record_id"`
	Marked   []int64 `json:"marked"`
	Skipped  []int64 `json:"skipped"`
	Unknown  []int64 `json:"unknown"`
}
