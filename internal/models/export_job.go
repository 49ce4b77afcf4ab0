package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportType enumerates the datasets that can be exported.
type ExportType string

const (
	ExportTypeRecords        ExportType = "records"
	ExportTypeRoster         ExportType = "roster"
	ExportTypeFacultySummary ExportType = "faculty_summary"
)

// ExportFormat enumerates supported file encodings.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is persisted export job metadata.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	Type         ExportType   `db:"type" json:"type"`
	Params       ExportParams `db:"params" json:"params"`
	Status       ExportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	FilePath     *string      `db:"file_path" json:"-"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
}

// ExportParams are the request options persisted as JSONB.
type ExportParams struct {
	Format   ExportFormat `json:"format"`
	DateFrom *string      `json:"date_from,omitempty"`
	DateTo   *string      `json:"date_to,omitempty"`
	Lecture  string       `json:"lecture,omitempty"`
	Faculty  string       `json:"faculty,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportParams", value)
	}
	if len(data) == 0 {
		*p = ExportParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export params: %w", err)
	}
	return nil
}

// CreateExportRequest asks for an asynchronous export.
type CreateExportRequest struct {
	Type     ExportType   `json:"type" validate:"required,oneof=records roster faculty_summary"`
	Format   ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	DateFrom *string      `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   *string      `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
	Lecture  string       `json:"lecture"`
	Faculty  string       `json:"faculty"`
}

// ExportJobStatus is returned by the status endpoint.
type ExportJobStatus struct {
	ID          string       `json:"id"`
	Type        ExportType   `json:"type"`
	Status      ExportStatus `json:"status"`
	Progress    int          `json:"progress"`
	DownloadURL *string      `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}
