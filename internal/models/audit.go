package models

import "time"

// Audit actions recorded by services and the audit middleware.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRegister       = "REGISTER"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserStatus     = "USER_STATUS"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionSessionStart   = "SESSION_START"
	AuditActionSessionEnd     = "SESSION_END"
	AuditActionRecordCreate   = "RECORD_CREATE"
	AuditActionRecordUpdate   = "RECORD_UPDATE"
	AuditActionRecordDelete   = "RECORD_DELETE"
	AuditActionRosterImport   = "ROSTER_IMPORT"
	AuditActionSettingsUpdate = "SETTINGS_UPDATE"
	AuditActionCatalogUpdate  = "CATALOG_UPDATE"
	AuditActionTaskCreate     = "TASK_CREATE"
	AuditActionExportRequest  = "EXPORT_REQUEST"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
