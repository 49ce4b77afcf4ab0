package models

import (
	"encoding/json"
	"time"
)

// AdminSettingPanelVisibility is the settings key holding dashboard panel flags.
const AdminSettingPanelVisibility = "panel_visibility"

// Dashboard panels that can be hidden from non-admin users.
const (
	PanelReports        = "attendanceReportsPanel"
	PanelRegularSummary = "regularStudentsWrap"
	PanelHeatbar        = "heatbarWrap"
	PanelMonthlyHeatmap = "monthlyHeatWrap"
	PanelRecords        = "attendanceRecordsPanel"
	PanelAnalytics      = "analyticsPanel"
	PanelFacultyReports = "facultyReportsPanel"
)

// PanelKeys lists every known panel in display order.
var PanelKeys = []string{
	PanelReports,
	PanelRegularSummary,
	PanelHeatbar,
	PanelMonthlyHeatmap,
	PanelRecords,
	PanelAnalytics,
	PanelFacultyReports,
}

// PanelVisibility maps panel key to "hidden".
type PanelVisibility map[string]bool

// DefaultPanelVisibility has every panel visible.
func DefaultPanelVisibility() PanelVisibility {
	out := make(PanelVisibility, len(PanelKeys))
	for _, key := range PanelKeys {
		out[key] = false
	}
	return out
}

// AdminSetting is a persisted JSON setting.
type AdminSetting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedBy *string         `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
