package dto

import "time"

// PieSlice is one segment of a chart.
type PieSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// StatsSummaryResponse is today's pulse across sessions.
type StatsSummaryResponse struct {
	Date     string `json:"date"`
	Sessions int    `json:"sessions"`
	Present  int    `json:"present"`
	Absent   int    `json:"absent"`
	Capacity int    `json:"capacity"`
}

// StudentRate is a student's attendance ratio.
type StudentRate struct {
	RollNo  int64  `json:"rollNo"`
	Name    string `json:"name"`
	Present int    `json:"present"`
	Total   int    `json:"total"`
	Percent int    `json:"pct"`
	Band    string `json:"band,omitempty"`
}

// TopRegularsResponse ranks the most regular students.
type TopRegularsResponse struct {
	Date    string        `json:"date"`
	Top     []StudentRate `json:"top"`
	Today   []PieSlice    `json:"today"`
	HasData bool          `json:"hasData"`
}

// LeaderboardResponse ranks students by detail consistency.
type LeaderboardResponse struct {
	Date    string        `json:"date"`
	Leaders []StudentRate `json:"leaders"`
	Pie     []PieSlice    `json:"pie"`
}

// HeatmapDay is one calendar cell.
type HeatmapDay struct {
	Day       int    `json:"day"`
	Date      string `json:"date"`
	Intensity int    `json:"intensity"`
	Sessions  int    `json:"sessionCount"`
	Band      string `json:"band"`
}

// HeatmapResponse covers one month.
type HeatmapResponse struct {
	Month string       `json:"month"`
	Label string       `json:"label"`
	Days  []HeatmapDay `json:"days"`
}

// FacultyStat aggregates one faculty member's sessions.
type FacultyStat struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name"`
	Sessions      int    `json:"sessions"`
	TotalPresent  int    `json:"totalPresent"`
	TotalCapacity int    `json:"totalCapacity"`
	AvgAttendance int    `json:"avgAttendance"`
}

// FacultySummaryResponse powers the faculty performance panel.
type FacultySummaryResponse struct {
	Top3    []FacultyStat `json:"top3"`
	Pie     []PieSlice    `json:"pie"`
	Faculty []FacultyStat `json:"faculty"`
	HasData bool          `json:"hasData"`
}

// FacultyReportsResponse lists every faculty member with highlights.
type FacultyReportsResponse struct {
	Faculty        []FacultyStat `json:"faculty"`
	TopFaculty     *FacultyStat  `json:"topFaculty,omitempty"`
	MostConsistent *FacultyStat  `json:"mostConsistent,omitempty"`
}

// ProjectHealth is the overall attendance score.
type ProjectHealth struct {
	Score  int    `json:"score"`
	Status string `json:"status"`
}

// SystemUpdate is a feed entry derived from recent sessions.
type SystemUpdate struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"msg"`
	Time    string `json:"time"`
}

// AttendanceReportsResponse combines student rates, health and the updates feed.
type AttendanceReportsResponse struct {
	Students []StudentRate  `json:"students"`
	Health   ProjectHealth  `json:"health"`
	Updates  []SystemUpdate `json:"updates"`
}

// AuditUser is one row of the system audit console.
type AuditUser struct {
	ID              string     `json:"id"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	Status          string     `json:"status"`
	Device          string     `json:"device"`
	SessionDuration string     `json:"sessionDuration"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	LastActiveAt    *time.Time `json:"lastActiveAt,omitempty"`
}

// SystemAuditResponse lists users by recency with status counters.
type SystemAuditResponse struct {
	Users   []AuditUser    `json:"users"`
	Counts  map[string]int `json:"counts"`
	Records int            `json:"records"`
}

// FacultyPortalResponse is the faculty's own KPI overview.
type FacultyPortalResponse struct {
	Sessions      int `json:"sessions"`
	TotalPresent  int `json:"totalPresent"`
	AvgAttendance int `json:"avgAttendance"`
}
