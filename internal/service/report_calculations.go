package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/models"
)

const (
	reportDateLayout = "2006-01-02"

	topRegularsLimit = 6
	leaderboardLimit = 5
	facultyTopLimit  = 3
	facultyPieLimit  = 5
	updatesScanned   = 5
	updatesReturned  = 4
)

const (
	bandGood = "good"
	bandWarn = "warn"
	bandLow  = "low"

	heatGreen = "green"
	heatAmber = "amber"
	heatRed   = "red"
	heatNone  = "none"
)

// Audit console states.
const (
	AuditStatusRevoked = "REVOKED"
	AuditStatusLive    = "LIVE"
	AuditStatusIdle    = "IDLE"
	AuditStatusOffline = "OFFLINE"
)

var auditDevices = [4]string{"iOS", "Android", "Web/Desk", "Tablet"}

// rollSets returns the distinct P rolls and every distinct roll of a record.
func rollSets(record *models.AttendanceRecord) (present, all map[int64]struct{}) {
	present = make(map[int64]struct{})
	all = make(map[int64]struct{})
	for _, d := range record.Details {
		all[d.StudentRoll] = struct{}{}
		if d.Status == models.AttendanceStatusPresent {
			present[d.StudentRoll] = struct{}{}
		}
	}
	return present, all
}

// recordPresent counts unique P rolls, falling back to the stored count.
func recordPresent(record *models.AttendanceRecord) int {
	present, _ := rollSets(record)
	if len(present) > 0 {
		return len(present)
	}
	return record.PresentCount
}

// recordCapacity is total_count or classSize, raised to the distinct detail count.
func recordCapacity(record *models.AttendanceRecord, classSize int) int {
	capacity := record.TotalCount
	if capacity == 0 {
		capacity = classSize
	}
	_, all := rollSets(record)
	if len(all) > capacity {
		capacity = len(all)
	}
	return capacity
}

func roundPercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func isOnDate(record *models.AttendanceRecord, date string) bool {
	return record.DateString() == date
}

func summarizeDay(records []models.AttendanceRecord, date string, classSize int) dto.StatsSummaryResponse {
	out := dto.StatsSummaryResponse{Date: date}
	for i := range records {
		if !isOnDate(&records[i], date) {
			continue
		}
		out.Sessions++
		out.Present += recordPresent(&records[i])
		out.Capacity += recordCapacity(&records[i], classSize)
	}
	if out.Capacity > out.Present {
		out.Absent = out.Capacity - out.Present
	}
	return out
}

// rankRegulars counts every record as one seat for every roster student.
func rankRegulars(records []models.AttendanceRecord, students []models.Student, limit int) []dto.StudentRate {
	presentSets := make([]map[int64]struct{}, len(records))
	for i := range records {
		presentSets[i], _ = rollSets(&records[i])
	}
	rates := make([]dto.StudentRate, 0, len(students))
	for _, s := range students {
		rate := dto.StudentRate{RollNo: s.RollNo, Name: s.Name, Total: len(records)}
		for _, set := range presentSets {
			if _, ok := set[s.RollNo]; ok {
				rate.Present++
			}
		}
		rate.Percent = roundPercent(rate.Present, rate.Total)
		rates = append(rates, rate)
	}
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Percent != rates[j].Percent {
			return rates[i].Percent > rates[j].Percent
		}
		return rates[i].Present > rates[j].Present
	})
	if limit > 0 && len(rates) > limit {
		rates = rates[:limit]
	}
	return rates
}

// todayPie uses detail P rows for present and total_count or the roster size for capacity.
func todayPie(records []models.AttendanceRecord, date string, rosterSize int) ([]dto.PieSlice, bool) {
	var present, absent int
	for i := range records {
		r := &records[i]
		if !isOnDate(r, date) {
			continue
		}
		p := r.PresentCount
		if len(r.Details) > 0 {
			p = 0
			for _, d := range r.Details {
				if d.Status == models.AttendanceStatusPresent {
					p++
				}
			}
		}
		capacity := r.TotalCount
		if capacity == 0 {
			capacity = rosterSize
		}
		present += p
		if capacity > p {
			absent += capacity - p
		}
	}
	if present == 0 && absent == 0 {
		return []dto.PieSlice{}, false
	}
	return []dto.PieSlice{{Name: "Present", Value: present}, {Name: "Absent", Value: absent}}, true
}

// effectiveStudents falls back to the rolls seen in details when the roster is empty.
func effectiveStudents(records []models.AttendanceRecord, students []models.Student) []models.Student {
	if len(students) > 0 {
		return students
	}
	seen := make(map[int64]bool)
	var out []models.Student
	for _, r := range records {
		for _, d := range r.Details {
			if seen[d.StudentRoll] {
				continue
			}
			seen[d.StudentRoll] = true
			out = append(out, models.Student{RollNo: d.StudentRoll, Name: d.StudentName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNo < out[j].RollNo })
	return out
}

// rankLeaders counts detail rows per roll; students without details are left out.
func rankLeaders(records []models.AttendanceRecord, students []models.Student, limit int) []dto.StudentRate {
	stats := make(map[int64]*dto.StudentRate, len(students))
	for _, s := range students {
		stats[s.RollNo] = &dto.StudentRate{RollNo: s.RollNo, Name: s.Name}
	}
	for _, r := range records {
		for _, d := range r.Details {
			rate, ok := stats[d.StudentRoll]
			if !ok {
				continue
			}
			rate.Total++
			if d.Status == models.AttendanceStatusPresent {
				rate.Present++
			}
		}
	}
	leaders := make([]dto.StudentRate, 0, len(stats))
	for _, rate := range stats {
		if rate.Total == 0 {
			continue
		}
		rate.Percent = roundPercent(rate.Present, rate.Total)
		leaders = append(leaders, *rate)
	}
	sort.Slice(leaders, func(i, j int) bool {
		if leaders[i].Percent != leaders[j].Percent {
			return leaders[i].Percent > leaders[j].Percent
		}
		return leaders[i].RollNo < leaders[j].RollNo
	})
	if limit > 0 && len(leaders) > limit {
		leaders = leaders[:limit]
	}
	return leaders
}

func leaderboardPie(records []models.AttendanceRecord, date string, studentCount int) []dto.PieSlice {
	present := make(map[int64]struct{})
	for i := range records {
		if !isOnDate(&records[i], date) {
			continue
		}
		set, _ := rollSets(&records[i])
		for roll := range set {
			present[roll] = struct{}{}
		}
	}
	total := studentCount
	if total == 0 {
		total = len(present)
	}
	if total == 0 {
		return []dto.PieSlice{}
	}
	absent := total - len(present)
	if absent < 0 {
		absent = 0
	}
	return []dto.PieSlice{{Name: "Absent", Value: absent}, {Name: "Present", Value: len(present)}}
}

func heatBand(sessions, intensity int) string {
	switch {
	case sessions == 0:
		return heatNone
	case intensity >= 75:
		return heatGreen
	case intensity >= 50:
		return heatAmber
	default:
		return heatRed
	}
}

func buildHeatmap(records []models.AttendanceRecord, month time.Time, rosterSize int) dto.HeatmapResponse {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	type bucket struct{ present, capacity, sessions int }
	buckets := make(map[string]*bucket)
	for i := range records {
		key := records[i].DateString()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sessions++
		b.present += records[i].PresentCount
		if records[i].TotalCount > 0 {
			b.capacity += records[i].TotalCount
		} else {
			b.capacity += rosterSize
		}
	}

	out := dto.HeatmapResponse{
		Month: first.Format("2006-01"),
		Label: first.Format("January 2006"),
		Days:  make([]dto.HeatmapDay, 0, daysInMonth),
	}
	for day := 1; day <= daysInMonth; day++ {
		date := first.AddDate(0, 0, day-1).Format(reportDateLayout)
		cell := dto.HeatmapDay{Day: day, Date: date}
		if b, ok := buckets[date]; ok {
			cell.Sessions = b.sessions
			cell.Intensity = roundPercent(b.present, b.capacity)
		}
		cell.Band = heatBand(cell.Sessions, cell.Intensity)
		out.Days = append(out.Days, cell)
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// facultyStats aggregates records per faculty member. Names match case-insensitively after trimming.
func facultyStats(records []models.AttendanceRecord, faculty []models.Faculty) []dto.FacultyStat {
	byName := make(map[string][]*models.AttendanceRecord)
	for i := range records {
		key := normalizeName(records[i].FacultyName)
		byName[key] = append(byName[key], &records[i])
	}

	stats := make([]dto.FacultyStat, 0, len(faculty))
	for _, f := range faculty {
		stat := dto.FacultyStat{ID: f.ID, Name: f.Name}
		for _, r := range byName[normalizeName(f.Name)] {
			present := recordPresent(r)
			capacity := r.TotalCount
			if capacity == 0 {
				_, all := rollSets(r)
				capacity = len(all)
			}
			if present > capacity {
				capacity = present
			}
			stat.Sessions++
			stat.TotalPresent += present
			stat.TotalCapacity += capacity
		}
		stat.AvgAttendance = roundPercent(stat.TotalPresent, stat.TotalCapacity)
		if stat.AvgAttendance > 100 {
			stat.AvgAttendance = 100
		}
		stats = append(stats, stat)
	}
	return stats
}

func sortBySessions(stats []dto.FacultyStat) {
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Sessions > stats[j].Sessions })
}

func summarizeFaculty(records []models.AttendanceRecord, faculty []models.Faculty) dto.FacultySummaryResponse {
	stats := facultyStats(records, faculty)

	active := make([]dto.FacultyStat, 0, len(stats))
	for _, s := range stats {
		if s.Sessions > 0 {
			active = append(active, s)
		}
	}

	byAvg := append([]dto.FacultyStat(nil), active...)
	sort.SliceStable(byAvg, func(i, j int) bool { return byAvg[i].AvgAttendance > byAvg[j].AvgAttendance })
	if len(byAvg) > facultyTopLimit {
		byAvg = byAvg[:facultyTopLimit]
	}

	bySessions := append([]dto.FacultyStat(nil), active...)
	sortBySessions(bySessions)
	pie := make([]dto.PieSlice, 0, facultyPieLimit+1)
	others := 0
	for i, s := range bySessions {
		if i < facultyPieLimit {
			pie = append(pie, dto.PieSlice{Name: s.Name, Value: s.Sessions})
			continue
		}
		others += s.Sessions
	}
	if others > 0 {
		pie = append(pie, dto.PieSlice{Name: "Others", Value: others})
	}

	sortBySessions(stats)
	return dto.FacultySummaryResponse{Top3: byAvg, Pie: pie, Faculty: stats, HasData: len(pie) > 0}
}

func facultyReports(records []models.AttendanceRecord, faculty []models.Faculty) dto.FacultyReportsResponse {
	stats := facultyStats(records, faculty)
	sortBySessions(stats)
	out := dto.FacultyReportsResponse{Faculty: stats}
	if len(stats) > 0 && stats[0].Sessions > 0 {
		top := stats[0]
		out.TopFaculty = &top
	}
	for i := range stats {
		if stats[i].Sessions == 0 {
			continue
		}
		if out.MostConsistent == nil || stats[i].AvgAttendance > out.MostConsistent.AvgAttendance {
			consistent := stats[i]
			out.MostConsistent = &consistent
		}
	}
	return out
}

func studentBand(pct int) string {
	switch {
	case pct >= 75:
		return bandGood
	case pct >= 50:
		return bandWarn
	default:
		return bandLow
	}
}

func healthStatus(score int) string {
	switch {
	case score >= 80:
		return "Optimal"
	case score >= 60:
		return "Good"
	case score > 0:
		return "Critical"
	default:
		return "No Data"
	}
}

// projectHealth scores overall attendance. A non-zero roll scores that student's seats only.
func projectHealth(records []models.AttendanceRecord, classSize int, roll int64) dto.ProjectHealth {
	var present, capacity int
	for i := range records {
		if roll > 0 {
			set, _ := rollSets(&records[i])
			capacity++
			if _, ok := set[roll]; ok {
				present++
			}
			continue
		}
		present += recordPresent(&records[i])
		capacity += recordCapacity(&records[i], classSize)
	}
	score := roundPercent(present, capacity)
	return dto.ProjectHealth{Score: score, Status: healthStatus(score)}
}

func relativeTime(now, at time.Time) string {
	if at.IsZero() {
		return "Recently"
	}
	mins := int(now.Sub(at) / time.Minute)
	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case mins < 24*60:
		return fmt.Sprintf("%dh ago", mins/60)
	default:
		return fmt.Sprintf("%dd ago", mins/(24*60))
	}
}

func systemUpdates(records []models.AttendanceRecord, classSize int, now time.Time) []dto.SystemUpdate {
	recent := make([]*models.AttendanceRecord, len(records))
	for i := range records {
		recent[i] = &records[i]
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > updatesScanned {
		recent = recent[:updatesScanned]
	}

	updates := make([]dto.SystemUpdate, 0, len(recent))
	for _, r := range recent {
		capacity := r.TotalCount
		if capacity == 0 {
			capacity = classSize
		}
		var pct float64
		if capacity > 0 {
			pct = float64(recordPresent(r)) / float64(capacity) * 100
		}
		update := dto.SystemUpdate{Time: relativeTime(now, r.CreatedAt)}
		switch {
		case pct >= 90:
			update.ID, update.Type, update.Message = fmt.Sprintf("high-%d", r.ID), "success", "High engagement in "+r.LectureName
		case pct < 40:
			update.ID, update.Type, update.Message = fmt.Sprintf("low-%d", r.ID), "warning", "Low turnout for "+r.LectureName
		default:
			update.ID, update.Type, update.Message = fmt.Sprintf("reg-%d", r.ID), "info", "Session recorded: "+r.LectureName
		}
		updates = append(updates, update)
	}
	if len(updates) == 0 {
		updates = append(updates,
			dto.SystemUpdate{ID: "sys-1", Type: "info", Message: "System initialized successfully", Time: "Now"},
			dto.SystemUpdate{ID: "sys-2", Type: "success", Message: "Database connection secure", Time: "Now"},
		)
	}
	if len(updates) > updatesReturned {
		updates = updates[:updatesReturned]
	}
	return updates
}

// lastActivity prefers last_active_at and accepts a login from the last five minutes.
func lastActivity(user *models.User, now time.Time) *time.Time {
	if user.LastActiveAt != nil && !user.LastActiveAt.IsZero() {
		return user.LastActiveAt
	}
	if user.LastLogin != nil && now.Sub(*user.LastLogin) < 5*time.Minute {
		return user.LastLogin
	}
	return nil
}

func auditStatus(user *models.User, now time.Time) string {
	if user.Blocked() {
		return AuditStatusRevoked
	}
	last := lastActivity(user, now)
	if last == nil {
		return AuditStatusOffline
	}
	idle := now.Sub(*last)
	switch {
	case idle < 2*time.Minute:
		return AuditStatusLive
	case idle < 30*time.Minute:
		return AuditStatusIdle
	default:
		return AuditStatusOffline
	}
}

func deviceLabel(id string) string {
	sum := 0
	for _, c := range id {
		sum += int(c)
	}
	return auditDevices[sum%len(auditDevices)]
}

// sessionDuration runs from last login to the last activity, or to now while the user is live.
func sessionDuration(user *models.User, now time.Time) string {
	if user.LastLogin == nil || user.LastLogin.IsZero() {
		return "00h 00m 00s"
	}
	start := *user.LastLogin
	end := start
	if user.LastActiveAt != nil {
		end = *user.LastActiveAt
	}
	if now.Sub(end) < 2*time.Minute {
		end = now
	}
	diff := end.Sub(start)
	if diff < 0 {
		diff = 0
	}
	secs := int(diff / time.Second)
	return fmt.Sprintf("%02dh %02dm %02ds", secs/3600, (secs%3600)/60, secs%60)
}

func auditUsers(users []models.User, now time.Time) ([]dto.AuditUser, map[string]int) {
	counts := map[string]int{AuditStatusLive: 0, AuditStatusIdle: 0, AuditStatusOffline: 0, AuditStatusRevoked: 0}
	rows := make([]dto.AuditUser, 0, len(users))
	for i := range users {
		u := &users[i]
		status := auditStatus(u, now)
		counts[status]++
		rows = append(rows, dto.AuditUser{
			ID:              u.ID,
			FullName:        u.FullName,
			Email:           u.Email,
			Role:            string(u.Role),
			Status:          status,
			Device:          deviceLabel(u.ID),
			SessionDuration: sessionDuration(u, now),
			LastLogin:       u.LastLogin,
			LastActiveAt:    u.LastActiveAt,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return activityUnix(rows[i].LastActiveAt) > activityUnix(rows[j].LastActiveAt)
	})
	return rows, counts
}

func activityUnix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// facultyPortal covers records created by the actor or carrying their name.
func facultyPortal(records []models.AttendanceRecord, userID, fullName string, strength int) dto.FacultyPortalResponse {
	var out dto.FacultyPortalResponse
	for i := range records {
		r := &records[i]
		if !r.CreatedByUser(userID) && (fullName == "" || r.FacultyName != fullName) {
			continue
		}
		out.Sessions++
		out.TotalPresent += recordPresent(r)
	}
	out.AvgAttendance = roundPercent(out.TotalPresent, out.Sessions*strength)
	return out
}
