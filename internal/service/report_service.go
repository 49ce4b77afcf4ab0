package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type reportRecordReader interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error)
}

type reportRosterReader interface {
	ActiveRoster(ctx context.Context) ([]models.Student, error)
}

type reportFacultyReader interface {
	List(ctx context.Context, activeOnly bool) ([]models.Faculty, error)
}

type reportUserReader interface {
	ListByActivity(ctx context.Context, search string) ([]models.User, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportServiceDeps groups the collaborators of ReportService.
type ReportServiceDeps struct {
	Records reportRecordReader
	Roster  reportRosterReader
	Faculty reportFacultyReader
	Users   reportUserReader
	Cache   reportCache
	Metrics *MetricsService
}

// ReportService computes dashboard analytics from attendance records. Results are cached under analytics:*.
type ReportService struct {
	records   reportRecordReader
	roster    reportRosterReader
	faculty   reportFacultyReader
	users     reportUserReader
	cache     reportCache
	metrics   *MetricsService
	classSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService builds the service. classSize is used when a record has no total and the roster is empty.
func NewReportService(deps ReportServiceDeps, classSize int, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classSize <= 0 {
		classSize = 45
	}
	return &ReportService{
		records:   deps.Records,
		roster:    deps.Roster,
		faculty:   deps.Faculty,
		users:     deps.Users,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		classSize: classSize,
		logger:    logger,
		now:       time.Now,
	}
}

// StatsSummary totals present and absent seats for a day. An empty date means today.
func (s *ReportService) StatsSummary(ctx context.Context, date string) (*dto.StatsSummaryResponse, bool, error) {
	day, err := s.reportDate(date)
	if err != nil {
		return nil, false, err
	}
	var out dto.StatsSummaryResponse
	cached, err := s.remember(ctx, reportKey("summary", day), &out, func() error {
		on, _ := time.Parse(reportDateLayout, day)
		records, err := s.loadRecords(ctx, models.RecordFilter{Date: &on})
		if err != nil {
			return err
		}
		students, err := s.loadRoster(ctx)
		if err != nil {
			return err
		}
		out = summarizeDay(records, day, s.rosterSize(students))
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// TopRegulars ranks roster students across every record and adds today's pie.
func (s *ReportService) TopRegulars(ctx context.Context) (*dto.TopRegularsResponse, bool, error) {
	day := s.today()
	var out dto.TopRegularsResponse
	cached, err := s.remember(ctx, reportKey("regulars", day), &out, func() error {
		records, students, err := s.recordsAndRoster(ctx)
		if err != nil {
			return err
		}
		pie, hasData := todayPie(records, day, len(students))
		out = dto.TopRegularsResponse{
			Date:    day,
			Top:     rankRegulars(records, students, topRegularsLimit),
			Today:   pie,
			HasData: hasData,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// Leaderboard ranks students by their detail rows. An empty date means today.
func (s *ReportService) Leaderboard(ctx context.Context, date string) (*dto.LeaderboardResponse, bool, error) {
	day, err := s.reportDate(date)
	if err != nil {
		return nil, false, err
	}
	var out dto.LeaderboardResponse
	cached, err := s.remember(ctx, reportKey("leaderboard", day), &out, func() error {
		records, students, err := s.recordsAndRoster(ctx)
		if err != nil {
			return err
		}
		students = effectiveStudents(records, students)
		out = dto.LeaderboardResponse{
			Date:    day,
			Leaders: rankLeaders(records, students, leaderboardLimit),
			Pie:     leaderboardPie(records, day, len(students)),
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// Heatmap returns one cell per day of month (YYYY-MM). An empty month means the current one.
func (s *ReportService) Heatmap(ctx context.Context, month string) (*dto.HeatmapResponse, bool, error) {
	start := s.now().UTC()
	if month = strings.TrimSpace(month); month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, false, appErrors.Clone(appErrors.ErrValidation, "month must be YYYY-MM")
		}
		start = parsed
	}
	start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	var out dto.HeatmapResponse
	cached, err := s.remember(ctx, reportKey("heatmap", start.Format("2006-01")), &out, func() error {
		records, err := s.loadRecords(ctx, models.RecordFilter{DateFrom: &start, DateTo: &end})
		if err != nil {
			return err
		}
		students, err := s.loadRoster(ctx)
		if err != nil {
			return err
		}
		out = buildHeatmap(records, start, len(students))
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// FacultySummary ranks active faculty by average attendance and session share.
func (s *ReportService) FacultySummary(ctx context.Context) (*dto.FacultySummaryResponse, bool, error) {
	var out dto.FacultySummaryResponse
	cached, err := s.remember(ctx, reportKey("faculty_summary"), &out, func() error {
		records, faculty, err := s.recordsAndFaculty(ctx)
		if err != nil {
			return err
		}
		out = summarizeFaculty(records, faculty)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// FacultyReports lists every faculty member, including those without sessions.
func (s *ReportService) FacultyReports(ctx context.Context) (*dto.FacultyReportsResponse, bool, error) {
	var out dto.FacultyReportsResponse
	cached, err := s.remember(ctx, reportKey("faculty_reports"), &out, func() error {
		records, faculty, err := s.recordsAndFaculty(ctx)
		if err != nil {
			return err
		}
		out = facultyReports(records, faculty)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// AttendanceReports returns per-student rates, the health score and the updates feed.
// Students only see their own row and score.
func (s *ReportService) AttendanceReports(ctx context.Context, actor *models.JWTClaims) (*dto.AttendanceReportsResponse, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	var roll int64
	if actor.Role == models.RoleStudent {
		if actor.RollNo <= 0 {
			return nil, false, appErrors.Clone(appErrors.ErrForbidden, "student profile has no roll number")
		}
		roll = actor.RollNo
	}

	var out dto.AttendanceReportsResponse
	cached, err := s.remember(ctx, reportKey("attendance", string(actor.Role), roll), &out, func() error {
		records, students, err := s.recordsAndRoster(ctx)
		if err != nil {
			return err
		}
		size := s.rosterSize(students)
		rates := rankRegulars(records, students, 0)
		filtered := make([]dto.StudentRate, 0, len(rates))
		for _, rate := range rates {
			if roll > 0 && rate.RollNo != roll {
				continue
			}
			rate.Band = studentBand(rate.Percent)
			filtered = append(filtered, rate)
		}
		out = dto.AttendanceReportsResponse{
			Students: filtered,
			Health:   projectHealth(records, size, roll),
			Updates:  systemUpdates(records, size, s.now()),
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// SystemAudit lists users by recent activity with derived presence. It is never cached.
func (s *ReportService) SystemAudit(ctx context.Context, search string, actor *models.JWTClaims) (*dto.SystemAuditResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "system audit is restricted to admins")
	}
	users, err := s.users.ListByActivity(ctx, search)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load users")
	}
	records, err := s.loadRecords(ctx, models.RecordFilter{})
	if err != nil {
		return nil, err
	}
	rows, counts := auditUsers(users, s.now().UTC())
	return &dto.SystemAuditResponse{Users: rows, Counts: counts, Records: len(records)}, nil
}

// FacultyPortal summarizes the sessions run by the actor.
func (s *ReportService) FacultyPortal(ctx context.Context, actor *models.JWTClaims) (*dto.FacultyPortalResponse, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "faculty portal is not available to students")
	}
	var out dto.FacultyPortalResponse
	cached, err := s.remember(ctx, reportKey("portal", actor.UserID), &out, func() error {
		records, err := s.loadRecords(ctx, models.RecordFilter{})
		if err != nil {
			return err
		}
		out = facultyPortal(records, actor.UserID, actor.FullName, s.classSize)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, cached, nil
}

// remember serves dest from cache or fills it with build and stores it.
func (s *ReportService) remember(ctx context.Context, key string, dest interface{}, build func() error) (bool, error) {
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, key, dest)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return true, nil
		}
	}
	if err := build(); err != nil {
		return false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, dest, 0); err != nil {
			s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return false, nil
}

func (s *ReportService) loadRecords(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error) {
	start := time.Now()
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("report_records", time.Since(start))
	}
	return records, nil
}

func (s *ReportService) loadRoster(ctx context.Context) ([]models.Student, error) {
	students, err := s.roster.ActiveRoster(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return students, nil
}

func (s *ReportService) recordsAndRoster(ctx context.Context) ([]models.AttendanceRecord, []models.Student, error) {
	records, err := s.loadRecords(ctx, models.RecordFilter{})
	if err != nil {
		return nil, nil, err
	}
	students, err := s.loadRoster(ctx)
	if err != nil {
		return nil, nil, err
	}
	return records, students, nil
}

func (s *ReportService) recordsAndFaculty(ctx context.Context) ([]models.AttendanceRecord, []models.Faculty, error) {
	records, err := s.loadRecords(ctx, models.RecordFilter{})
	if err != nil {
		return nil, nil, err
	}
	faculty, err := s.faculty.List(ctx, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	return records, faculty, nil
}

// rosterSize is the capacity fallback for records without a saved total.
func (s *ReportService) rosterSize(students []models.Student) int {
	if len(students) > 0 {
		return len(students)
	}
	return s.classSize
}

func (s *ReportService) today() string {
	return s.now().UTC().Format(reportDateLayout)
}

func (s *ReportService) reportDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.today(), nil
	}
	if _, err := time.Parse(reportDateLayout, raw); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	return raw, nil
}

func reportKey(report string, args ...interface{}) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, "analytics", report)
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, ":")
}
