package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/export"
	"github.com/noah-isme/ams-api/pkg/storage"
)

type exportRecordReader interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error)
}

type exportRosterReader interface {
	ActiveRoster(ctx context.Context) ([]models.Student, error)
}

type exportFacultyReader interface {
	List(ctx context.Context, activeOnly bool) ([]models.Faculty, error)
}

type fileStorage interface {
	Save(name string, data []byte) (int64, error)
	Open(name string) (*os.File, int64, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportSources are the datasets an export can read.
type ExportSources struct {
	Records exportRecordReader
	Roster  exportRosterReader
	Faculty exportFacultyReader
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	Size         int64
	ExpiresAt    time.Time
}

// ExportService builds attendance datasets and persists rendered files.
type ExportService struct {
	sources ExportSources
	storage fileStorage
	signer  *storage.Signer
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sources ExportSources, store fileStorage, signer *storage.Signer, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		sources: sources,
		storage: store,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate renders the dataset a job asks for and stores it behind a signed token.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := export.RendererFor(export.Format(job.Params.Format))
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", job.Params.Format, err)
	}

	relPath := path.Join(job.ID, s.buildFilename(job, renderer.Extension()))
	size, err := s.storage.Save(relPath, payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("export stored", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int64("bytes", size))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       job.Params.Format,
		Size:         size,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file and its size.
func (s *ExportService) Open(relPath string) (*os.File, int64, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob, ext string) string {
	parts := []string{string(job.Type)}
	if job.Params.DateFrom != nil {
		parts = append(parts, sanitizeFilename(*job.Params.DateFrom))
	}
	if job.Params.DateTo != nil {
		parts = append(parts, sanitizeFilename(*job.Params.DateTo))
	}
	parts = append(parts, s.now().UTC().Format("20060102_150405"))
	return strings.Join(parts, "_") + "." + ext
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ExportTypeRecords:
		return s.buildRecordsDataset(ctx, job.Params)
	case models.ExportTypeRoster:
		students, err := s.sources.Roster.ActiveRoster(ctx)
		if err != nil {
			return export.Dataset{}, err
		}
		return RosterDataset(students), nil
	case models.ExportTypeFacultySummary:
		return s.buildFacultyDataset(ctx, job.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) recordsFor(ctx context.Context, params models.ExportParams) ([]models.AttendanceRecord, error) {
	filter := models.RecordFilter{Lecture: params.Lecture, Faculty: params.Faculty}
	var err error
	if filter.DateFrom, err = parseExportDate(params.DateFrom); err != nil {
		return nil, err
	}
	if filter.DateTo, err = parseExportDate(params.DateTo); err != nil {
		return nil, err
	}
	return s.sources.Records.List(ctx, filter)
}

func (s *ExportService) buildRecordsDataset(ctx context.Context, params models.ExportParams) (export.Dataset, error) {
	records, err := s.recordsFor(ctx, params)
	if err != nil {
		return export.Dataset{}, err
	}
	headers := []string{"Date", "Day", "Time", "Lecture", "Type", "Faculty", "Proxy For", "Present", "Total", "Attendance (%)"}
	rows := make([]map[string]string, 0, len(records))
	for i := range records {
		r := &records[i]
		proxyFor := ""
		if r.IsProxy && r.OriginalFacultyName != nil {
			proxyFor = *r.OriginalFacultyName
		}
		present := recordPresent(r)
		capacity := recordCapacity(r, 0)
		rows = append(rows, map[string]string{
			"Date":           r.DateString(),
			"Day":            r.Day,
			"Time":           r.TimeSlot,
			"Lecture":        r.LectureName,
			"Type":           r.LectureType,
			"Faculty":        r.FacultyName,
			"Proxy For":      proxyFor,
			"Present":        strconv.Itoa(present),
			"Total":          strconv.Itoa(capacity),
			"Attendance (%)": strconv.Itoa(roundPercent(present, capacity)),
		})
	}
	return export.Dataset{Title: "Attendance Records" + rangeLabel(params), Headers: headers, Rows: rows}, nil
}

func (s *ExportService) buildFacultyDataset(ctx context.Context, params models.ExportParams) (export.Dataset, error) {
	records, err := s.recordsFor(ctx, params)
	if err != nil {
		return export.Dataset{}, err
	}
	faculty, err := s.sources.Faculty.List(ctx, false)
	if err != nil {
		return export.Dataset{}, err
	}
	summary := summarizeFaculty(records, faculty)
	headers := []string{"Faculty", "Sessions", "Present", "Capacity", "Avg Attendance (%)"}
	rows := make([]map[string]string, 0, len(summary.Faculty))
	for _, stat := range summary.Faculty {
		rows = append(rows, map[string]string{
			"Faculty":            stat.Name,
			"Sessions":           strconv.Itoa(stat.Sessions),
			"Present":            strconv.Itoa(stat.TotalPresent),
			"Capacity":           strconv.Itoa(stat.TotalCapacity),
			"Avg Attendance (%)": strconv.Itoa(stat.AvgAttendance),
		})
	}
	return export.Dataset{Title: "Faculty Summary" + rangeLabel(params), Headers: headers, Rows: rows}, nil
}

func parseExportDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(reportDateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("invalid export date %q: %w", *raw, err)
	}
	return &parsed, nil
}

func rangeLabel(params models.ExportParams) string {
	from, to := "", ""
	if params.DateFrom != nil {
		from = *params.DateFrom
	}
	if params.DateTo != nil {
		to = *params.DateTo
	}
	switch {
	case from != "" && to != "":
		return fmt.Sprintf(" %s to %s", from, to)
	case from != "":
		return " from " + from
	case to != "":
		return " until " + to
	default:
		return ""
	}
}
