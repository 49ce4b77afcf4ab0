package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/internal/repository"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/jobs"
)

type exportRepoStub struct {
	jobs map[string]*models.ExportJob
}

func newExportRepoStub() *exportRepoStub {
	return &exportRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (r *exportRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *exportRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *exportRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var finished []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newExportJobServiceForTest(t *testing.T) (*ExportJobService, *exportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newExportRepoStub()
	queue := &queueStub{}
	exportSvc, _, _ := newExportServiceForTest(t)
	svc := NewExportJobService(repo, queue, exportSvc, nil, zap.NewNop(), ExportJobConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)

	status, err := svc.CreateJob(context.Background(), models.CreateExportRequest{
		Type:    models.ExportTypeRecords,
		Format:  models.ExportFormatCSV,
		Lecture: "  Math ",
	}, facultyClaims())
	require.NoError(t, err)
	require.NotEmpty(t, status.ID)
	assert.Equal(t, models.ExportStatusQueued, status.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "records", queue.jobs[0].Type)
	require.Contains(t, repo.jobs, status.ID)
	assert.Equal(t, "Math", repo.jobs[status.ID].Params.Lecture)
	assert.Equal(t, "fac-1", repo.jobs[status.ID].CreatedBy)
}

func TestExportJobServiceCreateJobRejections(t *testing.T) {
	svc, _, _, _ := newExportJobServiceForTest(t)

	_, err := svc.CreateJob(context.Background(), models.CreateExportRequest{Type: models.ExportTypeRoster, Format: models.ExportFormatCSV}, studentClaims(1))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateJob(context.Background(), models.CreateExportRequest{Type: "grades", Format: models.ExportFormatCSV}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(context.Background(), models.CreateExportRequest{
		Type: models.ExportTypeRecords, Format: models.ExportFormatPDF, DateFrom: strPtr("2024-03-10"), DateTo: strPtr("2024-03-01"),
	}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), models.CreateExportRequest{Type: models.ExportTypeRoster, Format: models.ExportFormatCSV}, adminClaims())
	require.Error(t, err)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		require.NotNil(t, job.FinishedAt)
	}
}

func TestExportJobServiceGetStatus(t *testing.T) {
	svc, repo, _, _ := newExportJobServiceForTest(t)
	repo.jobs["job-1"] = &models.ExportJob{ID: "job-1", Type: models.ExportTypeRoster, Status: models.ExportStatusProcessing, Progress: 10, CreatedBy: "fac-1"}

	status, err := svc.GetStatus(context.Background(), "job-1", facultyClaims())
	require.NoError(t, err)
	assert.Equal(t, 10, status.Progress)
	assert.Nil(t, status.DownloadURL)

	_, err = svc.GetStatus(context.Background(), "job-1", &models.JWTClaims{UserID: "other", Role: models.RoleFaculty})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetStatus(context.Background(), "job-1", adminClaims())
	assert.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportJobLifecycleThroughWorker(t *testing.T) {
	svc, repo, queue, exportSvc := newExportJobServiceForTest(t)
	worker := NewExportWorker(repo, exportSvc, 3, zap.NewNop())

	created, err := svc.CreateJob(context.Background(), models.CreateExportRequest{Type: models.ExportTypeRoster, Format: models.ExportFormatCSV}, adminClaims())
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	require.NoError(t, worker.Handle(context.Background(), queue.jobs[0]))

	job := repo.jobs[created.ID]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.FilePath)

	status, err := svc.GetStatus(context.Background(), created.ID, adminClaims())
	require.NoError(t, err)
	require.NotNil(t, status.DownloadURL)
	require.NotNil(t, status.ExpiresAt)

	download, err := svc.ResolveDownload(context.Background(), extractToken(*status.DownloadURL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Positive(t, download.Size)
	assert.Contains(t, download.Filename, "roster_")
}

func TestExportJobServiceResolveDownloadRejections(t *testing.T) {
	svc, repo, _, exportSvc := newExportJobServiceForTest(t)

	_, err := svc.ResolveDownload(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	job := &models.ExportJob{ID: "job-9", Type: models.ExportTypeRoster, Params: models.ExportParams{Format: models.ExportFormatCSV}, Status: models.ExportStatusProcessing}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	job.ResultURL = &result.URL
	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	repo.jobs["a"] = &models.ExportJob{ID: "a", Type: models.ExportTypeRoster, Status: models.ExportStatusQueued}
	repo.jobs["b"] = &models.ExportJob{ID: "b", Type: models.ExportTypeRoster, Status: models.ExportStatusFinished}

	assert.Equal(t, 1, svc.RecoverPendingJobs(context.Background()))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "a", queue.jobs[0].ID)
}

func TestExportJobServiceCleanupRemovesExpiredFiles(t *testing.T) {
	svc, repo, _, exportSvc := newExportJobServiceForTest(t)
	job := &models.ExportJob{ID: "old", Type: models.ExportTypeRoster, Params: models.ExportParams{Format: models.ExportFormatCSV}}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	finishedAt := time.Now().Add(-2 * time.Hour)
	job.Status = models.ExportStatusFinished
	job.ResultURL = &result.URL
	job.FinishedAt = &finishedAt

	svc.cleanupExpired(context.Background())

	_, _, err = exportSvc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedExportRepo() *exportRepoStub {
	return &exportRepoStub{jobs: map[string]*models.ExportJob{
		"job-1": {ID: "job-1", Type: models.ExportTypeRecords, Params: models.ExportParams{Format: models.ExportFormatCSV}, Status: models.ExportStatusQueued, CreatedBy: "admin"},
	}}
}

func TestExportWorkerHandleRequeuesBeforeLastAttempt(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, repo.jobs["job-1"].Status)
	assert.Equal(t, 0, repo.jobs["job-1"].Progress)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)
}

func TestExportWorkerHandleFailsAfterMaxRetries(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, repo.jobs["job-1"].Status)
	assert.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/exports/download/token", RelativePath: "job-1/records.csv"}}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ExportStatusFinished, repo.jobs["job-1"].Status)
	assert.Equal(t, 100, repo.jobs["job-1"].Progress)
	assert.Equal(t, "job-1/records.csv", *repo.jobs["job-1"].FilePath)
}
