package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/handler"
	"github.com/noah-isme/ams-api/internal/repository"
	"github.com/noah-isme/ams-api/internal/service"
	"github.com/noah-isme/ams-api/pkg/cache"
	"github.com/noah-isme/ams-api/pkg/config"
	"github.com/noah-isme/ams-api/pkg/jobs"
	"github.com/noah-isme/ams-api/pkg/realtime"
	"github.com/noah-isme/ams-api/pkg/storage"
)

type handlers struct {
	auth     *handler.AuthHandler
	profile  *handler.ProfileHandler
	users    *handler.UserHandler
	students *handler.StudentHandler
	catalog  *handler.CatalogHandler
	sessions *handler.SessionHandler
	records  *handler.RecordHandler
	tasks    *handler.TaskHandler
	settings *handler.SettingsHandler
	reports  *handler.ReportHandler
	exports  *handler.ExportHandler
	realtime *handler.RealtimeHandler
	metrics  *handler.MetricsHandler
}

// application owns every long-lived component of the API process.
type application struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client

	userRepo *repository.UserRepository
	auth     *service.AuthService
	access   *service.AccessService
	profile  *service.ProfileService
	metrics  *service.MetricsService
	sessions *service.SessionService
	exports  *service.ExportJobService

	hub    *realtime.Hub
	bridge *realtime.RedisBridge
	queue  *jobs.Queue

	handlers handlers
}

func newApplication(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	lectureRepo := repository.NewLectureRepository(db)
	taskRepo := repository.NewReviewTaskRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	exportRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr.Named("cache"))

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr.Named("cache"), cfg.Analytics.CacheEnabled && cacheRepo.Enabled())
	notifications := service.NewNotificationService(cacheRepo, logr.Named("notifications"))

	app := &application{
		cfg:      cfg,
		logger:   logr,
		db:       db,
		redis:    redisClient,
		userRepo: userRepo,
		metrics:  metrics,
	}

	var publisher realtime.Publisher = realtime.NopPublisher{}
	if cfg.Realtime.Enabled {
		app.hub = realtime.NewHub(realtime.HubConfig{
			Debounce:       cfg.Realtime.Debounce,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			OnClientCount:  metrics.SetRealtimeClients,
			Logger:         logr.Named("realtime"),
		})
		if redisClient != nil {
			app.bridge = realtime.NewRedisBridge(redisClient, cfg.Realtime.Channel, app.hub, logr.Named("realtime"))
			publisher = app.bridge
		} else {
			publisher = realtime.NewLocalPublisher(app.hub)
		}
	}

	app.auth = service.NewAuthService(userRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	app.access = service.NewAccessService(userRepo, cacheRepo, cfg.Presence.StatusCacheTTL, logr.Named("access"))
	app.profile = service.NewProfileService(userRepo, cacheRepo, attendanceRepo, cfg.Presence.HeartbeatInterval, logr.Named("presence"))
	users := service.NewUserService(userRepo, attendanceRepo, app.access, validate, logr.Named("users"))
	students := service.NewStudentService(studentRepo, userRepo, cacheSvc, validate, logr.Named("roster"))
	faculty := service.NewFacultyService(facultyRepo, cacheSvc, validate, logr.Named("faculty"))
	lectures := service.NewLectureService(lectureRepo, validate, logr.Named("lectures"))

	app.sessions = service.NewSessionService(service.SessionServiceDeps{
		Records:   attendanceRepo,
		Roster:    studentRepo,
		Audit:     userRepo,
		Notifier:  notifications,
		Publisher: publisher,
		Cache:     cacheSvc,
		Metrics:   metrics,
	}, service.SessionConfig{
		TTL:              cfg.Sessions.TTL,
		DefaultClassSize: cfg.Sessions.DefaultClassSize,
		DeviceCheck:      cfg.Sessions.DeviceCheck,
		ImageBasePath:    cfg.APIPrefix,
	}, validate, logr.Named("sessions"))

	records := service.NewRecordsService(service.RecordsServiceDeps{
		Records:   attendanceRepo,
		Roster:    studentRepo,
		ScanLog:   cacheRepo,
		Audit:     userRepo,
		Publisher: publisher,
		Cache:     cacheSvc,
	}, validate, logr.Named("records"))

	tasks := service.NewTaskService(service.TaskServiceDeps{
		Tasks:     taskRepo,
		Records:   attendanceRepo,
		Users:     userRepo,
		Notifier:  notifications,
		Publisher: publisher,
		Cache:     cacheSvc,
	}, validate, logr.Named("tasks"))

	settings := service.NewSettingsService(settingsRepo, userRepo, logr.Named("settings"))

	reports := service.NewReportService(service.ReportServiceDeps{
		Records: attendanceRepo,
		Roster:  studentRepo,
		Faculty: facultyRepo,
		Users:   userRepo,
		Cache:   cacheSvc,
		Metrics: metrics,
	}, cfg.Sessions.DefaultClassSize, logr.Named("reports"))

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		if err := app.buildExports(attendanceRepo, studentRepo, facultyRepo, exportRepo, validate); err != nil {
			return nil, err
		}
		exportHandler = handler.NewExportHandler(app.exports)
	} else {
		exportHandler = handler.NewExportHandler(nil)
	}

	checks := map[string]handler.Pinger{
		"postgres": db.PingContext,
		"redis":    nil,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	app.handlers = handlers{
		auth:     handler.NewAuthHandler(app.auth),
		profile:  handler.NewProfileHandler(app.profile, notifications),
		users:    handler.NewUserHandler(users),
		students: handler.NewStudentHandler(students, cfg.Roster.MaxUploadBytes),
		catalog:  handler.NewCatalogHandler(faculty, lectures),
		sessions: handler.NewSessionHandler(app.sessions),
		records:  handler.NewRecordHandler(records),
		tasks:    handler.NewTaskHandler(tasks),
		settings: handler.NewSettingsHandler(settings),
		reports:  handler.NewReportHandler(reports),
		exports:  exportHandler,
		metrics:  handler.NewMetricsHandler(metrics, checks),
	}
	if app.hub != nil {
		app.handlers.realtime = handler.NewRealtimeHandler(app.hub, logr.Named("realtime"))
	}

	return app, nil
}

func (a *application) buildExports(
	records *repository.AttendanceRepository,
	roster *repository.StudentRepository,
	faculty *repository.FacultyRepository,
	repo *repository.ExportJobRepository,
	validate *validator.Validate,
) error {
	cfg := a.cfg.Exports
	store, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)

	exporter := service.NewExportService(service.ExportSources{
		Records: records,
		Roster:  roster,
		Faculty: faculty,
	}, store, signer, service.ExportConfig{
		APIPrefix: a.cfg.APIPrefix,
		ResultTTL: cfg.SignedURLTTL,
	}, a.logger.Named("exports"))

	worker := service.NewExportWorker(repo, exporter, cfg.WorkerRetries, a.logger.Named("exports"))
	a.queue = jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: 2 * time.Second,
		JobTimeout: 2 * time.Minute,
		OnDrop: func(job jobs.Job, err error) {
			a.logger.Error("export job dropped", zap.String("job_id", job.ID), zap.Error(err))
		},
		Logger: a.logger.Named("queue"),
	})

	a.exports = service.NewExportJobService(repo, a.queue, exporter, validate, a.logger.Named("exports"), service.ExportJobConfig{
		ResultTTL:       cfg.SignedURLTTL,
		CleanupInterval: cfg.CleanupInterval,
		MaxRetries:      cfg.WorkerRetries,
	})
	return nil
}

// start launches background loops bound to ctx.
func (a *application) start(ctx context.Context) {
	if a.bridge != nil {
		go a.bridge.Run(ctx)
	}
	if a.queue != nil {
		a.queue.Start(ctx)
		a.exports.StartCleanup(ctx)
		if n := a.exports.RecoverPendingJobs(ctx); n > 0 {
			a.logger.Info("recovered queued export jobs", zap.Int("count", n))
		}
	}
	go a.sweepSessions(ctx)
}

func (a *application) sweepSessions(ctx context.Context) {
	interval := a.cfg.Sessions.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.sessions.ExpireStale(ctx); err != nil {
				a.logger.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (a *application) close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
