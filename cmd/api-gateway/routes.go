package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/config"
	"github.com/noah-isme/ams-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ams-api/pkg/middleware/requestid"
)

func (a *application) routes() *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		reqidmiddleware.Middleware(),
		logger.GinMiddleware(a.logger),
		corsmiddleware.New(a.cfg.CORS.AllowedOrigins),
		middleware.Metrics(a.metrics),
		middleware.WithResponseMeta(),
	)

	h := a.handlers
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if h.realtime != nil {
		r.GET("/ws/sync", middleware.QueryJWT(a.auth), middleware.ActiveAccount(a.access), h.realtime.Sync)
	}

	api := r.Group(a.cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/register", h.auth.Register)
	auth.POST("/refresh", h.auth.Refresh)

	// The signed token in the path is the credential.
	api.GET("/exports/download/:token", h.exports.Download)

	secured := api.Group("")
	secured.Use(
		middleware.JWT(a.auth),
		middleware.ActiveAccount(a.access),
		middleware.Presence(a.profile, a.logger.Named("presence")),
	)

	secured.POST("/auth/logout", h.auth.Logout)
	secured.POST("/auth/change-password", h.auth.ChangePassword)
	secured.GET("/auth/me", h.auth.Me)

	secured.POST("/profile/heartbeat", h.profile.Heartbeat)
	secured.GET("/profile/attendance", h.profile.MyAttendance)
	secured.GET("/notifications", h.profile.Notifications)
	secured.GET("/settings/panels", h.settings.PanelVisibility)

	secured.POST("/scan", h.sessions.Scan)
	secured.GET("/tasks", h.tasks.Board)
	secured.PATCH("/tasks/:id/status", h.tasks.UpdateStatus)

	secured.POST("/exports", middleware.Audit(a.userRepo, a.logger, models.AuditActionExportRequest, "export"), h.exports.Create)
	secured.GET("/exports/:id", h.exports.Status)

	a.staffRoutes(secured.Group("", middleware.Staff()))
	a.adminRoutes(secured.Group("", middleware.AdminOnly()))

	return r
}

func (a *application) staffRoutes(g *gin.RouterGroup) {
	h := a.handlers

	g.GET("/students", h.students.List)
	g.GET("/students/directory", h.students.Directory)
	g.GET("/students/export", h.students.Export)
	g.GET("/students/:id", h.students.Get)

	g.GET("/faculty", h.catalog.ListFaculty)
	g.GET("/lectures", h.catalog.ListLectures)

	g.POST("/sessions", h.sessions.Start)
	g.GET("/sessions/:id/qr", h.sessions.QRImage)
	g.POST("/sessions/:id/renew", h.sessions.Renew)
	g.POST("/sessions/:id/end", h.sessions.End)
	g.GET("/sessions/:id/live", h.sessions.LiveCount)
	g.POST("/sessions/:id/batch", h.sessions.Batch)
	g.POST("/sessions/:id/batch/qr", h.sessions.BatchImage)
	g.POST("/scan/batch", h.sessions.RedeemBatch)

	g.GET("/records", h.records.List)
	g.POST("/records", h.records.Create)
	g.GET("/records/scan-log", h.records.ScanLog)
	g.GET("/records/lookup/:roll", h.records.LookupRoll)
	g.GET("/records/:id", h.records.Get)
	g.PUT("/records/:id", h.records.Update)

	g.POST("/tasks", middleware.Audit(a.userRepo, a.logger, models.AuditActionTaskCreate, "review_task"), h.tasks.Create)

	g.GET("/users/attendance/:roll", h.users.AttendanceStats)

	reports := g.Group("/reports")
	reports.GET("/summary", h.reports.Summary)
	reports.GET("/regulars", h.reports.TopRegulars)
	reports.GET("/leaderboard", h.reports.Leaderboard)
	reports.GET("/heatmap", h.reports.Heatmap)
	reports.GET("/faculty", h.reports.FacultyReports)
	reports.GET("/faculty/summary", h.reports.FacultySummary)
	reports.GET("/attendance", h.reports.AttendanceReports)
	reports.GET("/portal", h.reports.FacultyPortal)
}

func (a *application) adminRoutes(g *gin.RouterGroup) {
	h := a.handlers
	auditUser := func(action string) gin.HandlerFunc {
		return middleware.Audit(a.userRepo, a.logger, action, "user")
	}
	auditCatalog := func(resource string) gin.HandlerFunc {
		return middleware.Audit(a.userRepo, a.logger, models.AuditActionCatalogUpdate, resource)
	}

	g.GET("/users", h.users.List)
	g.POST("/users", auditUser(models.AuditActionUserCreate), h.users.Create)
	g.POST("/users/bulk-status", auditUser(models.AuditActionUserStatus), h.users.BulkStatus)
	g.GET("/users/:id", h.users.Get)
	g.PUT("/users/:id", auditUser(models.AuditActionUserUpdate), h.users.Update)
	g.PATCH("/users/:id/toggle-status", auditUser(models.AuditActionUserStatus), h.users.ToggleStatus)
	g.DELETE("/users/:id", auditUser(models.AuditActionUserDelete), h.users.Delete)

	g.POST("/students", h.students.Create)
	g.POST("/students/import", h.students.Import)
	g.PUT("/students/:id", h.students.Update)
	g.DELETE("/students/:id", h.students.Delete)

	g.POST("/faculty", auditCatalog("faculty"), h.catalog.CreateFaculty)
	g.PUT("/faculty/:id", auditCatalog("faculty"), h.catalog.UpdateFaculty)
	g.DELETE("/faculty/:id", auditCatalog("faculty"), h.catalog.DeleteFaculty)
	g.POST("/lectures", auditCatalog("lecture"), h.catalog.CreateLecture)
	g.PUT("/lectures/:id", auditCatalog("lecture"), h.catalog.UpdateLecture)
	g.DELETE("/lectures/:id", auditCatalog("lecture"), h.catalog.DeleteLecture)

	g.DELETE("/records/:id", h.records.Delete)

	g.PUT("/settings/panels", h.settings.UpdatePanelVisibility)
	g.GET("/reports/audit", h.reports.SystemAudit)
	g.GET("/metrics/system", h.metrics.System)
}
