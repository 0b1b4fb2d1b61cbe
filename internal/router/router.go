package router

import (
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/handler"
	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth         *handler.AuthHandler
	Exam         *handler.ExamHandler
	Question     *handler.QuestionHandler
	Attempt      *handler.AttemptHandler
	Enrollment   *handler.EnrollmentHandler
	Report       *handler.ReportHandler
	Notification *handler.NotificationHandler
	Dashboard    *handler.DashboardHandler
	Monitor      *handler.MonitorHandler
	WS           *handler.WSHandler
	System       *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	rdb *redis.Client,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(authService)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter("auth", 30, time.Minute)
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/logout", requireAuth, handlers.Auth.Logout)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Payment provider callback (signature checked in the service) ─
	router.POST("/api/payments/webhook", handlers.Enrollment.PaymentWebhook)

	// ─── 3. Catalog (public, short cache) ──────────────────────────────
	router.GET("/api/exams", middleware.CacheControl(30), handlers.Exam.ListCatalog)

	// ─── 4. Exam player (JWT) ──────────────────────────────────────────
	autosaveLimiter := middleware.NewAutosaveLimiter(rdb, cfg.AutosaveRateLimit)
	exams := router.Group("/api/exams")
	exams.Use(requireAuth, middleware.NoStore())
	{
		exams.GET("/:exam_id", handlers.Exam.GetExam)
		exams.GET("/:exam_id/questions", handlers.Exam.GetQuestions)
		exams.POST("/:exam_id/enroll", handlers.Enrollment.Enroll)
		exams.POST("/:exam_id/attempts", handlers.Attempt.StartAttempt)
		exams.GET("/:exam_id/attempts", handlers.Attempt.ListMyAttempts)

		exams.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		exams.PATCH("/attempts/:attempt_id", autosaveLimiter.Middleware(), handlers.Attempt.SaveProgress)
		exams.POST("/attempts/:attempt_id", handlers.Attempt.SubmitAttempt)
		exams.GET("/attempts/:attempt_id/result", handlers.Attempt.GetResult)
	}

	me := router.Group("/api")
	me.Use(requireAuth)
	{
		me.GET("/enrollments", handlers.Enrollment.ListMyEnrollments)
		me.GET("/notifications", handlers.Notification.ListMine)
		me.POST("/notifications/:notification_id/read", handlers.Notification.MarkRead)
	}

	// ─── 5. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/exams/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 6. Admin Group (JWT + role) ───────────────────────────────────
	adminAPI := router.Group("/api/admin")
	adminAPI.Use(requireAuth, middleware.RequireRole(model.RoleAdmin))
	{
		adminAPI.GET("/dashboard", handlers.Dashboard.GetDashboardData)
		adminAPI.GET("/system/stats", handlers.System.Stats)
		adminAPI.GET("/notifications", handlers.Notification.ListRecent)

		adminAPI.GET("/exams", handlers.Exam.ListExams)
		adminAPI.POST("/exams", handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		adminAPI.PATCH("/exams/:exam_id", handlers.Exam.UpdateExam)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		adminAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)
		adminAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		adminAPI.GET("/exams/:exam_id/questions", handlers.Question.ListQuestions)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Question.AddQuestion)
		adminAPI.PUT("/exams/:exam_id/questions/:question_id", handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Question.DeleteQuestion)
		adminAPI.PUT("/exams/:exam_id/question-order", handlers.Question.ReorderQuestions)
		adminAPI.POST("/exams/:exam_id/question-import", handlers.Question.ImportQuestions)

		adminAPI.GET("/exams/:exam_id/results", handlers.Report.ListResults)
		adminAPI.GET("/exams/:exam_id/results/export", handlers.Report.ExportResults)

		adminAPI.GET("/attempts/:attempt_id/result", handlers.Attempt.GetAttemptResultAdmin)
		adminAPI.POST("/attempts/:attempt_id/review", handlers.Attempt.ReviewAttempt)
	}

	return router
}
