// Package httpapi wires the HTTP surface: routing, middleware, and the
// JSON request/response shapes. Every response carries a success
// boolean; failures add a message.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/auth"
	"campusattend/internal/cloudinary"
	"campusattend/internal/config"
	"campusattend/internal/faceclient"
	"campusattend/internal/gradebook"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/ledger"
	"campusattend/internal/noticeboard"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
	"campusattend/internal/store"
	"campusattend/internal/timetable"
	"campusattend/internal/transport"
)

// Server bundles the handler dependencies.
type Server struct {
	cfg        config.App
	ledger     *ledger.Service
	roster     *roster.Repository
	grades     *gradebook.Repository
	notices    *noticeboard.Repository
	timetables *timetable.Repository
	buses      *transport.Repository
	queue      queue.Queue
	redis      *store.Redis
	cdn        *cloudinary.Client
	faces      *faceclient.Client
	dbHealthy  func() bool
}

// New creates a server. cdn may be nil when image storage is not
// configured.
func New(
	cfg config.App,
	led *ledger.Service,
	ros *roster.Repository,
	grd *gradebook.Repository,
	ann *noticeboard.Repository,
	tt *timetable.Repository,
	bus *transport.Repository,
	q queue.Queue,
	rds *store.Redis,
	cdn *cloudinary.Client,
	faces *faceclient.Client,
	dbHealthy func() bool,
) *Server {
	return &Server{
		cfg:        cfg,
		ledger:     led,
		roster:     ros,
		grades:     grd,
		notices:    ann,
		timetables: tt,
		buses:      bus,
		queue:      q,
		redis:      rds,
		cdn:        cdn,
		faces:      faces,
		dbHealthy:  dbHealthy,
	}
}

// Router builds the gin engine with the full middleware chain and all
// routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)

	v1 := r.Group("/v1")

	// Public surface.
	v1.POST("/auth/register", s.handleRegister)
	v1.POST("/auth/login", s.handleLogin)
	v1.GET("/transport/routes", s.handleListRoutes)
	v1.GET("/transport/routes/:id", s.handleRouteByID)
	v1.GET("/transport/notices", s.handleListNotices)

	authed := v1.Group("", auth.Require(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))

	authed.GET("/auth/me", s.handleMe)

	att := authed.Group("/attendance")
	att.POST("/mark", s.handleMark)
	att.GET("/records", s.handleRecords)
	att.GET("/stats", s.handleOwnStats)
	att.GET("/stats/student/:studentID", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleStudentStats)
	att.GET("/stats/class/:classID", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleClassStats)
	att.GET("/today-summary", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleTodaySummary)

	face := authed.Group("/face")
	face.POST("/enroll", auth.RequireRoles(roster.RoleStudent), s.handleFaceEnroll)
	face.GET("/status", auth.RequireRoles(roster.RoleStudent), s.handleFaceStatus)
	face.GET("/gallery", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleFaceGallery)
	face.POST("/snapshot", s.handleSnapshotUpload)

	authed.GET("/announcements", s.handleListAnnouncements)
	authed.POST("/announcements", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleCreateAnnouncement)
	authed.DELETE("/announcements/:id", s.handleDeleteAnnouncement)

	authed.GET("/grades", s.handleListGrades)
	authed.GET("/grades/summary/:studentID", s.handleGradeSummary)
	authed.POST("/grades", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleUpsertGrade)
	authed.DELETE("/grades/:id", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleDeleteGrade)

	authed.GET("/timetables", s.handleListTimetables)
	authed.GET("/timetables/class/:className", s.handleTimetableByClass)
	authed.POST("/timetables", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleUpsertTimetable)
	authed.DELETE("/timetables/:id", auth.RequireRoles(roster.RoleTeacher, roster.RoleAdmin), s.handleDeleteTimetable)

	tr := authed.Group("/transport", auth.RequireRoles(roster.RoleTransport, roster.RoleAdmin))
	tr.POST("/routes", s.handleCreateRoute)
	tr.PUT("/routes/:id", s.handleUpdateRoute)
	tr.DELETE("/routes/:id", s.handleDeleteRoute)
	tr.POST("/notices", s.handleCreateNotice)
	tr.DELETE("/notices/:id", s.handleDeleteNotice)

	admin := authed.Group("/admin", auth.RequireRoles(roster.RoleAdmin))
	admin.GET("/users", s.handleListUsers)
	admin.GET("/dashboard-stats", s.handleDashboard)
	admin.GET("/classes", s.handleListClasses)
	admin.POST("/classes", s.handleCreateClass)

	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	redisHealthy := s.redis.Healthy(c.Request.Context())
	dbHealthy := s.dbHealthy()
	status := http.StatusOK
	if !redisHealthy || !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
