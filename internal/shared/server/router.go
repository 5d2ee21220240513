package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/applications"
	"admissions-portal/internal/documents"
	"admissions-portal/internal/services/health"
	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/metrics"
	"admissions-portal/internal/shared/server/middleware"
	"admissions-portal/internal/shared/server/respond"
)

const uploadRateLimitGroup = "UPLOAD"

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config              config.Config
	Health              *health.Service
	DocumentHandler     *documents.Handler
	ApplicationsHandler *applications.Handler
	RateLimiter         *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				uploadRateLimitGroup: {Rate: deps.Config.UploadRateLimit, Burst: deps.Config.UploadRateBurst},
			},
			GroupFor: rateLimitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	registerMeRoutes(api)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.ApplicationsHandler != nil {
		deps.ApplicationsHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimitGroup limits uploads only; other routes fall through unlimited.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && c.FullPath() == "/api/upload/:kind" {
		return uploadRateLimitGroup
	}
	return "NONE"
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
