package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lumen-backend/internal/feedback"
	"lumen-backend/internal/jobs"
	"lumen-backend/internal/shared/config"
	"lumen-backend/internal/shared/metrics"
	"lumen-backend/internal/shared/server/middleware"
	"lumen-backend/internal/shared/server/respond"
)

// HealthCheck reports readiness of one dependency.
type HealthCheck func() error

// RouterDeps carries the handlers and health probes the router mounts.
type RouterDeps struct {
	Jobs     *jobs.Handler
	Feedback *feedback.Handler
	// Checks maps dependency names (db, redis) to readiness probes.
	// Nil probes are reported as "disabled".
	Checks map[string]HealthCheck
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Checks))

	api.Use(
		middleware.APIKey(cfg.APIKey),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"UPLOAD":  {Rate: cfg.UploadRatePerMin / 60.0, Burst: 3},
				"POLLING": {Rate: 5, Burst: 20},
			},
			DefaultGroup: "POLLING",
			GroupFor:     groupForPath,
		}),
	)

	deps.Jobs.RegisterRoutes(api)
	deps.Feedback.RegisterRoutes(api)

	return r
}

func groupForPath(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && strings.HasSuffix(c.FullPath(), "/upload") {
		return "UPLOAD"
	}
	return "POLLING"
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		components := gin.H{}
		for name, check := range checks {
			if check == nil {
				components[name] = "disabled"
				continue
			}
			if err := check(); err != nil {
				components[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		respond.JSON(c, status, gin.H{
			"ok":         status == http.StatusOK,
			"components": components,
		})
	}
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
