package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "resumind/internal/auth"
	"resumind/internal/resumes"
	"resumind/internal/shared/config"
	"resumind/internal/shared/metrics"
	"resumind/internal/shared/server/middleware"
	"resumind/internal/shared/server/respond"
)

const (
	rateGroupSubmit = "SUBMIT"
	rateGroupRead   = "READ"
)

// RouterDeps carries the handlers mounted under /api/v1.
type RouterDeps struct {
	Config     config.Config
	Resumes    *resumes.Handler
	GoogleAuth *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(middleware.AuthOptions{
			PublicPrefixes: []string{"/api/v1/health", "/metrics"},
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupSubmit: middleware.PerMinute(cfg.SubmitRatePerMin),
				rateGroupRead:   middleware.PerMinute(cfg.ReadRatePerMin),
			},
			GroupFor: rateGroup,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	registerMeRoutes(api)
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.Resumes != nil {
		deps.Resumes.RegisterRoutes(api)
	}

	return r
}

func rateGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/resumes" {
		return rateGroupSubmit
	}
	if c.Request.Method == http.MethodGet {
		return rateGroupRead
	}
	return ""
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
