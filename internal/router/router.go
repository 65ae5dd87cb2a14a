package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hrm-api/internal/config"
	"github.com/jwalitptl/hrm-api/internal/handler"
	"github.com/jwalitptl/hrm-api/internal/handler/message"
	"github.com/jwalitptl/hrm-api/internal/handler/notification"
	"github.com/jwalitptl/hrm-api/internal/handler/ws"
	"github.com/jwalitptl/hrm-api/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Notification *notification.Handler
	Message      *message.Handler
	WS           *ws.Handler
	Auth         *middleware.AuthMiddleware
}

// Setup builds the gin engine with the full middleware chain and all routes.
func Setup(cfg *config.Config, db *sqlx.DB, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   cfg.RateLimit.RequestsPerSecond,
			Burst: cfg.RateLimit.Burst,
		})
		r.Use(limiter.RateLimit())
	}

	ops := handler.NewHandler(db)
	health := r.Group("/health")
	{
		health.GET("/live", ops.LivenessCheck)
		health.GET("/ready", ops.ReadinessCheck)
		health.GET("/metrics", ops.MetricsHandler)
	}

	api := r.Group("/api/v1")

	// Websocket handshakes authenticate inside the handler so the token
	// query-parameter fallback and pre-upgrade 401s work uniformly.
	h.WS.RegisterRoutes(api.Group("/ws"))

	protected := api.Group("")
	protected.Use(h.Auth.Authenticate())
	{
		h.Notification.RegisterRoutes(protected)
		h.Message.RegisterRoutes(protected)
	}

	return r
}
