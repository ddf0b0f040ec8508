package api

import (
	"context"
	"time"

	"github.com/eduportal/integrity/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RouteConfig carries the HTTP-level settings of the router
type RouteConfig struct {
	JWTSecret    string
	RateLimitRPS float64
}

// SetupRoutes builds the gin engine. Idle rate limiter entries are swept
// until ctx is cancelled.
func SetupRoutes(ctx context.Context, cfg RouteConfig, handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())
	router.Use(ErrorHandlerMiddleware())

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))
	go sweepLimiter(ctx, rateLimiter)

	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/similarity/score", handler.Score)

		api.POST("/subjects/:id/notes", handler.AddNote)

		api.POST("/submissions/check", handler.CheckSubmission)
		api.POST("/submissions/queue", handler.QueueSubmission)
		api.GET("/submissions/:id/report", handler.GetReport)
		api.GET("/submissions/:id/status", handler.GetStatus)

		api.POST("/sessions", handler.StartSession)
		api.GET("/sessions/:id", handler.GetSession)
		api.DELETE("/sessions/:id", handler.FinishSession)
		api.POST("/sessions/:id/events", handler.RecordEvent)
		api.GET("/sessions/:id/warnings", handler.ListWarnings)
	}

	return router
}

func sweepLimiter(ctx context.Context, rl *RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("Swept idle rate limiters")
			}
		}
	}
}
