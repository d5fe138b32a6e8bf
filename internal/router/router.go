package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/handler"
	"github.com/stemsi/exstem-mocktest/internal/middleware"
	"github.com/stemsi/exstem-mocktest/internal/response"
)

// catalogMaxAge is how long clients may cache the test listing, in seconds.
const catalogMaxAge = 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Test    *handler.TestHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background middleware goroutines.
func SetupRouter(ctx context.Context, handlers *Handlers, cfg *config.Config, log zerolog.Logger) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log, "/health"))

	// XLSX transcripts are zip archives already.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.Skipper = func(c *gin.Context) bool {
		return c.Query("format") == "xlsx"
	}
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Session creation loads payloads, so it is limited per IP.
	sessionLimiter := middleware.NewRateLimiter(ctx, cfg.SessionRateLimit, time.Minute)

	// ─── 1. Tests ──────────────────────────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.GET("/tests", middleware.CacheControl(catalogMaxAge), handlers.Test.ListTests)
		api.GET("/tests/:test_id/paper", handlers.Test.GetPaper)
		api.POST("/tests/:test_id/sessions", sessionLimiter.Middleware(), handlers.Test.CreateSession)
		api.GET("/tests/:test_id/results", middleware.NoStore(), handlers.Test.ListResults)

		api.GET("/system/stats", middleware.NoStore(), handlers.System.Stats)
	}

	// ─── 2. Sessions ───────────────────────────────────────────────────
	sessions := router.Group("/api/v1/sessions/:session_id")
	sessions.Use(middleware.NoStore())
	{
		sessions.GET("", handlers.Session.GetSession)
		sessions.POST("/navigate", handlers.Session.Navigate)
		sessions.POST("/answers", handlers.Session.SelectAnswer)
		sessions.POST("/review", handlers.Session.ToggleReview)
		sessions.PUT("/language", handlers.Session.SetLanguage)
		sessions.POST("/submit", handlers.Session.Submit)
		sessions.GET("/transcript", handlers.Session.Transcript)
	}

	// ─── 3. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
