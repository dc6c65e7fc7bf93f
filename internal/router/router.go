package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/lifesaver/backend/config"
	"github.com/lifesaver/backend/internal/handler"
)

func Setup(
	cfg *config.Config,
	sessionHandler *handler.SessionHandler,
	protocolHandler *handler.ProtocolHandler,
	evalHandler *handler.EvalHandler,
	configHandler *handler.ConfigHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.BestCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.GET("/:id/events", sessionHandler.GetEvents)
			sessions.POST("/:id/triage", sessionHandler.Triage)
			sessions.POST("/:id/advance", sessionHandler.Advance)
			sessions.POST("/:id/report", sessionHandler.Report) // 同步生成报告
			sessions.GET("/:id/handoff", sessionHandler.GetHandoff)
			sessions.POST("/:id/handoff/retry", sessionHandler.RetryHandoff)
		}

		protocols := api.Group("/protocols")
		{
			protocols.GET("", protocolHandler.List)
			protocols.GET("/:key", protocolHandler.Get)
		}

		evalGroup := api.Group("/eval")
		{
			evalGroup.GET("/scenarios", evalHandler.Scenarios)
			evalGroup.POST("/run", evalHandler.Run)
		}

		api.GET("/config", configHandler.Get)
		api.GET("/dispatch/status", configHandler.DispatchStatus)
	}

	return r
}
