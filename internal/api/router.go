package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP handler for c.
func NewRouter(c *Container) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(corsMiddleware(c.Config.Security.CORSOrigins))
	router.Use(loggingMiddleware(c.Logger))
	router.Use(securityMiddleware())
	router.Use(containerMiddleware(c))

	router.GET("/health", healthCheckHandler)
	router.GET("/ready", readinessHandler)
	router.GET("/version", versionHandler)
	if c.Metrics != nil && c.Config.Metrics.Enabled {
		router.GET(c.Config.Metrics.Path, gin.WrapH(c.Metrics))
	}

	admin := requireAdmin(c.Config.Security)
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(c.Config.Security))
	{
		sniper := v1.Group("/sniper")
		sniper.POST("/start", startSniperHandler)
		sniper.POST("/stop", stopSniperHandler)
		sniper.GET("/config", getSniperConfigHandler)
		sniper.PUT("/config", putSniperConfigHandler)
		sniper.GET("/logs", sniperLogsHandler)
		sniper.GET("/status", sniperStatusHandler)

		copyTrading := v1.Group("/copy-trading")
		copyTrading.GET("/wallets", leaderWalletsHandler)
		copyTrading.POST("/follow", followHandler)
		copyTrading.DELETE("/follow/:leader", unfollowHandler)
		copyTrading.GET("/following", followingHandler)
		copyTrading.GET("/trades", copyTradesHandler)

		safety := v1.Group("/safety")
		safety.GET("/bad-actors", listBadActorsHandler)
		safety.POST("/bad-actors", admin, addBadActorHandler)
		safety.DELETE("/bad-actors/:wallet", admin, removeBadActorHandler)
		safety.GET("/tokens/:token", safetyReportHandler)

		alerts := v1.Group("/alerts")
		alerts.GET("", listAlertsHandler)
		alerts.POST("/read", markAlertsReadHandler)
		alerts.GET("/preferences", getPreferencesHandler)
		alerts.PUT("/preferences", putPreferencesHandler)

		v1.GET("/ws", websocketHandler)
	}

	return router
}
