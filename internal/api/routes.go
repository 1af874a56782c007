package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/geocoding"
	"woodgate/tracker/internal/storage"
)

// SetupRouter builds the gin engine with every route mounted and returns
// it along with the handler, whose Telegram service the scheduler shares.
func SetupRouter(store *storage.Store, cfg *config.Config, geocoder *geocoding.Geocoder, logger *logrus.Logger) (*gin.Engine, *Handler) {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	handler := NewHandler(store, cfg, geocoder, logger)

	api := router.Group("/api")
	{
		api.GET("/status", handler.GetStatus)
		api.GET("/properties", handler.GetProperties)
		api.GET("/report", handler.GetReport)
		api.GET("/sales", handler.GetSales)
		api.POST("/sales", handler.CreateSale)
		api.GET("/schedule", handler.GetSchedule)
		api.GET("/stale", handler.GetStaleAlerts)
		api.GET("/telegram/config", handler.GetTelegramConfig)
		api.POST("/telegram/config", handler.UpdateTelegramConfig)
	}

	SetupPropertyRoutes(router, store, geocoder, handler.logger)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router, handler
}
