package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/apparelworks/demandplan/internal/api/handlers"
	"github.com/apparelworks/demandplan/internal/api/middleware"
	"github.com/apparelworks/demandplan/internal/service"
)

type Services struct {
	Planning *service.PlanningService
	Forecast *service.ForecastService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.Planning != nil {
			planningHandler := handlers.NewPlanningHandler(services.Planning)
			planningGroup := apiGroup.Group("/planning")
			{
				planningGroup.GET("/summaries", planningHandler.GetSummaries)
				planningGroup.GET("/seasonal", planningHandler.GetSeasonalIndices)
				planningGroup.GET("/monthly", planningHandler.GetMonthlyAggregations)
				planningGroup.GET("/priorities", planningHandler.GetPriorities)
				planningGroup.POST("/optimize", planningHandler.Optimize)
				planningGroup.POST("/cache/invalidate", planningHandler.InvalidateCaches)
			}
		}

		if services.Forecast != nil {
			forecastHandler := handlers.NewForecastHandler(services.Forecast)
			forecastGroup := apiGroup.Group("/forecasts")
			{
				forecastGroup.POST("/generate", forecastHandler.Generate)
				forecastGroup.POST("/train", forecastHandler.Train)
				forecastGroup.GET("/models", forecastHandler.GetModels)
				forecastGroup.GET("/accuracy", forecastHandler.GetAccuracy)
				forecastGroup.POST("/compare", forecastHandler.Compare)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
