package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apparelworks/demandplan/internal/api"
	"github.com/apparelworks/demandplan/internal/cache"
	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/datasource"
	"github.com/apparelworks/demandplan/internal/forecast"
	"github.com/apparelworks/demandplan/internal/service"
	"github.com/apparelworks/demandplan/internal/storage"
	"github.com/apparelworks/demandplan/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableFileOutput(cfg.App.LogFile)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cfg.Planning.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("invalid planning configuration")
	}

	src, writer, err := buildDataSource(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to initialize data source")
	}

	planCache, err := cache.NewPlanCache(cfg.Cache)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	modelStore, err := buildModelStore(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to initialize model store")
	}

	planningService := service.NewPlanningService(src, planCache, cfg.Planning)
	forecastService := service.NewForecastService(src, writer, modelStore, planningService, cfg.Planning)

	router := api.NewRouter(&api.Services{
		Planning: planningService,
		Forecast: forecastService,
	}, cfg.Server.AllowedOrigins)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}

// buildDataSource selects the configured backing store. The CSV source cannot
// persist batches, so its writer is nil.
func buildDataSource(cfg *config.Config) (datasource.DataSource, datasource.BatchWriter, error) {
	if cfg.App.DataSource == "postgres" {
		db, err := datasource.NewDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg := datasource.NewPostgresSource(db)
		return pg, pg, nil
	}
	return datasource.NewCSVSource(cfg.App.DataDir, cfg.App.LoadWorkers), nil, nil
}

// buildModelStore prefers the S3-compatible store when a bucket is configured
// and falls back to the filesystem under the data directory.
func buildModelStore(cfg *config.Config) (forecast.ModelStore, error) {
	if cfg.Models.Bucket != "" {
		backend, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:  cfg.Models.Endpoint,
			AccessKey: cfg.Models.AccessKey,
			SecretKey: cfg.Models.SecretKey,
			Bucket:    cfg.Models.Bucket,
			UseSSL:    cfg.Models.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return forecast.NewObjectModelStore(backend, "models"), nil
	}
	return forecast.NewFileModelStore(cfg.App.DataDir + "/models")
}
