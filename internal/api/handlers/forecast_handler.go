package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/apparelworks/demandplan/internal/accuracy"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/forecast"
	"github.com/apparelworks/demandplan/internal/service"
)

type ForecastHandler struct {
	forecasts *service.ForecastService
}

func NewForecastHandler(forecasts *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{forecasts: forecasts}
}

func forecastOptions(c *gin.Context) (forecast.Options, bool) {
	opts := forecast.Options{
		UseML:  boolParam(c, "use_ml"),
		Method: forecast.Method(c.Query("method")),
	}
	if raw := c.Query("horizon"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "horizon must be a positive integer"})
			return opts, false
		}
		opts.Horizon = h
	}
	if opts.Method != "" && !opts.Method.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown forecast method"})
		return opts, false
	}
	return opts, true
}

// Generate runs a forecast batch for every entity of the requested type.
func (h *ForecastHandler) Generate(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	opts, ok := forecastOptions(c)
	if !ok {
		return
	}

	batch, err := h.forecasts.GenerateForecasts(c.Request.Context(), entityType, opts)
	if err != nil {
		log.Error().Err(err).Msg("forecast batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast batch failed"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Train fits and persists ML models for every entity with enough history.
func (h *ForecastHandler) Train(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	opts, ok := forecastOptions(c)
	if !ok {
		return
	}

	stats, err := h.forecasts.TrainModels(c.Request.Context(), entityType, opts)
	if err != nil {
		log.Error().Err(err).Msg("model training failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model training failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *ForecastHandler) GetModels(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}

	metas, err := h.forecasts.LoadModelMetadata(c.Request.Context(), entityType)
	if err != nil {
		log.Error().Err(err).Msg("failed to list trained models")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trained models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(metas), "models": metas})
}

// GetAccuracy evaluates the matching external forecast generation over a day
// window.
func (h *ForecastHandler) GetAccuracy(c *gin.Context) {
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must not precede start"})
		return
	}

	lookback := 1
	if raw := c.Query("lookback_months"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback_months must be a positive integer"})
			return
		}
		lookback = n
	}

	metrics, byType, err := h.forecasts.EvaluateAccuracy(c.Request.Context(), accuracy.Window{Start: start, End: end}, lookback)
	if err != nil {
		if _, ok := err.(*domain.InsufficientDataError); ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no forecast generation matches the look-back window"})
			return
		}
		log.Error().Err(err).Msg("accuracy evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "accuracy evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": metrics, "by_type": byType})
}

// Compare generates a fresh internal batch and scores it head-to-head with
// the external forecast source against realized sales.
func (h *ForecastHandler) Compare(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	opts, ok := forecastOptions(c)
	if !ok {
		return
	}

	batch, err := h.forecasts.GenerateForecasts(c.Request.Context(), entityType, opts)
	if err != nil {
		log.Error().Err(err).Msg("forecast batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast batch failed"})
		return
	}

	entities, byType, err := h.forecasts.CompareForecasts(c.Request.Context(), batch)
	if err != nil {
		log.Error().Err(err).Msg("forecast comparison failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast comparison failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": batch.BatchID, "entities": entities, "by_type": byType})
}
