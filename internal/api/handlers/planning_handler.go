package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/priority"
	"github.com/apparelworks/demandplan/internal/service"
)

type PlanningHandler struct {
	planning *service.PlanningService
}

func NewPlanningHandler(planning *service.PlanningService) *PlanningHandler {
	return &PlanningHandler{planning: planning}
}

func entityTypeParam(c *gin.Context) (domain.EntityType, bool) {
	raw := c.DefaultQuery("entity_type", string(domain.EntitySKU))
	switch domain.EntityType(raw) {
	case domain.EntitySKU:
		return domain.EntitySKU, true
	case domain.EntityModel:
		return domain.EntityModel, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "entity_type must be sku or model"})
	return "", false
}

func boolParam(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func csvParam(c *gin.Context, name string) []string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GetSummaries returns the classified SKU statistics with safety stock and
// reorder points.
func (h *PlanningHandler) GetSummaries(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}

	summaries, err := h.planning.GetSkuStatistics(c.Request.Context(), entityType, boolParam(c, "force_recompute"))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute sku statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute sku statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(summaries), "summaries": summaries})
}

func (h *PlanningHandler) GetSeasonalIndices(c *gin.Context) {
	indices, err := h.planning.GetSeasonalIndices(c.Request.Context(), boolParam(c, "force_recompute"))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute seasonal indices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute seasonal indices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(indices), "indices": indices})
}

func (h *PlanningHandler) GetMonthlyAggregations(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}

	buckets, err := h.planning.GetMonthlyAggregations(c.Request.Context(), entityType, boolParam(c, "force_recompute"))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute monthly aggregations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute monthly aggregations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(buckets), "buckets": buckets})
}

// GetPriorities returns the scored reorder priorities, either per SKU or
// rolled up to (model, color).
func (h *PlanningHandler) GetPriorities(c *gin.Context) {
	view := c.DefaultQuery("view", service.ViewSKU)
	topN := 0
	if raw := c.Query("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_n must be a non-negative integer"})
			return
		}
		topN = n
	}

	filter := priority.Filter{
		IncludeFacilities: csvParam(c, "include_facilities"),
		ExcludeFacilities: csvParam(c, "exclude_facilities"),
	}

	rows, err := h.planning.GetOrderPriorities(c.Request.Context(), view, topN, filter, boolParam(c, "force_recompute"))
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		log.Error().Err(err).Msg("failed to compute order priorities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute order priorities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "priorities": rows})
}

type optimizeRequest struct {
	PatternSetID   string         `json:"pattern_set_id" binding:"required"`
	Model          string         `json:"model"`
	LookbackMonths int            `json:"lookback_months"`
	Demand         map[string]int `json:"demand"`
	SalesCounts    map[string]int `json:"sales_counts"`
}

// Optimize runs the pattern allocator. Demand can be given explicitly or
// derived from a model's recent sales.
func (h *PlanningHandler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	demand, counts := req.Demand, req.SalesCounts
	if len(demand) == 0 {
		if req.Model == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "either demand or model must be provided"})
			return
		}
		lookback := req.LookbackMonths
		if lookback <= 0 {
			lookback = 12
		}
		since := time.Now().UTC().AddDate(0, -lookback, 0)

		var err error
		demand, counts, err = h.planning.SizeDemand(c.Request.Context(), req.Model, since)
		if err != nil {
			log.Error().Err(err).Str("model", req.Model).Msg("failed to derive size demand")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to derive size demand"})
			return
		}
	}

	result, err := h.planning.OptimizePatterns(c.Request.Context(), req.PatternSetID, demand, counts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
				return
			}
			log.Error().Err(err).Msg("pattern optimization failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "pattern optimization failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"demand": demand, "result": result})
}

func (h *PlanningHandler) InvalidateCaches(c *gin.Context) {
	if err := h.planning.InvalidateCaches(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("cache invalidation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache invalidation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "caches invalidated"})
}
