// internal/config/planning.go
package config

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// PlanningConfig is the immutable settings record threaded through every core
// computation. It is read once per computation; derived caches are stamped with
// Hash() and invalidated on mismatch.
type PlanningConfig struct {
	LeadTimeMonths           float64
	ForecastTimeMonths       int
	SyncForecastWithLeadTime bool

	CVThresholds CVThresholds
	ZScores      ZScores

	NewProductThresholdMonths int
	InSeasonThreshold         float64
	WeeklyLookbackDays        int

	Optimizer OptimizerConfig
	Priority  PriorityConfig
}

type CVThresholds struct {
	Basic    float64
	Seasonal float64
}

type ZScores struct {
	Basic       float64
	Regular     float64
	SeasonalIn  float64
	SeasonalOut float64
	New         float64
}

type OptimizerConfig struct {
	AlgorithmMode      string // "search" or "greedy"
	MinOrderPerPattern int
	PriorityWeight     float64
}

type PriorityConfig struct {
	Weights            PriorityWeights
	TypeMultipliers    TypeMultipliers
	ZeroStockPenalty   float64
	BelowROPMaxPenalty float64
	DemandCap          float64
}

type PriorityWeights struct {
	StockoutRisk   float64
	RevenueImpact  float64
	DemandForecast float64
}

type TypeMultipliers struct {
	New      float64
	Seasonal float64
	Regular  float64
	Basic    float64
}

// DefaultPlanning returns the planning defaults used when no overrides are set.
func DefaultPlanning() PlanningConfig {
	return PlanningConfig{
		LeadTimeMonths:           2,
		ForecastTimeMonths:       3,
		SyncForecastWithLeadTime: false,
		CVThresholds:             CVThresholds{Basic: 0.6, Seasonal: 1.0},
		ZScores: ZScores{
			Basic:       2.5,
			Regular:     1.65,
			SeasonalIn:  1.85,
			SeasonalOut: 1.5,
			New:         1.65,
		},
		NewProductThresholdMonths: 12,
		InSeasonThreshold:         1.2,
		WeeklyLookbackDays:        90,
		Optimizer: OptimizerConfig{
			AlgorithmMode:      "search",
			MinOrderPerPattern: 5,
			PriorityWeight:     5,
		},
		Priority: PriorityConfig{
			Weights:            PriorityWeights{StockoutRisk: 0.5, RevenueImpact: 0.3, DemandForecast: 0.2},
			TypeMultipliers:    TypeMultipliers{New: 1.2, Seasonal: 1.3, Regular: 1.0, Basic: 0.9},
			ZeroStockPenalty:   100,
			BelowROPMaxPenalty: 80,
			DemandCap:          100,
		},
	}
}

// LoadPlanning reads planning settings from the environment on top of defaults.
func LoadPlanning() PlanningConfig {
	p := DefaultPlanning()

	viper.SetDefault("PLAN_LEAD_TIME_MONTHS", p.LeadTimeMonths)
	viper.SetDefault("PLAN_FORECAST_TIME_MONTHS", p.ForecastTimeMonths)
	viper.SetDefault("PLAN_SYNC_FORECAST_WITH_LEAD_TIME", p.SyncForecastWithLeadTime)
	viper.SetDefault("PLAN_CV_BASIC", p.CVThresholds.Basic)
	viper.SetDefault("PLAN_CV_SEASONAL", p.CVThresholds.Seasonal)
	viper.SetDefault("PLAN_Z_BASIC", p.ZScores.Basic)
	viper.SetDefault("PLAN_Z_REGULAR", p.ZScores.Regular)
	viper.SetDefault("PLAN_Z_SEASONAL_IN", p.ZScores.SeasonalIn)
	viper.SetDefault("PLAN_Z_SEASONAL_OUT", p.ZScores.SeasonalOut)
	viper.SetDefault("PLAN_Z_NEW", p.ZScores.New)
	viper.SetDefault("PLAN_NEW_THRESHOLD_MONTHS", p.NewProductThresholdMonths)
	viper.SetDefault("PLAN_IN_SEASON_THRESHOLD", p.InSeasonThreshold)
	viper.SetDefault("PLAN_WEEKLY_LOOKBACK_DAYS", p.WeeklyLookbackDays)
	viper.SetDefault("PLAN_OPTIMIZER_MODE", p.Optimizer.AlgorithmMode)
	viper.SetDefault("PLAN_OPTIMIZER_MIN_ORDER", p.Optimizer.MinOrderPerPattern)
	viper.SetDefault("PLAN_OPTIMIZER_PRIORITY_WEIGHT", p.Optimizer.PriorityWeight)
	viper.SetDefault("PLAN_WEIGHT_STOCKOUT_RISK", p.Priority.Weights.StockoutRisk)
	viper.SetDefault("PLAN_WEIGHT_REVENUE_IMPACT", p.Priority.Weights.RevenueImpact)
	viper.SetDefault("PLAN_WEIGHT_DEMAND_FORECAST", p.Priority.Weights.DemandForecast)
	viper.SetDefault("PLAN_MULTIPLIER_NEW", p.Priority.TypeMultipliers.New)
	viper.SetDefault("PLAN_MULTIPLIER_SEASONAL", p.Priority.TypeMultipliers.Seasonal)
	viper.SetDefault("PLAN_MULTIPLIER_REGULAR", p.Priority.TypeMultipliers.Regular)
	viper.SetDefault("PLAN_MULTIPLIER_BASIC", p.Priority.TypeMultipliers.Basic)
	viper.SetDefault("PLAN_ZERO_STOCK_PENALTY", p.Priority.ZeroStockPenalty)
	viper.SetDefault("PLAN_BELOW_ROP_MAX_PENALTY", p.Priority.BelowROPMaxPenalty)
	viper.SetDefault("PLAN_DEMAND_CAP", p.Priority.DemandCap)

	p.LeadTimeMonths = viper.GetFloat64("PLAN_LEAD_TIME_MONTHS")
	p.ForecastTimeMonths = viper.GetInt("PLAN_FORECAST_TIME_MONTHS")
	p.SyncForecastWithLeadTime = viper.GetBool("PLAN_SYNC_FORECAST_WITH_LEAD_TIME")
	p.CVThresholds.Basic = viper.GetFloat64("PLAN_CV_BASIC")
	p.CVThresholds.Seasonal = viper.GetFloat64("PLAN_CV_SEASONAL")
	p.ZScores.Basic = viper.GetFloat64("PLAN_Z_BASIC")
	p.ZScores.Regular = viper.GetFloat64("PLAN_Z_REGULAR")
	p.ZScores.SeasonalIn = viper.GetFloat64("PLAN_Z_SEASONAL_IN")
	p.ZScores.SeasonalOut = viper.GetFloat64("PLAN_Z_SEASONAL_OUT")
	p.ZScores.New = viper.GetFloat64("PLAN_Z_NEW")
	p.NewProductThresholdMonths = viper.GetInt("PLAN_NEW_THRESHOLD_MONTHS")
	p.InSeasonThreshold = viper.GetFloat64("PLAN_IN_SEASON_THRESHOLD")
	p.WeeklyLookbackDays = viper.GetInt("PLAN_WEEKLY_LOOKBACK_DAYS")
	p.Optimizer.AlgorithmMode = viper.GetString("PLAN_OPTIMIZER_MODE")
	p.Optimizer.MinOrderPerPattern = viper.GetInt("PLAN_OPTIMIZER_MIN_ORDER")
	p.Optimizer.PriorityWeight = viper.GetFloat64("PLAN_OPTIMIZER_PRIORITY_WEIGHT")
	p.Priority.Weights.StockoutRisk = viper.GetFloat64("PLAN_WEIGHT_STOCKOUT_RISK")
	p.Priority.Weights.RevenueImpact = viper.GetFloat64("PLAN_WEIGHT_REVENUE_IMPACT")
	p.Priority.Weights.DemandForecast = viper.GetFloat64("PLAN_WEIGHT_DEMAND_FORECAST")
	p.Priority.TypeMultipliers.New = viper.GetFloat64("PLAN_MULTIPLIER_NEW")
	p.Priority.TypeMultipliers.Seasonal = viper.GetFloat64("PLAN_MULTIPLIER_SEASONAL")
	p.Priority.TypeMultipliers.Regular = viper.GetFloat64("PLAN_MULTIPLIER_REGULAR")
	p.Priority.TypeMultipliers.Basic = viper.GetFloat64("PLAN_MULTIPLIER_BASIC")
	p.Priority.ZeroStockPenalty = viper.GetFloat64("PLAN_ZERO_STOCK_PENALTY")
	p.Priority.BelowROPMaxPenalty = viper.GetFloat64("PLAN_BELOW_ROP_MAX_PENALTY")
	p.Priority.DemandCap = viper.GetFloat64("PLAN_DEMAND_CAP")

	return p
}

// Validate checks settings consistency at the boundary.
func (p PlanningConfig) Validate() error {
	sum := p.Priority.Weights.StockoutRisk + p.Priority.Weights.RevenueImpact + p.Priority.Weights.DemandForecast
	if sum <= 0 {
		return &configError{key: "priority_weights", reason: "weights must sum to a positive value"}
	}
	if math.Abs(sum-1) > 0.05 {
		return &configError{key: "priority_weights", reason: fmt.Sprintf("weights sum to %.3f, expected ~1", sum)}
	}
	if p.LeadTimeMonths <= 0 {
		return &configError{key: "lead_time_months", reason: "must be positive"}
	}
	if p.Optimizer.AlgorithmMode != "search" && p.Optimizer.AlgorithmMode != "greedy" {
		return &configError{key: "optimizer.algorithm_mode", reason: "must be search or greedy"}
	}
	if p.Optimizer.MinOrderPerPattern < 0 {
		return &configError{key: "optimizer.min_order_per_pattern", reason: "must be >= 0"}
	}
	return nil
}

type configError struct {
	key    string
	reason string
}

func (e *configError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.key, e.reason)
}

// Hash returns the MD5 digest of the planning settings, computed over the
// sorted key=value list so that field order never changes the stamp.
func (p PlanningConfig) Hash() string {
	kv := map[string]string{
		"lead_time_months":             fmt.Sprintf("%g", p.LeadTimeMonths),
		"forecast_time_months":         fmt.Sprintf("%d", p.ForecastTimeMonths),
		"sync_forecast_with_lead_time": fmt.Sprintf("%t", p.SyncForecastWithLeadTime),
		"cv_basic":                     fmt.Sprintf("%g", p.CVThresholds.Basic),
		"cv_seasonal":                  fmt.Sprintf("%g", p.CVThresholds.Seasonal),
		"z_basic":                      fmt.Sprintf("%g", p.ZScores.Basic),
		"z_regular":                    fmt.Sprintf("%g", p.ZScores.Regular),
		"z_seasonal_in":                fmt.Sprintf("%g", p.ZScores.SeasonalIn),
		"z_seasonal_out":               fmt.Sprintf("%g", p.ZScores.SeasonalOut),
		"z_new":                        fmt.Sprintf("%g", p.ZScores.New),
		"new_threshold_months":         fmt.Sprintf("%d", p.NewProductThresholdMonths),
		"in_season_threshold":          fmt.Sprintf("%g", p.InSeasonThreshold),
		"weekly_lookback_days":         fmt.Sprintf("%d", p.WeeklyLookbackDays),
		"optimizer_mode":               p.Optimizer.AlgorithmMode,
		"optimizer_min_order":          fmt.Sprintf("%d", p.Optimizer.MinOrderPerPattern),
		"optimizer_priority_weight":    fmt.Sprintf("%g", p.Optimizer.PriorityWeight),
		"w_stockout_risk":              fmt.Sprintf("%g", p.Priority.Weights.StockoutRisk),
		"w_revenue_impact":             fmt.Sprintf("%g", p.Priority.Weights.RevenueImpact),
		"w_demand_forecast":            fmt.Sprintf("%g", p.Priority.Weights.DemandForecast),
		"mult_new":                     fmt.Sprintf("%g", p.Priority.TypeMultipliers.New),
		"mult_seasonal":                fmt.Sprintf("%g", p.Priority.TypeMultipliers.Seasonal),
		"mult_regular":                 fmt.Sprintf("%g", p.Priority.TypeMultipliers.Regular),
		"mult_basic":                   fmt.Sprintf("%g", p.Priority.TypeMultipliers.Basic),
		"zero_stock_penalty":           fmt.Sprintf("%g", p.Priority.ZeroStockPenalty),
		"below_rop_max_penalty":        fmt.Sprintf("%g", p.Priority.BelowROPMaxPenalty),
		"demand_cap":                   fmt.Sprintf("%g", p.Priority.DemandCap),
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kv[k])
		b.WriteByte(';')
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
