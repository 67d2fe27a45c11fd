package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/apparelworks/demandplan/internal/cache"
	"github.com/apparelworks/demandplan/internal/classify"
	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/datasource"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/optimizer"
	"github.com/apparelworks/demandplan/internal/priority"
	"github.com/apparelworks/demandplan/internal/safety"
	"github.com/apparelworks/demandplan/internal/season"
	"github.com/apparelworks/demandplan/internal/sku"
	"github.com/apparelworks/demandplan/internal/timeseries"
)

// Priority views served by GetOrderPriorities.
const (
	ViewSKU        = "sku"
	ViewModelColor = "model_color"
)

// PlanningService orchestrates the derived planning frames: SKU summaries,
// seasonal indices, monthly aggregations, order priorities and pattern runs.
// All business math lives in the analytic packages; this layer only loads,
// composes and caches. Cached frames are stamped with the settings hash, so a
// configuration change recomputes without an explicit flush.
type PlanningService struct {
	src   datasource.DataSource
	cache cache.PlanCache
	cfg   config.PlanningConfig
	hash  string

	classifier *classify.Classifier
	detector   *season.Detector
	calculator *safety.Calculator
	scorer     *priority.Scorer
	optimizer  *optimizer.Optimizer
}

func NewPlanningService(src datasource.DataSource, planCache cache.PlanCache, cfg config.PlanningConfig) *PlanningService {
	return &PlanningService{
		src:        src,
		cache:      planCache,
		cfg:        cfg,
		hash:       cfg.Hash(),
		classifier: classify.New(cfg),
		detector:   season.New(cfg.InSeasonThreshold),
		calculator: safety.NewCalculator(cfg),
		scorer:     priority.NewScorer(cfg.Priority),
		optimizer:  optimizer.New(cfg.Optimizer),
	}
}

// GetSkuStatistics returns the classified summaries with safety stock and
// reorder points applied. forceRecompute bypasses the cache.
func (s *PlanningService) GetSkuStatistics(ctx context.Context, entityType domain.EntityType, forceRecompute bool) ([]domain.SkuSummary, error) {
	if !forceRecompute {
		if cached, ok, err := s.cache.GetSummaries(ctx, entityType, s.hash); err != nil {
			log.Warn().Err(err).Msg("summary cache read failed, recomputing")
		} else if ok {
			return cached, nil
		}
	}

	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{})
	if err != nil {
		return nil, err
	}

	summaries, err := timeseries.BuildSummaries(txs, entityType)
	if err != nil {
		return nil, err
	}
	summaries = s.classifier.ClassifyAll(summaries)

	indices, err := s.GetSeasonalIndices(ctx, forceRecompute)
	if err != nil {
		return nil, err
	}
	summaries = s.calculator.ApplyAll(summaries, season.BuildIndex(indices))

	if err := s.cache.SetSummaries(ctx, entityType, s.hash, summaries); err != nil {
		log.Warn().Err(err).Msg("summary cache write failed")
	}
	return summaries, nil
}

// GetSeasonalIndices computes the per-(sku, month) seasonality rows over the
// detector's look-back window.
func (s *PlanningService) GetSeasonalIndices(ctx context.Context, forceRecompute bool) ([]domain.SeasonalIndex, error) {
	if !forceRecompute {
		if cached, ok, err := s.cache.GetSeasonalIndices(ctx, s.hash); err != nil {
			log.Warn().Err(err).Msg("seasonal cache read failed, recomputing")
		} else if ok {
			return cached, nil
		}
	}

	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{})
	if err != nil {
		return nil, err
	}

	indices := s.detector.Detect(txs)
	if err := s.cache.SetSeasonalIndices(ctx, s.hash, indices); err != nil {
		log.Warn().Err(err).Msg("seasonal cache write failed")
	}
	return indices, nil
}

// GetMonthlyAggregations returns the (entity, year-month) sales buckets.
func (s *PlanningService) GetMonthlyAggregations(ctx context.Context, entityType domain.EntityType, forceRecompute bool) ([]domain.MonthlyBucket, error) {
	if !forceRecompute {
		if cached, ok, err := s.cache.GetMonthly(ctx, entityType, s.hash); err != nil {
			log.Warn().Err(err).Msg("monthly cache read failed, recomputing")
		} else if ok {
			return cached, nil
		}
	}

	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{})
	if err != nil {
		return nil, err
	}

	buckets := timeseries.AggregateMonthly(txs, entityType)
	if err := s.cache.SetMonthly(ctx, entityType, s.hash, buckets); err != nil {
		log.Warn().Err(err).Msg("monthly cache write failed")
	}
	return buckets, nil
}

// GetOrderPriorities scores the live SKU population for reordering. view is
// ViewSKU or ViewModelColor; topN > 0 trims the sorted result.
func (s *PlanningService) GetOrderPriorities(ctx context.Context, view string, topN int, filter priority.Filter, forceRecompute bool) ([]domain.PriorityRow, error) {
	if view != ViewSKU && view != ViewModelColor {
		return nil, &domain.ValidationError{Field: "view", Reason: fmt.Sprintf("unknown priority view %q", view)}
	}

	// The facility filter changes row membership, so filtered requests skip
	// the shared cache entry.
	cacheable := len(filter.IncludeFacilities) == 0 && len(filter.ExcludeFacilities) == 0
	if !forceRecompute && cacheable {
		if cached, ok, err := s.cache.GetPriorities(ctx, view, s.hash); err != nil {
			log.Warn().Err(err).Msg("priority cache read failed, recomputing")
		} else if ok {
			return trimTop(cached, topN), nil
		}
	}

	summaries, err := s.GetSkuStatistics(ctx, domain.EntitySKU, forceRecompute)
	if err != nil {
		return nil, err
	}
	stock, err := s.src.LoadStockData(ctx, nil)
	if err != nil {
		return nil, err
	}

	inputs := s.buildPriorityInputs(summaries, stock)
	rows := s.scorer.ScoreSKUs(inputs, filter)
	if view == ViewModelColor {
		rows = s.scorer.RollupModelColor(rows)
	}

	if cacheable {
		if err := s.cache.SetPriorities(ctx, view, s.hash, rows); err != nil {
			log.Warn().Err(err).Msg("priority cache write failed")
		}
	}
	return trimTop(rows, topN), nil
}

// buildPriorityInputs joins summaries with the latest stock snapshot per SKU.
// The lead-time forecast is the average monthly demand projected over the
// configured lead time.
func (s *PlanningService) buildPriorityInputs(summaries []domain.SkuSummary, stock []domain.StockSnapshot) []priority.SKUInput {
	stockBySKU := make(map[string]domain.StockSnapshot, len(stock))
	for _, snap := range stock {
		stockBySKU[snap.SKU] = snap
	}

	inputs := make([]priority.SKUInput, 0, len(summaries))
	for _, sum := range summaries {
		snap, hasStock := stockBySKU[sum.EntityID]
		if hasStock && !snap.IsActive {
			continue
		}

		in := priority.SKUInput{
			SKU:              sum.EntityID,
			ReorderPoint:     sum.ReorderPoint,
			AvgMonthlySales:  sum.AvgMonthlySales,
			ForecastLeadTime: sum.AvgMonthlySales * s.cfg.LeadTimeMonths,
			Type:             sum.Type,
		}
		if sum.StdDev != nil {
			in.StdDev = *sum.StdDev
		}
		if hasStock {
			in.Stock = snap.AvailableStock
			in.UnitPrice = snap.NetPrice
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// OptimizePatterns resolves the named pattern set, derives size-level demand
// for the model from the priority frame, and runs the allocator.
func (s *PlanningService) OptimizePatterns(ctx context.Context, patternSetID string, demand, salesCounts map[string]int) (optimizer.Result, error) {
	sets, err := s.src.LoadPatternSets(ctx)
	if err != nil {
		return optimizer.Result{}, err
	}

	for _, ps := range sets {
		if ps.ID == patternSetID {
			return s.optimizer.Solve(optimizer.Input{
				Demand:      demand,
				SalesCounts: salesCounts,
				Patterns:    ps,
			})
		}
	}
	return optimizer.Result{}, fmt.Errorf("pattern set %s: %w", patternSetID, domain.ErrNotFound)
}

// SizeDemand derives per-size demand and sales counts for one model over the
// recent window, resolving size aliases at the boundary.
func (s *PlanningService) SizeDemand(ctx context.Context, model string, since time.Time) (map[string]int, map[string]int, error) {
	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{Start: &since})
	if err != nil {
		return nil, nil, err
	}
	aliases, err := s.src.LoadSizeAliases(ctx)
	if err != nil {
		return nil, nil, err
	}

	demand := make(map[string]int)
	counts := make(map[string]int)
	for _, tx := range txs {
		parts := sku.Decompose(tx.SKU)
		if parts.Model != model || parts.Size == "" {
			continue
		}
		size := aliases.Resolve(parts.Size)
		demand[size] += tx.Quantity
		counts[size]++
	}
	return demand, counts, nil
}

// InvalidateCaches drops every derived frame, typically after a data reload.
func (s *PlanningService) InvalidateCaches(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

// SettingsHash exposes the stamp used on cached frames.
func (s *PlanningService) SettingsHash() string { return s.hash }

func trimTop(rows []domain.PriorityRow, topN int) []domain.PriorityRow {
	if topN <= 0 || topN >= len(rows) {
		return rows
	}
	out := make([]domain.PriorityRow, topN)
	copy(out, rows[:topN])
	return out
}
