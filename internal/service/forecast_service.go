package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/apparelworks/demandplan/internal/accuracy"
	"github.com/apparelworks/demandplan/internal/compare"
	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/datasource"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/forecast"
	"github.com/apparelworks/demandplan/internal/sku"
	"github.com/apparelworks/demandplan/internal/timeseries"
)

// ForecastService orchestrates batch forecasting, model training and the
// evaluation operations built on top of the forecast engine.
type ForecastService struct {
	src      datasource.DataSource
	writer   datasource.BatchWriter
	store    forecast.ModelStore
	planning *PlanningService
	engine   *forecast.Engine
	cfg      config.PlanningConfig
}

// NewForecastService wires the forecast engine to its collaborators. writer
// and store may be nil when persistence is not configured.
func NewForecastService(
	src datasource.DataSource,
	writer datasource.BatchWriter,
	store forecast.ModelStore,
	planning *PlanningService,
	cfg config.PlanningConfig,
) *ForecastService {
	return &ForecastService{
		src:      src,
		writer:   writer,
		store:    store,
		planning: planning,
		engine:   forecast.NewEngine(),
		cfg:      cfg,
	}
}

// horizon resolves the forecast horizon from configuration; when the sync
// flag is set the horizon follows the lead time.
func (s *ForecastService) horizon() int {
	if s.cfg.SyncForecastWithLeadTime {
		return int(math.Ceil(s.cfg.LeadTimeMonths))
	}
	return s.cfg.ForecastTimeMonths
}

// buildInputs converts the sales history into per-entity forecast inputs,
// enriched with the product type and CV from the summary frame. Entity order
// is deterministic (sorted by id).
func (s *ForecastService) buildInputs(ctx context.Context, entityType domain.EntityType) ([]forecast.Input, error) {
	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{})
	if err != nil {
		return nil, err
	}
	summaries, err := s.planning.GetSkuStatistics(ctx, entityType, false)
	if err != nil {
		return nil, err
	}

	byEntity := make(map[string]domain.SkuSummary, len(summaries))
	for _, sum := range summaries {
		byEntity[sum.EntityID] = sum
	}

	grouped := timeseries.GroupByEntity(timeseries.AggregateMonthly(txs, entityType))
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inputs := make([]forecast.Input, 0, len(ids))
	for _, id := range ids {
		in := forecast.Input{EntityID: id, Series: grouped[id], ProductType: domain.TypeRegular}
		if sum, ok := byEntity[id]; ok {
			in.ProductType = sum.Type
			cv := sum.CV
			in.CV = &cv
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// GenerateForecasts runs a full forecast batch over every entity of the
// requested type and persists the result when a writer is configured.
func (s *ForecastService) GenerateForecasts(ctx context.Context, entityType domain.EntityType, opts forecast.Options) (*domain.ForecastBatch, error) {
	if opts.Horizon <= 0 {
		opts.Horizon = s.horizon()
	}

	inputs, err := s.buildInputs(ctx, entityType)
	if err != nil {
		return nil, err
	}

	batch, err := s.engine.ForecastBatch(ctx, entityType, inputs, opts)
	if err != nil {
		return nil, err
	}

	if s.writer != nil {
		if err := s.writer.SaveForecastBatch(ctx, batch); err != nil {
			return nil, err
		}
	}
	log.Info().
		Str("batch_id", batch.BatchID).
		Str("entity_type", string(entityType)).
		Int("success", batch.Stats.Success).
		Int("failed", batch.Stats.Failed).
		Msg("forecast batch generated")
	return batch, nil
}

// TrainModels trains and persists an ML model per entity with enough history.
// Entities where a statistical baseline wins cross-validation are skipped;
// per-entity failures are collected in the returned stats.
func (s *ForecastService) TrainModels(ctx context.Context, entityType domain.EntityType, opts forecast.Options) (domain.BatchStats, error) {
	stats := domain.BatchStats{MethodsUsed: map[string]int{}}

	inputs, err := s.buildInputs(ctx, entityType)
	if err != nil {
		return stats, err
	}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		_, trained, err := s.forecastOne(in, entityType, opts)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, domain.EntityError{EntityID: in.EntityID, Reason: err.Error()})
			continue
		}
		if trained == nil {
			// Baseline won; nothing to persist.
			continue
		}
		if s.store != nil {
			if err := s.store.Save(ctx, trained); err != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, domain.EntityError{EntityID: in.EntityID, Reason: err.Error()})
				continue
			}
		}
		stats.Success++
		stats.MethodsUsed[trained.Meta.ModelType]++
	}
	return stats, nil
}

func (s *ForecastService) forecastOne(in forecast.Input, entityType domain.EntityType, opts forecast.Options) (domain.EntityForecast, *forecast.TrainedModel, error) {
	if opts.Horizon <= 0 {
		opts.Horizon = s.horizon()
	}
	opts.UseML = true
	return s.engine.ForecastEntity(in, entityType, opts)
}

// LoadModelMetadata lists the persisted model metadata for one entity type.
func (s *ForecastService) LoadModelMetadata(ctx context.Context, entityType domain.EntityType) ([]domain.TrainedModelMeta, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List(ctx, entityType)
}

// EvaluateAccuracy scores the external forecast generation closest to the
// look-back target against realized sales, with stockout-aware masking.
func (s *ForecastService) EvaluateAccuracy(ctx context.Context, window accuracy.Window, lookbackMonths int) ([]domain.AccuracyMetrics, []accuracy.TypeAccuracy, error) {
	forecasts, err := s.src.LoadForecastData(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	generation := pickGeneration(forecasts, window.Start, lookbackMonths)
	if generation == nil {
		return nil, nil, &domain.InsufficientDataError{Have: 0, Need: 1}
	}

	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{Start: &window.Start, End: &window.End})
	if err != nil {
		return nil, nil, err
	}
	history, err := s.src.LoadStockHistory(ctx, datasource.TimeRange{End: &window.End})
	if err != nil {
		return nil, nil, err
	}
	summaries, err := s.planning.GetSkuStatistics(ctx, domain.EntitySKU, false)
	if err != nil {
		return nil, nil, err
	}
	types := make(map[string]domain.ProductType, len(summaries))
	for _, sum := range summaries {
		types[sum.EntityID] = sum.Type
	}

	inputs := buildAccuracyInputs(forecasts, *generation, txs, history, types)
	evaluator := accuracy.NewEvaluator()

	metrics := make([]domain.AccuracyMetrics, 0, len(inputs))
	for _, in := range inputs {
		metrics = append(metrics, evaluator.Evaluate(in, window))
	}
	return metrics, accuracy.AggregateByType(metrics), nil
}

// pickGeneration selects the forecast generation nearest the look-back target.
func pickGeneration(records []domain.ForecastRecord, target time.Time, lookbackMonths int) *time.Time {
	seen := make(map[time.Time]struct{})
	var generations []time.Time
	for _, r := range records {
		if _, ok := seen[r.GeneratedDate]; !ok {
			seen[r.GeneratedDate] = struct{}{}
			generations = append(generations, r.GeneratedDate)
		}
	}
	return accuracy.PickGeneration(generations, target, lookbackMonths)
}

func buildAccuracyInputs(
	forecasts []domain.ForecastRecord,
	generation time.Time,
	txs []domain.Transaction,
	history []domain.StockSnapshot,
	types map[string]domain.ProductType,
) []accuracy.EntityInput {
	byEntity := make(map[string]*accuracy.EntityInput)
	entity := func(id string) *accuracy.EntityInput {
		in, ok := byEntity[id]
		if !ok {
			pt, known := types[id]
			if !known {
				pt = domain.TypeRegular
			}
			in = &accuracy.EntityInput{EntityID: id, ProductType: pt}
			byEntity[id] = in
		}
		return in
	}

	for _, r := range forecasts {
		if !r.GeneratedDate.Equal(generation) {
			continue
		}
		in := entity(r.SKU)
		in.Forecasts = append(in.Forecasts, accuracy.SeriesPoint{Date: r.ForecastDate, Value: r.ForecastQuantity})
	}
	for _, tx := range txs {
		in := entity(tx.SKU)
		in.Actuals = append(in.Actuals, accuracy.SeriesPoint{Date: tx.Date, Value: float64(tx.Quantity)})
	}
	for _, snap := range history {
		if in, ok := byEntity[snap.SKU]; ok {
			in.Stock = append(in.Stock, snap)
		}
	}

	ids := make([]string, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]accuracy.EntityInput, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byEntity[id])
	}
	return out
}

// CompareForecasts runs the head-to-head of the internal batch against the
// external forecast source over realized sales.
func (s *ForecastService) CompareForecasts(ctx context.Context, batch *domain.ForecastBatch) ([]compare.EntityComparison, []compare.TypeSummary, error) {
	external, err := s.src.LoadForecastData(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.src.LoadSalesData(ctx, datasource.TimeRange{})
	if err != nil {
		return nil, nil, err
	}
	summaries, err := s.planning.GetSkuStatistics(ctx, batch.EntityType, false)
	if err != nil {
		return nil, nil, err
	}

	types := make(map[string]domain.ProductType, len(summaries))
	for _, sum := range summaries {
		types[sku.EntityID(sum.EntityID, batch.EntityType)] = sum.Type
	}

	engine := compare.NewEngine(batch.EntityType)
	entities, byType := engine.Compare(batch.Forecasts, external, txs, types)
	return entities, byType, nil
}
