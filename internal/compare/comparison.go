// internal/compare/comparison.go
package compare

import (
	"math"
	"sort"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/sku"
	"github.com/apparelworks/demandplan/internal/timeseries"
)

// Winner labels who predicted an entity better.
type Winner string

const (
	WinnerInternal Winner = "internal"
	WinnerExternal Winner = "external"
	WinnerTie      Winner = "tie"
)

// EntityComparison is the head-to-head result for one entity.
type EntityComparison struct {
	EntityID        string             `json:"entity_id"`
	ProductType     domain.ProductType `json:"product_type"`
	Months          int                `json:"months"`
	InternalMAPE    float64            `json:"internal_mape"`
	InternalBias    float64            `json:"internal_bias"`
	InternalMAE     float64            `json:"internal_mae"`
	InternalRMSE    float64            `json:"internal_rmse"`
	ExternalMAPE    float64            `json:"external_mape"`
	ExternalBias    float64            `json:"external_bias"`
	ExternalMAE     float64            `json:"external_mae"`
	ExternalRMSE    float64            `json:"external_rmse"`
	Winner          Winner             `json:"winner"`
	MAPEImprovement float64            `json:"mape_improvement"`
}

// TypeSummary aggregates wins and ties for one product type.
type TypeSummary struct {
	ProductType  domain.ProductType `json:"product_type"`
	Entities     int                `json:"entities"`
	InternalWins int                `json:"internal_wins"`
	ExternalWins int                `json:"external_wins"`
	Ties         int                `json:"ties"`
}

// Engine aligns internal forecasts, external forecasts, and realized sales on
// (entity, year-month) and scores both forecast sources against the actuals.
type Engine struct {
	entityType domain.EntityType
}

func NewEngine(entityType domain.EntityType) *Engine {
	return &Engine{entityType: entityType}
}

type monthCell struct {
	internal float64
	external float64
	actual   float64
	hasInt   bool
	hasExt   bool
}

func (e *Engine) entityOf(s string) string {
	return sku.EntityID(s, e.entityType)
}

// Compare runs the three-way alignment. productTypes maps entity id to its
// demand class for the per-type aggregation; unknown entities land under
// regular.
func (e *Engine) Compare(
	internal []domain.EntityForecast,
	external []domain.ForecastRecord,
	actuals []domain.Transaction,
	productTypes map[string]domain.ProductType,
) ([]EntityComparison, []TypeSummary) {
	cells := make(map[string]map[string]*monthCell)
	cell := func(entity, ym string) *monthCell {
		byMonth, ok := cells[entity]
		if !ok {
			byMonth = make(map[string]*monthCell)
			cells[entity] = byMonth
		}
		c, ok := byMonth[ym]
		if !ok {
			c = &monthCell{}
			byMonth[ym] = c
		}
		return c
	}

	for _, fc := range internal {
		entity := e.entityOf(fc.EntityID)
		for _, p := range fc.Points {
			c := cell(entity, p.Period)
			c.internal += p.Forecast
			c.hasInt = true
		}
	}
	for _, r := range external {
		entity := e.entityOf(r.SKU)
		c := cell(entity, monthOf(r.ForecastDate))
		c.external += r.ForecastQuantity
		c.hasExt = true
	}
	for _, tx := range actuals {
		entity := e.entityOf(tx.SKU)
		c := cell(entity, monthOf(tx.Date))
		c.actual += float64(tx.Quantity)
	}

	entities := make([]string, 0, len(cells))
	for entity := range cells {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	results := make([]EntityComparison, 0, len(entities))
	for _, entity := range entities {
		byMonth := cells[entity]

		var intPred, extPred, actual []float64
		months := make([]string, 0, len(byMonth))
		for ym := range byMonth {
			months = append(months, ym)
		}
		sort.Strings(months)
		for _, ym := range months {
			c := byMonth[ym]
			// Only months where both sources made a call and sales happened
			// are comparable.
			if !c.hasInt || !c.hasExt || c.actual <= 0 {
				continue
			}
			intPred = append(intPred, c.internal)
			extPred = append(extPred, c.external)
			actual = append(actual, c.actual)
		}
		if len(actual) == 0 {
			continue
		}

		pt, ok := productTypes[entity]
		if !ok {
			pt = domain.TypeRegular
		}

		res := EntityComparison{
			EntityID:    entity,
			ProductType: pt,
			Months:      len(actual),
		}
		res.InternalMAPE, res.InternalBias, res.InternalMAE, res.InternalRMSE = errorStats(actual, intPred)
		res.ExternalMAPE, res.ExternalBias, res.ExternalMAE, res.ExternalRMSE = errorStats(actual, extPred)

		switch {
		case res.InternalMAPE < res.ExternalMAPE:
			res.Winner = WinnerInternal
			res.MAPEImprovement = res.ExternalMAPE - res.InternalMAPE
		case res.ExternalMAPE < res.InternalMAPE:
			res.Winner = WinnerExternal
			res.MAPEImprovement = res.InternalMAPE - res.ExternalMAPE
		default:
			res.Winner = WinnerTie
		}
		results = append(results, res)
	}

	return results, summarize(results)
}

func monthOf(t time.Time) string {
	return timeseries.FormatYearMonth(t)
}

// errorStats computes MAPE, BIAS, MAE and RMSE over months with positive
// actuals. Callers guarantee actual[i] > 0 for every element.
func errorStats(actual, predicted []float64) (mape, bias, mae, rmse float64) {
	n := float64(len(actual))
	for i := range actual {
		diff := predicted[i] - actual[i]
		mape += math.Abs(diff) / actual[i] * 100
		bias += diff / actual[i] * 100
		mae += math.Abs(diff)
		rmse += diff * diff
	}
	mape /= n
	bias /= n
	mae /= n
	rmse = math.Sqrt(rmse / n)
	return mape, bias, mae, rmse
}

func summarize(results []EntityComparison) []TypeSummary {
	byType := make(map[domain.ProductType]*TypeSummary)
	for _, r := range results {
		s, ok := byType[r.ProductType]
		if !ok {
			s = &TypeSummary{ProductType: r.ProductType}
			byType[r.ProductType] = s
		}
		s.Entities++
		switch r.Winner {
		case WinnerInternal:
			s.InternalWins++
		case WinnerExternal:
			s.ExternalWins++
		default:
			s.Ties++
		}
	}

	out := make([]TypeSummary, 0, len(byType))
	for _, s := range byType {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductType < out[j].ProductType })
	return out
}
