// internal/priority/scorer.go
package priority

import (
	"math"
	"sort"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/sku"
)

// SKUInput is one SKU's state entering the scorer.
type SKUInput struct {
	SKU              string
	Stock            float64
	ReorderPoint     float64
	AvgMonthlySales  float64
	StdDev           float64
	ForecastLeadTime float64
	UnitPrice        float64
	Type             domain.ProductType
	Facility         string
}

// Filter restricts scored rows by facility. Exclusion wins over inclusion
// when a facility appears in both lists.
type Filter struct {
	IncludeFacilities []string
	ExcludeFacilities []string
}

// Scorer ranks SKUs (and their model/color rollups) for reordering.
type Scorer struct {
	cfg config.PriorityConfig
}

func NewScorer(cfg config.PriorityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// revenueReference returns the per-batch normalizer for revenue impact: the
// maximum revenue at risk observed across the batch, or 1 to avoid dividing
// by zero.
func (s *Scorer) revenueReference(inputs []SKUInput) float64 {
	ref := 0.0
	for _, in := range inputs {
		if r := in.UnitPrice * in.ForecastLeadTime; r > ref {
			ref = r
		}
	}
	if ref <= 0 {
		ref = 1
	}
	return ref
}

func (s *Scorer) stockoutRisk(in SKUInput) float64 {
	switch {
	case in.Stock == 0 && in.ForecastLeadTime > 0:
		return s.cfg.ZeroStockPenalty
	case in.ReorderPoint > 0 && in.Stock < in.ReorderPoint:
		gap := (in.ReorderPoint - in.Stock) / in.ReorderPoint
		return math.Min(gap, 1) * s.cfg.BelowROPMaxPenalty
	default:
		return 0
	}
}

func (s *Scorer) typeMultiplier(t domain.ProductType) float64 {
	switch t {
	case domain.TypeNew:
		return s.cfg.TypeMultipliers.New
	case domain.TypeSeasonal:
		return s.cfg.TypeMultipliers.Seasonal
	case domain.TypeBasic:
		return s.cfg.TypeMultipliers.Basic
	default:
		return s.cfg.TypeMultipliers.Regular
	}
}

// ScoreSKUs scores every SKU of the batch. The revenue reference is computed
// over the unfiltered batch, then facility filters drop rows after scoring.
func (s *Scorer) ScoreSKUs(inputs []SKUInput, filter Filter) []domain.PriorityRow {
	ref := s.revenueReference(inputs)

	rows := make([]domain.PriorityRow, 0, len(inputs))
	for _, in := range inputs {
		risk := s.stockoutRisk(in)

		revenue := 0.0
		if ref > 0 {
			revenue = math.Min(in.UnitPrice*in.ForecastLeadTime/ref, 1) * 100
		}

		demand := 0.0
		if s.cfg.DemandCap > 0 {
			demand = math.Min(in.ForecastLeadTime, s.cfg.DemandCap) / s.cfg.DemandCap * 100
		}

		raw := s.cfg.Weights.StockoutRisk*risk +
			s.cfg.Weights.RevenueImpact*revenue +
			s.cfg.Weights.DemandForecast*demand
		mult := s.typeMultiplier(in.Type)

		parts := sku.Decompose(in.SKU)
		rows = append(rows, domain.PriorityRow{
			EntityID:         in.SKU,
			Model:            parts.Model,
			Color:            parts.Color,
			PriorityScore:    round2(raw * mult),
			StockoutRisk:     round2(risk),
			RevenueImpact:    round2(revenue),
			DemandForecast:   round2(demand),
			CoverageGap:      math.Max(0, in.ReorderPoint-in.Stock),
			Stock:            in.Stock,
			ForecastLeadTime: in.ForecastLeadTime,
			Deficit:          math.Max(0, in.ForecastLeadTime-in.Stock),
			IsUrgent:         in.Stock == 0 && in.ForecastLeadTime > 0,
			TypeMultiplier:   mult,
			Type:             in.Type,
			Facility:         in.Facility,
		})
	}

	rows = applyFilter(rows, filter)
	sortRows(rows)
	return rows
}

// RollupModelColor aggregates SKU rows to (model, color) groups. Priority is
// the forecast+1 weighted mean; quantities are summed; urgency propagates.
func (s *Scorer) RollupModelColor(rows []domain.PriorityRow) []domain.PriorityRow {
	type group struct {
		row       domain.PriorityRow
		scoreSum  float64
		weightSum float64
	}
	groups := make(map[string]*group)
	var order []string

	for _, r := range rows {
		key := r.Model + "-" + r.Color
		g, ok := groups[key]
		if !ok {
			g = &group{row: domain.PriorityRow{
				EntityID: key,
				Model:    r.Model,
				Color:    r.Color,
				Type:     r.Type,
			}}
			groups[key] = g
			order = append(order, key)
		}

		w := r.ForecastLeadTime + 1
		g.scoreSum += r.PriorityScore * w
		g.weightSum += w

		g.row.Deficit += r.Deficit
		g.row.ForecastLeadTime += r.ForecastLeadTime
		g.row.Stock += r.Stock
		g.row.CoverageGap += r.CoverageGap
		if r.IsUrgent {
			g.row.IsUrgent = true
		}
	}

	out := make([]domain.PriorityRow, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		if g.weightSum > 0 {
			g.row.PriorityScore = round2(g.scoreSum / g.weightSum)
		}
		out = append(out, g.row)
	}
	sortRows(out)
	return out
}

func applyFilter(rows []domain.PriorityRow, f Filter) []domain.PriorityRow {
	if len(f.IncludeFacilities) == 0 && len(f.ExcludeFacilities) == 0 {
		return rows
	}

	included := make(map[string]bool, len(f.IncludeFacilities))
	for _, fac := range f.IncludeFacilities {
		included[fac] = true
	}
	excluded := make(map[string]bool, len(f.ExcludeFacilities))
	for _, fac := range f.ExcludeFacilities {
		excluded[fac] = true
	}

	out := rows[:0]
	for _, r := range rows {
		if excluded[r.Facility] {
			continue
		}
		if len(included) > 0 && !included[r.Facility] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// sortRows orders by descending priority with a stable tie-break on entity id.
func sortRows(rows []domain.PriorityRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PriorityScore != rows[j].PriorityScore {
			return rows[i].PriorityScore > rows[j].PriorityScore
		}
		return rows[i].EntityID < rows[j].EntityID
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
