// internal/safety/calculator.go
package safety

import (
	"math"
	"time"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/season"
)

// Calculator computes safety stock and reorder points per entity.
//
// Base formula: SS = z * std * sqrt(lead_time); ROP = avg * lead_time + SS.
// Seasonal entities get both an in-season and out-of-season pair; the active
// values follow the current calendar month's seasonal index.
type Calculator struct {
	leadTime float64
	z        config.ZScores
	now      func() time.Time
}

// NewCalculator builds a calculator from the planning settings.
func NewCalculator(cfg config.PlanningConfig) *Calculator {
	return &Calculator{
		leadTime: cfg.LeadTimeMonths,
		z:        cfg.ZScores,
		now:      time.Now,
	}
}

// WithClock fixes the reference time used to pick the active seasonal pair.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Apply fills the safety-stock fields of the summary and returns it.
func (c *Calculator) Apply(s domain.SkuSummary, idx season.Index) domain.SkuSummary {
	std := 0.0
	if s.StdDev != nil {
		std = *s.StdDev
	}

	leadDemand := s.AvgMonthlySales * c.leadTime

	if s.Type == domain.TypeSeasonal {
		ssIn := round2(math.Max(0, c.z.SeasonalIn*std*math.Sqrt(c.leadTime)))
		ssOut := round2(math.Max(0, c.z.SeasonalOut*std*math.Sqrt(c.leadTime)))
		ropIn := round2(leadDemand + ssIn)
		ropOut := round2(leadDemand + ssOut)

		s.SSInSeason = &ssIn
		s.SSOutOfSeason = &ssOut
		s.ROPInSeason = &ropIn
		s.ROPOutOfSeason = &ropOut

		if idx.IsInSeason(s.EntityID, int(c.now().Month())) {
			s.SafetyStock = ssIn
			s.ReorderPoint = ropIn
		} else {
			s.SafetyStock = ssOut
			s.ReorderPoint = ropOut
		}
		return s
	}

	z := c.zScoreFor(s.Type)
	ss := round2(math.Max(0, z*std*math.Sqrt(c.leadTime)))
	s.SafetyStock = ss
	s.ReorderPoint = round2(leadDemand + ss)
	return s
}

// ApplyAll computes safety stock for every summary row, preserving input order.
func (c *Calculator) ApplyAll(summaries []domain.SkuSummary, idx season.Index) []domain.SkuSummary {
	for i := range summaries {
		summaries[i] = c.Apply(summaries[i], idx)
	}
	return summaries
}

func (c *Calculator) zScoreFor(t domain.ProductType) float64 {
	switch t {
	case domain.TypeBasic:
		return c.z.Basic
	case domain.TypeNew:
		return c.z.New
	default:
		return c.z.Regular
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
