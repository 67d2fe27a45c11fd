// internal/accuracy/evaluator.go
package accuracy

import (
	"math"
	"sort"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

// avgDaysPerMonth converts a look-back in months to days for generation lookup.
const avgDaysPerMonth = 30.44

// lookupTolerance bounds how far a forecast generation may sit from the
// look-back target before it is rejected.
const lookupTolerance = 14 * 24 * time.Hour

// DailyRow is one (entity, date) cell of the comparison frame. StockLevel is
// nil when no stock observation exists on or before the date.
type DailyRow struct {
	EntityID   string
	Date       time.Time
	Forecast   float64
	Actual     float64
	StockLevel *float64
	HadStock   bool
}

// SeriesPoint is one dated value of a daily forecast or actual series.
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

// Window is an inclusive day range.
type Window struct {
	Start time.Time
	End   time.Time
}

// EntityInput is everything needed to evaluate one entity.
type EntityInput struct {
	EntityID    string
	ProductType domain.ProductType
	Actuals     []SeriesPoint
	Forecasts   []SeriesPoint
	Stock       []domain.StockSnapshot
}

type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildFrame expands the entity's series into one row per day of the window.
// Stock is forward-filled from the most recent snapshot on or before each
// day; a day with no preceding snapshot has unknown stock. had_stock is true
// when stock is unknown or positive.
func (e *Evaluator) BuildFrame(in EntityInput, w Window) []DailyRow {
	actualByDay := make(map[time.Time]float64, len(in.Actuals))
	for _, p := range in.Actuals {
		actualByDay[dayKey(p.Date)] += p.Value
	}
	forecastByDay := make(map[time.Time]float64, len(in.Forecasts))
	for _, p := range in.Forecasts {
		forecastByDay[dayKey(p.Date)] += p.Value
	}

	snapshots := append([]domain.StockSnapshot(nil), in.Stock...)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SnapshotDate.Before(snapshots[j].SnapshotDate)
	})

	var rows []DailyRow
	si := 0
	var level *float64
	for day := dayKey(w.Start); !day.After(dayKey(w.End)); day = day.AddDate(0, 0, 1) {
		for si < len(snapshots) && !dayKey(snapshots[si].SnapshotDate).After(day) {
			v := snapshots[si].AvailableStock
			level = &v
			si++
		}

		row := DailyRow{
			EntityID: in.EntityID,
			Date:     day,
			Forecast: forecastByDay[day],
			Actual:   actualByDay[day],
			HadStock: level == nil || *level > 0,
		}
		if level != nil {
			v := *level
			row.StockLevel = &v
		}
		rows = append(rows, row)
	}
	return rows
}

// Evaluate computes the per-entity error statistics over had-stock days.
// Stockout days are masked out of the error metrics but contribute their
// forecast volume to the missed-opportunity sum.
func (e *Evaluator) Evaluate(in EntityInput, w Window) domain.AccuracyMetrics {
	rows := e.BuildFrame(in, w)
	return e.scoreRows(in.EntityID, in.ProductType, rows)
}

func (e *Evaluator) scoreRows(entityID string, productType domain.ProductType, rows []DailyRow) domain.AccuracyMetrics {
	m := domain.AccuracyMetrics{EntityID: entityID, ProductType: productType}

	var (
		absErrSum float64
		sqErrSum  float64
		pctErrSum float64
		biasSum   float64
		pctDays   int
	)
	for _, r := range rows {
		if !r.HadStock {
			m.StockoutDays++
			m.MissedOpportunity += r.Forecast
			continue
		}
		m.DaysEvaluated++
		m.TotalForecast += r.Forecast
		m.TotalActual += r.Actual

		diff := r.Forecast - r.Actual
		absErrSum += math.Abs(diff)
		sqErrSum += diff * diff
		if r.Actual > 0 {
			pctErrSum += math.Abs(diff) / r.Actual * 100
			biasSum += diff / r.Actual * 100
			pctDays++
		}
	}

	if m.DaysEvaluated > 0 {
		m.MAE = absErrSum / float64(m.DaysEvaluated)
		m.RMSE = math.Sqrt(sqErrSum / float64(m.DaysEvaluated))
	}
	if pctDays > 0 {
		m.MAPE = pctErrSum / float64(pctDays)
		m.Bias = biasSum / float64(pctDays)
	}
	return m
}

// TypeAccuracy aggregates entity metrics for one product type: means of the
// error statistics and sums of the volumes.
type TypeAccuracy struct {
	ProductType       domain.ProductType `json:"product_type"`
	Entities          int                `json:"entities"`
	MAPE              float64            `json:"mape"`
	Bias              float64            `json:"bias"`
	MAE               float64            `json:"mae"`
	RMSE              float64            `json:"rmse"`
	TotalForecast     float64            `json:"total_forecast"`
	TotalActual       float64            `json:"total_actual"`
	MissedOpportunity float64            `json:"missed_opportunity"`
}

// AggregateByType rolls entity metrics up per product type.
func AggregateByType(metrics []domain.AccuracyMetrics) []TypeAccuracy {
	byType := make(map[domain.ProductType]*TypeAccuracy)
	for _, m := range metrics {
		agg, ok := byType[m.ProductType]
		if !ok {
			agg = &TypeAccuracy{ProductType: m.ProductType}
			byType[m.ProductType] = agg
		}
		agg.Entities++
		agg.MAPE += m.MAPE
		agg.Bias += m.Bias
		agg.MAE += m.MAE
		agg.RMSE += m.RMSE
		agg.TotalForecast += m.TotalForecast
		agg.TotalActual += m.TotalActual
		agg.MissedOpportunity += m.MissedOpportunity
	}

	out := make([]TypeAccuracy, 0, len(byType))
	for _, agg := range byType {
		n := float64(agg.Entities)
		agg.MAPE /= n
		agg.Bias /= n
		agg.MAE /= n
		agg.RMSE /= n
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductType < out[j].ProductType })
	return out
}

// WeekStat is one week of the MAPE/BIAS trend. Weeks start on Monday.
type WeekStat struct {
	WeekStart time.Time `json:"week_start"`
	MAPE      float64   `json:"mape"`
	Bias      float64   `json:"bias"`
	Days      int       `json:"days"`
}

// WeeklyTrend buckets had-stock days by week and computes MAPE/BIAS per week
// over days with positive actuals.
func WeeklyTrend(rows []DailyRow) []WeekStat {
	type acc struct {
		pctErr float64
		bias   float64
		days   int
	}
	byWeek := make(map[time.Time]*acc)
	for _, r := range rows {
		if !r.HadStock || r.Actual <= 0 {
			continue
		}
		ws := weekStart(r.Date)
		a, ok := byWeek[ws]
		if !ok {
			a = &acc{}
			byWeek[ws] = a
		}
		diff := r.Forecast - r.Actual
		a.pctErr += math.Abs(diff) / r.Actual * 100
		a.bias += diff / r.Actual * 100
		a.days++
	}

	out := make([]WeekStat, 0, len(byWeek))
	for ws, a := range byWeek {
		out = append(out, WeekStat{
			WeekStart: ws,
			MAPE:      a.pctErr / float64(a.days),
			Bias:      a.bias / float64(a.days),
			Days:      a.days,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

func weekStart(t time.Time) time.Time {
	d := dayKey(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// PickGeneration selects the forecast generation closest to
// target − lookback·30.44 days, within a ±14-day tolerance. It returns nil
// when no generation qualifies.
func PickGeneration(generations []time.Time, target time.Time, lookbackMonths int) *time.Time {
	wanted := target.Add(-time.Duration(float64(lookbackMonths) * avgDaysPerMonth * 24 * float64(time.Hour)))

	var best *time.Time
	bestDist := lookupTolerance
	for _, g := range generations {
		dist := g.Sub(wanted)
		if dist < 0 {
			dist = -dist
		}
		if dist <= bestDist {
			gc := g
			best = &gc
			bestDist = dist
		}
	}
	return best
}
