// internal/accuracy/evaluator_test.go
package accuracy

import (
	"math"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dailySeries(start time.Time, values []float64) []SeriesPoint {
	out := make([]SeriesPoint, len(values))
	for i, v := range values {
		out[i] = SeriesPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

// Thirty-day window, forecast 3/day throughout. Actuals are 3/day for days
// 1-20 and 0 afterwards because stock ran out. The stockout days must be
// masked from the error metrics and their forecasts summed as missed
// opportunity.
func TestEvaluateMasksStockoutDays(t *testing.T) {
	start := day(2026, time.June, 1)

	actuals := make([]float64, 30)
	forecasts := make([]float64, 30)
	for i := 0; i < 30; i++ {
		forecasts[i] = 3
		if i < 20 {
			actuals[i] = 3
		}
	}

	in := EntityInput{
		EntityID:    "TSHRT-BLK-M",
		ProductType: domain.TypeRegular,
		Actuals:     dailySeries(start, actuals),
		Forecasts:   dailySeries(start, forecasts),
		Stock: []domain.StockSnapshot{
			{SKU: "TSHRT-BLK-M", SnapshotDate: start, AvailableStock: 60},
			{SKU: "TSHRT-BLK-M", SnapshotDate: start.AddDate(0, 0, 20), AvailableStock: 0},
		},
	}

	m := NewEvaluator().Evaluate(in, Window{Start: start, End: start.AddDate(0, 0, 29)})

	if m.DaysEvaluated != 20 || m.StockoutDays != 10 {
		t.Fatalf("days = %d evaluated / %d stockout, want 20 / 10", m.DaysEvaluated, m.StockoutDays)
	}
	if m.MAPE != 0 {
		t.Errorf("MAPE = %v, want 0", m.MAPE)
	}
	if m.MissedOpportunity != 30 {
		t.Errorf("missed opportunity = %v, want 30", m.MissedOpportunity)
	}
	if m.TotalForecast != 60 || m.TotalActual != 60 {
		t.Errorf("volumes = (%v, %v), want (60, 60)", m.TotalForecast, m.TotalActual)
	}
}

func TestBuildFrameForwardFillsStock(t *testing.T) {
	start := day(2026, time.March, 1)
	in := EntityInput{
		EntityID: "JACKT-NVY-L",
		Stock: []domain.StockSnapshot{
			{SKU: "JACKT-NVY-L", SnapshotDate: start.AddDate(0, 0, 2), AvailableStock: 5},
			{SKU: "JACKT-NVY-L", SnapshotDate: start.AddDate(0, 0, 4), AvailableStock: 0},
		},
	}
	rows := NewEvaluator().BuildFrame(in, Window{Start: start, End: start.AddDate(0, 0, 6)})

	if len(rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(rows))
	}
	// Days before the first snapshot have unknown stock and count as had-stock.
	if rows[0].StockLevel != nil || !rows[0].HadStock {
		t.Errorf("day 0: level = %v, had_stock = %v", rows[0].StockLevel, rows[0].HadStock)
	}
	// Day 3 carries the 5-unit snapshot forward.
	if rows[3].StockLevel == nil || *rows[3].StockLevel != 5 || !rows[3].HadStock {
		t.Errorf("day 3: level = %v, had_stock = %v", rows[3].StockLevel, rows[3].HadStock)
	}
	// From day 4 on the zero snapshot masks the days.
	for i := 4; i < 7; i++ {
		if rows[i].HadStock {
			t.Errorf("day %d: had_stock = true, want masked", i)
		}
	}
}

func TestEvaluateNoStockSeriesDefaultsHadStock(t *testing.T) {
	start := day(2026, time.May, 1)
	in := EntityInput{
		EntityID:    "PANTS-KHK-M",
		ProductType: domain.TypeBasic,
		Actuals:     dailySeries(start, []float64{10, 10}),
		Forecasts:   dailySeries(start, []float64{8, 12}),
	}
	m := NewEvaluator().Evaluate(in, Window{Start: start, End: start.AddDate(0, 0, 1)})

	if m.DaysEvaluated != 2 || m.StockoutDays != 0 {
		t.Fatalf("days = %d / %d", m.DaysEvaluated, m.StockoutDays)
	}
	// |8-10|/10 and |12-10|/10 both 20%.
	if math.Abs(m.MAPE-20) > 1e-9 {
		t.Errorf("MAPE = %v, want 20", m.MAPE)
	}
	// Bias: (-20 + 20)/2 = 0.
	if math.Abs(m.Bias) > 1e-9 {
		t.Errorf("bias = %v, want 0", m.Bias)
	}
	if math.Abs(m.MAE-2) > 1e-9 {
		t.Errorf("MAE = %v, want 2", m.MAE)
	}
	if math.Abs(m.RMSE-2) > 1e-9 {
		t.Errorf("RMSE = %v, want 2", m.RMSE)
	}
}

func TestAggregateByType(t *testing.T) {
	metrics := []domain.AccuracyMetrics{
		{EntityID: "A", ProductType: domain.TypeBasic, MAPE: 10, MAE: 1, TotalForecast: 100},
		{EntityID: "B", ProductType: domain.TypeBasic, MAPE: 30, MAE: 3, TotalForecast: 200},
		{EntityID: "C", ProductType: domain.TypeSeasonal, MAPE: 50, MAE: 5, TotalForecast: 50},
	}
	aggs := AggregateByType(metrics)
	if len(aggs) != 2 {
		t.Fatalf("got %d types, want 2", len(aggs))
	}

	basic := aggs[0]
	if basic.ProductType != domain.TypeBasic {
		t.Fatalf("first agg type = %v", basic.ProductType)
	}
	if basic.Entities != 2 || basic.MAPE != 20 || basic.MAE != 2 || basic.TotalForecast != 300 {
		t.Errorf("basic agg = %+v", basic)
	}
}

func TestWeeklyTrendBucketsByMonday(t *testing.T) {
	// 2026-06-01 is a Monday.
	monday := day(2026, time.June, 1)
	rows := []DailyRow{
		{Date: monday, Forecast: 12, Actual: 10, HadStock: true},
		{Date: monday.AddDate(0, 0, 3), Forecast: 8, Actual: 10, HadStock: true},
		{Date: monday.AddDate(0, 0, 7), Forecast: 15, Actual: 10, HadStock: true},
		{Date: monday.AddDate(0, 0, 8), Forecast: 15, Actual: 10, HadStock: false}, // masked
		{Date: monday.AddDate(0, 0, 9), Forecast: 15, Actual: 0, HadStock: true},   // no actual
	}
	weeks := WeeklyTrend(rows)
	if len(weeks) != 2 {
		t.Fatalf("got %d weeks, want 2", len(weeks))
	}
	if !weeks[0].WeekStart.Equal(monday) || weeks[0].Days != 2 {
		t.Errorf("week 0 = %+v", weeks[0])
	}
	if math.Abs(weeks[0].MAPE-20) > 1e-9 {
		t.Errorf("week 0 MAPE = %v, want 20", weeks[0].MAPE)
	}
	if weeks[1].Days != 1 || math.Abs(weeks[1].MAPE-50) > 1e-9 {
		t.Errorf("week 1 = %+v", weeks[1])
	}
}

func TestPickGeneration(t *testing.T) {
	target := day(2026, time.August, 1)
	oneMonthBack := target.AddDate(0, 0, -30)
	wayOff := target.AddDate(0, 0, -80)

	got := PickGeneration([]time.Time{wayOff, oneMonthBack}, target, 1)
	if got == nil || !got.Equal(oneMonthBack) {
		t.Fatalf("got %v, want %v", got, oneMonthBack)
	}

	// Nothing within the 14-day tolerance.
	if got := PickGeneration([]time.Time{wayOff}, target, 1); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
