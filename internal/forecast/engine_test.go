// internal/forecast/engine_test.go
package forecast

import (
	"context"
	"testing"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/timeseries"
)

func floatPtr(v float64) *float64 { return &v }

func TestSelectMethod(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name        string
		productType domain.ProductType
		cv          *float64
		n           int
		want        Method
	}{
		{"new product", domain.TypeNew, floatPtr(0.3), 36, MethodMovingAvg},
		{"short history", domain.TypeRegular, floatPtr(0.3), 8, MethodMovingAvg},
		{"low cv", domain.TypeRegular, floatPtr(0.4), 18, MethodExpSmoothing},
		{"high cv long history", domain.TypeSeasonal, floatPtr(1.5), 30, MethodSARIMA},
		{"high cv short history", domain.TypeSeasonal, floatPtr(1.5), 18, MethodHoltWinters},
		{"mid cv", domain.TypeRegular, floatPtr(0.8), 18, MethodHoltWinters},
		{"no cv basic", domain.TypeBasic, nil, 18, MethodExpSmoothing},
		{"no cv seasonal long", domain.TypeSeasonal, nil, 30, MethodSARIMA},
		{"no cv seasonal short", domain.TypeSeasonal, nil, 18, MethodExpSmoothing},
		{"no cv regular", domain.TypeRegular, nil, 18, MethodHoltWinters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.SelectMethod(tt.productType, tt.cv, tt.n); got != tt.want {
				t.Errorf("SelectMethod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChainFrom(t *testing.T) {
	got := chainFrom(MethodHoltWinters)
	want := []Method{MethodHoltWinters, MethodExpSmoothing, MethodMovingAvg}
	if len(got) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chain[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	auto := chainFrom(MethodAutoARIMA)
	if auto[0] != MethodAutoARIMA || auto[1] != MethodSARIMA {
		t.Errorf("auto_arima chain starts %v, %v", auto[0], auto[1])
	}
}

func TestRunStatisticalFallsBack(t *testing.T) {
	e := NewEngine()

	// 14 months is far too little for SARIMA(1,1,1)(1,1,1)12, so the chain
	// must degrade without surfacing an error.
	series := []float64{12, 15, 0, 18, 20, 22, 0, 25, 23, 21, 19, 24, 26, 28}
	frame, used, err := e.RunStatistical(MethodSARIMA, series, 3)
	if err != nil {
		t.Fatalf("RunStatistical: %v", err)
	}
	if used == MethodSARIMA {
		t.Fatal("expected a fallback method, got sarima")
	}
	for i := range frame.Forecast {
		if frame.Forecast[i] < 0 || frame.Lower[i] > frame.Forecast[i] || frame.Forecast[i] > frame.Upper[i] {
			t.Errorf("period %d: invalid frame (%v, %v, %v)",
				i, frame.Lower[i], frame.Forecast[i], frame.Upper[i])
		}
	}
}

func TestRunStatisticalMovingAvgLastResort(t *testing.T) {
	e := NewEngine()
	// A single observation defeats every smoother; only the weighted
	// average survives.
	frame, used, err := e.RunStatistical(MethodSARIMA, []float64{10}, 2)
	if err != nil {
		t.Fatalf("RunStatistical: %v", err)
	}
	if used != MethodMovingAvg {
		t.Fatalf("used = %v, want moving_avg", used)
	}
	if !almostEqual(frame.Forecast[0], 10, 1e-9) {
		t.Errorf("forecast = %v, want 10", frame.Forecast[0])
	}
}

func makeSeries(start string, values []float64) []timeseries.Point {
	points := make([]timeseries.Point, len(values))
	ym := start
	for i, v := range values {
		points[i] = timeseries.Point{YearMonth: ym, Value: v}
		ym, _ = timeseries.AddMonths(ym, 1)
	}
	return points
}

func TestForecastEntityPeriodsContinueSeries(t *testing.T) {
	e := NewEngine()
	values := make([]float64, 24)
	for i := range values {
		values[i] = 100 + float64(i%3)
	}
	in := Input{
		EntityID:    "TSHRT-BLK-M",
		Series:      makeSeries("2024-01", values),
		ProductType: domain.TypeBasic,
		CV:          floatPtr(0.2),
	}
	fc, trained, err := e.ForecastEntity(in, domain.EntitySKU, Options{Horizon: 3})
	if err != nil {
		t.Fatalf("ForecastEntity: %v", err)
	}
	if trained != nil {
		t.Error("statistical path should not return a trained model")
	}
	if fc.Method != string(MethodExpSmoothing) {
		t.Errorf("method = %v, want exp_smoothing for cv 0.2", fc.Method)
	}

	wantPeriods := []string{"2026-01", "2026-02", "2026-03"}
	if len(fc.Points) != 3 {
		t.Fatalf("got %d points, want 3", len(fc.Points))
	}
	for i, p := range fc.Points {
		if p.Period != wantPeriods[i] {
			t.Errorf("point %d period = %v, want %v", i, p.Period, wantPeriods[i])
		}
		if p.LowerCI > p.Forecast || p.Forecast > p.UpperCI || p.LowerCI < 0 {
			t.Errorf("point %d: invalid interval (%v, %v, %v)", i, p.LowerCI, p.Forecast, p.UpperCI)
		}
	}
}

func TestForecastEntityZeroFillsGaps(t *testing.T) {
	e := NewEngine()
	// A gap in the series must be zero-filled, not collapsed.
	points := []timeseries.Point{
		{YearMonth: "2025-01", Value: 10},
		{YearMonth: "2025-02", Value: 12},
		{YearMonth: "2025-05", Value: 14},
	}
	fc, _, err := e.ForecastEntity(Input{
		EntityID:    "JACKT-NVY-L",
		Series:      points,
		ProductType: domain.TypeNew,
	}, domain.EntitySKU, Options{Horizon: 2})
	if err != nil {
		t.Fatalf("ForecastEntity: %v", err)
	}
	if fc.Method != string(MethodMovingAvg) {
		t.Errorf("method = %v, want moving_avg for a new product", fc.Method)
	}
	// Last three months after fill are 0, 0, 14.
	want := 0.5*14 + 0.3*0 + 0.2*0
	if !almostEqual(fc.Points[0].Forecast, want, 0.01) {
		t.Errorf("forecast = %v, want %v", fc.Points[0].Forecast, want)
	}
	if fc.Points[0].Period != "2025-06" {
		t.Errorf("period = %v, want 2025-06", fc.Points[0].Period)
	}
}

func TestForecastBatchCollectsFailures(t *testing.T) {
	e := NewEngine()
	values := make([]float64, 24)
	for i := range values {
		values[i] = 50 + float64(i)
	}
	inputs := []Input{
		{EntityID: "GOOD1-RED-S", Series: makeSeries("2024-01", values), ProductType: domain.TypeRegular, CV: floatPtr(0.3)},
		{EntityID: "EMPTY-ONE-X"},
		{EntityID: "GOOD2-BLU-M", Series: makeSeries("2024-01", values), ProductType: domain.TypeRegular, CV: floatPtr(0.3)},
	}

	batch, err := e.ForecastBatch(context.Background(), domain.EntitySKU, inputs, Options{Horizon: 2, Workers: 2})
	if err != nil {
		t.Fatalf("ForecastBatch: %v", err)
	}

	if batch.Stats.Success != 2 || batch.Stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 2 success / 1 failed", batch.Stats)
	}
	if len(batch.Stats.Errors) != 1 || batch.Stats.Errors[0].EntityID != "EMPTY-ONE-X" {
		t.Errorf("errors = %+v, want one entry for EMPTY-ONE-X", batch.Stats.Errors)
	}

	// Successful forecasts preserve input order.
	if batch.Forecasts[0].EntityID != "GOOD1-RED-S" || batch.Forecasts[1].EntityID != "GOOD2-BLU-M" {
		t.Errorf("forecast order = %v, %v", batch.Forecasts[0].EntityID, batch.Forecasts[1].EntityID)
	}
	if batch.Stats.MethodsUsed[string(MethodExpSmoothing)] != 2 {
		t.Errorf("methods used = %v, want exp_smoothing x2", batch.Stats.MethodsUsed)
	}
	if batch.BatchID == "" || batch.HorizonMonths != 2 {
		t.Errorf("batch header incomplete: %+v", batch)
	}
}

func TestForecastEntityMLTrainsAndPredicts(t *testing.T) {
	e := NewEngine()
	values := make([]float64, 36)
	for i := range values {
		values[i] = 80 + 10*float64(i%12)/12 + float64(i)/4
	}
	in := Input{
		EntityID:    "SHIRT-GRN-L",
		Series:      makeSeries("2023-01", values),
		ProductType: domain.TypeRegular,
		CV:          floatPtr(0.4),
	}
	fc, trained, err := e.ForecastEntity(in, domain.EntitySKU, Options{Horizon: 3, UseML: true})
	if err != nil {
		t.Fatalf("ForecastEntity: %v", err)
	}
	if trained == nil {
		t.Fatal("expected a trained model on the ML path")
	}
	if trained.Meta.ModelType == "" || trained.Meta.CVMetric != string(MetricMAPE) {
		t.Errorf("meta incomplete: %+v", trained.Meta)
	}
	if !Method(fc.Method).IsML() {
		t.Errorf("method = %v, want an ml method", fc.Method)
	}
	for i, p := range fc.Points {
		if p.Forecast < 0 || p.LowerCI > p.Forecast || p.Forecast > p.UpperCI {
			t.Errorf("point %d: invalid interval (%v, %v, %v)", i, p.LowerCI, p.Forecast, p.UpperCI)
		}
	}
}

func TestForecastEntitySingleMLMethod(t *testing.T) {
	e := NewEngine()
	values := make([]float64, 30)
	for i := range values {
		values[i] = 40 + 3*float64(i)
	}
	fc, trained, err := e.ForecastEntity(Input{
		EntityID:    "PANTS-KHK-M",
		Series:      makeSeries("2023-06", values),
		ProductType: domain.TypeRegular,
		CV:          floatPtr(0.5),
	}, domain.EntitySKU, Options{Horizon: 2, Method: MethodRidge})
	if err != nil {
		t.Fatalf("ForecastEntity: %v", err)
	}
	if trained == nil || trained.Meta.ModelType != "ridge" {
		t.Fatalf("trained = %+v, want a ridge model", trained)
	}
	if fc.Method != string(MethodRidge) {
		t.Errorf("method = %v, want ml:ridge", fc.Method)
	}
}
