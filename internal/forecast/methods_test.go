// internal/forecast/methods_test.go
package forecast

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMovingAvgWeightedValue(t *testing.T) {
	series := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 40, 30, 20}
	frame, err := movingAvg(series, 3)
	if err != nil {
		t.Fatalf("movingAvg: %v", err)
	}

	want := 0.5*20 + 0.3*30 + 0.2*40
	for i, got := range frame.Forecast {
		if !almostEqual(got, want, 1e-9) {
			t.Errorf("period %d: forecast = %v, want %v", i, got, want)
		}
		if !almostEqual(frame.Lower[i], want*0.8, 1e-9) || !almostEqual(frame.Upper[i], want*1.2, 1e-9) {
			t.Errorf("period %d: interval = (%v, %v), want (%v, %v)",
				i, frame.Lower[i], frame.Upper[i], want*0.8, want*1.2)
		}
	}
}

func TestMovingAvgShortSeriesRenormalizes(t *testing.T) {
	frame, err := movingAvg([]float64{10, 20}, 1)
	if err != nil {
		t.Fatalf("movingAvg: %v", err)
	}
	// Weights 0.5 and 0.3 renormalized: (0.5*20 + 0.3*10) / 0.8.
	want := (0.5*20 + 0.3*10) / 0.8
	if !almostEqual(frame.Forecast[0], want, 1e-9) {
		t.Errorf("forecast = %v, want %v", frame.Forecast[0], want)
	}
}

func TestMovingAvgAllZeroSeries(t *testing.T) {
	frame, err := movingAvg(make([]float64, 12), 4)
	if err != nil {
		t.Fatalf("movingAvg: %v", err)
	}
	for i := range frame.Forecast {
		if frame.Forecast[i] != 0 || frame.Lower[i] != 0 || frame.Upper[i] != 0 {
			t.Errorf("period %d: got (%v, %v, %v), want all zero",
				i, frame.Forecast[i], frame.Lower[i], frame.Upper[i])
		}
	}
}

func TestMovingAvgEmptySeries(t *testing.T) {
	if _, err := movingAvg(nil, 1); err == nil {
		t.Fatal("expected error for empty series")
	}
}

func TestExpSmoothingIntervalOrdering(t *testing.T) {
	series := make([]float64, 18)
	for i := range series {
		series[i] = 100 + 2*float64(i)
	}
	frame, err := expSmoothing(series, 6)
	if err != nil {
		t.Fatalf("expSmoothing: %v", err)
	}
	for i := range frame.Forecast {
		if frame.Lower[i] > frame.Forecast[i] || frame.Forecast[i] > frame.Upper[i] {
			t.Errorf("period %d: interval ordering violated: (%v, %v, %v)",
				i, frame.Lower[i], frame.Forecast[i], frame.Upper[i])
		}
		if frame.Lower[i] < 0 {
			t.Errorf("period %d: negative lower bound %v", i, frame.Lower[i])
		}
	}
}

func TestExpSmoothingTracksTrend(t *testing.T) {
	series := make([]float64, 24)
	for i := range series {
		series[i] = 10 + 5*float64(i)
	}
	frame, err := expSmoothing(series, 3)
	if err != nil {
		t.Fatalf("expSmoothing: %v", err)
	}
	last := series[len(series)-1]
	for i, f := range frame.Forecast {
		if f < last*0.8 {
			t.Errorf("period %d: forecast %v far below trend level %v", i, f, last)
		}
	}
}

func TestHoltWintersSeasonalSeries(t *testing.T) {
	series := make([]float64, 36)
	for i := range series {
		series[i] = 100 + 40*math.Sin(2*math.Pi*float64(i)/12)
	}
	frame, err := holtWinters(series, 12)
	if err != nil {
		t.Fatalf("holtWinters: %v", err)
	}
	var lo, hi float64 = math.Inf(1), math.Inf(-1)
	for _, f := range frame.Forecast {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if hi-lo < 20 {
		t.Errorf("seasonal forecast too flat: range %v", hi-lo)
	}
}

func TestSARIMARequiresHistory(t *testing.T) {
	if _, err := sarima([]float64{1, 2, 3}, 3); err == nil {
		t.Fatal("expected error for a 3-month series")
	}
}

func TestAutoARIMARequiresTwelveMonths(t *testing.T) {
	if _, err := autoARIMA(make([]float64, 11), 3); err == nil {
		t.Fatal("expected error for an 11-month series")
	}
}

func TestMetricScores(t *testing.T) {
	actual := []float64{10, 20, 0, 40}
	pred := []float64{12, 18, 5, 44}

	// MAPE over actual>0 only: (2/10 + 2/20 + 4/40)/3 * 100.
	wantMAPE := (0.2 + 0.1 + 0.1) / 3 * 100
	if got := MetricMAPE.Score(actual, pred); !almostEqual(got, wantMAPE, 1e-9) {
		t.Errorf("MAPE = %v, want %v", got, wantMAPE)
	}

	wantMAE := (2.0 + 2 + 5 + 4) / 4
	if got := MetricMAE.Score(actual, pred); !almostEqual(got, wantMAE, 1e-9) {
		t.Errorf("MAE = %v, want %v", got, wantMAE)
	}

	wantRMSE := math.Sqrt((4.0 + 4 + 25 + 16) / 4)
	if got := MetricRMSE.Score(actual, pred); !almostEqual(got, wantRMSE, 1e-9) {
		t.Errorf("RMSE = %v, want %v", got, wantRMSE)
	}
}

func TestMetricMAPEAllZeroActuals(t *testing.T) {
	got := MetricMAPE.Score([]float64{0, 0}, []float64{1, 2})
	if !math.IsInf(got, 1) {
		t.Errorf("MAPE over zero actuals = %v, want +Inf", got)
	}
}

func TestMetricClipsNegativePredictions(t *testing.T) {
	got := MetricMAE.Score([]float64{10}, []float64{-5})
	if !almostEqual(got, 10, 1e-9) {
		t.Errorf("MAE with negative prediction = %v, want 10 (clipped to 0)", got)
	}
}

func TestFrameClipRepairsOrdering(t *testing.T) {
	f := Frame{
		Forecast: []float64{-1, 10},
		Lower:    []float64{-3, 12},
		Upper:    []float64{-2, 8},
	}
	f.clip()
	for i := range f.Forecast {
		if f.Lower[i] > f.Forecast[i] || f.Forecast[i] > f.Upper[i] || f.Lower[i] < 0 {
			t.Errorf("period %d: clip left (%v, %v, %v)", i, f.Lower[i], f.Forecast[i], f.Upper[i])
		}
	}
}
