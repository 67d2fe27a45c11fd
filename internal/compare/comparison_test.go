// internal/compare/comparison_test.go
package compare

import (
	"math"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

func mid(y int, m time.Month) time.Time {
	return time.Date(y, m, 15, 0, 0, 0, 0, time.UTC)
}

func TestCompareDeclaresWinnerBySKU(t *testing.T) {
	internal := []domain.EntityForecast{{
		EntityID: "TSHRT-BLK-M",
		Points: []domain.ForecastPoint{
			{Period: "2026-05", Forecast: 95},
			{Period: "2026-06", Forecast: 105},
		},
	}}
	external := []domain.ForecastRecord{
		{SKU: "TSHRT-BLK-M", ForecastDate: mid(2026, time.May), ForecastQuantity: 80},
		{SKU: "TSHRT-BLK-M", ForecastDate: mid(2026, time.June), ForecastQuantity: 130},
	}
	actuals := []domain.Transaction{
		{SKU: "TSHRT-BLK-M", Date: mid(2026, time.May), Quantity: 100},
		{SKU: "TSHRT-BLK-M", Date: mid(2026, time.June), Quantity: 100},
	}

	results, summaries := NewEngine(domain.EntitySKU).Compare(
		internal, external, actuals,
		map[string]domain.ProductType{"TSHRT-BLK-M": domain.TypeBasic},
	)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Months != 2 {
		t.Fatalf("months = %d, want 2", r.Months)
	}
	// Internal errors 5% both months; external 20% and 30%.
	if math.Abs(r.InternalMAPE-5) > 1e-9 {
		t.Errorf("internal MAPE = %v, want 5", r.InternalMAPE)
	}
	if math.Abs(r.ExternalMAPE-25) > 1e-9 {
		t.Errorf("external MAPE = %v, want 25", r.ExternalMAPE)
	}
	if r.Winner != WinnerInternal {
		t.Errorf("winner = %v, want internal", r.Winner)
	}
	if math.Abs(r.MAPEImprovement-20) > 1e-9 {
		t.Errorf("improvement = %v, want 20", r.MAPEImprovement)
	}

	if len(summaries) != 1 || summaries[0].InternalWins != 1 {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestCompareModelViewAggregatesSKUs(t *testing.T) {
	// Two SKUs of the same model collapse into one model-level comparison.
	internal := []domain.EntityForecast{
		{EntityID: "TSHRT-BLK-M", Points: []domain.ForecastPoint{{Period: "2026-05", Forecast: 40}}},
		{EntityID: "TSHRT-WHT-L", Points: []domain.ForecastPoint{{Period: "2026-05", Forecast: 70}}},
	}
	external := []domain.ForecastRecord{
		{SKU: "TSHRT-BLK-M", ForecastDate: mid(2026, time.May), ForecastQuantity: 60},
		{SKU: "TSHRT-WHT-L", ForecastDate: mid(2026, time.May), ForecastQuantity: 60},
	}
	actuals := []domain.Transaction{
		{SKU: "TSHRT-BLK-M", Date: mid(2026, time.May), Quantity: 50},
		{SKU: "TSHRT-WHT-L", Date: mid(2026, time.May), Quantity: 60},
	}

	results, _ := NewEngine(domain.EntityModel).Compare(internal, external, actuals, nil)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.EntityID != "TSHRT" {
		t.Errorf("entity = %v, want TSHRT", r.EntityID)
	}
	// Sums: internal 110, external 120, actual 110 → internal exact.
	if math.Abs(r.InternalMAPE) > 1e-9 {
		t.Errorf("internal MAPE = %v, want 0", r.InternalMAPE)
	}
	if r.ProductType != domain.TypeRegular {
		t.Errorf("unknown entity type = %v, want regular default", r.ProductType)
	}
}

func TestCompareSkipsMonthsWithoutBothSources(t *testing.T) {
	internal := []domain.EntityForecast{{
		EntityID: "JACKT-NVY-L",
		Points:   []domain.ForecastPoint{{Period: "2026-05", Forecast: 10}},
	}}
	// No external forecast; no comparable month.
	actuals := []domain.Transaction{
		{SKU: "JACKT-NVY-L", Date: mid(2026, time.May), Quantity: 10},
	}

	results, _ := NewEngine(domain.EntitySKU).Compare(internal, nil, actuals, nil)
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestCompareTie(t *testing.T) {
	internal := []domain.EntityForecast{{
		EntityID: "PANTS-KHK-M",
		Points:   []domain.ForecastPoint{{Period: "2026-04", Forecast: 12}},
	}}
	external := []domain.ForecastRecord{
		{SKU: "PANTS-KHK-M", ForecastDate: mid(2026, time.April), ForecastQuantity: 8},
	}
	actuals := []domain.Transaction{
		{SKU: "PANTS-KHK-M", Date: mid(2026, time.April), Quantity: 10},
	}

	results, summaries := NewEngine(domain.EntitySKU).Compare(internal, external, actuals, nil)
	if len(results) != 1 || results[0].Winner != WinnerTie {
		t.Fatalf("results = %+v, want one tie", results)
	}
	if summaries[0].Ties != 1 {
		t.Errorf("summary = %+v", summaries[0])
	}
}
