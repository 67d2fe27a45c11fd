package timeseries

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

func tx(order, skuID string, day string, qty int, price float64) domain.Transaction {
	d, _ := time.Parse("2006-01-02", day)
	return domain.Transaction{
		OrderID:     order,
		Date:        d,
		SKU:         skuID,
		Quantity:    qty,
		UnitPrice:   price,
		TotalAmount: float64(qty) * price,
	}
}

func TestAggregateMonthlySKUView(t *testing.T) {
	txs := []domain.Transaction{
		tx("o1", "AB12345XS", "2025-01-05", 2, 10),
		tx("o1", "AB12345XS", "2025-01-20", 3, 10),
		tx("o2", "AB12345XS", "2025-02-01", 1, 12),
		tx("o3", "CD99901XL", "2025-01-15", 4, 20),
	}

	buckets := AggregateMonthly(txs, domain.EntitySKU)
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}

	first := buckets[0]
	if first.EntityID != "AB12345XS" || first.YearMonth != "2025-01" {
		t.Fatalf("unexpected first bucket: %+v", first)
	}
	if first.Quantity != 5 || first.LineCount != 2 || first.DistinctOrders != 1 {
		t.Errorf("bad aggregation: %+v", first)
	}
	if first.Revenue != 50 {
		t.Errorf("revenue = %v, want 50", first.Revenue)
	}
}

func TestAggregateMonthlyModelView(t *testing.T) {
	txs := []domain.Transaction{
		tx("o1", "AB12345XS", "2025-01-05", 2, 10),
		tx("o2", "AB12367XL", "2025-01-06", 3, 10),
	}

	buckets := AggregateMonthly(txs, domain.EntityModel)
	if len(buckets) != 1 {
		t.Fatalf("expected sizes and colors to collapse into one model bucket, got %d", len(buckets))
	}
	if buckets[0].EntityID != "AB123" || buckets[0].Quantity != 5 {
		t.Errorf("unexpected model bucket: %+v", buckets[0])
	}
}

func TestFillMissingMonths(t *testing.T) {
	in := []Point{
		{YearMonth: "2024-11", Value: 3},
		{YearMonth: "2025-02", Value: 7},
	}

	filled, err := FillMissingMonths(in)
	if err != nil {
		t.Fatal(err)
	}

	want := []Point{
		{YearMonth: "2024-11", Value: 3},
		{YearMonth: "2024-12", Value: 0},
		{YearMonth: "2025-01", Value: 0},
		{YearMonth: "2025-02", Value: 7},
	}
	if !reflect.DeepEqual(filled, want) {
		t.Errorf("filled = %v, want %v", filled, want)
	}

	// Idempotence
	again, err := FillMissingMonths(filled)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again, filled) {
		t.Errorf("FillMissingMonths is not idempotent: %v vs %v", again, filled)
	}
}

func TestStats(t *testing.T) {
	vals := []float64{48, 52, 50, 46, 54}
	if m := Mean(vals); m != 50 {
		t.Errorf("mean = %v, want 50", m)
	}
	sd := StdDev(vals)
	if sd == nil {
		t.Fatal("expected non-nil std dev")
	}
	if math.Abs(*sd-3.1623) > 0.001 {
		t.Errorf("std = %v, want ~3.1623", *sd)
	}
	if cv := CV(vals); math.Abs(cv-*sd/50) > 1e-12 {
		t.Errorf("cv = %v", cv)
	}
}

func TestStatsSingleObservation(t *testing.T) {
	vals := []float64{42}
	if sd := StdDev(vals); sd != nil {
		t.Errorf("expected nil std dev for single observation, got %v", *sd)
	}
	if cv := CV(vals); cv != 0 {
		t.Errorf("cv = %v, want 0", cv)
	}
}
