package season

import (
	"math"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

var now = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func newDetector() *Detector {
	return New(1.2).WithClock(func() time.Time { return now })
}

// monthlyTx emits one transaction per month covering the given quantities,
// ending the month before now.
func monthlyTx(skuID string, quantities []float64) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(quantities))
	start := now.AddDate(0, -len(quantities), 0)
	for i, q := range quantities {
		d := start.AddDate(0, i, 0)
		txs = append(txs, domain.Transaction{
			OrderID:  "o",
			Date:     d,
			SKU:      skuID,
			Quantity: int(q),
		})
	}
	return txs
}

func TestDetectDecemberPeak(t *testing.T) {
	// 24 months: 100/month except the two Decembers at 180.
	quantities := make([]float64, 24)
	start := now.AddDate(0, -24, 0)
	for i := range quantities {
		if start.AddDate(0, i, 0).Month() == time.December {
			quantities[i] = 180
		} else {
			quantities[i] = 100
		}
	}

	rows := newDetector().Detect(monthlyTx("AB12345XS", quantities))

	var dec *domain.SeasonalIndex
	for i := range rows {
		if rows[i].Month == 12 {
			dec = &rows[i]
		}
	}
	if dec == nil {
		t.Fatal("no December row")
	}

	overall := (22*100.0 + 2*180.0) / 24.0
	wantIdx := 180.0 / overall
	if math.Abs(dec.SeasonalIndex-wantIdx) > 1e-9 {
		t.Errorf("december index = %v, want %v", dec.SeasonalIndex, wantIdx)
	}
	if !dec.IsInSeason {
		t.Error("december should be in season")
	}

	idx := BuildIndex(rows)
	if !idx.IsInSeason("AB12345XS", 12) {
		t.Error("index lookup should report december in season")
	}
	if idx.IsInSeason("AB12345XS", 6) {
		t.Error("june should be out of season")
	}
}

func TestDetectInsufficientData(t *testing.T) {
	// One month of data: never seasonal regardless of index.
	rows := newDetector().Detect(monthlyTx("CD99901XL", []float64{500}))
	for _, r := range rows {
		if r.IsInSeason {
			t.Errorf("sku with <2 months marked in-season for month %d", r.Month)
		}
	}
}

func TestDetectIgnoresOldTransactions(t *testing.T) {
	old := domain.Transaction{
		OrderID:  "o",
		Date:     now.AddDate(0, 0, -800),
		SKU:      "AB12345XS",
		Quantity: 9999,
	}
	rows := newDetector().Detect([]domain.Transaction{old})
	if len(rows) != 0 {
		t.Errorf("transactions outside the 730-day window should be ignored, got %d rows", len(rows))
	}
}

func TestIndexUnknownSKU(t *testing.T) {
	idx := BuildIndex(nil)
	if idx.IsInSeason("ZZ99999XX", 12) {
		t.Error("unknown sku should never be in season")
	}
}
