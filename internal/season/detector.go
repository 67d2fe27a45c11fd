// internal/season/detector.go
package season

import (
	"sort"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

// lookbackDays is the transaction window the detector considers.
const lookbackDays = 730

// Detector computes per-month seasonal indices from raw transactions.
type Detector struct {
	inSeasonThreshold float64
	now               func() time.Time
}

// New builds a detector with the given in-season threshold (index above which
// a calendar month counts as in-season).
func New(inSeasonThreshold float64) *Detector {
	return &Detector{
		inSeasonThreshold: inSeasonThreshold,
		now:               time.Now,
	}
}

// WithClock fixes the reference time for the look-back window.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect returns one SeasonalIndex row per (sku, observed calendar month).
// A SKU with fewer than two distinct months of data in the window is treated
// as not seasonal for any month.
func (d *Detector) Detect(txs []domain.Transaction) []domain.SeasonalIndex {
	cutoff := d.now().AddDate(0, 0, -lookbackDays)

	// Monthly totals per SKU within the window.
	type ymKey struct {
		sku string
		ym  string
	}
	monthly := make(map[ymKey]float64)
	for _, tx := range txs {
		if tx.Date.Before(cutoff) {
			continue
		}
		k := ymKey{sku: tx.SKU, ym: tx.Date.Format("2006-01")}
		monthly[k] += float64(tx.Quantity)
	}

	// Per-SKU: overall mean of monthly totals and per calendar-month means.
	type monthAgg struct {
		sum   float64
		count int
	}
	perSKUMonth := make(map[string]map[int]*monthAgg)
	perSKUTotal := make(map[string]*monthAgg)
	for k, qty := range monthly {
		t, err := time.Parse("2006-01", k.ym)
		if err != nil {
			continue
		}
		mon := int(t.Month())

		if perSKUMonth[k.sku] == nil {
			perSKUMonth[k.sku] = make(map[int]*monthAgg)
		}
		if perSKUMonth[k.sku][mon] == nil {
			perSKUMonth[k.sku][mon] = &monthAgg{}
		}
		perSKUMonth[k.sku][mon].sum += qty
		perSKUMonth[k.sku][mon].count++

		if perSKUTotal[k.sku] == nil {
			perSKUTotal[k.sku] = &monthAgg{}
		}
		perSKUTotal[k.sku].sum += qty
		perSKUTotal[k.sku].count++
	}

	out := make([]domain.SeasonalIndex, 0)
	for skuID, months := range perSKUMonth {
		total := perSKUTotal[skuID]
		insufficient := total.count < 2
		overallMean := 0.0
		if total.count > 0 {
			overallMean = total.sum / float64(total.count)
		}

		for mon, agg := range months {
			avg := agg.sum / float64(agg.count)
			idx := 0.0
			if overallMean > 0 {
				idx = avg / overallMean
			}
			row := domain.SeasonalIndex{
				SKU:           skuID,
				Month:         mon,
				AvgSales:      avg,
				SeasonalIndex: idx,
				IsInSeason:    !insufficient && idx > d.inSeasonThreshold,
			}
			out = append(out, row)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].Month < out[j].Month
	})

	return out
}

// Index groups seasonal rows by SKU for month lookups.
type Index map[string]map[int]domain.SeasonalIndex

// BuildIndex converts detector output into a lookup structure.
func BuildIndex(rows []domain.SeasonalIndex) Index {
	idx := make(Index)
	for _, r := range rows {
		if idx[r.SKU] == nil {
			idx[r.SKU] = make(map[int]domain.SeasonalIndex)
		}
		idx[r.SKU][r.Month] = r
	}
	return idx
}

// IsInSeason reports whether the given calendar month is in-season for the SKU.
// Unknown SKUs or months are out of season.
func (idx Index) IsInSeason(skuID string, month int) bool {
	months, ok := idx[skuID]
	if !ok {
		return false
	}
	row, ok := months[month]
	return ok && row.IsInSeason
}
