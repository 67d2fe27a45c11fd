// internal/timeseries/summary.go
package timeseries

import (
	"sort"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/sku"
)

// BuildSummaries derives one SkuSummary row per entity from raw transactions.
// Statistics are computed over the entity's zero-filled active range (first to
// last observed month), so quiet months depress the average and raise the CV.
// Type and safety-stock fields are left for the classifier and calculator.
func BuildSummaries(txs []domain.Transaction, entityType domain.EntityType) ([]domain.SkuSummary, error) {
	buckets := AggregateMonthly(txs, entityType)
	series := GroupByEntity(buckets)

	firstSale := make(map[string]time.Time)
	for _, tx := range txs {
		id := sku.EntityID(tx.SKU, entityType)
		if cur, ok := firstSale[id]; !ok || tx.Date.Before(cur) {
			firstSale[id] = tx.Date
		}
	}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.SkuSummary, 0, len(ids))
	for _, id := range ids {
		filled, err := FillMissingMonths(series[id])
		if err != nil {
			return nil, err
		}
		vals := Values(filled)

		monthsWithSales := 0
		total := 0.0
		for _, v := range vals {
			if v > 0 {
				monthsWithSales++
			}
			total += v
		}

		out = append(out, domain.SkuSummary{
			EntityID:        id,
			EntityType:      entityType,
			MonthsWithSales: monthsWithSales,
			TotalQuantity:   total,
			AvgMonthlySales: Mean(vals),
			StdDev:          StdDev(vals),
			CV:              CV(vals),
			FirstSaleDate:   firstSale[id],
		})
	}

	return out, nil
}
