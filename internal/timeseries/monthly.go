// internal/timeseries/monthly.go
package timeseries

import (
	"sort"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/sku"
)

// AggregateMonthly groups transactions into (entity, year-month) buckets with
// quantity and revenue sums, line counts, distinct order counts and the average
// unit price. The entity id is the SKU itself or its 5-char model prefix
// depending on the requested view.
func AggregateMonthly(txs []domain.Transaction, entityType domain.EntityType) []domain.MonthlyBucket {
	type key struct {
		entity string
		ym     string
	}

	type acc struct {
		qty      float64
		revenue  float64
		lines    int
		orders   map[string]struct{}
		priceSum float64
	}

	buckets := make(map[key]*acc)
	for _, tx := range txs {
		k := key{
			entity: sku.EntityID(tx.SKU, entityType),
			ym:     tx.Date.Format("2006-01"),
		}
		a, ok := buckets[k]
		if !ok {
			a = &acc{orders: make(map[string]struct{})}
			buckets[k] = a
		}
		a.qty += float64(tx.Quantity)
		a.revenue += tx.TotalAmount
		a.lines++
		a.orders[tx.OrderID] = struct{}{}
		a.priceSum += tx.UnitPrice
	}

	out := make([]domain.MonthlyBucket, 0, len(buckets))
	for k, a := range buckets {
		avgPrice := 0.0
		if a.lines > 0 {
			avgPrice = a.priceSum / float64(a.lines)
		}
		out = append(out, domain.MonthlyBucket{
			EntityID:       k.entity,
			YearMonth:      k.ym,
			Quantity:       a.qty,
			Revenue:        a.revenue,
			LineCount:      a.lines,
			DistinctOrders: len(a.orders),
			AvgUnitPrice:   avgPrice,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].YearMonth < out[j].YearMonth
	})

	return out
}

// GroupByEntity splits monthly buckets into per-entity series, preserving
// chronological order within each entity.
func GroupByEntity(buckets []domain.MonthlyBucket) map[string][]Point {
	series := make(map[string][]Point)
	for _, b := range buckets {
		series[b.EntityID] = append(series[b.EntityID], Point{YearMonth: b.YearMonth, Value: b.Quantity})
	}
	for id := range series {
		pts := series[id]
		sort.Slice(pts, func(i, j int) bool { return pts[i].YearMonth < pts[j].YearMonth })
		series[id] = pts
	}
	return series
}
