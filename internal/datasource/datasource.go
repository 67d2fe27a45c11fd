// Package datasource is the seam between the planning core and storage. The
// core only ever sees the DataSource interface; CSV files and Postgres are
// interchangeable behind it.
package datasource

import (
	"context"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

// TimeRange bounds a load. Nil endpoints mean unbounded.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

func (r TimeRange) contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// Aliases maps raw source spellings to canonical names, e.g. size labels or
// color codes that differ between outlets.
type Aliases map[string]string

// Resolve returns the canonical spelling, or the input unchanged when no
// alias is registered.
func (a Aliases) Resolve(raw string) string {
	if canonical, ok := a[raw]; ok {
		return canonical
	}
	return raw
}

// DataSource supplies the primary inputs of the planning engine. Derived
// artifacts (summaries, priorities, aggregations) are computed and cached by
// the service layer on top of these loads.
type DataSource interface {
	LoadSalesData(ctx context.Context, r TimeRange) ([]domain.Transaction, error)
	LoadStockData(ctx context.Context, date *time.Time) ([]domain.StockSnapshot, error)
	LoadStockHistory(ctx context.Context, r TimeRange) ([]domain.StockSnapshot, error)
	LoadForecastData(ctx context.Context, generatedDate *time.Time) ([]domain.ForecastRecord, error)
	LoadPatternSets(ctx context.Context) ([]domain.PatternSet, error)
	LoadSizeAliases(ctx context.Context) (Aliases, error)
	LoadColorAliases(ctx context.Context) (Aliases, error)
	LoadCategoryMappings(ctx context.Context) (Aliases, error)
	LoadOutletModels(ctx context.Context) ([]string, error)
}

// BatchWriter persists internal forecast batches. Implemented by the
// Postgres source; file-backed deployments skip persistence.
type BatchWriter interface {
	SaveForecastBatch(ctx context.Context, batch *domain.ForecastBatch) error
}
