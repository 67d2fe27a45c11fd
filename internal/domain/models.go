// internal/domain/models.go
package domain

import "time"

// EntityType distinguishes the two analysis views: a full SKU or its 5-char model prefix.
type EntityType string

const (
	EntitySKU   EntityType = "sku"
	EntityModel EntityType = "model"
)

// ProductType is the demand-behavior class assigned by the classifier.
type ProductType string

const (
	TypeBasic    ProductType = "basic"
	TypeRegular  ProductType = "regular"
	TypeSeasonal ProductType = "seasonal"
	TypeNew      ProductType = "new"
)

// Transaction represents a single sale line. Immutable once ingested.
type Transaction struct {
	OrderID     string    `json:"order_id" db:"order_id"`
	Date        time.Time `json:"date" db:"date"`
	SKU         string    `json:"sku" db:"sku"`
	Quantity    int       `json:"quantity" db:"quantity"`
	UnitPrice   float64   `json:"unit_price" db:"unit_price"`
	TotalAmount float64   `json:"total_amount" db:"total_amount"`
}

// StockSnapshot is the on-hand stock for a SKU at a point in time.
type StockSnapshot struct {
	SKU            string    `json:"sku" db:"sku"`
	SnapshotDate   time.Time `json:"snapshot_date" db:"snapshot_date"`
	AvailableStock float64   `json:"available_stock" db:"available_stock"`
	NetPrice       float64   `json:"net_price" db:"net_price"`
	IsActive       bool      `json:"is_active" db:"is_active"`
}

// ForecastRecord is one externally supplied forecast row. Multiple generations
// may coexist; consumers select by GeneratedDate.
type ForecastRecord struct {
	GeneratedDate    time.Time `json:"generated_date" db:"generated_date"`
	ForecastDate     time.Time `json:"forecast_date" db:"forecast_date"`
	SKU              string    `json:"sku" db:"sku"`
	ForecastQuantity float64   `json:"forecast_quantity" db:"forecast_quantity"`
}

// SkuSummary is the derived per-entity summary driving classification and
// safety-stock math. StdDev is nil when the entity has a single observation.
type SkuSummary struct {
	EntityID        string      `json:"entity_id" db:"entity_id"`
	EntityType      EntityType  `json:"entity_type" db:"entity_type"`
	MonthsWithSales int         `json:"months_with_sales" db:"months_with_sales"`
	TotalQuantity   float64     `json:"total_quantity" db:"total_quantity"`
	AvgMonthlySales float64     `json:"avg_monthly_sales" db:"avg_monthly_sales"`
	StdDev          *float64    `json:"std_dev" db:"std_dev"`
	CV              float64     `json:"cv" db:"cv"`
	FirstSaleDate   time.Time   `json:"first_sale_date" db:"first_sale_date"`
	Type            ProductType `json:"type" db:"type"`

	SafetyStock  float64 `json:"safety_stock" db:"safety_stock"`
	ReorderPoint float64 `json:"reorder_point" db:"reorder_point"`

	// Seasonal entities additionally carry the in/out pair; the headline
	// SafetyStock/ReorderPoint hold whichever is active for the current month.
	SSInSeason     *float64 `json:"ss_in_season,omitempty" db:"ss_in_season"`
	SSOutOfSeason  *float64 `json:"ss_out_of_season,omitempty" db:"ss_out_of_season"`
	ROPInSeason    *float64 `json:"rop_in_season,omitempty" db:"rop_in_season"`
	ROPOutOfSeason *float64 `json:"rop_out_of_season,omitempty" db:"rop_out_of_season"`
}

// SeasonalIndex is one (sku, calendar month) seasonality row.
type SeasonalIndex struct {
	SKU           string  `json:"sku" db:"sku"`
	Month         int     `json:"month" db:"month"` // 1..12
	AvgSales      float64 `json:"avg_sales" db:"avg_sales"`
	SeasonalIndex float64 `json:"seasonal_index" db:"seasonal_index"`
	IsInSeason    bool    `json:"is_in_season" db:"is_in_season"`
}

// MonthlyBucket is one (entity, year-month) aggregation row.
type MonthlyBucket struct {
	EntityID       string  `json:"entity_id" db:"entity_id"`
	YearMonth      string  `json:"year_month" db:"year_month"` // YYYY-MM
	Quantity       float64 `json:"quantity" db:"quantity"`
	Revenue        float64 `json:"revenue" db:"revenue"`
	LineCount      int     `json:"line_count" db:"line_count"`
	DistinctOrders int     `json:"distinct_orders" db:"distinct_orders"`
	AvgUnitPrice   float64 `json:"avg_unit_price" db:"avg_unit_price"`
}

// ForecastPoint is one month of an entity forecast with its prediction interval.
type ForecastPoint struct {
	Period   string  `json:"period"` // YYYY-MM
	Forecast float64 `json:"forecast"`
	LowerCI  float64 `json:"lower_ci"`
	UpperCI  float64 `json:"upper_ci"`
}

// EntityForecast is the forecast for a single entity within a batch.
type EntityForecast struct {
	EntityID    string          `json:"entity_id"`
	EntityType  EntityType      `json:"entity_type"`
	Method      string          `json:"method"`
	ProductType ProductType     `json:"product_type"`
	CV          float64         `json:"cv"`
	Points      []ForecastPoint `json:"points"`
}

// ForecastBatch groups per-entity forecasts generated in one run.
type ForecastBatch struct {
	BatchID       string           `json:"batch_id"`
	GeneratedAt   time.Time        `json:"generated_at"`
	EntityType    EntityType       `json:"entity_type"`
	HorizonMonths int              `json:"horizon_months"`
	Forecasts     []EntityForecast `json:"forecasts"`
	Stats         BatchStats       `json:"stats"`
}

// BatchStats summarizes successes and failures of a batch operation.
// Per-entity failures are collected here instead of aborting the batch.
type BatchStats struct {
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	MethodsUsed map[string]int `json:"methods_used"`
	Errors      []EntityError  `json:"errors,omitempty"`
}

// EntityError records a per-entity failure inside a batch result.
type EntityError struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// TrainedModelMeta is the persisted metadata for a trained ML model. The
// serialized model itself is an opaque blob stored next to the metadata.
type TrainedModelMeta struct {
	EntityID          string             `json:"entity_id"`
	EntityType        EntityType         `json:"entity_type"`
	ModelType         string             `json:"model_type"`
	CVScore           float64            `json:"cv_score"`
	CVMetric          string             `json:"cv_metric"`
	FeatureNames      []string           `json:"feature_names"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ProductType       ProductType        `json:"product_type"`
	CV                float64            `json:"cv"`
	TrainedAt         time.Time          `json:"trained_at"`
}

// PriorityRow is one scored reorder-priority row, either per SKU or rolled up
// to (model, color).
type PriorityRow struct {
	EntityID         string      `json:"entity_id"`
	Model            string      `json:"model,omitempty"`
	Color            string      `json:"color,omitempty"`
	PriorityScore    float64     `json:"priority_score"`
	StockoutRisk     float64     `json:"stockout_risk"`
	RevenueImpact    float64     `json:"revenue_impact"`
	DemandForecast   float64     `json:"demand_forecast"`
	CoverageGap      float64     `json:"coverage_gap"`
	Stock            float64     `json:"stock"`
	ForecastLeadTime float64     `json:"forecast_leadtime"`
	Deficit          float64     `json:"deficit"`
	IsUrgent         bool        `json:"is_urgent"`
	TypeMultiplier   float64     `json:"type_multiplier"`
	Type             ProductType `json:"type"`
	Facility         string      `json:"facility,omitempty"`
}

// AccuracyMetrics are the per-entity forecast error statistics computed over
// had-stock days only.
type AccuracyMetrics struct {
	EntityID          string      `json:"entity_id"`
	ProductType       ProductType `json:"product_type"`
	MAPE              float64     `json:"mape"`
	Bias              float64     `json:"bias"`
	MAE               float64     `json:"mae"`
	RMSE              float64     `json:"rmse"`
	TotalForecast     float64     `json:"total_forecast"`
	TotalActual       float64     `json:"total_actual"`
	MissedOpportunity float64     `json:"missed_opportunity"`
	DaysEvaluated     int         `json:"days_evaluated"`
	StockoutDays      int         `json:"stockout_days"`
}
