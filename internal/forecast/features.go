// internal/forecast/features.go
package forecast

import (
	"math"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/timeseries"
)

// FeatureNames lists the ML feature columns in construction order.
var FeatureNames = []string{
	"month", "quarter", "month_sin", "month_cos",
	"lag_1", "lag_2", "lag_3", "lag_6", "lag_12",
	"roll_mean_3", "roll_std_3",
	"roll_mean_6", "roll_std_6",
	"roll_mean_12", "roll_std_12",
	"yoy_diff", "yoy_pct",
	"product_type", "cv",
}

var lagOffsets = []int{1, 2, 3, 6, 12}
var rollWindows = []int{3, 6, 12}

// productTypeCode encodes the demand class as an ordinal feature.
// Unknown types fall back to regular.
func productTypeCode(t domain.ProductType) float64 {
	switch t {
	case domain.TypeBasic:
		return 0
	case domain.TypeRegular:
		return 1
	case domain.TypeSeasonal:
		return 2
	case domain.TypeNew:
		return 3
	default:
		return 1
	}
}

// FeatureSet is a training design matrix with its aligned targets.
type FeatureSet struct {
	X [][]float64
	Y []float64
}

// featureRow builds the feature vector for position t of the series. values
// holds the history available up to (and including) t-1 for lag features;
// month is the calendar month of period t. Entries that cannot be computed
// are NaN and cause the row to be dropped during training.
func featureRow(values []float64, t int, month int, productType domain.ProductType, cv float64) []float64 {
	row := make([]float64, 0, len(FeatureNames))

	quarter := float64((month-1)/3 + 1)
	row = append(row,
		float64(month),
		quarter,
		math.Sin(2*math.Pi*float64(month)/12),
		math.Cos(2*math.Pi*float64(month)/12),
	)

	lagAt := func(offset int) float64 {
		idx := t - offset
		if idx < 0 || idx >= len(values) {
			return math.NaN()
		}
		return values[idx]
	}
	for _, offset := range lagOffsets {
		row = append(row, lagAt(offset))
	}

	// Rolling stats over the trailing window ending at t-1, min_periods=1.
	for _, w := range rollWindows {
		start := t - w
		if start < 0 {
			start = 0
		}
		end := t
		if end > len(values) {
			end = len(values)
		}
		window := values[start:end]
		if len(window) == 0 {
			row = append(row, math.NaN(), math.NaN())
			continue
		}
		mean := timeseries.Mean(window)
		std := 0.0
		if sd := timeseries.StdDev(window); sd != nil {
			std = *sd
		}
		row = append(row, mean, std)
	}

	// Year over year, with inf and NaN collapsed to 0 for the pct change.
	prev := lagAt(12)
	cur := lagAt(0)
	if math.IsNaN(prev) || math.IsNaN(cur) {
		row = append(row, math.NaN(), 0)
	} else {
		diff := cur - prev
		pct := 0.0
		if prev != 0 {
			pct = diff / prev
		}
		if math.IsInf(pct, 0) || math.IsNaN(pct) {
			pct = 0
		}
		row = append(row, diff, pct)
	}

	row = append(row, productTypeCode(productType), cv)
	return row
}

// BuildFeatures constructs the training set for a monthly series. months[i]
// holds the calendar month (1..12) of series[i]. Rows with any NaN feature
// are dropped.
func BuildFeatures(series []float64, months []int, productType domain.ProductType, cv float64) FeatureSet {
	fs := FeatureSet{}
	for t := range series {
		row := featureRow(series, t, months[t], productType, cv)
		if hasNaN(row) {
			continue
		}
		fs.X = append(fs.X, row)
		fs.Y = append(fs.Y, series[t])
	}
	return fs
}

// predictionRow builds the feature vector for the next future step given the
// extended history. The extension appends the last observed value as a
// placeholder for lag inputs, so features stay defined without feeding the
// model its own predictions.
func predictionRow(extended []float64, month int, productType domain.ProductType, cv float64) []float64 {
	row := featureRow(extended, len(extended), month, productType, cv)
	// Replace any remaining NaN lags with the series tail so prediction never fails.
	tail := 0.0
	if len(extended) > 0 {
		tail = extended[len(extended)-1]
	}
	for i, v := range row {
		if math.IsNaN(v) {
			row[i] = tail
		}
	}
	return row
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
