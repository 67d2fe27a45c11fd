// internal/timeseries/series.go
package timeseries

import (
	"fmt"
	"math"
	"time"
)

// Point is one month of an entity's demand series.
type Point struct {
	YearMonth string // YYYY-MM
	Value     float64
}

// ParseYearMonth parses a YYYY-MM period into the first day of that month (UTC).
func ParseYearMonth(ym string) (time.Time, error) {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: %w", ym, err)
	}
	return t, nil
}

// FormatYearMonth renders t as a YYYY-MM period.
func FormatYearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// AddMonths shifts a YYYY-MM period by n months.
func AddMonths(ym string, n int) (string, error) {
	t, err := ParseYearMonth(ym)
	if err != nil {
		return "", err
	}
	return FormatYearMonth(t.AddDate(0, n, 0)), nil
}

// FillMissingMonths zero-fills the gaps between the first and last observed
// month so the series has one point per month. Applying it twice is a no-op.
func FillMissingMonths(points []Point) ([]Point, error) {
	if len(points) == 0 {
		return points, nil
	}

	byMonth := make(map[string]float64, len(points))
	first, last := points[0].YearMonth, points[0].YearMonth
	for _, p := range points {
		byMonth[p.YearMonth] = p.Value
		if p.YearMonth < first {
			first = p.YearMonth
		}
		if p.YearMonth > last {
			last = p.YearMonth
		}
	}

	start, err := ParseYearMonth(first)
	if err != nil {
		return nil, err
	}
	end, err := ParseYearMonth(last)
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(points))
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		ym := FormatYearMonth(cur)
		out = append(out, Point{YearMonth: ym, Value: byMonth[ym]})
	}
	return out, nil
}

// Values extracts the value column of a series.
func Values(points []Point) []float64 {
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Value
	}
	return vals
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// StdDev returns the sample standard deviation, or nil when fewer than two
// observations exist.
func StdDev(vals []float64) *float64 {
	if len(vals) < 2 {
		return nil
	}
	mean := Mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(vals)-1))
	return &sd
}

// CV returns the coefficient of variation (std / mean), 0 when the mean is 0
// or the std is unknown.
func CV(vals []float64) float64 {
	mean := Mean(vals)
	sd := StdDev(vals)
	if mean <= 0 || sd == nil {
		return 0
	}
	return *sd / mean
}
