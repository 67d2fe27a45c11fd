// internal/forecast/method.go
package forecast

// Method identifies a forecasting method. The set is closed: the selector and
// the fallback chain switch on these values, never on concrete types.
type Method string

const (
	MethodMovingAvg    Method = "moving_avg"
	MethodExpSmoothing Method = "exp_smoothing"
	MethodHoltWinters  Method = "holt_winters"
	MethodSARIMA       Method = "sarima"
	MethodAutoARIMA    Method = "auto_arima"

	MethodGradientBoost Method = "ml:gradient_boost"
	MethodRandomForest  Method = "ml:random_forest"
	MethodRidge         Method = "ml:ridge"
	MethodLasso         Method = "ml:lasso"
)

// IsML reports whether the method is a machine-learning candidate.
func (m Method) IsML() bool {
	return len(m) > 3 && m[:3] == "ml:"
}

// Valid reports whether m is a member of the closed method set.
func (m Method) Valid() bool {
	switch m {
	case MethodMovingAvg, MethodExpSmoothing, MethodHoltWinters, MethodSARIMA, MethodAutoARIMA,
		MethodGradientBoost, MethodRandomForest, MethodRidge, MethodLasso:
		return true
	}
	return false
}

// Frame is a raw forecast: one slice entry per horizon month. Invariant:
// 0 <= Lower[i] <= Forecast[i] <= Upper[i].
type Frame struct {
	Forecast []float64
	Lower    []float64
	Upper    []float64
}

// clip floors every column of the frame at zero and repairs interval ordering.
func (f *Frame) clip() {
	for i := range f.Forecast {
		if f.Forecast[i] < 0 {
			f.Forecast[i] = 0
		}
		if f.Lower[i] < 0 {
			f.Lower[i] = 0
		}
		if f.Upper[i] < 0 {
			f.Upper[i] = 0
		}
		if f.Lower[i] > f.Forecast[i] {
			f.Lower[i] = f.Forecast[i]
		}
		if f.Upper[i] < f.Forecast[i] {
			f.Upper[i] = f.Forecast[i]
		}
	}
}

func newFrame(horizon int) Frame {
	return Frame{
		Forecast: make([]float64, horizon),
		Lower:    make([]float64, horizon),
		Upper:    make([]float64, horizon),
	}
}
