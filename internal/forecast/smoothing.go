// internal/forecast/smoothing.go
package forecast

import (
	"fmt"
	"math"

	"github.com/apparelworks/demandplan/internal/domain"
)

const seasonalPeriod = 12

// minSeasonalLength is the history needed before seasonal components engage.
const minSeasonalLength = 24

// hwState is the end state of a fitted exponential-smoothing model.
type hwState struct {
	level    float64
	trend    float64
	seasonal []float64 // empty when the model is non-seasonal
	phi      float64   // damping, 1 = undamped
	sigma    float64   // residual std dev
	n        int
}

// fitSmoothing fits additive exponential smoothing (optionally seasonal and
// damped) by a coarse grid search over the smoothing constants, minimizing the
// one-step-ahead squared error.
func fitSmoothing(series []float64, seasonal, damped bool) (hwState, error) {
	if len(series) < 2 {
		return hwState{}, fmt.Errorf("smoothing: %w", domain.ErrInsufficientData)
	}
	if seasonal && len(series) < 2*seasonalPeriod {
		seasonal = false
	}

	alphas := []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	betas := []float64{0.01, 0.05, 0.1, 0.3}
	gammas := []float64{0.05, 0.1, 0.3}
	phis := []float64{1}
	if damped {
		phis = []float64{0.8, 0.9, 0.98}
	}
	if !seasonal {
		gammas = []float64{0}
	}

	best := hwState{}
	bestSSE := math.Inf(1)
	for _, a := range alphas {
		for _, b := range betas {
			for _, g := range gammas {
				for _, phi := range phis {
					state, sse := runSmoothing(series, a, b, g, phi, seasonal)
					if sse < bestSSE {
						bestSSE = sse
						best = state
					}
				}
			}
		}
	}

	if math.IsInf(bestSSE, 1) || math.IsNaN(bestSSE) {
		return hwState{}, fmt.Errorf("smoothing grid search diverged: %w", domain.ErrModelFit)
	}
	return best, nil
}

// runSmoothing executes one smoothing pass and returns the end state and the
// sum of squared one-step errors.
func runSmoothing(series []float64, alpha, beta, gamma, phi float64, seasonal bool) (hwState, float64) {
	n := len(series)

	level := series[0]
	trend := 0.0
	if n > 1 {
		trend = series[1] - series[0]
	}

	var seasonals []float64
	if seasonal {
		seasonals = initialSeasonals(series)
	}

	sse := 0.0
	count := 0
	for t := 1; t < n; t++ {
		var predicted float64
		if seasonal {
			predicted = level + phi*trend + seasonals[t%seasonalPeriod]
		} else {
			predicted = level + phi*trend
		}
		err := series[t] - predicted
		sse += err * err
		count++

		prevLevel := level
		if seasonal {
			level = alpha*(series[t]-seasonals[t%seasonalPeriod]) + (1-alpha)*(level+phi*trend)
			seasonals[t%seasonalPeriod] = gamma*(series[t]-level) + (1-gamma)*seasonals[t%seasonalPeriod]
		} else {
			level = alpha*series[t] + (1-alpha)*(level+phi*trend)
		}
		trend = beta*(level-prevLevel) + (1-beta)*phi*trend
	}

	sigma := 0.0
	if count > 0 {
		sigma = math.Sqrt(sse / float64(count))
	}

	return hwState{
		level:    level,
		trend:    trend,
		seasonal: seasonals,
		phi:      phi,
		sigma:    sigma,
		n:        n,
	}, sse
}

// initialSeasonals seeds the additive seasonal components from per-month
// deviations against the series mean.
func initialSeasonals(series []float64) []float64 {
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	sums := make([]float64, seasonalPeriod)
	counts := make([]int, seasonalPeriod)
	for t, v := range series {
		sums[t%seasonalPeriod] += v - mean
		counts[t%seasonalPeriod]++
	}

	out := make([]float64, seasonalPeriod)
	for i := range out {
		if counts[i] > 0 {
			out[i] = sums[i] / float64(counts[i])
		}
	}
	return out
}

// forecastFrom extends a fitted state h steps ahead.
func (s hwState) forecastFrom(horizon int) []float64 {
	out := make([]float64, horizon)
	dampSum := 0.0
	for h := 1; h <= horizon; h++ {
		dampSum += math.Pow(s.phi, float64(h))
		v := s.level + dampSum*s.trend
		if len(s.seasonal) > 0 {
			v += s.seasonal[(s.n+h-1)%seasonalPeriod]
		}
		out[h-1] = v
	}
	return out
}

// expSmoothing forecasts with additive-trend exponential smoothing, adding an
// additive seasonal component once two full years of history exist. The
// interval is forecast ± 1.96 residual sigma.
func expSmoothing(series []float64, horizon int) (Frame, error) {
	state, err := fitSmoothing(series, len(series) >= minSeasonalLength, false)
	if err != nil {
		return Frame{}, err
	}

	values := state.forecastFrom(horizon)
	frame := newFrame(horizon)
	for i, v := range values {
		frame.Forecast[i] = v
		frame.Lower[i] = v - 1.96*state.sigma
		frame.Upper[i] = v + 1.96*state.sigma
	}
	frame.clip()
	return frame, nil
}

// holtWinters forecasts with damped additive trend and, given two full years
// of history, additive seasonality. Interval width grows with the horizon.
func holtWinters(series []float64, horizon int) (Frame, error) {
	state, err := fitSmoothing(series, len(series) >= minSeasonalLength, true)
	if err != nil {
		return Frame{}, err
	}

	values := state.forecastFrom(horizon)
	frame := newFrame(horizon)
	for i, v := range values {
		spread := 1.96 * state.sigma * math.Sqrt(float64(i+1))
		frame.Forecast[i] = v
		frame.Lower[i] = v - spread
		frame.Upper[i] = v + spread
	}
	frame.clip()
	return frame, nil
}
