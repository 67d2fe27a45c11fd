// internal/forecast/autoarima.go
package forecast

import (
	"fmt"
	"math"

	"github.com/apparelworks/demandplan/internal/domain"
)

// Stepwise search bounds. Matching pmdarima's defaults for monthly data.
const (
	autoMaxP  = 3
	autoMaxQ  = 3
	autoMaxD  = 2
	autoMaxSP = 2
	autoMaxSQ = 2
)

// chooseDifferencing picks d and D by minimizing the variance of the
// differenced series, the usual over-differencing guard.
func chooseDifferencing(series []float64) (d, D int) {
	variance := func(v []float64) float64 {
		if len(v) < 2 {
			return math.Inf(1)
		}
		m := 0.0
		for _, x := range v {
			m += x
		}
		m /= float64(len(v))
		ss := 0.0
		for _, x := range v {
			ss += (x - m) * (x - m)
		}
		return ss / float64(len(v)-1)
	}

	best := variance(series)
	w := series
	for cand := 1; cand <= autoMaxD; cand++ {
		w = difference(w, 1)
		if v := variance(w); v < best {
			best = v
			d = cand
		} else {
			break
		}
	}

	if len(series) >= 2*seasonalPeriod+d {
		base := series
		for i := 0; i < d; i++ {
			base = difference(base, 1)
		}
		if variance(difference(base, seasonalPeriod)) < variance(base) {
			D = 1
		}
	}
	return d, D
}

// autoARIMA runs a stepwise hill-climb over (p,q,P,Q) at the chosen
// differencing orders, scoring candidates by AIC.
func autoARIMA(series []float64, horizon int) (Frame, error) {
	if len(series) < 12 {
		return Frame{}, fmt.Errorf("auto arima: %w", domain.ErrInsufficientData)
	}

	d, D := chooseDifferencing(series)

	type key struct{ p, q, P, Q int }
	tried := make(map[key]float64)

	fit := func(k key) *arimaFitResult {
		if _, seen := tried[k]; seen {
			return nil
		}
		res, err := fitARIMA(series, arimaOrder{p: k.p, d: d, q: k.q, P: k.P, D: D, Q: k.Q, s: seasonalPeriod})
		if err != nil {
			tried[k] = math.Inf(1)
			return nil
		}
		tried[k] = res.aic
		return res
	}

	starts := []key{{1, 1, 1, 1}, {0, 0, 0, 0}, {2, 2, 1, 1}, {1, 0, 1, 0}}
	var best *arimaFitResult
	bestAIC := math.Inf(1)
	var bestKey key
	for _, k := range starts {
		if res := fit(k); res != nil && res.aic < bestAIC {
			best, bestAIC, bestKey = res, res.aic, k
		}
	}
	if best == nil {
		return Frame{}, fmt.Errorf("%w: no auto-arima candidate converged", domain.ErrModelFit)
	}

	// Hill-climb: move one order at a time until no neighbor improves.
	for improved := true; improved; {
		improved = false
		neighbors := []key{
			{bestKey.p + 1, bestKey.q, bestKey.P, bestKey.Q},
			{bestKey.p - 1, bestKey.q, bestKey.P, bestKey.Q},
			{bestKey.p, bestKey.q + 1, bestKey.P, bestKey.Q},
			{bestKey.p, bestKey.q - 1, bestKey.P, bestKey.Q},
			{bestKey.p, bestKey.q, bestKey.P + 1, bestKey.Q},
			{bestKey.p, bestKey.q, bestKey.P - 1, bestKey.Q},
			{bestKey.p, bestKey.q, bestKey.P, bestKey.Q + 1},
			{bestKey.p, bestKey.q, bestKey.P, bestKey.Q - 1},
		}
		for _, k := range neighbors {
			if k.p < 0 || k.p > autoMaxP || k.q < 0 || k.q > autoMaxQ ||
				k.P < 0 || k.P > autoMaxSP || k.Q < 0 || k.Q > autoMaxSQ {
				continue
			}
			if res := fit(k); res != nil && res.aic < bestAIC {
				best, bestAIC, bestKey = res, res.aic, k
				improved = true
			}
		}
	}

	values := best.forecast(series, horizon)
	frame := newFrame(horizon)
	for i, v := range values {
		spread := 1.96 * best.sigma * math.Sqrt(float64(i+1))
		frame.Forecast[i] = v
		frame.Lower[i] = v - spread
		frame.Upper[i] = v + spread
	}
	frame.clip()
	return frame, nil
}
