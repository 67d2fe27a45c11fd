// internal/forecast/arima.go
package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/apparelworks/demandplan/internal/domain"
)

// arimaOrder is a full seasonal ARIMA specification (p,d,q)(P,D,Q)s.
type arimaOrder struct {
	p, d, q int
	P, D, Q int
	s       int
}

func (o arimaOrder) numParams() int { return o.p + o.q + o.P + o.Q }

// arimaFitResult holds the conditional-sum-of-squares fit of a seasonal ARIMA.
type arimaFitResult struct {
	order     arimaOrder
	arPoly    []float64 // expanded AR polynomial, index = lag, arPoly[0] = 1
	maPoly    []float64 // expanded MA polynomial, index = lag, maPoly[0] = 1
	residuals []float64 // aligned with the differenced series (zeros in warmup)
	sigma     float64
	sse       float64
	aic       float64
}

// difference applies one differencing pass at the given lag.
func difference(series []float64, lag int) []float64 {
	if len(series) <= lag {
		return nil
	}
	out := make([]float64, len(series)-lag)
	for i := range out {
		out[i] = series[i+lag] - series[i]
	}
	return out
}

// polyConv multiplies two lag polynomials given as coefficient slices.
func polyConv(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// lagPoly builds (1 - c1 B^s - c2 B^2s - ...) for AR, or (1 + c1 B^s + ...)
// for MA, from raw coefficients.
func lagPoly(coefs []float64, s int, ma bool) []float64 {
	out := make([]float64, len(coefs)*s+1)
	out[0] = 1
	for i, c := range coefs {
		if ma {
			out[(i+1)*s] = c
		} else {
			out[(i+1)*s] = -c
		}
	}
	return out
}

// cssResiduals computes the conditional-sum-of-squares residuals of the
// expanded ARMA recursion over the differenced series w.
func cssResiduals(w, arPoly, maPoly []float64) ([]float64, float64) {
	n := len(w)
	e := make([]float64, n)
	warmup := len(arPoly) - 1
	if len(maPoly)-1 > warmup {
		warmup = len(maPoly) - 1
	}

	sse := 0.0
	count := 0
	for t := warmup; t < n; t++ {
		v := 0.0
		for k := 0; k < len(arPoly); k++ {
			v += arPoly[k] * w[t-k]
		}
		for m := 1; m < len(maPoly); m++ {
			v -= maPoly[m] * e[t-m]
		}
		e[t] = v
		sse += v * v
		count++
	}
	if count == 0 {
		return e, math.Inf(1)
	}
	return e, sse
}

// fitARIMA estimates a seasonal ARIMA by CSS with Nelder-Mead over the raw
// coefficients, each squashed through tanh to keep the fit inside the
// stationarity/invertibility box.
func fitARIMA(series []float64, order arimaOrder) (*arimaFitResult, error) {
	w := series
	for i := 0; i < order.d; i++ {
		w = difference(w, 1)
	}
	for i := 0; i < order.D; i++ {
		w = difference(w, order.s)
	}

	maxLag := order.p + order.P*order.s
	if order.q+order.Q*order.s > maxLag {
		maxLag = order.q + order.Q*order.s
	}
	if len(w) < maxLag+5 {
		return nil, fmt.Errorf("arima(%d,%d,%d)(%d,%d,%d)%d: %w",
			order.p, order.d, order.q, order.P, order.D, order.Q, order.s, domain.ErrInsufficientData)
	}

	expand := func(x []float64) (arPoly, maPoly []float64) {
		squash := func(raw []float64) []float64 {
			out := make([]float64, len(raw))
			for i, v := range raw {
				out[i] = 0.98 * math.Tanh(v)
			}
			return out
		}
		idx := 0
		phi := squash(x[idx : idx+order.p])
		idx += order.p
		theta := squash(x[idx : idx+order.q])
		idx += order.q
		sphi := squash(x[idx : idx+order.P])
		idx += order.P
		stheta := squash(x[idx : idx+order.Q])

		arPoly = polyConv(lagPoly(phi, 1, false), lagPoly(sphi, order.s, false))
		maPoly = polyConv(lagPoly(theta, 1, true), lagPoly(stheta, order.s, true))
		return arPoly, maPoly
	}

	k := order.numParams()
	var best []float64
	if k == 0 {
		best = nil
	} else {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				arPoly, maPoly := expand(x)
				_, sse := cssResiduals(w, arPoly, maPoly)
				if math.IsNaN(sse) {
					return math.Inf(1)
				}
				return sse
			},
		}

		x0 := make([]float64, k)
		result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%w: arima css minimization: %v", domain.ErrModelFit, err)
		}
		best = result.X
	}

	arPoly, maPoly := expand(best)
	residuals, sse := cssResiduals(w, arPoly, maPoly)
	if math.IsInf(sse, 1) || math.IsNaN(sse) {
		return nil, fmt.Errorf("%w: arima css produced no finite residuals", domain.ErrModelFit)
	}

	nEff := float64(len(w))
	sigma := math.Sqrt(sse / nEff)
	aic := nEff*math.Log(sse/nEff+1e-12) + 2*float64(k+1)

	return &arimaFitResult{
		order:     order,
		arPoly:    arPoly,
		maPoly:    maPoly,
		residuals: residuals,
		sigma:     sigma,
		sse:       sse,
		aic:       aic,
	}, nil
}

// forecast extends the differenced series h steps, then integrates the
// differencing back out.
func (r *arimaFitResult) forecast(series []float64, horizon int) []float64 {
	// Rebuild the differenced levels the fit was run against.
	regDiffed := series
	for i := 0; i < r.order.d; i++ {
		regDiffed = difference(regDiffed, 1)
	}
	w := regDiffed
	for i := 0; i < r.order.D; i++ {
		w = difference(w, r.order.s)
	}

	ext := append(append([]float64{}, w...), make([]float64, horizon)...)
	errs := append(append([]float64{}, r.residuals...), make([]float64, horizon)...)

	n := len(w)
	for h := 0; h < horizon; h++ {
		t := n + h
		v := 0.0
		for k := 1; k < len(r.arPoly); k++ {
			if t-k >= 0 {
				v -= r.arPoly[k] * ext[t-k]
			}
		}
		for m := 1; m < len(r.maPoly); m++ {
			if t-m >= 0 {
				v += r.maPoly[m] * errs[t-m]
			}
		}
		ext[t] = v
	}

	// Invert seasonal differencing.
	level := append([]float64{}, regDiffed...)
	wPred := ext[n:]
	for i := 0; i < r.order.D; i++ {
		integrated := make([]float64, len(wPred))
		for h := range wPred {
			base := 0.0
			idx := len(level) - r.order.s + h
			if idx >= 0 && idx < len(level) {
				base = level[idx]
			} else if idx >= len(level) {
				base = integrated[idx-len(level)]
			}
			integrated[h] = wPred[h] + base
		}
		wPred = integrated
	}

	// Invert regular differencing, innermost level first.
	levels := make([][]float64, r.order.d+1)
	levels[0] = series
	for i := 1; i <= r.order.d; i++ {
		levels[i] = difference(levels[i-1], 1)
	}

	yPred := wPred
	for i := r.order.d; i >= 1; i-- {
		prev := levels[i-1][len(levels[i-1])-1]
		integrated := make([]float64, len(yPred))
		for h := range yPred {
			prev += yPred[h]
			integrated[h] = prev
		}
		yPred = integrated
	}

	return yPred
}

// sarima is SARIMA(1,1,1)(1,1,1)12, the fixed-order seasonal model used by the
// automatic selector for high-CV entities with two full years of history.
func sarima(series []float64, horizon int) (Frame, error) {
	fit, err := fitARIMA(series, arimaOrder{p: 1, d: 1, q: 1, P: 1, D: 1, Q: 1, s: seasonalPeriod})
	if err != nil {
		return Frame{}, err
	}

	values := fit.forecast(series, horizon)
	frame := newFrame(horizon)
	for i, v := range values {
		spread := 1.96 * fit.sigma * math.Sqrt(float64(i+1))
		frame.Forecast[i] = v
		frame.Lower[i] = v - spread
		frame.Upper[i] = v + spread
	}
	frame.clip()
	return frame, nil
}
