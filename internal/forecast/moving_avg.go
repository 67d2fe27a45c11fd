// internal/forecast/moving_avg.go
package forecast

import (
	"fmt"

	"github.com/apparelworks/demandplan/internal/domain"
)

// movingAvgWeights favor the most recent observations. For shorter histories
// the leading weights are used and renormalized.
var movingAvgWeights = []float64{0.5, 0.3, 0.2}

// movingAvg forecasts a flat weighted mean of the last observations and a
// fixed-ratio interval of (0.8, 1.2) around it.
func movingAvg(series []float64, horizon int) (Frame, error) {
	if len(series) == 0 {
		return Frame{}, fmt.Errorf("moving average: %w", domain.ErrInsufficientData)
	}

	w := len(movingAvgWeights)
	if len(series) < w {
		w = len(series)
	}

	weightSum := 0.0
	value := 0.0
	for i := 0; i < w; i++ {
		weight := movingAvgWeights[i]
		value += weight * series[len(series)-1-i]
		weightSum += weight
	}
	value /= weightSum

	frame := newFrame(horizon)
	for i := 0; i < horizon; i++ {
		frame.Forecast[i] = value
		frame.Lower[i] = value * 0.8
		frame.Upper[i] = value * 1.2
	}
	frame.clip()
	return frame, nil
}
