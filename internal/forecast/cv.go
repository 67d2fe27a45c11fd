// internal/forecast/cv.go
package forecast

import (
	"fmt"
	"math"

	"github.com/apparelworks/demandplan/internal/domain"
)

// CVConfig shapes the expanding-window time-series cross-validation.
type CVConfig struct {
	NumSplits int
	TestSize  int
	Metric    Metric
}

// DefaultCV returns the standard 3x3-month MAPE validation.
func DefaultCV() CVConfig {
	return CVConfig{NumSplits: 3, TestSize: 3, Metric: MetricMAPE}
}

// cvFold is one train/test split. Test windows are contiguous, disjoint and
// aligned to the end of the series; folds are ordered most recent first.
type cvFold struct {
	TrainEnd  int // exclusive
	TestStart int
	TestEnd   int // exclusive
}

// folds computes the fold boundaries for a series of length n. The minimum
// training size is max(12, n - numSplits*testSize - testSize); folds whose
// training window would shrink below it are discarded.
func (c CVConfig) folds(n int) ([]cvFold, error) {
	if c.NumSplits <= 0 || c.TestSize <= 0 {
		return nil, &domain.ConfigurationError{Key: "cv", Reason: "splits and test size must be positive"}
	}

	minTrain := n - c.NumSplits*c.TestSize - c.TestSize
	if minTrain < 12 {
		minTrain = 12
	}

	out := make([]cvFold, 0, c.NumSplits)
	for i := 0; i < c.NumSplits; i++ {
		testEnd := n - i*c.TestSize
		testStart := testEnd - c.TestSize
		if testStart < minTrain {
			break
		}
		out = append(out, cvFold{TrainEnd: testStart, TestStart: testStart, TestEnd: testEnd})
	}

	if len(out) == 0 {
		return nil, &domain.InsufficientDataError{Have: n, Need: minTrain + c.TestSize}
	}
	return out, nil
}

// forecastFunc produces a point forecast of the given length from a training
// series. Both statistical methods and fitted ML models are adapted to it so
// they can compete in the same validation.
type forecastFunc func(train []float64, horizon int) ([]float64, error)

// crossValidate scores one candidate over the folds and returns the mean fold
// score. A fold whose forecast fails scores +Inf, which disqualifies the
// candidate unless every other candidate also failed.
func (c CVConfig) crossValidate(series []float64, fn forecastFunc) (float64, []float64, error) {
	fds, err := c.folds(len(series))
	if err != nil {
		return math.Inf(1), nil, err
	}

	scores := make([]float64, 0, len(fds))
	for _, fold := range fds {
		train := series[:fold.TrainEnd]
		actual := series[fold.TestStart:fold.TestEnd]

		pred, err := fn(train, len(actual))
		if err != nil || len(pred) != len(actual) {
			scores = append(scores, math.Inf(1))
			continue
		}
		scores = append(scores, c.Metric.Score(actual, pred))
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	if math.IsNaN(mean) {
		return math.Inf(1), scores, fmt.Errorf("%w: cv produced NaN scores", domain.ErrModelFit)
	}
	return mean, scores, nil
}
