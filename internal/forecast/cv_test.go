// internal/forecast/cv_test.go
package forecast

import (
	"errors"
	"math"
	"testing"

	"github.com/apparelworks/demandplan/internal/domain"
)

func TestFoldsTwentyFourMonths(t *testing.T) {
	cfg := DefaultCV()
	fds, err := cfg.folds(24)
	if err != nil {
		t.Fatalf("folds: %v", err)
	}
	if len(fds) != 3 {
		t.Fatalf("got %d folds, want 3", len(fds))
	}

	// Most recent fold first; test windows disjoint and anchored at the end.
	want := []cvFold{
		{TrainEnd: 21, TestStart: 21, TestEnd: 24},
		{TrainEnd: 18, TestStart: 18, TestEnd: 21},
		{TrainEnd: 15, TestStart: 15, TestEnd: 18},
	}
	for i, f := range fds {
		if f != want[i] {
			t.Errorf("fold %d = %+v, want %+v", i, f, want[i])
		}
	}
}

func TestFoldsRespectMinimumTraining(t *testing.T) {
	cfg := DefaultCV()

	// 15 months: only one fold fits before training would drop below 12.
	fds, err := cfg.folds(15)
	if err != nil {
		t.Fatalf("folds: %v", err)
	}
	if len(fds) != 1 {
		t.Fatalf("got %d folds, want 1", len(fds))
	}
	if fds[0].TrainEnd != 12 {
		t.Errorf("train end = %d, want 12", fds[0].TrainEnd)
	}

	// 14 months: no valid fold at all.
	if _, err := cfg.folds(14); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("folds(14) error = %v, want insufficient data", err)
	}
}

func TestCrossValidateMeanScore(t *testing.T) {
	series := make([]float64, 24)
	for i := range series {
		series[i] = 100
	}

	// A perfect flat predictor scores 0 on a flat series.
	flat := func(train []float64, h int) ([]float64, error) {
		out := make([]float64, h)
		for i := range out {
			out[i] = 100
		}
		return out, nil
	}
	score, folds, err := DefaultCV().crossValidate(series, flat)
	if err != nil {
		t.Fatalf("crossValidate: %v", err)
	}
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if len(folds) != 3 {
		t.Errorf("got %d fold scores, want 3", len(folds))
	}
}

func TestCrossValidateFailingCandidate(t *testing.T) {
	series := make([]float64, 24)
	for i := range series {
		series[i] = float64(i + 1)
	}
	failing := func([]float64, int) ([]float64, error) {
		return nil, domain.ErrModelFit
	}
	score, _, err := DefaultCV().crossValidate(series, failing)
	if err != nil {
		t.Fatalf("crossValidate: %v", err)
	}
	if !math.IsInf(score, 1) {
		t.Errorf("score = %v, want +Inf for a candidate that always fails", score)
	}
}
