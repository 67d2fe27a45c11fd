// internal/forecast/linear.go
package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/apparelworks/demandplan/internal/domain"
)

// Regressor is the uniform contract every ML candidate implements. Fit is
// called on a feature matrix with aligned targets; Predict scores one row.
type Regressor interface {
	Name() string
	MinSamples() int
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
}

// importanceReporter is implemented by models that can attribute weight to
// individual features.
type importanceReporter interface {
	FeatureImportance() []float64
}

// treeEnsemble is implemented by models built from independent trees, enabling
// empirical quantile prediction intervals.
type treeEnsemble interface {
	PredictPerTree(x []float64) []float64
}

// scaler standardizes features column-wise. Columns with zero variance are
// passed through unscaled.
type scaler struct {
	Mean  []float64
	Scale []float64
}

func fitScaler(X [][]float64) scaler {
	cols := len(X[0])
	s := scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	n := float64(len(X))

	for j := 0; j < cols; j++ {
		sum := 0.0
		for _, row := range X {
			sum += row[j]
		}
		s.Mean[j] = sum / n

		ss := 0.0
		for _, row := range X {
			d := row[j] - s.Mean[j]
			ss += d * d
		}
		sd := math.Sqrt(ss / n)
		if sd == 0 {
			sd = 1
		}
		s.Scale[j] = sd
	}
	return s
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// RidgeRegressor is L2-regularized linear regression solved in closed form.
type RidgeRegressor struct {
	Alpha     float64
	Scaler    scaler
	Coef      []float64
	Intercept float64
}

// NewRidge builds a ridge candidate with the default regularization strength.
func NewRidge() *RidgeRegressor { return &RidgeRegressor{Alpha: 1.0} }

func (r *RidgeRegressor) Name() string    { return "ridge" }
func (r *RidgeRegressor) MinSamples() int { return 12 }

func (r *RidgeRegressor) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("ridge: empty training set: %w", domain.ErrInsufficientData)
	}
	p := len(X[0])

	r.Scaler = fitScaler(X)

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	// Solve (Z'Z + alpha I) beta = Z'(y - yMean) on standardized features.
	z := mat.NewDense(n, p, nil)
	for i, row := range X {
		z.SetRow(i, r.Scaler.transform(row))
	}
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var ztz mat.Dense
	ztz.Mul(z.T(), z)
	for j := 0; j < p; j++ {
		ztz.Set(j, j, ztz.At(j, j)+r.Alpha)
	}

	var zty mat.VecDense
	zty.MulVec(z.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&ztz, &zty); err != nil {
		return fmt.Errorf("%w: ridge solve: %v", domain.ErrModelFit, err)
	}

	r.Coef = make([]float64, p)
	for j := 0; j < p; j++ {
		r.Coef[j] = beta.AtVec(j)
	}
	r.Intercept = yMean
	return nil
}

func (r *RidgeRegressor) Predict(x []float64) float64 {
	z := r.Scaler.transform(x)
	v := r.Intercept
	for j, c := range r.Coef {
		v += c * z[j]
	}
	return v
}

func (r *RidgeRegressor) FeatureImportance() []float64 {
	return absNormalized(r.Coef)
}

// LassoRegressor is L1-regularized linear regression fit by cyclic coordinate
// descent on standardized features.
type LassoRegressor struct {
	Alpha     float64
	MaxIter   int
	Tol       float64
	Scaler    scaler
	Coef      []float64
	Intercept float64
}

// NewLasso builds a lasso candidate with the default regularization strength.
func NewLasso() *LassoRegressor {
	return &LassoRegressor{Alpha: 0.1, MaxIter: 1000, Tol: 1e-6}
}

func (l *LassoRegressor) Name() string    { return "lasso" }
func (l *LassoRegressor) MinSamples() int { return 12 }

func (l *LassoRegressor) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("lasso: empty training set: %w", domain.ErrInsufficientData)
	}
	p := len(X[0])

	l.Scaler = fitScaler(X)
	z := make([][]float64, n)
	for i, row := range X {
		z[i] = l.Scaler.transform(row)
	}

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	resid := make([]float64, n)
	for i, v := range y {
		resid[i] = v - yMean
	}

	coef := make([]float64, p)
	colNormSq := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			colNormSq[j] += z[i][j] * z[i][j]
		}
	}

	lambda := l.Alpha * float64(n)
	for iter := 0; iter < l.MaxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			if colNormSq[j] == 0 {
				continue
			}
			// Partial residual correlation with coordinate j.
			rho := 0.0
			for i := 0; i < n; i++ {
				rho += z[i][j] * (resid[i] + coef[j]*z[i][j])
			}
			next := softThreshold(rho, lambda) / colNormSq[j]
			if delta := next - coef[j]; delta != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= delta * z[i][j]
				}
				if ad := math.Abs(delta); ad > maxDelta {
					maxDelta = ad
				}
				coef[j] = next
			}
		}
		if maxDelta < l.Tol {
			break
		}
	}

	l.Coef = coef
	l.Intercept = yMean
	return nil
}

func (l *LassoRegressor) Predict(x []float64) float64 {
	z := l.Scaler.transform(x)
	v := l.Intercept
	for j, c := range l.Coef {
		v += c * z[j]
	}
	return v
}

func (l *LassoRegressor) FeatureImportance() []float64 {
	return absNormalized(l.Coef)
}

func softThreshold(v, lambda float64) float64 {
	switch {
	case v > lambda:
		return v - lambda
	case v < -lambda:
		return v + lambda
	default:
		return 0
	}
}

func absNormalized(coef []float64) []float64 {
	out := make([]float64, len(coef))
	total := 0.0
	for j, c := range coef {
		out[j] = math.Abs(c)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}
