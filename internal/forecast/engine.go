// internal/forecast/engine.go
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/timeseries"
	"github.com/apparelworks/demandplan/pkg/logger"
)

const (
	minHistoryMonths  = 12
	minSeasonalMonths = 24
	defaultConfidence = 0.95
)

// Options tunes a forecasting run. Zero values take the documented defaults.
type Options struct {
	Horizon          int
	Method           Method // empty selects automatically
	UseML            bool   // compete ML candidates instead of one statistical method
	IncludeBaselines bool   // let statistical methods compete in the ML cross-validation
	CV               CVConfig
	Confidence       float64
	Workers          int
}

func (o Options) withDefaults() Options {
	if o.Horizon <= 0 {
		o.Horizon = 3
	}
	if o.CV.NumSplits == 0 {
		o.CV = DefaultCV()
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = defaultConfidence
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// Input is one entity to forecast. CV is nil when the coefficient of
// variation is unknown, which changes how the method selector decides.
type Input struct {
	EntityID    string
	Series      []timeseries.Point
	ProductType domain.ProductType
	CV          *float64
}

// Engine turns per-entity demand series into forecasts. All methods are
// side-effect free; the same engine can be shared across goroutines.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// SelectMethod applies the automatic selection rules for one entity.
func (e *Engine) SelectMethod(productType domain.ProductType, cv *float64, n int) Method {
	if productType == domain.TypeNew || n < minHistoryMonths {
		return MethodMovingAvg
	}
	if cv != nil {
		switch {
		case *cv < 0.6:
			return MethodExpSmoothing
		case *cv > 1.0 && n >= minSeasonalMonths:
			return MethodSARIMA
		default:
			return MethodHoltWinters
		}
	}
	switch {
	case productType == domain.TypeBasic:
		return MethodExpSmoothing
	case productType == domain.TypeSeasonal && n >= minSeasonalMonths:
		return MethodSARIMA
	case productType == domain.TypeRegular:
		return MethodHoltWinters
	default:
		return MethodExpSmoothing
	}
}

// fallbackChain is the fixed degradation order for statistical methods.
var fallbackChain = []Method{MethodSARIMA, MethodHoltWinters, MethodExpSmoothing, MethodMovingAvg}

func chainFrom(m Method) []Method {
	if m == MethodAutoARIMA {
		return append([]Method{MethodAutoARIMA}, fallbackChain...)
	}
	for i, c := range fallbackChain {
		if c == m {
			return fallbackChain[i:]
		}
	}
	return fallbackChain
}

func statForecast(m Method, series []float64, horizon int) (Frame, error) {
	switch m {
	case MethodMovingAvg:
		return movingAvg(series, horizon)
	case MethodExpSmoothing:
		return expSmoothing(series, horizon)
	case MethodHoltWinters:
		return holtWinters(series, horizon)
	case MethodSARIMA:
		return sarima(series, horizon)
	case MethodAutoARIMA:
		return autoARIMA(series, horizon)
	default:
		return Frame{}, fmt.Errorf("unknown forecast method %q", m)
	}
}

// RunStatistical runs the method and, on failure, walks the fallback chain
// down to moving average. It returns the method that actually produced the
// frame. Moving average itself cannot fail for a non-empty series.
func (e *Engine) RunStatistical(m Method, series []float64, horizon int) (Frame, Method, error) {
	var lastErr error
	for _, cand := range chainFrom(m) {
		frame, err := statForecast(cand, series, horizon)
		if err == nil {
			if cand != m {
				logger.Log.Warn().
					Str("requested", string(m)).
					Str("used", string(cand)).
					Msg("forecast method fell back")
			}
			return frame, cand, nil
		}
		lastErr = err
	}
	return Frame{}, m, fmt.Errorf("%w: all methods in chain failed: %v", domain.ErrModelFit, lastErr)
}

// mlCandidates returns the competing regressors in fixed insertion order.
// Ties in cross-validation resolve toward the earlier candidate.
func mlCandidates() []Regressor {
	return []Regressor{
		NewGradientBoost(),
		NewRandomForest(),
		NewRidge(),
		NewLasso(),
	}
}

// statBaselines pairs each statistical method with its forecast function so
// the baselines can compete in the same cross-validation as the ML models.
func statBaselines() []struct {
	Method Method
	Fn     forecastFunc
} {
	return []struct {
		Method Method
		Fn     forecastFunc
	}{
		{MethodExpSmoothing, func(train []float64, h int) ([]float64, error) {
			f, err := expSmoothing(train, h)
			return f.Forecast, err
		}},
		{MethodHoltWinters, func(train []float64, h int) ([]float64, error) {
			f, err := holtWinters(train, h)
			return f.Forecast, err
		}},
		{MethodMovingAvg, func(train []float64, h int) ([]float64, error) {
			f, err := movingAvg(train, h)
			return f.Forecast, err
		}},
	}
}

// TrainedModel is a fitted ML model together with its selection metadata.
// The concrete regressor types are gob-encodable for persistence.
type TrainedModel struct {
	Meta  domain.TrainedModelMeta
	Model Regressor
}

// mlForecastFunc adapts a regressor to the CV contract: refit on the fold's
// training window, then predict the test window recursively.
func mlForecastFunc(mk func() Regressor, months []int, productType domain.ProductType, cv float64) forecastFunc {
	return func(train []float64, horizon int) ([]float64, error) {
		reg := mk()
		fs := BuildFeatures(train, months[:len(train)], productType, cv)
		if len(fs.X) < reg.MinSamples() {
			return nil, &domain.InsufficientDataError{Have: len(fs.X), Need: reg.MinSamples()}
		}
		if err := reg.Fit(fs.X, fs.Y); err != nil {
			return nil, err
		}
		preds := predictRecursive(reg, train, months[:len(train)], productType, cv, horizon)
		return preds, nil
	}
}

// predictRecursive predicts horizon steps ahead. The history is extended with
// the last observed value as a lag placeholder rather than with the model's
// own predictions.
func predictRecursive(reg Regressor, series []float64, months []int, productType domain.ProductType, cv float64, horizon int) []float64 {
	extended := append([]float64(nil), series...)
	lastMonth := 1
	if len(months) > 0 {
		lastMonth = months[len(months)-1]
	}
	tail := 0.0
	if len(extended) > 0 {
		tail = extended[len(extended)-1]
	}

	preds := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		month := (lastMonth+h)%12 + 1
		row := predictionRow(extended, month, productType, cv)
		p := reg.Predict(row)
		if p < 0 || math.IsNaN(p) {
			p = 0
		}
		preds[h] = p
		extended = append(extended, tail)
	}
	return preds
}

// TrainML cross-validates every eligible candidate and retrains the winner on
// the full series. Statistical baselines can compete for the score but never
// win the trained-model slot; when a baseline scores best the winning method
// is statistical and the returned model is nil.
func (e *Engine) TrainML(entityID string, entityType domain.EntityType, series []float64, months []int, productType domain.ProductType, cv float64, opts Options) (*TrainedModel, Method, error) {
	opts = opts.withDefaults()

	type candidate struct {
		method Method
		fn     forecastFunc
		mk     func() Regressor
	}
	var cands []candidate
	for _, reg := range mlCandidates() {
		fs := BuildFeatures(series, months, productType, cv)
		if len(fs.X) < reg.MinSamples() {
			continue
		}
		mk := regressorFactory(reg.Name())
		cands = append(cands, candidate{
			method: Method("ml:" + reg.Name()),
			fn:     mlForecastFunc(mk, months, productType, cv),
			mk:     mk,
		})
	}
	if opts.IncludeBaselines {
		for _, b := range statBaselines() {
			cands = append(cands, candidate{method: b.Method, fn: b.Fn})
		}
	}
	if len(cands) == 0 {
		return nil, "", &domain.InsufficientDataError{Have: len(series), Need: minHistoryMonths}
	}

	best := -1
	bestScore := math.Inf(1)
	for i, c := range cands {
		score, _, err := opts.CV.crossValidate(series, c.fn)
		if err != nil {
			continue
		}
		if score < bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || math.IsInf(bestScore, 1) {
		return nil, "", fmt.Errorf("%w: no candidate survived cross-validation", domain.ErrModelFit)
	}

	winner := cands[best]
	if winner.mk == nil {
		return nil, winner.method, nil
	}

	reg := winner.mk()
	fs := BuildFeatures(series, months, productType, cv)
	if err := reg.Fit(fs.X, fs.Y); err != nil {
		return nil, "", fmt.Errorf("%w: retrain on full series: %v", domain.ErrModelFit, err)
	}

	meta := domain.TrainedModelMeta{
		EntityID:     entityID,
		EntityType:   entityType,
		ModelType:    reg.Name(),
		CVScore:      bestScore,
		CVMetric:     string(opts.CV.Metric),
		FeatureNames: FeatureNames,
		ProductType:  productType,
		CV:           cv,
		TrainedAt:    time.Now().UTC(),
	}
	if rep, ok := reg.(importanceReporter); ok {
		imp := rep.FeatureImportance()
		meta.FeatureImportance = make(map[string]float64, len(imp))
		for i, v := range imp {
			if i < len(FeatureNames) {
				meta.FeatureImportance[FeatureNames[i]] = v
			}
		}
	}
	return &TrainedModel{Meta: meta, Model: reg}, winner.method, nil
}

func regressorFactory(name string) func() Regressor {
	switch name {
	case "gradient_boost":
		return func() Regressor { return NewGradientBoost() }
	case "random_forest":
		return func() Regressor { return NewRandomForest() }
	case "ridge":
		return func() Regressor { return NewRidge() }
	case "lasso":
		return func() Regressor { return NewLasso() }
	default:
		return nil
	}
}

// mlFrame predicts the horizon and attaches prediction intervals. Tree
// ensembles yield empirical per-tree quantiles; other models get a Gaussian
// interval with sigma estimated from the spread of the horizon predictions,
// or 20% of the mean when only a single point is available.
func mlFrame(reg Regressor, series []float64, months []int, productType domain.ProductType, cv float64, horizon int, confidence float64) Frame {
	preds := predictRecursive(reg, series, months, productType, cv, horizon)

	frame := newFrame(horizon)
	copy(frame.Forecast, preds)

	lowerQ := (1 - confidence) / 2
	upperQ := 1 - lowerQ

	if ens, ok := reg.(treeEnsemble); ok {
		extended := append([]float64(nil), series...)
		lastMonth := 1
		if len(months) > 0 {
			lastMonth = months[len(months)-1]
		}
		tail := 0.0
		if len(extended) > 0 {
			tail = extended[len(extended)-1]
		}
		for h := 0; h < horizon; h++ {
			month := (lastMonth+h)%12 + 1
			row := predictionRow(extended, month, productType, cv)
			perTree := append([]float64(nil), ens.PredictPerTree(row)...)
			sort.Float64s(perTree)
			frame.Lower[h] = stat.Quantile(lowerQ, stat.Empirical, perTree, nil)
			frame.Upper[h] = stat.Quantile(upperQ, stat.Empirical, perTree, nil)
			extended = append(extended, tail)
		}
		frame.clip()
		return frame
	}

	sigma := 0.0
	if len(preds) >= 2 {
		mean := stat.Mean(preds, nil)
		sigma = stat.StdDev(preds, nil)
		if sigma == 0 {
			sigma = 0.2 * mean
		}
	} else if len(preds) == 1 {
		sigma = 0.2 * preds[0]
	}
	z := 1.96
	for h := range preds {
		frame.Lower[h] = preds[h] - z*sigma
		frame.Upper[h] = preds[h] + z*sigma
	}
	frame.clip()
	return frame
}

// ForecastEntity produces the forecast for a single entity, selecting the
// method automatically unless one is forced in opts. It returns the trained
// ML model (nil for statistical methods) so callers can persist it.
func (e *Engine) ForecastEntity(in Input, entityType domain.EntityType, opts Options) (domain.EntityForecast, *TrainedModel, error) {
	opts = opts.withDefaults()

	points, err := timeseries.FillMissingMonths(in.Series)
	if err != nil {
		return domain.EntityForecast{}, nil, err
	}
	if len(points) == 0 {
		return domain.EntityForecast{}, nil, &domain.InsufficientDataError{Have: 0, Need: 1}
	}
	series := timeseries.Values(points)
	months := make([]int, len(points))
	for i, p := range points {
		t, perr := timeseries.ParseYearMonth(p.YearMonth)
		if perr != nil {
			return domain.EntityForecast{}, nil, perr
		}
		months[i] = int(t.Month())
	}

	cv := 0.5
	if in.CV != nil {
		cv = *in.CV
	}

	var (
		frame   Frame
		used    Method
		trained *TrainedModel
	)

	switch {
	case opts.Method != "" && opts.Method.IsML():
		trained, used, err = e.trainOne(in.EntityID, entityType, opts.Method, series, months, in.ProductType, cv, opts)
		if err == nil && trained != nil {
			frame = mlFrame(trained.Model, series, months, in.ProductType, cv, opts.Horizon, opts.Confidence)
		}
	case opts.UseML && opts.Method == "":
		trained, used, err = e.TrainML(in.EntityID, entityType, series, months, in.ProductType, cv, opts)
		if err == nil && trained != nil {
			frame = mlFrame(trained.Model, series, months, in.ProductType, cv, opts.Horizon, opts.Confidence)
		} else if err == nil {
			// A statistical baseline won the cross-validation.
			frame, used, err = e.RunStatistical(used, series, opts.Horizon)
		}
	default:
		m := opts.Method
		if m == "" {
			m = e.SelectMethod(in.ProductType, in.CV, len(series))
		}
		frame, used, err = e.RunStatistical(m, series, opts.Horizon)
	}
	if err != nil {
		// ML paths degrade to the statistical chain rather than failing the entity.
		if opts.UseML || (opts.Method != "" && opts.Method.IsML()) {
			logger.Log.Warn().Err(err).Str("entity_id", in.EntityID).Msg("ml training failed, using statistical fallback")
			m := e.SelectMethod(in.ProductType, in.CV, len(series))
			frame, used, err = e.RunStatistical(m, series, opts.Horizon)
			trained = nil
		}
		if err != nil {
			return domain.EntityForecast{}, nil, err
		}
	}

	lastPeriod := points[len(points)-1].YearMonth
	out := domain.EntityForecast{
		EntityID:    in.EntityID,
		EntityType:  entityType,
		Method:      string(used),
		ProductType: in.ProductType,
		CV:          cv,
		Points:      make([]domain.ForecastPoint, opts.Horizon),
	}
	for h := 0; h < opts.Horizon; h++ {
		period, perr := timeseries.AddMonths(lastPeriod, h+1)
		if perr != nil {
			return domain.EntityForecast{}, nil, perr
		}
		out.Points[h] = domain.ForecastPoint{
			Period:   period,
			Forecast: round2(frame.Forecast[h]),
			LowerCI:  round2(frame.Lower[h]),
			UpperCI:  round2(frame.Upper[h]),
		}
	}
	return out, trained, nil
}

// trainOne trains a single named ML model without candidate competition,
// still scoring it by cross-validation for the metadata.
func (e *Engine) trainOne(entityID string, entityType domain.EntityType, m Method, series []float64, months []int, productType domain.ProductType, cv float64, opts Options) (*TrainedModel, Method, error) {
	name := string(m[3:])
	mk := regressorFactory(name)
	if mk == nil {
		return nil, m, fmt.Errorf("unknown ml method %q", m)
	}
	reg := mk()
	fs := BuildFeatures(series, months, productType, cv)
	if len(fs.X) < reg.MinSamples() {
		return nil, m, &domain.InsufficientDataError{Have: len(fs.X), Need: reg.MinSamples()}
	}

	score, _, cvErr := opts.CV.crossValidate(series, mlForecastFunc(mk, months, productType, cv))
	if cvErr != nil {
		score = math.Inf(1)
	}
	if err := reg.Fit(fs.X, fs.Y); err != nil {
		return nil, m, fmt.Errorf("%w: %v", domain.ErrModelFit, err)
	}

	meta := domain.TrainedModelMeta{
		EntityID:     entityID,
		EntityType:   entityType,
		ModelType:    name,
		CVScore:      score,
		CVMetric:     string(opts.CV.Metric),
		FeatureNames: FeatureNames,
		ProductType:  productType,
		CV:           cv,
		TrainedAt:    time.Now().UTC(),
	}
	if rep, ok := reg.(importanceReporter); ok {
		imp := rep.FeatureImportance()
		meta.FeatureImportance = make(map[string]float64, len(imp))
		for i, v := range imp {
			if i < len(FeatureNames) {
				meta.FeatureImportance[FeatureNames[i]] = v
			}
		}
	}
	return &TrainedModel{Meta: meta, Model: reg}, m, nil
}

// ForecastBatch forecasts every input in parallel and assembles a batch
// preserving input order. Per-entity failures land in Stats.Errors; the batch
// itself only errors when the context is cancelled.
func (e *Engine) ForecastBatch(ctx context.Context, entityType domain.EntityType, inputs []Input, opts Options) (*domain.ForecastBatch, error) {
	opts = opts.withDefaults()

	type slot struct {
		fc  domain.EntityForecast
		err error
	}
	slots := make([]slot, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fc, _, err := e.ForecastEntity(in, entityType, opts)
			slots[i] = slot{fc: fc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &domain.ForecastBatch{
		BatchID:       uuid.NewString(),
		GeneratedAt:   time.Now().UTC(),
		EntityType:    entityType,
		HorizonMonths: opts.Horizon,
		Stats:         domain.BatchStats{MethodsUsed: make(map[string]int)},
	}
	for i, s := range slots {
		if s.err != nil {
			batch.Stats.Failed++
			batch.Stats.Errors = append(batch.Stats.Errors, domain.EntityError{
				EntityID: inputs[i].EntityID,
				Reason:   s.err.Error(),
			})
			continue
		}
		batch.Stats.Success++
		batch.Stats.MethodsUsed[s.fc.Method]++
		batch.Forecasts = append(batch.Forecasts, s.fc)
	}
	return batch, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
