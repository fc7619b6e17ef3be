package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

const (
	// MinTrainingPoints is the smallest number of observations a column needs.
	MinTrainingPoints = 14
	// TestFraction of the windows is held out to score the fit.
	TestFraction = 0.2
	splitSeed    = 42
)

// ErrNotEnoughTrainingData is returned when the series hold fewer points than
// the configured minimum.
var ErrNotEnoughTrainingData = errors.New("not enough data to train")

// Options tunes a training run. The zero value uses the package defaults.
type Options struct {
	// MinPoints overrides MinTrainingPoints when positive.
	MinPoints int
}

func (o Options) minPoints() int {
	if o.MinPoints > 0 {
		return o.MinPoints
	}
	return MinTrainingPoints
}

type sample struct {
	x []float64
	y float64
}

// Train fits a LinearModel for key from one or more series (typically one per
// city). Lag windows are built inside each series and never span two of them.
func Train(key string, series []domain.Series) (*LinearModel, error) {
	return TrainWith(key, series, Options{})
}

// TrainWith is Train with explicit options.
func TrainWith(key string, series []domain.Series, opts Options) (*LinearModel, error) {
	minPoints := opts.minPoints()
	total := 0
	var samples []sample
	for _, s := range series {
		total += s.Len()
		samples = append(samples, windows(s.Values())...)
	}
	if total < minPoints || len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has %d points, need %d", ErrNotEnoughTrainingData, key, total, max(minPoints, domain.ModelWindow+1))
	}

	rng := rand.New(rand.NewPCG(splitSeed, 0))
	rng.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })

	nTest := int(math.Round(float64(len(samples)) * TestFraction))
	if len(samples)-nTest <= domain.ModelWindow {
		nTest = 0
	}
	train, test := samples[nTest:], samples[:nTest]

	beta, err := leastSquares(train)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", key, err)
	}

	m := &LinearModel{
		Key:          key,
		Window:       domain.ModelWindow,
		Intercept:    beta[0],
		Coefficients: beta[1:],
		Samples:      len(train),
	}
	if len(test) > 0 {
		m.TestRMSE = rmse(m, test)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("train %s: %w", key, err)
	}
	return m, nil
}

// windows turns a value sequence into (previous ModelWindow values -> next value) samples.
func windows(values []float64) []sample {
	if len(values) <= domain.ModelWindow {
		return nil
	}
	out := make([]sample, 0, len(values)-domain.ModelWindow)
	for i := domain.ModelWindow; i < len(values); i++ {
		x := make([]float64, domain.ModelWindow)
		copy(x, values[i-domain.ModelWindow:i])
		out = append(out, sample{x: x, y: values[i]})
	}
	return out
}

// rankTolerance is the relative singular value below which a direction of the
// design matrix is treated as degenerate.
const rankTolerance = 1e-10

// leastSquares returns [intercept, coef_1..coef_window] as the minimum-norm
// least squares solution. Rank-deficient designs (a constant series, fewer
// samples than parameters) still solve; the degenerate directions get zero
// weight.
func leastSquares(samples []sample) ([]float64, error) {
	cols := domain.ModelWindow + 1

	a := mat.NewDense(len(samples), cols, nil)
	b := mat.NewVecDense(len(samples), nil)
	for i, s := range samples {
		a.Set(i, 0, 1)
		for j, v := range s.x {
			a.Set(i, j+1, v)
		}
		b.SetVec(i, s.y)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("singular value decomposition did not converge")
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return nil, errors.New("design matrix has rank zero")
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, b, rank)
	return mat.Col(nil, 0, &beta), nil
}

func rmse(m *LinearModel, samples []sample) float64 {
	var sum float64
	for _, s := range samples {
		pred, _ := m.Predict(s.x)
		d := pred - s.y
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(samples)))
}
