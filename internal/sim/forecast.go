package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Forecast fits a logarithmic curve y = a + b*ln(x+1) to an accuracy (or
// loss) curve indexed by round, and extrapolates in both directions. Used to
// estimate how many rounds remain until a target accuracy.
type Forecast struct {
	a float64
	b float64
}

// NewForecast fits the curve to per-round values, values[i] belonging to
// round i+1. At least two points are required.
func NewForecast(values []float64) (*Forecast, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("forecast needs at least 2 points, got %d", len(values))
	}

	X := mat.NewDense(len(values), 2, nil)
	Y := mat.NewVecDense(len(values), values)
	for i := range values {
		X.Set(i, 0, 1)
		X.Set(i, 1, math.Log(float64(i+1)+1))
	}

	var coef mat.VecDense
	if err := coef.SolveVec(X, Y); err != nil {
		return nil, fmt.Errorf("fitting forecast curve: %w", err)
	}

	return &Forecast{a: coef.AtVec(0), b: coef.AtVec(1)}, nil
}

// PredictValue extrapolates the curve at the given round.
func (f *Forecast) PredictValue(round int) float64 {
	return f.a + f.b*math.Log(float64(round)+1)
}

// PredictRoundFor solves for the round at which the curve reaches value.
// Returns an error when the fitted curve is flat.
func (f *Forecast) PredictRoundFor(value float64) (int, error) {
	if f.b == 0 {
		return 0, fmt.Errorf("fitted curve is flat")
	}
	round := math.Ceil(math.Exp((value-f.a)/f.b) - 1)
	if math.IsNaN(round) || math.IsInf(round, 0) {
		return 0, fmt.Errorf("target %f is out of the fitted curve's range", value)
	}
	return int(round), nil
}
