package lime

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ridge is a weighted ridge regression with a fitted intercept.
type ridge struct {
	coef      []float64
	intercept float64
}

// fitRidge minimises sum_i w_i (y_i - b - x_i.coef)^2 + alpha |coef|^2.
//
// The intercept is not penalised: x and y are centred on their weighted
// means before solving the normal equations, and the intercept is recovered
// from the means afterwards.
func fitRidge(x *mat.Dense, y, weights []float64, alpha float64) (*ridge, error) {
	n, p := x.Dims()
	if len(y) != n || len(weights) != n {
		return nil, errors.Errorf("ridge: %d rows, %d targets, %d weights", n, len(y), len(weights))
	}
	if floats.Sum(weights) <= 0 {
		return nil, errors.New("ridge: sample weights sum to zero")
	}

	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		xMean[j] = stat.Mean(col, weights)
	}
	yMean := stat.Mean(y, weights)

	xs := mat.NewDense(n, p, nil)
	ys := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(weights[i])
		for j := 0; j < p; j++ {
			xs.Set(i, j, sw*(x.At(i, j)-xMean[j]))
		}
		ys.SetVec(i, sw*(y[i]-yMean))
	}

	var gram mat.Dense
	gram.Mul(xs.T(), xs)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xs.T(), ys)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return nil, errors.Wrap(err, "ridge: solve normal equations")
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	return &ridge{
		coef:      coef,
		intercept: yMean - floats.Dot(xMean, coef),
	}, nil
}

// predict evaluates the model on one row.
func (r *ridge) predict(row []float64) float64 {
	return r.intercept + floats.Dot(row, r.coef)
}

// score is the weighted coefficient of determination on x and y.
//
// A constant target scores 1 when predicted exactly and 0 otherwise.
func (r *ridge) score(x *mat.Dense, y, weights []float64) float64 {
	n, _ := x.Dims()
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = r.predict(x.RawRowView(i))
	}

	mean := stat.Mean(y, weights)
	var tot, res float64
	for i, v := range y {
		tot += weights[i] * (v - mean) * (v - mean)
		res += weights[i] * (v - pred[i]) * (v - pred[i])
	}
	if tot == 0 {
		if res == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(pred, y, weights)
}
