package predictor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ridge is an L2-regularized linear model with an unpenalized intercept.
type ridge struct {
	alpha     float64
	weights   *mat.VecDense
	intercept float64
}

// fit centers x and y, then solves the normal equations in whichever of the
// primal (d x d) or dual (n x n) forms is smaller.
func (r *ridge) fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if n != len(y) {
		return fmt.Errorf("ridge: %d rows but %d targets", n, len(y))
	}

	means := make([]float64, d)
	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, x)
		means[j] = stat.Mean(col, nil)
		floats.AddConst(-means[j], col)
		centered.SetCol(j, col)
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	copy(yc, y)
	floats.AddConst(-yMean, yc)

	var (
		w   *mat.VecDense
		err error
	)
	if d <= n {
		w, err = solvePrimal(centered, mat.NewVecDense(n, yc), r.alpha)
	} else {
		w, err = solveDual(centered, mat.NewVecDense(n, yc), r.alpha)
	}
	if err != nil {
		return err
	}

	r.weights = w
	r.intercept = yMean - mat.Dot(mat.NewVecDense(d, means), w)
	return nil
}

// solvePrimal solves (XᵀX + αI) w = Xᵀy.
func solvePrimal(x *mat.Dense, y *mat.VecDense, alpha float64) (*mat.VecDense, error) {
	_, d := x.Dims()
	gram := mat.NewSymDense(d, nil)
	gram.SymOuterK(1, x.T())
	addDiagonal(gram, alpha)

	var rhs mat.VecDense
	rhs.MulVec(x.T(), y)
	return choleskySolve(gram, &rhs)
}

// solveDual solves (XXᵀ + αI) a = y and maps back with w = Xᵀa.
func solveDual(x *mat.Dense, y *mat.VecDense, alpha float64) (*mat.VecDense, error) {
	n, _ := x.Dims()
	kernel := mat.NewSymDense(n, nil)
	kernel.SymOuterK(1, x)
	addDiagonal(kernel, alpha)

	a, err := choleskySolve(kernel, y)
	if err != nil {
		return nil, err
	}
	var w mat.VecDense
	w.MulVec(x.T(), a)
	return &w, nil
}

func addDiagonal(s *mat.SymDense, v float64) {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		s.SetSym(i, i, s.At(i, i)+v)
	}
}

func choleskySolve(a *mat.SymDense, b mat.Vector) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, fmt.Errorf("ridge: system is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, b); err != nil {
		return nil, fmt.Errorf("ridge: solve: %w", err)
	}
	return &x, nil
}

func (r *ridge) predict(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	var out mat.VecDense
	out.MulVec(x, r.weights)

	preds := make([]float64, n)
	for i := range preds {
		preds[i] = out.AtVec(i) + r.intercept
	}
	return preds
}
