package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Logistic is an L2-regularised logistic regression fitted by Newton
// iterations. The intercept is not penalised.
type Logistic struct {
	C        float64
	MaxIter  int
	Balanced bool
	Tol      float64

	coef []float64
}

func (m *Logistic) Fit(X [][]float64, y []float64) error {
	n, p := len(X), width(X)
	if n == 0 {
		return fmt.Errorf("logistic: empty training set")
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic: C must be > 0")
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	tol := m.Tol
	if tol <= 0 {
		tol = 1e-8
	}
	w := classWeights(y, m.Balanced)
	lambda := 1 / m.C
	k := p + 1

	beta := make([]float64, k)
	grad := make([]float64, k)
	hess := make([]float64, k*k)
	xa := make([]float64, k)
	for iter := 0; iter < maxIter; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		for i := range hess {
			hess[i] = 0
		}
		for i, row := range X {
			copy(xa, row)
			xa[p] = 1
			pr := sigmoid(floats.Dot(beta, xa))
			r := w[i] * (pr - y[i])
			s := w[i] * pr * (1 - pr)
			for a := 0; a < k; a++ {
				grad[a] += r * xa[a]
				sa := s * xa[a]
				for b := a; b < k; b++ {
					hess[a*k+b] += sa * xa[b]
				}
			}
		}
		for a := 0; a < p; a++ {
			grad[a] += lambda * beta[a]
			hess[a*k+a] += lambda
		}
		hess[p*k+p] += 1e-10
		for a := 0; a < k; a++ {
			for b := 0; b < a; b++ {
				hess[a*k+b] = hess[b*k+a]
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(mat.NewSymDense(k, hess)); !ok {
			return fmt.Errorf("logistic: hessian not positive definite at iteration %d", iter)
		}
		var delta mat.VecDense
		if err := chol.SolveVecTo(&delta, mat.NewVecDense(k, grad)); err != nil {
			return fmt.Errorf("logistic: newton step: %w", err)
		}
		step := 0.0
		for a := 0; a < k; a++ {
			d := delta.AtVec(a)
			beta[a] -= d
			step = math.Max(step, math.Abs(d))
		}
		if step < tol {
			break
		}
	}
	for _, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("logistic: diverged")
		}
	}
	m.coef = beta
	return nil
}

func (m *Logistic) Predict(X [][]float64) ([]float64, error) {
	if m.coef == nil {
		return nil, fmt.Errorf("logistic: predict before fit")
	}
	p := len(m.coef) - 1
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = sigmoid(floats.Dot(m.coef[:p], row) + m.coef[p])
	}
	return out, nil
}

// Linear is least squares with an optional ridge penalty. It expects
// standardised features, so the intercept is the training mean of y.
type Linear struct {
	Alpha float64

	coef      []float64
	intercept float64
}

func (m *Linear) Fit(X [][]float64, y []float64) error {
	n, p := len(X), width(X)
	if n == 0 {
		return fmt.Errorf("linear: empty training set")
	}
	flat := make([]float64, 0, n*p)
	for _, row := range X {
		flat = append(flat, row...)
	}
	x := mat.NewDense(n, p, flat)

	ybar := floats.Sum(y) / float64(n)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - ybar
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	alpha := math.Max(m.Alpha, 1e-12)
	for j := 0; j < p; j++ {
		xtx.SetSym(j, j, xtx.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return fmt.Errorf("linear: normal equations not positive definite")
	}
	var coef mat.VecDense
	if err := chol.SolveVecTo(&coef, &xty); err != nil {
		return fmt.Errorf("linear: solve: %w", err)
	}
	m.coef = mat.Col(nil, 0, &coef)
	m.intercept = ybar
	return nil
}

func (m *Linear) Predict(X [][]float64) ([]float64, error) {
	if m.coef == nil {
		return nil, fmt.Errorf("linear: predict before fit")
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(m.coef, row) + m.intercept
	}
	return out, nil
}

// LinearSVR is an epsilon-insensitive linear support vector regressor
// solved by dual coordinate descent over samples in fixed order.
type LinearSVR struct {
	C       float64
	Epsilon float64
	MaxIter int
	Tol     float64

	w []float64
}

func (m *LinearSVR) Fit(X [][]float64, y []float64) error {
	n, p := len(X), width(X)
	if n == 0 {
		return fmt.Errorf("svr: empty training set")
	}
	if m.C <= 0 {
		return fmt.Errorf("svr: C must be > 0")
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	tol := m.Tol
	if tol <= 0 {
		tol = 1e-6
	}

	k := p + 1
	xs := make([][]float64, n)
	qd := make([]float64, n)
	for i, row := range X {
		xi := make([]float64, k)
		copy(xi, row)
		xi[p] = 1
		xs[i] = xi
		qd[i] = floats.Dot(xi, xi)
	}

	w := make([]float64, k)
	beta := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for i, xi := range xs {
			h := qd[i]
			if h == 0 {
				continue
			}
			g := floats.Dot(w, xi) - y[i]
			gp, gn := g+m.Epsilon, g-m.Epsilon
			var d float64
			switch {
			case gp < h*beta[i]:
				d = -gp / h
			case gn > h*beta[i]:
				d = -gn / h
			default:
				d = -beta[i]
			}
			old := beta[i]
			beta[i] = math.Min(math.Max(beta[i]+d, -m.C), m.C)
			d = beta[i] - old
			if d != 0 {
				floats.AddScaled(w, d, xi)
				maxDelta = math.Max(maxDelta, math.Abs(d)*math.Sqrt(h))
			}
		}
		if maxDelta < tol {
			break
		}
	}
	m.w = w
	return nil
}

func (m *LinearSVR) Predict(X [][]float64) ([]float64, error) {
	if m.w == nil {
		return nil, fmt.Errorf("svr: predict before fit")
	}
	p := len(m.w) - 1
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(m.w[:p], row) + m.w[p]
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// classWeights returns per-sample weights; balanced weights are
// n / (classes * count(class)).
func classWeights(y []float64, balanced bool) []float64 {
	w := make([]float64, len(y))
	if !balanced {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	counts := map[float64]int{}
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	k := float64(len(counts))
	for i, v := range y {
		w[i] = n / (k * float64(counts[v]))
	}
	return w
}
