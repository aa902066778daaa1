// Package simplex provides the in-process solver backend. Linear
// relaxations run on gonum's simplex implementation; integrality is
// handled by a branch-and-bound search with lazy cut support.
package simplex

import (
	"fmt"
	"math"

	parbend "git.solver4all.com/azaryc2s/parbend"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTol = 1e-10
	feasTol    = 1e-7
)

type lpResult struct {
	status parbend.Status
	obj    float64
	x      []float64
	ray    []float64
}

// solveRelaxation solves the continuous relaxation of m under the given
// bound vectors, with the cut pool appended as ordinary rows. The
// objective coefficients are passed explicitly so callers can override
// them without touching the model.
//
// The simplex routine wants min c'x with x >= 0 and equality rows only,
// so variables are shifted by their lower bounds, finite upper bounds
// become inequality rows, and inequalities get slack columns.
func solveRelaxation(m *parbend.Model, obj, lower, upper []float64, cuts []parbend.Cut) (*lpResult, error) {
	n := m.NumVars()
	for j := 0; j < n; j++ {
		if lower[j] <= -parbend.Infinity {
			return nil, fmt.Errorf("%w: variable %s is unbounded below",
				parbend.ErrRejectedModel, m.Vars[j].Name)
		}
		if upper[j] < lower[j] {
			return &lpResult{status: parbend.StatusInfeasible}, nil
		}
	}

	c := make([]float64, n)
	copy(c, obj)
	if m.Sense == parbend.Maximize {
		for j := range c {
			c[j] = -c[j]
		}
	}
	shift := dot(c, lower) // c'l, added back to the reported objective

	var (
		ineq    [][]float64
		ineqRHS []float64
		eq      [][]float64
		eqRHS   []float64
	)
	addRow := func(coefs []parbend.Nonzero, sense parbend.Sense, rhs float64) {
		dense := make([]float64, n)
		for _, nz := range coefs {
			dense[nz.Col] += nz.Coef
		}
		// Shifted coordinates: a'(l+x') <= r becomes a'x' <= r - a'l.
		rhs -= dot(dense, lower)
		switch sense {
		case parbend.GreaterEqual:
			for j := range dense {
				dense[j] = -dense[j]
			}
			ineq, ineqRHS = append(ineq, dense), append(ineqRHS, -rhs)
		case parbend.Equal:
			eq, eqRHS = append(eq, dense), append(eqRHS, rhs)
		default:
			ineq, ineqRHS = append(ineq, dense), append(ineqRHS, rhs)
		}
	}
	for _, row := range m.Rows {
		addRow(row.Coefs, row.Sense, row.RHS)
	}
	for _, cut := range cuts {
		coefs := make([]parbend.Nonzero, len(cut.Ind))
		for k := range cut.Ind {
			coefs[k] = parbend.Nonzero{Col: int(cut.Ind[k]), Coef: cut.Val[k]}
		}
		addRow(coefs, cut.Sense, cut.RHS)
	}
	for j := 0; j < n; j++ {
		if upper[j] < parbend.Infinity {
			dense := make([]float64, n)
			dense[j] = 1
			ineq, ineqRHS = append(ineq, dense), append(ineqRHS, upper[j]-lower[j])
		}
	}

	// A column outside every row would reach the simplex routine as an
	// all-zero column of the coefficient matrix, which it rejects. Such a
	// column is constrained by its bounds alone: its upper bound must be
	// infinite (finite uppers became rows above), so a cost rewarding
	// growth makes the whole relaxation unbounded along that axis, and
	// any other cost pins the column at its lower bound. Pin those
	// columns up front and hand the simplex routine the reduced problem.
	used := make([]bool, n)
	for _, row := range eq {
		for j, v := range row {
			if v != 0 {
				used[j] = true
			}
		}
	}
	for _, row := range ineq {
		for j, v := range row {
			if v != 0 {
				used[j] = true
			}
		}
	}
	keep := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if used[j] {
			keep = append(keep, j)
		} else if c[j] < 0 {
			ray := make([]float64, n)
			ray[j] = 1
			return &lpResult{status: parbend.StatusUnbounded, ray: ray}, nil
		}
	}
	if len(keep) == 0 {
		return trivialLP(c, lower, shift, m.Sense)
	}
	if len(keep) < n {
		cRed := make([]float64, len(keep))
		for k, j := range keep {
			cRed[k] = c[j]
		}
		c = cRed
		eq = reduceColumns(eq, keep)
		ineq = reduceColumns(ineq, keep)
	}

	cNew, A, b := toEqualityForm(c, eq, eqRHS, ineq, ineqRHS)
	opt, xOpt, err := lp.Simplex(cNew, A, b, simplexTol, nil)
	switch err {
	case nil:
		x := make([]float64, n)
		copy(x, lower)
		for k, j := range keep {
			x[j] += xOpt[k]
		}
		obj := opt + shift
		if m.Sense == parbend.Maximize {
			obj = -obj
		}
		return &lpResult{status: parbend.StatusOptimal, obj: obj, x: x}, nil
	case lp.ErrInfeasible:
		return &lpResult{status: parbend.StatusInfeasible}, nil
	case lp.ErrUnbounded:
		dRed, rerr := unboundedRay(c, eq, ineq)
		if rerr != nil {
			return nil, rerr
		}
		ray := make([]float64, n)
		for k, j := range keep {
			ray[j] = dRed[k]
		}
		return &lpResult{status: parbend.StatusUnbounded, ray: ray}, nil
	default:
		return nil, fmt.Errorf("simplex: %w", err)
	}
}

// reduceColumns projects each dense row onto the kept column set.
func reduceColumns(rows [][]float64, keep []int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		r := make([]float64, len(keep))
		for k, j := range keep {
			r[k] = row[j]
		}
		out[i] = r
	}
	return out
}

// trivialLP handles the degenerate model with no rows at all: each
// variable sits at its lower bound unless its cost rewards growth.
func trivialLP(c, lower []float64, shift float64, sense parbend.ObjSense) (*lpResult, error) {
	for j, cj := range c {
		if cj < 0 {
			ray := make([]float64, len(c))
			ray[j] = 1
			return &lpResult{status: parbend.StatusUnbounded, ray: ray}, nil
		}
	}
	obj := shift
	if sense == parbend.Maximize {
		obj = -obj
	}
	x := make([]float64, len(c))
	copy(x, lower)
	return &lpResult{status: parbend.StatusOptimal, obj: obj, x: x}, nil
}

// unboundedRay recovers an extreme ray once the relaxation is known to
// be unbounded: a direction d >= 0 with A d = 0 for the equality rows,
// G d <= 0 for the inequality rows, normalized to c'd = -1. The
// normalization makes the certificate LP bounded and any feasible point
// of it is a valid ray.
func unboundedRay(c []float64, eq, ineq [][]float64) ([]float64, error) {
	n := len(c)
	eqRows := make([][]float64, 0, len(eq)+1)
	eqRHS := make([]float64, 0, len(eq)+1)
	for _, row := range eq {
		eqRows = append(eqRows, row)
		eqRHS = append(eqRHS, 0)
	}
	norm := make([]float64, n)
	copy(norm, c)
	eqRows = append(eqRows, norm)
	eqRHS = append(eqRHS, -1)

	ineqRHS := make([]float64, len(ineq))
	cNew, A, b := toEqualityForm(make([]float64, n), eqRows, eqRHS, ineq, ineqRHS)
	_, d, err := lp.Simplex(cNew, A, b, simplexTol, nil)
	if err != nil {
		return nil, fmt.Errorf("ray certificate: %w", err)
	}
	return d[:n], nil
}

// toEqualityForm augments the problem with one slack column per
// inequality row, yielding the pure equality standard form the simplex
// routine expects.
func toEqualityForm(c []float64, eq [][]float64, eqRHS []float64, ineq [][]float64, ineqRHS []float64) ([]float64, *mat.Dense, []float64) {
	n := len(c)
	nSlack := len(ineq)
	rows := len(eq) + nSlack
	cols := n + nSlack

	cNew := make([]float64, cols)
	copy(cNew, c)
	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for i, row := range eq {
		for j, v := range row {
			A.Set(i, j, v)
		}
		b[i] = eqRHS[i]
	}
	for k, row := range ineq {
		i := len(eq) + k
		for j, v := range row {
			A.Set(i, j, v)
		}
		A.Set(i, n+k, 1)
		b[i] = ineqRHS[k]
	}
	return cNew, A, b
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func isIntegral(v float64) bool {
	return math.Abs(v-math.Round(v)) <= feasTol
}
