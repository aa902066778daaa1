/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import "fmt"

// MakeDual builds the dual of a restricted-form primal
//
//	min c'x  s.t.  Ax <= b, x >= 0
//
// which is
//
//	max -b'y  s.t.  -A'y <= c, y >= 0.
//
// Dual variable i corresponds to primal row i, dual row j to primal
// column j. Only this restricted form is supported: columns must have
// lower bound 0 and no finite upper bound, rows must be '<=' after
// normalization. The restriction is inherited from the cut-separation
// scheme, which reads feasibility cuts off rays of exactly this dual;
// it is a precondition here, not a general solver limitation.
func MakeDual(primal *Model) (*Model, error) {
	if primal.Sense != Minimize {
		return nil, fmt.Errorf("%w: dualization requires a minimizing primal", ErrRejectedModel)
	}
	for _, v := range primal.Vars {
		if v.Type != Continuous {
			return nil, fmt.Errorf("%w: column %s is not continuous", ErrRejectedModel, v.Name)
		}
		if v.Lower != 0 {
			return nil, fmt.Errorf("%w: column %s has nonzero lower bound %g",
				ErrRejectedModel, v.Name, v.Lower)
		}
		if v.Upper < Infinity {
			return nil, fmt.Errorf("%w: column %s has finite upper bound %g",
				ErrRejectedModel, v.Name, v.Upper)
		}
	}
	for _, row := range primal.Rows {
		if row.Sense != LessEqual {
			return nil, fmt.Errorf("%w: row %s is not a pure '<=' inequality",
				ErrRejectedModel, row.Name)
		}
	}

	dual := &Model{Name: primal.Name + "_dual", Sense: Maximize}
	for i, row := range primal.Rows {
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("y%d", i)
		}
		dual.AddVar(name, 0, Infinity, -row.RHS, Continuous)
	}

	// One dual row per primal column: -A' y <= c.
	cols := make([][]Nonzero, primal.NumVars())
	for i, row := range primal.Rows {
		for _, nz := range row.Coefs {
			cols[nz.Col] = append(cols[nz.Col], Nonzero{Col: i, Coef: -nz.Coef})
		}
	}
	for j, v := range primal.Vars {
		dual.Rows = append(dual.Rows, Row{
			Name:  v.Name,
			Coefs: cols[j],
			Sense: LessEqual,
			RHS:   v.Obj,
		})
	}
	return dual, nil
}
