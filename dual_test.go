package parbend

import (
	"errors"
	"testing"
)

// buildPrimal is min 2a + 3b subject to a + b <= 4, 2a - b <= 3.
func buildPrimal() *Model {
	m := &Model{Name: "p", Sense: Minimize}
	m.AddVar("a", 0, Infinity, 2, Continuous)
	m.AddVar("b", 0, Infinity, 3, Continuous)
	m.AddRow("r0", []int32{0, 1}, []float64{1, 1}, LessEqual, 4)
	m.AddRow("r1", []int32{0, 1}, []float64{2, -1}, LessEqual, 3)
	return m
}

func TestMakeDualShape(t *testing.T) {
	dual, err := MakeDual(buildPrimal())
	if err != nil {
		t.Fatal(err)
	}
	if dual.Sense != Maximize {
		t.Error("dual does not maximize")
	}
	if dual.NumVars() != 2 || dual.NumRows() != 2 {
		t.Fatalf("dual is %dx%d, want 2x2", dual.NumRows(), dual.NumVars())
	}
	// Dual objective is the negated right-hand side.
	if !almostEqual(dual.Vars[0].Obj, -4, 1e-12) || !almostEqual(dual.Vars[1].Obj, -3, 1e-12) {
		t.Errorf("dual obj = %g, %g, want -4, -3", dual.Vars[0].Obj, dual.Vars[1].Obj)
	}
	// Dual rows carry the negated transposed columns against the primal
	// costs: -y0 - 2y1 <= 2 and -y0 + y1 <= 3.
	r0 := dual.Rows[0]
	if r0.Sense != LessEqual || !almostEqual(r0.RHS, 2, 1e-12) {
		t.Errorf("dual row 0 rhs = %g sense %c", r0.RHS, r0.Sense)
	}
	if len(r0.Coefs) != 2 || !almostEqual(r0.Coefs[0].Coef, -1, 1e-12) || !almostEqual(r0.Coefs[1].Coef, -2, 1e-12) {
		t.Errorf("dual row 0 coefs = %+v", r0.Coefs)
	}
	r1 := dual.Rows[1]
	if len(r1.Coefs) != 2 || !almostEqual(r1.Coefs[0].Coef, -1, 1e-12) || !almostEqual(r1.Coefs[1].Coef, 1, 1e-12) {
		t.Errorf("dual row 1 coefs = %+v", r1.Coefs)
	}
}

func TestMakeDualRejections(t *testing.T) {
	max := buildPrimal()
	max.Sense = Maximize
	if _, err := MakeDual(max); !errors.Is(err, ErrRejectedModel) {
		t.Errorf("maximizing primal: got %v", err)
	}

	lb := buildPrimal()
	lb.Vars[0].Lower = 1
	if _, err := MakeDual(lb); !errors.Is(err, ErrRejectedModel) {
		t.Errorf("nonzero lower bound: got %v", err)
	}

	ub := buildPrimal()
	ub.Vars[1].Upper = 10
	if _, err := MakeDual(ub); !errors.Is(err, ErrRejectedModel) {
		t.Errorf("finite upper bound: got %v", err)
	}

	ge := buildPrimal()
	ge.Rows[0].Sense = GreaterEqual
	if _, err := MakeDual(ge); !errors.Is(err, ErrRejectedModel) {
		t.Errorf("'>=' row: got %v", err)
	}

	bin := buildPrimal()
	bin.Vars[0].Type = Binary
	if _, err := MakeDual(bin); !errors.Is(err, ErrRejectedModel) {
		t.Errorf("binary column: got %v", err)
	}
}
