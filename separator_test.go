package parbend_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	parbend "git.solver4all.com/azaryc2s/parbend"
	"git.solver4all.com/azaryc2s/parbend/scripted"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// facilitySeparator decomposes the stock facility instance and attaches
// one scripted handle per block.
func facilitySeparator(t *testing.T) (*parbend.CutSeparator, []*scripted.Handle) {
	t.Helper()
	model, blocks, err := parbend.FacilityLocationModel(parbend.FacilityFixedCost, parbend.FacilityShipCost)
	if err != nil {
		t.Fatal(err)
	}
	master, subs, err := parbend.Decompose(model, blocks)
	if err != nil {
		t.Fatal(err)
	}
	handles := make([]*scripted.Handle, len(subs))
	for b := range subs {
		handles[b] = &scripted.Handle{Name: fmt.Sprintf("block%d", b)}
		subs[b].Handle = handles[b]
	}
	return parbend.NewCutSeparator(master, subs), handles
}

func TestSeparateFeasibilityCut(t *testing.T) {
	sep, handles := facilitySeparator(t)

	// All factories closed: each block's dual is unbounded. The ray has
	// weight 1 on the demand row and on every linking row.
	ray := []float64{1, 1, 1, 1}
	for _, h := range handles {
		h.Results = []*parbend.SolveResult{{Status: parbend.StatusUnbounded, Ray: ray}}
	}
	x := make([]float64, 8)

	cuts, err := sep.Separate(x, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cuts) != 5 {
		t.Fatalf("got %d cuts, want one per block", len(cuts))
	}
	for b, cut := range cuts {
		// -y0 - y1 - y2 <= -1, i.e. at least one factory must open.
		if cut.Sense != parbend.LessEqual || !almostEqual(cut.RHS, -1, 1e-9) {
			t.Errorf("cut %d: rhs %g sense %c", b, cut.RHS, cut.Sense)
		}
		if len(cut.Ind) != 3 {
			t.Fatalf("cut %d touches %d columns, want 3", b, len(cut.Ind))
		}
		for k, ind := range cut.Ind {
			if ind != int32(k) || !almostEqual(cut.Val[k], -1, 1e-9) {
				t.Errorf("cut %d: coef %g on column %d", b, cut.Val[k], ind)
			}
		}
	}
	for b, h := range handles {
		if h.Solves != 1 {
			t.Errorf("block %d solved %d times", b, h.Solves)
		}
		if len(h.Objectives) != 1 {
			t.Fatalf("block %d got %d objectives", b, len(h.Objectives))
		}
		if h.Params[parbend.ParamPresolve] != 0 {
			t.Errorf("block %d presolve not disabled", b)
		}
	}
}

func TestSeparateOptimalityCut(t *testing.T) {
	sep, handles := facilitySeparator(t)

	// All factories open, eta still zero: every block comes back with a
	// finite dual optimum above its estimate. The dual point prices only
	// the demand row.
	for b, h := range handles {
		obj := parbend.FacilityShipCost[0][b]
		h.Results = []*parbend.SolveResult{{
			Status: parbend.StatusOptimal,
			Obj:    obj,
			X:      []float64{obj, obj, 0, 0},
		}}
	}
	x := []float64{1, 1, 1, 0, 0, 0, 0, 0}

	cuts, err := sep.Separate(x, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(cuts) != 5 {
		t.Fatalf("got %d cuts, want 5", len(cuts))
	}
	for b, cut := range cuts {
		v := parbend.FacilityShipCost[0][b]
		// -v*eta_rhs form: rhs = -beta*1, coefficients -beta on the
		// factory 0 column from the priced linking row, -1 on eta.
		if !almostEqual(cut.RHS, -v, 1e-9) {
			t.Errorf("cut %d rhs = %g, want %g", b, cut.RHS, -v)
		}
		last := len(cut.Ind) - 1
		if cut.Ind[last] != int32(3+b) || !almostEqual(cut.Val[last], -1, 1e-9) {
			t.Errorf("cut %d does not end with -1 on eta%d: %v %v", b, b, cut.Ind, cut.Val)
		}
		if cut.Ind[0] != 0 || !almostEqual(cut.Val[0], -v, 1e-9) {
			t.Errorf("cut %d coef on open0 = %v", b, cut.Val)
		}
	}
}

func TestSeparateNoCutWithinTolerance(t *testing.T) {
	sep, handles := facilitySeparator(t)
	for _, h := range handles {
		h.Results = []*parbend.SolveResult{{Status: parbend.StatusOptimal, Obj: 2, X: []float64{2, 0, 0, 0}}}
	}
	// Eta already covers every block's dual optimum.
	x := []float64{1, 1, 1, 2, 2, 2, 2, 2}

	cuts, err := sep.Separate(x, 16)
	if err != nil {
		t.Fatal(err)
	}
	if len(cuts) != 0 {
		t.Fatalf("got %d cuts, want none", len(cuts))
	}
}

func TestSeparateDispatchErrorKillsSiblings(t *testing.T) {
	sep, handles := facilitySeparator(t)
	for _, h := range handles {
		h.Results = []*parbend.SolveResult{{Status: parbend.StatusUnbounded, Ray: []float64{1, 1, 1, 1}}}
	}
	handles[2].SolveErr = errors.New("worker died")

	_, err := sep.Separate(make([]float64, 8), 0)
	var serr *parbend.SolveError
	if !errors.As(err, &serr) || serr.Block != 2 {
		t.Fatalf("got %v, want SolveError for block 2", err)
	}
	// The two solves dispatched before the failure must have been killed
	// and joined; the later blocks were never started.
	for b := 0; b < 2; b++ {
		if handles[b].Kills != 1 {
			t.Errorf("block %d killed %d times, want 1", b, handles[b].Kills)
		}
	}
	for b := 3; b < 5; b++ {
		if handles[b].Solves != 0 {
			t.Errorf("block %d was dispatched after the failure", b)
		}
	}
}

func TestSeparateMissingRayIsError(t *testing.T) {
	sep, handles := facilitySeparator(t)
	for _, h := range handles {
		h.Results = []*parbend.SolveResult{{Status: parbend.StatusUnbounded}}
	}
	_, err := sep.Separate(make([]float64, 8), 0)
	var serr *parbend.SolveError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want SolveError", err)
	}
}
