package parbend_test

import (
	"testing"
	"time"

	parbend "git.solver4all.com/azaryc2s/parbend"
	"git.solver4all.com/azaryc2s/parbend/simplex"
)

// The stock facility instance has its optimum at 16: open factories 0
// and 2 for a fixed cost of 5 and serve every customer from the cheaper
// of the two for shipping costs 2+3+2+1+3.
const facilityOpt = 16.0

func solveDirect(t *testing.T, m *parbend.Model) *parbend.SolveResult {
	t.Helper()
	h, err := simplex.Connect(parbend.TransportConfig{Kind: parbend.TransportLocal})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Disconnect()
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	res, err := h.Solve()
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestBendersMatchesDirectSolve(t *testing.T) {
	model, blocks, err := parbend.FacilityLocationModel(parbend.FacilityFixedCost, parbend.FacilityShipCost)
	if err != nil {
		t.Fatal(err)
	}

	direct := solveDirect(t, model)
	if direct.Status != parbend.StatusOptimal || !almostEqual(direct.Obj, facilityOpt, 1e-6) {
		t.Fatalf("direct solve: %s at %g", direct.Status, direct.Obj)
	}

	res, err := parbend.SolveBenders(model, blocks, parbend.BendersConfig{Connect: simplex.Connect})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != parbend.StatusOptimal {
		t.Fatalf("benders status %s", res.Status)
	}
	if !almostEqual(res.Obj, direct.Obj, 1e-6) {
		t.Fatalf("benders obj %g, direct obj %g", res.Obj, direct.Obj)
	}
	if res.Cuts == 0 {
		t.Error("no cuts were separated")
	}

	// Factories 0 and 2 open in the unique optimum.
	want := []float64{1, 0, 1}
	for f := 0; f < 3; f++ {
		if !almostEqual(res.MasterX[f], want[f], 1e-6) {
			t.Errorf("open%d = %g, want %g", f, res.MasterX[f], want[f])
		}
	}

	// The restored vector lives in original indices and must satisfy the
	// original model exactly.
	if len(res.X) != model.NumVars() {
		t.Fatalf("restored vector has %d entries, want %d", len(res.X), model.NumVars())
	}
	obj := 0.0
	for j, v := range model.Vars {
		obj += v.Obj * res.X[j]
	}
	if !almostEqual(obj, facilityOpt, 1e-6) {
		t.Errorf("restored objective %g, want %g", obj, facilityOpt)
	}
	for _, row := range model.Rows {
		lhs := 0.0
		for _, nz := range row.Coefs {
			lhs += nz.Coef * res.X[nz.Col]
		}
		switch row.Sense {
		case parbend.LessEqual:
			if lhs > row.RHS+1e-6 {
				t.Errorf("row %s violated: %g > %g", row.Name, lhs, row.RHS)
			}
		case parbend.GreaterEqual:
			if lhs < row.RHS-1e-6 {
				t.Errorf("row %s violated: %g < %g", row.Name, lhs, row.RHS)
			}
		}
	}
}

func TestStrongDuality(t *testing.T) {
	// min 2a + 3b with a+b >= 4, written in the '<=' form the
	// dualization accepts. The optimum is a=4: objective 8.
	primal := &parbend.Model{Name: "p", Sense: parbend.Minimize}
	primal.AddVar("a", 0, parbend.Infinity, 2, parbend.Continuous)
	primal.AddVar("b", 0, parbend.Infinity, 3, parbend.Continuous)
	primal.AddRow("cover", []int32{0, 1}, []float64{-1, -1}, parbend.LessEqual, -4)

	dual, err := parbend.MakeDual(primal)
	if err != nil {
		t.Fatal(err)
	}

	pres := solveDirect(t, primal)
	dres := solveDirect(t, dual)
	if pres.Status != parbend.StatusOptimal || dres.Status != parbend.StatusOptimal {
		t.Fatalf("statuses %s / %s", pres.Status, dres.Status)
	}
	if !almostEqual(pres.Obj, 8, 1e-6) {
		t.Errorf("primal optimum %g, want 8", pres.Obj)
	}
	if !almostEqual(pres.Obj, dres.Obj, 1e-6) {
		t.Errorf("duality gap: primal %g, dual %g", pres.Obj, dres.Obj)
	}
}

func TestUnboundedDualYieldsUsableRay(t *testing.T) {
	// An infeasible primal: x <= -1 with x >= 0. Its dual maximizes y
	// subject to -y <= 0 and is unbounded.
	primal := &parbend.Model{Name: "inf", Sense: parbend.Minimize}
	primal.AddVar("x", 0, parbend.Infinity, 0, parbend.Continuous)
	primal.AddRow("neg", []int32{0}, []float64{1}, parbend.LessEqual, -1)

	dual, err := parbend.MakeDual(primal)
	if err != nil {
		t.Fatal(err)
	}
	res := solveDirect(t, dual)
	if res.Status != parbend.StatusUnbounded {
		t.Fatalf("dual status %s, want UNBOUNDED", res.Status)
	}
	if len(res.Ray) != 1 || res.Ray[0] <= 0 {
		t.Fatalf("ray %v, want a positive direction", res.Ray)
	}
	// The ray must improve the dual objective: obj coef is -rhs = 1.
	if res.Ray[0]*dual.Vars[0].Obj <= 0 {
		t.Errorf("ray does not improve the objective")
	}
}

func TestRaceOnFacilityModel(t *testing.T) {
	model, _, err := parbend.FacilityLocationModel(parbend.FacilityFixedCost, parbend.FacilityShipCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := parbend.RaceConfig{
		Connect:      simplex.Connect,
		Jobs:         2,
		AbsGap:       1e-6,
		ObjDiff:      1e-9,
		PollInterval: time.Millisecond,
	}
	res, err := parbend.SolveRace(model, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(res.Obj, facilityOpt, 1e-6) {
		t.Errorf("race objective %g, want %g", res.Obj, facilityOpt)
	}
	if res.StopReason == "" {
		t.Error("no stop reason recorded")
	}
	if res.BestJob < 0 || res.X == nil {
		t.Errorf("no incumbent owner: job %d", res.BestJob)
	}
}
