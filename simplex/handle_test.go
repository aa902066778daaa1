package simplex

import (
	"math"
	"sync/atomic"
	"testing"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func connect(t *testing.T) parbend.Handle {
	t.Helper()
	h, err := Connect(parbend.TransportConfig{Kind: parbend.TransportLocal})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Disconnect() })
	return h
}

func solve(t *testing.T, m *parbend.Model) *parbend.SolveResult {
	t.Helper()
	h := connect(t)
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	res, err := h.Solve()
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestConnectRejectsRemoteTransports(t *testing.T) {
	for _, kind := range []string{parbend.TransportTCP, parbend.TransportMPI} {
		if _, err := Connect(parbend.TransportConfig{Kind: kind}); err == nil {
			t.Errorf("transport %q accepted", kind)
		}
	}
}

func TestSolveLP(t *testing.T) {
	// min 2a + 3b with a + b >= 4: optimum a=4, b=0.
	m := &parbend.Model{Name: "lp", Sense: parbend.Minimize}
	m.AddVar("a", 0, parbend.Infinity, 2, parbend.Continuous)
	m.AddVar("b", 0, parbend.Infinity, 3, parbend.Continuous)
	m.AddRow("cover", []int32{0, 1}, []float64{1, 1}, parbend.GreaterEqual, 4)

	res := solve(t, m)
	if res.Status != parbend.StatusOptimal {
		t.Fatalf("status %s", res.Status)
	}
	if !almostEqual(res.Obj, 8, 1e-6) {
		t.Errorf("obj %g, want 8", res.Obj)
	}
	if !almostEqual(res.X[0], 4, 1e-6) || !almostEqual(res.X[1], 0, 1e-6) {
		t.Errorf("x = %v, want [4 0]", res.X)
	}
}

func TestSolveLPMaximizeWithBounds(t *testing.T) {
	// max a + 2b with a <= 3, b in [0,2], a + b <= 4: optimum a=2, b=2.
	m := &parbend.Model{Name: "lpmax", Sense: parbend.Maximize}
	m.AddVar("a", 0, 3, 1, parbend.Continuous)
	m.AddVar("b", 0, 2, 2, parbend.Continuous)
	m.AddRow("cap", []int32{0, 1}, []float64{1, 1}, parbend.LessEqual, 4)

	res := solve(t, m)
	if res.Status != parbend.StatusOptimal || !almostEqual(res.Obj, 6, 1e-6) {
		t.Fatalf("status %s obj %g, want OPTIMAL 6", res.Status, res.Obj)
	}
}

func TestSolveLPLowerBoundShift(t *testing.T) {
	// min a with a in [2,5]: the shift must report the bound, not 0.
	m := &parbend.Model{Name: "shift", Sense: parbend.Minimize}
	m.AddVar("a", 2, 5, 1, parbend.Continuous)
	m.AddRow("r", []int32{0}, []float64{1}, parbend.LessEqual, 5)

	res := solve(t, m)
	if res.Status != parbend.StatusOptimal || !almostEqual(res.Obj, 2, 1e-6) {
		t.Fatalf("status %s obj %g, want OPTIMAL 2", res.Status, res.Obj)
	}
}

func TestSolveInfeasible(t *testing.T) {
	m := &parbend.Model{Name: "inf", Sense: parbend.Minimize}
	m.AddVar("a", 0, parbend.Infinity, 1, parbend.Continuous)
	m.AddRow("neg", []int32{0}, []float64{1}, parbend.LessEqual, -1)

	res := solve(t, m)
	if res.Status != parbend.StatusInfeasible {
		t.Fatalf("status %s, want INFEASIBLE", res.Status)
	}
}

func TestSolveUnboundedReturnsRay(t *testing.T) {
	// max y subject to -y <= 0: unbounded along +y.
	m := &parbend.Model{Name: "unb", Sense: parbend.Maximize}
	m.AddVar("y", 0, parbend.Infinity, 1, parbend.Continuous)
	m.AddRow("r", []int32{0}, []float64{-1}, parbend.LessEqual, 0)

	res := solve(t, m)
	if res.Status != parbend.StatusUnbounded {
		t.Fatalf("status %s, want UNBOUNDED", res.Status)
	}
	if len(res.Ray) != 1 || res.Ray[0] <= 1e-9 {
		t.Fatalf("ray %v, want positive direction", res.Ray)
	}
}

func TestSolveColumnOutsideEveryRow(t *testing.T) {
	// x appears in no row, so only its bounds constrain it; the solve
	// must pin it at its lower bound instead of handing the simplex
	// routine an all-zero column. Master relaxations look exactly like
	// this before the first cut arrives.
	m := &parbend.Model{Name: "loose", Sense: parbend.Minimize}
	m.AddVar("x", 2, parbend.Infinity, 1, parbend.Continuous)
	m.AddVar("y", 0, parbend.Infinity, 2, parbend.Continuous)
	m.AddRow("r", []int32{1}, []float64{1}, parbend.GreaterEqual, 1)

	res := solve(t, m)
	if res.Status != parbend.StatusOptimal || !almostEqual(res.Obj, 4, 1e-6) {
		t.Fatalf("status %s obj %g, want OPTIMAL 4", res.Status, res.Obj)
	}
	if !almostEqual(res.X[0], 2, 1e-6) || !almostEqual(res.X[1], 1, 1e-6) {
		t.Errorf("x = %v, want [2 1]", res.X)
	}
}

func TestSolveColumnOutsideEveryRowUnbounded(t *testing.T) {
	// The loose column's cost rewards unlimited growth, so the solve is
	// unbounded along that axis.
	m := &parbend.Model{Name: "looseunb", Sense: parbend.Maximize}
	m.AddVar("x", 0, parbend.Infinity, 1, parbend.Continuous)
	m.AddVar("y", 0, parbend.Infinity, 1, parbend.Continuous)
	m.AddRow("r", []int32{1}, []float64{1}, parbend.LessEqual, 1)

	res := solve(t, m)
	if res.Status != parbend.StatusUnbounded {
		t.Fatalf("status %s, want UNBOUNDED", res.Status)
	}
	if len(res.Ray) != 2 || res.Ray[0] <= 1e-9 {
		t.Fatalf("ray %v, want growth along the loose column", res.Ray)
	}
}

func TestSolveMIP(t *testing.T) {
	// max 5a + 4b + 3c with 2a + 3b + c <= 5, binary: optimum a=b=1.
	m := &parbend.Model{Name: "mip", Sense: parbend.Maximize}
	m.AddVar("a", 0, 1, 5, parbend.Binary)
	m.AddVar("b", 0, 1, 4, parbend.Binary)
	m.AddVar("c", 0, 1, 3, parbend.Binary)
	m.AddRow("w", []int32{0, 1, 2}, []float64{2, 3, 1}, parbend.LessEqual, 5)

	res := solve(t, m)
	if res.Status != parbend.StatusOptimal || !almostEqual(res.Obj, 9, 1e-6) {
		t.Fatalf("status %s obj %g, want OPTIMAL 9", res.Status, res.Obj)
	}
	want := []float64{1, 1, 0}
	for j := range want {
		if !almostEqual(res.X[j], want[j], 1e-6) {
			t.Errorf("x[%d] = %g, want %g", j, res.X[j], want[j])
		}
	}
}

func TestSetObjectiveOverride(t *testing.T) {
	m := &parbend.Model{Name: "override", Sense: parbend.Minimize}
	m.AddVar("a", 0, 4, 1, parbend.Continuous)
	m.AddVar("b", 0, 4, 1, parbend.Continuous)
	m.AddRow("cover", []int32{0, 1}, []float64{1, 1}, parbend.GreaterEqual, 4)

	h := connect(t)
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	res, err := h.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(res.Obj, 4, 1e-6) {
		t.Fatalf("base obj %g, want 4", res.Obj)
	}

	// Repricing between solves must not require a new model push.
	if err := h.SetObjective([]float64{10, 1}); err != nil {
		t.Fatal(err)
	}
	res, err = h.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(res.Obj, 4, 1e-6) || !almostEqual(res.X[1], 4, 1e-6) {
		t.Errorf("repriced solve: obj %g x %v", res.Obj, res.X)
	}

	if err := h.SetObjective([]float64{1}); err == nil {
		t.Error("short objective vector accepted")
	}
}

func TestLazyCutsRejectAndRefine(t *testing.T) {
	// min x over integers in [0,3]; the callback cuts off everything
	// below 2, so the reported optimum must be 2.
	m := &parbend.Model{Name: "lazy", Sense: parbend.Minimize}
	m.AddVar("x", 0, 3, 1, parbend.Integer)
	m.AddRow("r", []int32{0}, []float64{1}, parbend.LessEqual, 3)

	h := connect(t)
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	var calls int32
	h.SetLazyCutFunc(func(x []float64, obj float64) ([]parbend.Cut, error) {
		atomic.AddInt32(&calls, 1)
		if x[0] < 2-1e-6 {
			return []parbend.Cut{{Ind: []int32{0}, Val: []float64{1}, Sense: parbend.GreaterEqual, RHS: 2}}, nil
		}
		return nil, nil
	})
	res, err := h.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != parbend.StatusOptimal || !almostEqual(res.Obj, 2, 1e-6) {
		t.Fatalf("status %s obj %g, want OPTIMAL 2", res.Status, res.Obj)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Errorf("callback ran %d times, want at least 2", calls)
	}
}

func TestInfoEventsDuringMIPSolve(t *testing.T) {
	m := &parbend.Model{Name: "info", Sense: parbend.Maximize}
	m.AddVar("a", 0, 1, 5, parbend.Binary)
	m.AddVar("b", 0, 1, 4, parbend.Binary)
	m.AddRow("w", []int32{0, 1}, []float64{2, 3}, parbend.LessEqual, 4)

	h := connect(t)
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	var primal, dual, det int32
	h.SetInfoHandler(func(ev parbend.InfoEvent) {
		switch ev.Tag {
		case parbend.InfoNewPrimal:
			atomic.AddInt32(&primal, 1)
		case parbend.InfoNewDual:
			atomic.AddInt32(&dual, 1)
		case parbend.InfoDetTime:
			atomic.AddInt32(&det, 1)
		}
	})
	if _, err := h.Solve(); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&primal) == 0 {
		t.Error("no incumbent was reported")
	}
	if atomic.LoadInt32(&dual) == 0 {
		t.Error("no dual bound was reported")
	}
	if atomic.LoadInt32(&det) == 0 {
		t.Error("no deterministic time was reported")
	}
}

func TestKillAndJoinIdempotence(t *testing.T) {
	m := &parbend.Model{Name: "kill", Sense: parbend.Minimize}
	m.AddVar("a", 0, 1, 1, parbend.Binary)
	m.AddRow("r", []int32{0}, []float64{1}, parbend.LessEqual, 1)

	h := connect(t)
	if err := h.PushModel(m); err != nil {
		t.Fatal(err)
	}
	sh, err := h.SolveAsync()
	if err != nil {
		t.Fatal(err)
	}
	sh.Kill()
	sh.Kill()
	res1, err1 := sh.Join()
	res2, err2 := sh.Join()
	if res1 != res2 || err1 != err2 {
		t.Error("repeated joins disagree")
	}
	if res1.Status != parbend.StatusOptimal && res1.Status != parbend.StatusInterrupted {
		t.Errorf("status after kill: %s", res1.Status)
	}
	if !sh.Done() {
		t.Error("joined solve not done")
	}
}

func TestPushModelRejectsFreeVariable(t *testing.T) {
	m := &parbend.Model{Name: "free", Sense: parbend.Minimize}
	m.AddVar("a", -parbend.Infinity, parbend.Infinity, 1, parbend.Continuous)

	h := connect(t)
	if err := h.PushModel(m); err == nil {
		t.Fatal("free variable accepted")
	}
}

func TestSetParamRejectsUnknown(t *testing.T) {
	h := connect(t)
	if err := h.SetParam("NoSuchKnob", 1); err == nil {
		t.Error("unknown parameter accepted")
	}
	if err := h.SetParam(parbend.ParamSeed, 7); err != nil {
		t.Errorf("known parameter rejected: %v", err)
	}
}
