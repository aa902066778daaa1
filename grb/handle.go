// Package grb runs solves on a local Gurobi installation. Lazy cuts are
// injected through the native callback, so the Benders master can run
// its separation inside Gurobi's branch-and-cut. The backend does not
// expose unbounded rays, which the cut separation needs from the block
// duals; block handles therefore stay on the in-process engine even
// when the master runs here.
package grb

import (
	"fmt"
	"sync"
	"sync/atomic"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
	parbend "git.solver4all.com/azaryc2s/parbend"
)

// Connect opens a Gurobi environment in this process, which also covers
// the process transport. A missing or unlicensed installation surfaces
// as a connection error.
func Connect(cfg parbend.TransportConfig) (parbend.Handle, error) {
	switch cfg.Kind {
	case parbend.TransportLocal, parbend.TransportProcess:
	default:
		return nil, fmt.Errorf("%w: transport %q not served by the gurobi engine",
			parbend.ErrConnection, cfg.Kind)
	}
	logName := cfg.LogName
	if logName == "" {
		logName = "gurobi.log"
	}
	env, err := gurobi.LoadEnv(logName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parbend.ErrConnection, err)
	}
	return &Handle{env: env, params: map[string]float64{}}, nil
}

type Handle struct {
	mu     sync.Mutex
	env    *gurobi.Env
	model  *gurobi.Model
	src    *parbend.Model
	params map[string]float64
	info   parbend.InfoHandler
	lazy   parbend.LazyCutFunc
	active *SolveHandle
}

func (h *Handle) PushModel(m *parbend.Model) error {
	if err := m.Check(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.build(m)
}

// build translates m into a fresh Gurobi model, replacing any previous
// one.
func (h *Handle) build(m *parbend.Model) error {
	model, err := h.env.NewModel(m.Name, 0, nil, nil, nil, nil, nil)
	if err != nil {
		return err
	}
	for _, v := range m.Vars {
		var vtype int8
		switch v.Type {
		case parbend.Continuous:
			vtype = gurobi.CONTINUOUS
		case parbend.Binary:
			vtype = gurobi.BINARY
		default:
			model.Free()
			return fmt.Errorf("%w: general integer column %s",
				parbend.ErrRejectedModel, v.Name)
		}
		if err := model.AddVar(nil, nil, v.Obj, v.Lower, v.Upper, vtype, v.Name); err != nil {
			model.Free()
			return err
		}
	}
	for _, row := range m.Rows {
		ind := make([]int32, len(row.Coefs))
		val := make([]float64, len(row.Coefs))
		for k, nz := range row.Coefs {
			ind[k] = int32(nz.Col)
			val[k] = nz.Coef
		}
		if err := model.AddConstr(ind, val, grbSense(row.Sense), row.RHS, row.Name); err != nil {
			model.Free()
			return err
		}
	}
	if m.Sense == parbend.Maximize {
		if err := model.SetIntAttr(gurobi.INT_ATTR_MODELSENSE, gurobi.MAXIMIZE); err != nil {
			model.Free()
			return err
		}
	}
	if h.model != nil {
		h.model.Free()
	}
	h.model = model
	h.src = m.Clone()
	return nil
}

// SetObjective rewrites the objective coefficients. The binding exposes
// no objective attribute, so the model is rebuilt with the new costs.
func (h *Handle) SetObjective(obj []float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.src == nil {
		return fmt.Errorf("no model loaded")
	}
	if len(obj) != h.src.NumVars() {
		return fmt.Errorf("objective has %d coefficients, model has %d columns",
			len(obj), h.src.NumVars())
	}
	next := h.src.Clone()
	for j := range next.Vars {
		next.Vars[j].Obj = obj[j]
	}
	return h.build(next)
}

func (h *Handle) SetParam(name string, value float64) error {
	switch name {
	case parbend.ParamPresolve, parbend.ParamSeed, parbend.ParamObjDiff,
		parbend.ParamThreads, parbend.ParamHeuristics, parbend.ParamNodeSelect,
		parbend.ParamCutPasses:
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params[name] = value
	return nil
}

func (h *Handle) SetInfoHandler(fn parbend.InfoHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info = fn
}

func (h *Handle) SetLazyCutFunc(fn parbend.LazyCutFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lazy = fn
}

// applyParams forwards the generic parameters to their Gurobi
// counterparts. Node selection and the report threshold have no native
// equivalent here and are accepted without effect.
func (h *Handle) applyParams() error {
	for name, value := range h.params {
		var grbName string
		v := int32(value)
		switch name {
		case parbend.ParamPresolve:
			grbName = "Presolve"
		case parbend.ParamSeed:
			grbName = "Seed"
		case parbend.ParamThreads:
			grbName = "Threads"
		case parbend.ParamCutPasses:
			grbName = "Cuts"
		case parbend.ParamHeuristics:
			grbName = "MIPFocus"
			if value > 0 {
				v = 1
			} else {
				v = 3
			}
		default:
			continue
		}
		if err := h.model.SetIntParam(grbName, v); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handle) Solve() (*parbend.SolveResult, error) {
	sh, err := h.SolveAsync()
	if err != nil {
		return nil, err
	}
	return sh.Join()
}

func (h *Handle) SolveAsync() (parbend.SolveHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return nil, fmt.Errorf("no model loaded")
	}
	if h.active != nil && !h.active.Done() {
		return nil, fmt.Errorf("a solve is already running")
	}
	if err := h.applyParams(); err != nil {
		return nil, err
	}

	sh := &SolveHandle{done: make(chan struct{})}
	st := &cbState{
		n:        h.src.NumVars(),
		lazy:     h.lazy,
		info:     h.info,
		objDiff:  h.params[parbend.ParamObjDiff],
		maximize: h.src.Sense == parbend.Maximize,
		killed:   &sh.killed,
	}
	if err := h.model.SetCallbackFuncGo(solveCallback, st); err != nil {
		return nil, err
	}
	if h.lazy != nil {
		if err := h.model.SetIntParam(gurobi.INT_PAR_LAZYCONSTRAINTS, 1); err != nil {
			return nil, err
		}
	}
	h.active = sh
	model := h.model
	go func() {
		res, err := runOptimize(model, st, &sh.killed)
		sh.res, sh.err = res, err
		close(sh.done)
	}()
	return sh, nil
}

func runOptimize(model *gurobi.Model, st *cbState, killed *int32) (*parbend.SolveResult, error) {
	optErr := model.Optimize()
	if st.cbErr != nil {
		return nil, st.cbErr
	}
	if atomic.LoadInt32(killed) != 0 {
		res := &parbend.SolveResult{Status: parbend.StatusInterrupted}
		if obj, err := model.GetDblAttr(gurobi.DBL_ATTR_OBJVAL); err == nil {
			res.Obj = obj
			res.X, _ = model.GetDblAttrArray(gurobi.DBL_ATTR_X, 0, int32(st.n))
		}
		return res, nil
	}
	if optErr != nil {
		return nil, optErr
	}
	status, err := model.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		return nil, err
	}
	switch status {
	case gurobi.OPTIMAL, gurobi.TIME_LIMIT:
		obj, err := model.GetDblAttr(gurobi.DBL_ATTR_OBJVAL)
		if err != nil {
			if status == gurobi.TIME_LIMIT {
				return &parbend.SolveResult{Status: parbend.StatusInterrupted}, nil
			}
			return nil, err
		}
		x, err := model.GetDblAttrArray(gurobi.DBL_ATTR_X, 0, int32(st.n))
		if err != nil {
			return nil, err
		}
		res := &parbend.SolveResult{Status: parbend.StatusOptimal, Obj: obj, X: x}
		if status == gurobi.TIME_LIMIT {
			res.Status = parbend.StatusInterrupted
		}
		if bound, err := model.GetDblAttr(gurobi.DBL_ATTR_OBJBOUND); err == nil && st.info != nil {
			st.info(parbend.InfoEvent{Tag: parbend.InfoNewDual, Value: bound})
		}
		return res, nil
	case gurobi.INF_OR_UNBD:
		return &parbend.SolveResult{Status: parbend.StatusInfeasible}, nil
	default:
		return nil, fmt.Errorf("optimization stopped with status %d", status)
	}
}

// cbState is shared between one solve goroutine and the Gurobi callback.
type cbState struct {
	n        int
	lazy     parbend.LazyCutFunc
	info     parbend.InfoHandler
	objDiff  float64
	maximize bool
	killed   *int32

	calls        int
	lastPrimal   float64
	reportedOnce bool
	cbErr        error
}

// solveCallback bridges Gurobi's callback into info events and lazy cut
// separation. A nonzero return aborts the optimization, which is how
// Kill and separation failures take effect.
func solveCallback(model *gurobi.Model, cbdata gurobi.CPVoid, where int32, usrdata interface{}) int32 {
	st := usrdata.(*cbState)
	if atomic.LoadInt32(st.killed) != 0 {
		return 1
	}
	st.calls++
	if st.info != nil {
		st.info(parbend.InfoEvent{Tag: parbend.InfoDetTime, Value: float64(st.calls)})
	}
	if where != gurobi.CB_MIPSOL {
		return 0
	}

	obj, err := gurobi.CbGetDbl(cbdata, where, gurobi.CB_MIPSOL_OBJ)
	if err != nil {
		st.cbErr = err
		return 1
	}
	var x []float64
	if st.lazy != nil {
		x, err = gurobi.CbGetDblArray(cbdata, where, gurobi.CB_MIPSOL_SOL, st.n)
		if err != nil {
			st.cbErr = err
			return 1
		}
		cuts, err := st.lazy(x, obj)
		if err != nil {
			st.cbErr = err
			return 1
		}
		for _, cut := range cuts {
			if err := gurobi.CbLazy(cbdata, len(cut.Ind), cut.Ind, cut.Val, grbSense(cut.Sense), cut.RHS); err != nil {
				st.cbErr = err
				return 1
			}
		}
		if len(cuts) > 0 {
			// The point was rejected; it is not a new incumbent.
			return 0
		}
	}
	if st.info != nil {
		improved := !st.reportedOnce
		if st.reportedOnce {
			diff := st.lastPrimal - obj
			if st.maximize {
				diff = obj - st.lastPrimal
			}
			improved = diff >= st.objDiff
		}
		if improved {
			st.info(parbend.InfoEvent{Tag: parbend.InfoNewPrimal, Value: obj})
			st.lastPrimal = obj
			st.reportedOnce = true
		}
	}
	return 0
}

func grbSense(s parbend.Sense) int8 {
	switch s {
	case parbend.GreaterEqual:
		return gurobi.GREATER_EQUAL
	case parbend.Equal:
		return gurobi.EQUAL
	default:
		return gurobi.LESS_EQUAL
	}
}

type SolveHandle struct {
	done   chan struct{}
	res    *parbend.SolveResult
	err    error
	killed int32
}

func (sh *SolveHandle) Done() bool {
	select {
	case <-sh.done:
		return true
	default:
		return false
	}
}

func (sh *SolveHandle) Join() (*parbend.SolveResult, error) {
	<-sh.done
	return sh.res, sh.err
}

func (sh *SolveHandle) Kill() {
	atomic.StoreInt32(&sh.killed, 1)
}

func (h *Handle) Disconnect() error {
	h.mu.Lock()
	active := h.active
	h.active = nil
	h.mu.Unlock()
	if active != nil && !active.Done() {
		active.Kill()
		active.Join()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	if h.env != nil {
		h.env.Free()
		h.env = nil
	}
	return nil
}
