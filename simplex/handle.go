package simplex

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

// Connect creates an in-process handle. The engine runs inside the
// coordinator's process, which also covers the process transport; tcp
// and mpi need a real remote endpoint and are not served.
func Connect(cfg parbend.TransportConfig) (parbend.Handle, error) {
	switch cfg.Kind {
	case parbend.TransportLocal, parbend.TransportProcess:
	default:
		return nil, fmt.Errorf("%w: transport %q not served by the in-process engine",
			parbend.ErrConnection, cfg.Kind)
	}
	return &Handle{params: map[string]float64{}}, nil
}

// Handle is the in-process solver endpoint. One model is loaded at a
// time; parameters, objective overrides and callbacks accumulate until
// the next solve starts and are snapshotted at that point, so changing
// them mid-solve affects only later solves.
type Handle struct {
	mu     sync.Mutex
	model  *parbend.Model
	obj    []float64
	params map[string]float64
	info   parbend.InfoHandler
	lazy   parbend.LazyCutFunc
	active *SolveHandle
}

func (h *Handle) PushModel(m *parbend.Model) error {
	if err := m.Check(); err != nil {
		return err
	}
	for _, v := range m.Vars {
		if v.Lower <= -parbend.Infinity {
			return fmt.Errorf("%w: variable %s is unbounded below",
				parbend.ErrRejectedModel, v.Name)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.model = m.Clone()
	h.obj = nil
	return nil
}

func (h *Handle) SetObjective(obj []float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return fmt.Errorf("no model loaded")
	}
	if len(obj) != h.model.NumVars() {
		return fmt.Errorf("objective has %d coefficients, model has %d columns",
			len(obj), h.model.NumVars())
	}
	h.obj = clone(obj)
	return nil
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

	obj := h.obj
	if obj == nil {
		obj = h.model.ObjCoefs()
	}
	sh := &SolveHandle{done: make(chan struct{})}
	s := &search{
		model:      h.model,
		obj:        clone(obj),
		lazy:       h.lazy,
		info:       h.info,
		objDiff:    h.params[parbend.ParamObjDiff],
		heuristics: h.params[parbend.ParamHeuristics] > 0,
		bestFirst:  h.params[parbend.ParamNodeSelect] > 0,
		rnd:        rand.New(rand.NewSource(int64(h.params[parbend.ParamSeed]))),
		killed:     &sh.killed,
	}
	h.active = sh
	go func() {
		res, err := s.run()
		if err != nil {
			res = &parbend.SolveResult{Status: parbend.StatusError, Err: err}
		}
		sh.res, sh.err = res, err
		close(sh.done)
	}()
	return sh, nil
}

func (h *Handle) Disconnect() error {
	h.mu.Lock()
	active := h.active
	h.active = nil
	h.model = nil
	h.mu.Unlock()
	if active != nil && !active.Done() {
		active.Kill()
		active.Join()
	}
	return nil
}

// SolveHandle tracks one asynchronous solve. Kill is idempotent; Join
// blocks until the solve goroutine finishes and may be called any number
// of times, always returning the same result.
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
