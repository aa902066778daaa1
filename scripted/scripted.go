// Package scripted provides a deterministic solver backend for tests.
// A scripted solve makes no progress on its own: every Done poll
// advances its clock by one tick and fires the info events scheduled up
// to that tick, so coordinator behavior can be pinned to exact polling
// cycles.
package scripted

import (
	"fmt"
	"sync"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

// Event schedules one info event for a given tick.
type Event struct {
	Tick int
	Info parbend.InfoEvent
}

// Handle plays a fixed script and records everything the coordinator
// does to it.
type Handle struct {
	Name   string
	Script []Event

	// FinishAt is the tick at which Done starts reporting true; a
	// negative value means the solve never finishes on its own.
	FinishAt int

	// Result is returned by Join after a natural finish. KilledResult is
	// returned when the solve was killed first; when nil, a bare
	// interrupted result is used.
	Result       *parbend.SolveResult
	KilledResult *parbend.SolveResult

	// Results, when set, is consumed one entry per SolveAsync call and
	// takes precedence over Result, for handles solved round after
	// round.
	Results []*parbend.SolveResult

	// SolveErr makes SolveAsync fail.
	SolveErr error

	mu         sync.Mutex
	info       parbend.InfoHandler
	lazy       parbend.LazyCutFunc
	Pushed     []*parbend.Model
	Objectives [][]float64
	Params     map[string]float64
	Kills      int
	KilledAt   int
	Solves     int
	Closed     bool
}

func (h *Handle) PushModel(m *parbend.Model) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Pushed = append(h.Pushed, m)
	return nil
}

func (h *Handle) SetObjective(obj []float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]float64, len(obj))
	copy(cp, obj)
	h.Objectives = append(h.Objectives, cp)
	return nil
}

func (h *Handle) SetParam(name string, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Params == nil {
		h.Params = map[string]float64{}
	}
	h.Params[name] = value
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
	for !sh.Done() {
	}
	return sh.Join()
}

func (h *Handle) SolveAsync() (parbend.SolveHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SolveErr != nil {
		return nil, h.SolveErr
	}
	res := h.Result
	if len(h.Results) > 0 {
		res = h.Results[0]
		h.Results = h.Results[1:]
	}
	h.Solves++
	return &SolveHandle{h: h, result: res}, nil
}

func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = true
	return nil
}

// SolveHandle is the scripted counterpart of an asynchronous solve.
type SolveHandle struct {
	h      *Handle
	result *parbend.SolveResult
	tick   int
	killed bool
}

// Done advances the clock one tick, fires the events due by then, and
// reports whether the scripted finish tick has been reached.
func (sh *SolveHandle) Done() bool {
	sh.tick++
	sh.h.mu.Lock()
	info := sh.h.info
	sh.h.mu.Unlock()
	for _, ev := range sh.h.Script {
		if ev.Tick == sh.tick && info != nil {
			info(ev.Info)
		}
	}
	return sh.h.FinishAt >= 0 && sh.tick >= sh.h.FinishAt
}

func (sh *SolveHandle) Join() (*parbend.SolveResult, error) {
	finished := sh.h.FinishAt >= 0 && sh.tick >= sh.h.FinishAt
	if sh.killed && !finished {
		if sh.h.KilledResult != nil {
			return sh.h.KilledResult, nil
		}
		return &parbend.SolveResult{Status: parbend.StatusInterrupted}, nil
	}
	if sh.result == nil {
		return &parbend.SolveResult{Status: parbend.StatusOptimal}, nil
	}
	return sh.result, nil
}

func (sh *SolveHandle) Kill() {
	if sh.killed {
		return
	}
	sh.killed = true
	sh.h.mu.Lock()
	sh.h.Kills++
	sh.h.KilledAt = sh.tick
	sh.h.mu.Unlock()
}

// Connector hands out the given handles in order, one per Connect call.
func Connector(handles ...*Handle) parbend.Connector {
	i := 0
	return func(cfg parbend.TransportConfig) (parbend.Handle, error) {
		if i >= len(handles) {
			return nil, fmt.Errorf("no scripted handle left for connect %d", i)
		}
		h := handles[i]
		i++
		return h, nil
	}
}
