/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

// Status is the outcome of one solve.
type Status int32

const (
	StatusOptimal Status = iota
	StatusUnbounded
	StatusInfeasible
	// StatusInterrupted marks a solve that was killed before finishing.
	// The result may still carry an incumbent.
	StatusInterrupted
	// StatusNoSolution marks a finished solve without any incumbent.
	StatusNoSolution
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusUnbounded:
		return "UNBOUNDED"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusInterrupted:
		return "INTERRUPTED"
	case StatusNoSolution:
		return "NO_SOLUTION"
	default:
		return "ERROR"
	}
}

// SolveResult is what a joined solve hands back.
type SolveResult struct {
	Status Status
	Obj    float64
	X      []float64
	// Ray is an unbounded ray, only populated for StatusUnbounded on
	// LP solves that support ray extraction.
	Ray []float64
	// Err describes the failure for StatusError.
	Err error
}

// SolveHandle tracks one asynchronous solve. Kill is best-effort and
// idempotent; a killed handle must still be joined. Join may be called
// more than once and returns the same result.
type SolveHandle interface {
	Done() bool
	Join() (*SolveResult, error)
	Kill()
}

// InfoTag enumerates the reports a running solver sends back.
type InfoTag int32

const (
	InfoNewPrimal InfoTag = iota
	InfoNewDual
	InfoDetTime
)

// InfoEvent is one progress report from a running solve. Bound events are
// rate-limited on the worker side by the ObjDiff parameter; deterministic
// time events are always forwarded.
type InfoEvent struct {
	Tag   InfoTag
	Value float64
}

// InfoHandler receives InfoEvents. It may be invoked from the solve's own
// goroutine and must be safe for concurrent use.
type InfoHandler func(InfoEvent)

// Cut is one cutting plane, as parallel index/value slices.
type Cut struct {
	Ind   []int32
	Val   []float64
	Sense Sense
	RHS   float64
}

// LazyCutFunc is invoked by a MIP solve at every integer-feasible
// candidate with the candidate vector and its objective value. Returned
// cuts are injected permanently and the candidate is rejected; returning
// no cuts accepts the candidate.
type LazyCutFunc func(x []float64, obj float64) ([]Cut, error)

// Handle is one remote or local solver engine instance.
//
// The contract mirrors the remote-object solver APIs: push a model once,
// mutate its objective cheaply between solves, solve synchronously or
// asynchronously, and tear down with Disconnect, which performs an
// implicit kill and join of any in-flight solve.
type Handle interface {
	PushModel(m *Model) error
	// SetObjective replaces the objective coefficients in place. Called
	// once per cut-separation round per sub-block, so it must not re-send
	// the model.
	SetObjective(obj []float64) error
	SetParam(name string, value float64) error
	SetInfoHandler(h InfoHandler)
	SetLazyCutFunc(f LazyCutFunc)
	Solve() (*SolveResult, error)
	SolveAsync() (SolveHandle, error)
	Disconnect() error
}

// Engine parameter names understood across backends. Backends ignore
// parameters they have no equivalent for.
const (
	ParamPresolve   = "Presolve"   // 0 disables presolve/reductions
	ParamSeed       = "Seed"       // random seed for search tie-breaking
	ParamObjDiff    = "ObjDiff"    // min delta between reported bounds
	ParamThreads    = "Threads"    // worker thread count
	ParamHeuristics = "Heuristics" // primal heuristic effort
	ParamNodeSelect = "NodeSelect" // 0 depth-first, 1 best-first
	ParamCutPasses  = "CutPasses"  // general-purpose cut effort, -1 off
)

// Transport kinds accepted by backends. Only in-process and local-fork
// style transports are implemented here; tcp and mpi configurations are
// validated syntactically and rejected at connect time.
const (
	TransportLocal   = "local"
	TransportProcess = "process"
	TransportTCP     = "tcp"
	TransportMPI     = "mpi"
)

// TransportConfig tells a backend how to reach its worker. The fields
// are transport specific and opaque to the coordinators.
type TransportConfig struct {
	Kind    string
	Machine string // process: remote host, "localhost" forks locally
	Address string // tcp: host:port
	Bin     string // process: worker binary
	Rank    int    // mpi: remote rank
	LogName string
}

// Connector turns a transport configuration into a live Handle. Each
// backend package exports one.
type Connector func(cfg TransportConfig) (Handle, error)
