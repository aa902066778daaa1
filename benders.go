/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import (
	"fmt"
	"log"
	"math"
)

// BendersConfig wires a decomposition run to its solver backends.
type BendersConfig struct {
	// Connect creates the handle for each sub-block. The blocks hold the
	// dualized subproblems, so their backend must report unbounded rays.
	Connect Connector

	// MasterConnect, when set, creates the master's handle instead of
	// Connect. The master only needs lazy cut support, so it may run on
	// a different backend than the blocks.
	MasterConnect Connector

	// Transports holds one configuration per sub-block. If empty, every
	// block runs on an in-process local handle.
	Transports []TransportConfig

	// Master is the transport for the master solve; zero value means
	// local, which is the common deployment (the master runs where the
	// coordinator runs).
	Master TransportConfig

	// DumpPrefix, when nonempty, writes the decomposed master and block
	// models as JSON files with this path prefix before solving.
	DumpPrefix string
}

// BendersResult is the outcome of a decomposition run.
type BendersResult struct {
	Status  Status
	Obj     float64
	X       []float64 // primal vector in original-model indices
	MasterX []float64 // incumbent of the master block
	Rounds  int
	Cuts    int
}

// SolveBenders decomposes model along assignment, attaches one solver
// handle per sub-block plus one for the master, and drives the master's
// branch-and-cut search with Benders cut separation at every
// integer-feasible node. After convergence the original model is
// re-solved with the master's integer columns fixed to recover the full
// primal vector in original indices.
//
// Setup errors (decomposition, connection) abort the whole run: a
// deployment cannot proceed with a missing worker and there is no
// meaningful partial result.
func SolveBenders(model *Model, assignment BlockAssignment, cfg BendersConfig) (*BendersResult, error) {
	master, blocks, err := Decompose(model, assignment)
	if err != nil {
		return nil, err
	}
	if len(cfg.Transports) > 0 && len(cfg.Transports) < len(blocks) {
		return nil, fmt.Errorf("%w: %d blocks but only %d machines",
			ErrConnection, len(blocks), len(cfg.Transports))
	}

	// Connect and load every block worker. Teardown runs in reverse
	// order and goes through Disconnect, which kills and joins any solve
	// still in flight.
	connected := 0
	defer func() {
		for b := connected - 1; b >= 0; b-- {
			if err := blocks[b].Handle.Disconnect(); err != nil {
				log.Printf("block %d: disconnect: %s\n", b, err.Error())
			}
		}
	}()
	for b, blk := range blocks {
		tcfg := TransportConfig{Kind: TransportLocal}
		if len(cfg.Transports) > 0 {
			tcfg = cfg.Transports[b]
		}
		if tcfg.LogName == "" {
			tcfg.LogName = fmt.Sprintf("block%04d.log", b)
		}
		h, err := cfg.Connect(tcfg)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrConnection, b, err)
		}
		blk.Handle = h
		connected++
		if err := h.PushModel(blk.Dual); err != nil {
			return nil, fmt.Errorf("block %d: %w", b, err)
		}
		log.Printf("block %d ok.\n", b)
	}

	masterConnect := cfg.MasterConnect
	if masterConnect == nil {
		masterConnect = cfg.Connect
	}
	mh, err := masterConnect(masterTransport(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: master: %v", ErrConnection, err)
	}
	master.Handle = mh
	defer mh.Disconnect()
	if err := mh.PushModel(master.Model); err != nil {
		return nil, fmt.Errorf("master: %w", err)
	}

	if cfg.DumpPrefix != "" {
		dumpDecomposition(cfg.DumpPrefix, master, blocks)
	}

	sep := NewCutSeparator(master, blocks)
	mh.SetLazyCutFunc(sep.Separate)

	res, err := mh.Solve()
	if err != nil {
		return nil, &SolveError{Block: MasterColumn, Err: err}
	}
	out := &BendersResult{Status: res.Status, Rounds: sep.Rounds, Cuts: sep.Cuts}
	if res.Status != StatusOptimal {
		return out, nil
	}
	out.Obj = res.Obj
	out.MasterX = res.X

	x, err := Restore(model, assignment, master, res.X, cfg)
	if err != nil {
		return nil, err
	}
	out.X = x
	return out, nil
}

// masterTransport applies the documented zero-value default: an unset
// master transport means local.
func masterTransport(cfg BendersConfig) TransportConfig {
	tcfg := cfg.Master
	if tcfg.Kind == "" {
		tcfg.Kind = TransportLocal
	}
	return tcfg
}

// Restore re-solves the original model with the master's integer columns
// fixed to the incumbent, recovering the block columns' primal values in
// original-model indices.
func Restore(model *Model, assignment BlockAssignment, master *MasterBlock, masterX []float64, cfg BendersConfig) ([]float64, error) {
	fixed := model.Clone()
	fixed.Name = model.Name + "_restore"
	for j := range fixed.Vars {
		if assignment[j] != MasterColumn || fixed.Vars[j].Type == Continuous {
			continue
		}
		v := math.Floor(masterX[master.Map[j]] + 0.5)
		fixed.Vars[j].Lower = v
		fixed.Vars[j].Upper = v
	}

	connect := cfg.MasterConnect
	if connect == nil {
		connect = cfg.Connect
	}
	h, err := connect(masterTransport(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: restore: %v", ErrConnection, err)
	}
	defer h.Disconnect()
	if err := h.PushModel(fixed); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	res, err := h.Solve()
	if err != nil {
		return nil, &SolveError{Block: MasterColumn, Err: err}
	}
	if res.Status != StatusOptimal {
		return nil, &SolveError{Block: MasterColumn,
			Err: fmt.Errorf("restore solve ended %s", res.Status)}
	}
	return res.X, nil
}
