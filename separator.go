/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import (
	"fmt"
	"log"
)

// CutTolerance is the default numeric tolerance for cut violation checks
// and for dropping near-zero cut coefficients.
const CutTolerance = 1e-6

// CutSeparator separates Benders cuts for a master candidate. It is
// registered as the lazy-cut callback of the master solve and fires at
// every integer-feasible node: it re-prices all sub-block duals for the
// candidate's fixing, solves them in parallel and classifies each result
// into a feasibility cut, an optimality cut, or no cut.
type CutSeparator struct {
	Master *MasterBlock
	Blocks []*SubBlock
	Tol    float64

	// Rounds and Cuts count callback invocations and injected cuts.
	Rounds int
	Cuts   int
}

func NewCutSeparator(master *MasterBlock, blocks []*SubBlock) *CutSeparator {
	return &CutSeparator{Master: master, Blocks: blocks, Tol: CutTolerance}
}

// Separate implements LazyCutFunc for the master solve. x is the
// candidate master vector including eta values. An empty result means
// the candidate is Benders-feasible and may be accepted.
func (s *CutSeparator) Separate(x []float64, obj float64) ([]Cut, error) {
	s.Rounds++
	log.Printf("Callback invoked with obj %g. Separate Benders cuts.\n", obj)

	// Dispatch one asynchronous dual solve per block. The fixed terms of
	// a block are applied to its dual objective strictly before that
	// block's solve is issued. Presolve must stay off: a presolve that
	// proves unboundedness would not hand back the ray the feasibility
	// cut needs.
	pending := make([]SolveHandle, len(s.Blocks))
	for b, blk := range s.Blocks {
		actObj := append([]float64(nil), blk.BaseDualObj...)
		for _, ft := range blk.Fixed {
			actObj[ft.Row] -= ft.Coef * x[ft.MasterCol]
		}
		if err := blk.Handle.SetObjective(actObj); err != nil {
			s.killJoin(pending[:b])
			return nil, &SolveError{Block: b, Err: err}
		}
		if err := blk.Handle.SetParam(ParamPresolve, 0); err != nil {
			s.killJoin(pending[:b])
			return nil, &SolveError{Block: b, Err: err}
		}
		h, err := blk.Handle.SolveAsync()
		if err != nil {
			s.killJoin(pending[:b])
			return nil, &SolveError{Block: b, Err: err}
		}
		pending[b] = h
	}

	// Join all block solves. On the first hard error the remaining
	// in-flight solves are killed before the blocking joins continue, so
	// no async handle leaks on any exit path.
	results := make([]*SolveResult, len(pending))
	var firstErr error
	for b, h := range pending {
		res, err := h.Join()
		if err == nil && res.Status == StatusError {
			err = res.Err
			if err == nil {
				err = fmt.Errorf("solve failed")
			}
		}
		if err != nil && firstErr == nil {
			firstErr = &SolveError{Block: b, Err: err}
			for _, rest := range pending[b+1:] {
				rest.Kill()
			}
		}
		results[b] = res
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var cuts []Cut
	for b, blk := range s.Blocks {
		cut, err := s.classify(blk, results[b], x)
		if err != nil {
			return nil, err
		}
		if cut != nil {
			cuts = append(cuts, *cut)
			s.Cuts++
		}
	}
	if len(cuts) == 0 {
		log.Println("no cuts.")
	}
	return cuts, nil
}

// classify turns one block result into at most one cut.
//
// An unbounded dual certifies that the master's fixing makes the block
// primal infeasible; its ray yields a feasibility cut. A finite dual
// optimum above the block's eta estimate yields an optimality cut. A
// dual optimum within tolerance of eta needs no cut.
func (s *CutSeparator) classify(blk *SubBlock, res *SolveResult, x []float64) (*Cut, error) {
	switch res.Status {
	case StatusUnbounded:
		if res.Ray == nil {
			return nil, &SolveError{Block: blk.Index, Err: fmt.Errorf("unbounded dual without ray")}
		}
		log.Printf("block %d unbounded, separating feasibility cut\n", blk.Index)
		cut := s.assemble(blk, res.Ray)
		return cut, nil

	case StatusOptimal:
		eta := x[s.Master.EtaStart+blk.Index]
		if res.Obj <= eta+s.Tol {
			return nil, nil
		}
		log.Printf("block %d optimal at %g > eta %g, separating optimality cut\n",
			blk.Index, res.Obj, eta)
		cut := s.assemble(blk, res.X)
		cut.Ind = append(cut.Ind, int32(s.Master.EtaStart+blk.Index))
		cut.Val = append(cut.Val, -1.0)
		return cut, nil

	default:
		return nil, &SolveError{Block: blk.Index,
			Err: fmt.Errorf("unexpected block status %s", res.Status)}
	}
}

// assemble builds the common part of both cut kinds from a dual vector y
// (an unbounded ray or an optimal point):
//
//	sum over master columns m of coef[m]*x[m] <= rhs
//	rhs     = -sum_j y[j] * baseDualObj[j]
//	coef[m] = -sum of fixed.Coef * y[fixed.Row] over terms referencing m
//
// Coefficients below the tolerance are dropped.
func (s *CutSeparator) assemble(blk *SubBlock, y []float64) *Cut {
	rhs := 0.0
	for j, v := range y {
		rhs -= v * blk.BaseDualObj[j]
	}
	tmp := make([]float64, s.Master.Model.NumVars())
	for _, ft := range blk.Fixed {
		tmp[ft.MasterCol] -= ft.Coef * y[ft.Row]
	}
	cut := &Cut{Sense: LessEqual, RHS: rhs}
	for m, v := range tmp {
		if v > s.Tol || v < -s.Tol {
			cut.Ind = append(cut.Ind, int32(m))
			cut.Val = append(cut.Val, v)
		}
	}
	return cut
}

// killJoin cancels and drains a set of in-flight solves: kills are all
// issued first, then every handle is joined, so one slow block cannot
// delay cancellation of the others.
func (s *CutSeparator) killJoin(pending []SolveHandle) {
	for _, h := range pending {
		if h != nil {
			h.Kill()
		}
	}
	for _, h := range pending {
		if h != nil {
			h.Join()
		}
	}
}
