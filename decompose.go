/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import (
	"fmt"
	"log"
)

// FixedTerm records a coefficient that was excised from a kept sub-block
// row because it references a master-owned column. Row is the local row
// index in the sub-block primal, which is also the column index of the
// corresponding variable in the sub-block dual. Coef is stored negated so
// that the dual objective adjustment is a single fused multiply per term.
type FixedTerm struct {
	Row       int     `json:"row"`
	MasterCol int     `json:"master_col"`
	Coef      float64 `json:"coef"`
}

// SubBlock is one independent block of a decomposed model. What is
// actually solved is the dual of the block's primal; cut separation needs
// the dual's extreme rays and points. The SubBlock exclusively owns its
// Handle once one is attached and must kill+join any in-flight solve
// before releasing it.
type SubBlock struct {
	Index  int
	Primal *Model
	Dual   *Model
	Fixed  []FixedTerm

	// BaseDualObj is the dual objective before any master fixing is
	// applied. Separation rounds start from a copy of it.
	BaseDualObj []float64

	// Cols and Rows map local primal indices back to the original model.
	Cols []int
	Rows []int

	Handle Handle
}

// MasterBlock holds the columns not assigned to any sub-block, the rows
// that touch only such columns, and one eta column per sub-block
// estimating that block's objective contribution.
type MasterBlock struct {
	Model *Model

	// Map maps original column indices to master-local ones, MasterColumn
	// markers excluded (-1 for columns living in a sub-block).
	Map []int

	// EtaStart is the master-local index of the first eta column; eta of
	// block b sits at EtaStart+b.
	EtaStart int

	Handle Handle
}

// Decompose splits model into a master block and assignment.NumBlocks()
// sub-blocks. Every row of the original model must, after removing
// master columns, touch at most one block; a row spanning two blocks is
// a malformed decomposition and is rejected before any remote connection
// is attempted.
func Decompose(model *Model, assignment BlockAssignment) (*MasterBlock, []*SubBlock, error) {
	if len(assignment) != model.NumVars() {
		return nil, nil, fmt.Errorf("%w: assignment covers %d of %d columns",
			ErrMalformedDecomposition, len(assignment), model.NumVars())
	}
	if err := model.Check(); err != nil {
		return nil, nil, err
	}

	nblocks := assignment.NumBlocks()
	blocks := make([]*SubBlock, nblocks)
	for b := 0; b < nblocks; b++ {
		log.Printf("Extracting block %d ...\n", b)
		blk, err := extractBlock(model, assignment, b)
		if err != nil {
			return nil, nil, err
		}
		blocks[b] = blk
	}

	master, err := extractMaster(model, assignment, blocks)
	if err != nil {
		return nil, nil, err
	}
	return master, blocks, nil
}

// extractBlock builds the primal of block number, records its fixed
// terms and dualizes it.
func extractBlock(model *Model, assignment BlockAssignment, number int) (*SubBlock, error) {
	blk := &SubBlock{Index: number}
	primal := &Model{Name: fmt.Sprintf("block%03d_primal", number), Sense: Minimize}

	// Copy the block's columns, normalizing the objective to minimize.
	// A non-continuous column inside a block cannot be handled: the
	// block is solved as an LP via its dual.
	local := make([]int, model.NumVars())
	for j := range local {
		local[j] = -1
	}
	mark := make([]bool, model.NumRows())
	for j, v := range model.Vars {
		if assignment[j] != number {
			continue
		}
		if v.Type != Continuous {
			return nil, fmt.Errorf("%w: non-continuous column %s in block %d",
				ErrRejectedModel, v.Name, number)
		}
		obj := v.Obj
		if model.Sense != Minimize {
			obj = -obj
		}
		local[j] = primal.AddVar(v.Name, v.Lower, v.Upper, obj, Continuous)
		blk.Cols = append(blk.Cols, j)
		for i := range model.Rows {
			for _, nz := range model.Rows[i].Coefs {
				if nz.Col == j {
					mark[i] = true
				}
			}
		}
	}

	// Copy every marked row, normalized to '<='. Coefficients on master
	// columns move out of the row into the fixed-term list; they become
	// right-hand-side adjustments once the master fixes its columns.
	for i := range model.Rows {
		if !mark[i] {
			continue
		}
		row := model.Rows[i]
		factor := 1.0
		sense := row.Sense
		if sense == GreaterEqual {
			factor = -1.0
			sense = LessEqual
		}

		var coefs []Nonzero
		for _, nz := range row.Coefs {
			v := factor * nz.Coef
			switch {
			case assignment[nz.Col] == number:
				coefs = append(coefs, Nonzero{Col: local[nz.Col], Coef: v})
			case assignment[nz.Col] == MasterColumn:
				blk.Fixed = append(blk.Fixed, FixedTerm{
					Row:       len(primal.Rows),
					MasterCol: nz.Col,
					Coef:      -v,
				})
			default:
				return nil, fmt.Errorf("%w: row %s spans blocks %d and %d",
					ErrMalformedDecomposition, row.Name, number, assignment[nz.Col])
			}
		}
		primal.Rows = append(primal.Rows, Row{
			Name:  row.Name,
			Coefs: coefs,
			Sense: sense,
			RHS:   factor * row.RHS,
		})
		blk.Rows = append(blk.Rows, i)
	}

	dual, err := MakeDual(primal)
	if err != nil {
		return nil, err
	}
	blk.Primal = primal
	blk.Dual = dual
	blk.BaseDualObj = dual.ObjCoefs()
	return blk, nil
}

// extractMaster builds the master block and remaps every sub-block's
// fixed-term column references from original to master-local indices.
func extractMaster(model *Model, assignment BlockAssignment, blocks []*SubBlock) (*MasterBlock, error) {
	m := &Model{Name: "master", Sense: model.Sense}
	bmap := make([]int, model.NumVars())
	mark := make([]bool, model.NumRows())

	for j, v := range model.Vars {
		if assignment[j] == MasterColumn {
			bmap[j] = m.AddVar(v.Name, v.Lower, v.Upper, v.Obj, v.Type)
			continue
		}
		bmap[j] = -1
		for i := range model.Rows {
			for _, nz := range model.Rows[i].Coefs {
				if nz.Col == j {
					mark[i] = true
				}
			}
		}
	}

	// Rows intersected by no block column belong to the master.
	for i := range model.Rows {
		if mark[i] {
			continue
		}
		row := model.Rows[i]
		coefs := make([]Nonzero, len(row.Coefs))
		for n, nz := range row.Coefs {
			coefs[n] = Nonzero{Col: bmap[nz.Col], Coef: nz.Coef}
		}
		m.Rows = append(m.Rows, Row{Name: row.Name, Coefs: coefs, Sense: row.Sense, RHS: row.RHS})
	}

	for _, blk := range blocks {
		for n := range blk.Fixed {
			blk.Fixed[n].MasterCol = bmap[blk.Fixed[n].MasterCol]
		}
	}

	// One eta column per block. The eta of a block is the master's
	// estimate of that block's objective contribution; optimality cuts
	// tighten it from below.
	etaObj := 1.0
	if model.Sense != Minimize {
		etaObj = -1.0
	}
	etaStart := m.NumVars()
	for b := range blocks {
		m.AddVar(fmt.Sprintf("_eta%d", b), 0, Infinity, etaObj, Continuous)
	}

	return &MasterBlock{Model: m, Map: bmap, EtaStart: etaStart}, nil
}
