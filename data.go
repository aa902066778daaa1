package parbend

import (
	"fmt"
	"math/rand"
)

// Stock facility location data: three candidate factories, five
// customers.
var (
	FacilityFixedCost = []float64{2.0, 3.0, 3.0}
	FacilityShipCost  = [][]float64{
		{2.0, 3.0, 4.0, 5.0, 7.0},
		{4.0, 3.0, 1.0, 2.0, 6.0},
		{5.0, 4.0, 2.0, 1.0, 3.0},
	}
)

// FacilityLocationModel builds the uncapacitated facility location MIP
// with one binary open/close column per factory and one continuous
// shipping column per factory/customer pair. The block assignment puts
// the open/close columns in the master and groups the shipping columns
// by customer, so each customer's demand and linking rows land in their
// own sub-block.
//
//	min  Σ_f fixed_f y_f + Σ_fj cost_fj x_fj
//	s.t. Σ_f x_fj >= 1          for every customer j
//	     y_f - x_fj >= 0        for every f, j
//	     Σ_f y_f <= F-1
func FacilityLocationModel(fixed []float64, cost [][]float64) (*Model, BlockAssignment, error) {
	nf := len(fixed)
	if nf == 0 || len(cost) != nf {
		return nil, nil, fmt.Errorf("need one cost row per factory, got %d rows for %d factories", len(cost), nf)
	}
	nc := len(cost[0])
	for f := range cost {
		if len(cost[f]) != nc {
			return nil, nil, fmt.Errorf("cost row %d has %d entries, want %d", f, len(cost[f]), nc)
		}
	}

	model := &Model{Name: fmt.Sprintf("facility_%dx%d", nf, nc), Sense: Minimize}
	assign := make(BlockAssignment, 0, nf+nf*nc)

	yIdx := make([]int32, nf)
	for f := 0; f < nf; f++ {
		yIdx[f] = int32(model.AddVar(fmt.Sprintf("open%d", f), 0, 1, fixed[f], Binary))
		assign = append(assign, MasterColumn)
	}
	xIdx := make([][]int32, nf)
	for f := 0; f < nf; f++ {
		xIdx[f] = make([]int32, nc)
		for j := 0; j < nc; j++ {
			xIdx[f][j] = int32(model.AddVar(fmt.Sprintf("ship%d_%d", f, j), 0, Infinity, cost[f][j], Continuous))
			assign = append(assign, j)
		}
	}

	for j := 0; j < nc; j++ {
		ind := make([]int32, nf)
		val := make([]float64, nf)
		for f := 0; f < nf; f++ {
			ind[f] = xIdx[f][j]
			val[f] = 1.0
		}
		model.AddRow(fmt.Sprintf("demand%d", j), ind, val, GreaterEqual, 1.0)
	}
	for f := 0; f < nf; f++ {
		for j := 0; j < nc; j++ {
			model.AddRow(fmt.Sprintf("link%d_%d", f, j), []int32{yIdx[f], xIdx[f][j]},
				[]float64{1.0, -1.0}, GreaterEqual, 0.0)
		}
	}
	ind := make([]int32, nf)
	val := make([]float64, nf)
	for f := 0; f < nf; f++ {
		ind[f] = yIdx[f]
		val[f] = 1.0
	}
	model.AddRow("capacity", ind, val, LessEqual, float64(nf-1))

	return model, assign, nil
}

// RandomFacilityData draws fixed and shipping costs for a random
// instance of the given size. Costs stay in small integer ranges so
// generated instances remain readable.
func RandomFacilityData(nf, nc int, seed int64) (fixed []float64, cost [][]float64) {
	rnd := rand.New(rand.NewSource(seed))
	fixed = make([]float64, nf)
	for f := range fixed {
		fixed[f] = float64(2 + rnd.Intn(5))
	}
	cost = make([][]float64, nf)
	for f := range cost {
		cost[f] = make([]float64, nc)
		for j := range cost[f] {
			cost[f][j] = float64(1 + rnd.Intn(9))
		}
	}
	return fixed, cost
}
