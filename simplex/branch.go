package simplex

import (
	"math"
	"math/rand"
	"sync/atomic"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

type bnbNode struct {
	lower []float64
	upper []float64
	bound float64 // relaxation objective of the parent, a valid bound on the subtree
	depth int
}

// search carries the state of one branch-and-bound run. A run belongs to
// exactly one solve goroutine; only the kill flag is touched from
// outside.
type search struct {
	model *parbend.Model
	obj   []float64

	lazy parbend.LazyCutFunc
	info parbend.InfoHandler

	objDiff    float64
	heuristics bool
	bestFirst  bool
	rnd        *rand.Rand
	killed     *int32

	cuts []parbend.Cut // lazy cut pool, only ever grows

	open      []*bnbNode
	incumbent []float64
	incObj    float64
	hasInc    bool

	nodes        int
	lastPrimal   float64
	reportedOnce bool
	lastDual     float64
	hasDual      bool
}

func (s *search) run() (*parbend.SolveResult, error) {
	sense := s.model.Sense
	n := s.model.NumVars()
	root := &bnbNode{
		lower: make([]float64, n),
		upper: make([]float64, n),
		bound: -parbend.Infinity * float64(sense),
	}
	for j, v := range s.model.Vars {
		root.lower[j] = v.Lower
		root.upper[j] = v.Upper
	}
	s.open = []*bnbNode{root}

	for len(s.open) > 0 {
		if atomic.LoadInt32(s.killed) != 0 {
			return s.interrupted(), nil
		}
		s.reportDual()
		node := s.pop()
		if s.hasInc && !s.better(node.bound, s.incObj) {
			continue
		}

		res, err := s.solveNode(node)
		if err != nil {
			return nil, err
		}
		switch res.status {
		case parbend.StatusInfeasible:
			continue
		case parbend.StatusUnbounded:
			if s.hasInc {
				continue
			}
			return &parbend.SolveResult{Status: parbend.StatusUnbounded, Ray: res.ray}, nil
		}
		if s.hasInc && !s.better(res.obj, s.incObj) {
			continue
		}

		branchVar := s.pickBranchVar(res.x)
		if branchVar < 0 {
			s.accept(res.x, res.obj)
			continue
		}
		if s.heuristics {
			s.tryRounding(res.x)
		}

		// Child bounds split on the fractional value; the parent's
		// relaxation objective bounds both subtrees.
		v := res.x[branchVar]
		down := &bnbNode{lower: clone(node.lower), upper: clone(node.upper),
			bound: res.obj, depth: node.depth + 1}
		down.upper[branchVar] = math.Floor(v)
		up := &bnbNode{lower: clone(node.lower), upper: clone(node.upper),
			bound: res.obj, depth: node.depth + 1}
		up.lower[branchVar] = math.Ceil(v)
		if s.rnd.Intn(2) == 0 {
			s.open = append(s.open, down, up)
		} else {
			s.open = append(s.open, up, down)
		}
	}

	if s.hasInc {
		s.emitDual(s.incObj)
		x := clone(s.incumbent)
		return &parbend.SolveResult{Status: parbend.StatusOptimal, Obj: s.incObj, X: x}, nil
	}
	return &parbend.SolveResult{Status: parbend.StatusInfeasible}, nil
}

// solveNode resolves one node's relaxation. When the relaxation comes
// back integer feasible and a lazy cut callback is installed, the
// callback may reject the point; its cuts join the pool and the node is
// solved again until the point survives.
func (s *search) solveNode(node *bnbNode) (*lpResult, error) {
	for {
		res, err := solveRelaxation(s.model, s.obj, node.lower, node.upper, s.cuts)
		s.nodes++
		s.emit(parbend.InfoDetTime, float64(s.nodes))
		if err != nil || res.status != parbend.StatusOptimal {
			return res, err
		}
		if s.lazy == nil || s.pickBranchVar(res.x) >= 0 {
			return res, nil
		}
		cuts, err := s.lazy(res.x, res.obj)
		if err != nil {
			return nil, err
		}
		if len(cuts) == 0 {
			return res, nil
		}
		s.cuts = append(s.cuts, cuts...)
	}
}

func (s *search) pop() *bnbNode {
	best := len(s.open) - 1
	if s.bestFirst {
		for i, node := range s.open {
			if s.better(node.bound, s.open[best].bound) {
				best = i
			}
		}
	}
	node := s.open[best]
	s.open = append(s.open[:best], s.open[best+1:]...)
	return node
}

// pickBranchVar returns the integer variable whose value is most
// fractional, or -1 if the point is integer feasible. Near-ties are
// broken by the seeded generator so equally configured runs diverge.
func (s *search) pickBranchVar(x []float64) int {
	best, bestScore := -1, feasTol
	for j, v := range s.model.Vars {
		if v.Type == parbend.Continuous {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		score := frac + s.rnd.Float64()*1e-9
		if frac > feasTol && score > bestScore {
			best, bestScore = j, score
		}
	}
	return best
}

func (s *search) accept(x []float64, obj float64) {
	if s.hasInc && !s.better(obj, s.incObj) {
		return
	}
	s.incumbent = clone(x)
	s.incObj = obj
	s.hasInc = true
	if !s.reportedOnce || math.Abs(obj-s.lastPrimal) >= s.objDiff {
		s.emit(parbend.InfoNewPrimal, obj)
		s.lastPrimal = obj
		s.reportedOnce = true
	}
}

// tryRounding rounds the fractional point to the nearest integer grid
// and accepts it if it satisfies every row and every pooled cut. With a
// lazy callback installed the point must also survive separation.
func (s *search) tryRounding(x []float64) {
	cand := clone(x)
	for j, v := range s.model.Vars {
		if v.Type != parbend.Continuous {
			cand[j] = math.Round(cand[j])
			if cand[j] < v.Lower || cand[j] > v.Upper {
				return
			}
		}
	}
	if !feasible(s.model, s.cuts, cand) {
		return
	}
	obj := dot(s.model.ObjCoefs(), cand)
	if s.hasInc && !s.better(obj, s.incObj) {
		return
	}
	if s.lazy != nil {
		cuts, err := s.lazy(cand, obj)
		if err != nil || len(cuts) > 0 {
			s.cuts = append(s.cuts, cuts...)
			return
		}
	}
	s.accept(cand, obj)
}

func (s *search) interrupted() *parbend.SolveResult {
	res := &parbend.SolveResult{Status: parbend.StatusInterrupted}
	if s.hasInc {
		res.Obj = s.incObj
		res.X = clone(s.incumbent)
	}
	return res
}

// reportDual publishes the global dual bound. The optimum lies either in
// some open subtree, bounded by that node's relaxation value, or it is
// the incumbent, so the valid bound is the weakest of those.
func (s *search) reportDual() {
	if len(s.open) == 0 {
		return
	}
	bound := s.open[0].bound
	for _, node := range s.open[1:] {
		if s.better(node.bound, bound) {
			bound = node.bound
		}
	}
	if s.hasInc && s.better(s.incObj, bound) {
		bound = s.incObj
	}
	s.emitDual(bound)
}

// emitDual reports the bound only when it tightened: dual bounds move
// toward the optimum, so improvement runs opposite to the primal sense.
func (s *search) emitDual(bound float64) {
	if s.hasDual && !s.better(s.lastDual, bound) {
		return
	}
	s.lastDual, s.hasDual = bound, true
	s.emit(parbend.InfoNewDual, bound)
}

func (s *search) emit(tag parbend.InfoTag, value float64) {
	if s.info != nil {
		s.info(parbend.InfoEvent{Tag: tag, Value: value})
	}
}

func (s *search) better(a, b float64) bool {
	if s.model.Sense == parbend.Maximize {
		return a > b
	}
	return a < b
}

func feasible(m *parbend.Model, cuts []parbend.Cut, x []float64) bool {
	for _, row := range m.Rows {
		lhs := 0.0
		for _, nz := range row.Coefs {
			lhs += nz.Coef * x[nz.Col]
		}
		if !senseHolds(lhs, row.Sense, row.RHS) {
			return false
		}
	}
	for _, cut := range cuts {
		lhs := 0.0
		for k := range cut.Ind {
			lhs += cut.Val[k] * x[cut.Ind[k]]
		}
		if !senseHolds(lhs, cut.Sense, cut.RHS) {
			return false
		}
	}
	return true
}

func senseHolds(lhs float64, sense parbend.Sense, rhs float64) bool {
	switch sense {
	case parbend.LessEqual:
		return lhs <= rhs+feasTol
	case parbend.GreaterEqual:
		return lhs >= rhs-feasTol
	default:
		return math.Abs(lhs-rhs) <= feasTol
	}
}

func clone(a []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	return out
}
