package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"os"
	"strings"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

func main() {
	if len(os.Args) < 2 {
		log.Printf("No arguments passed!")
		return
	}
	dirName := os.Args[1]
	dir, err := ioutil.ReadDir(dirName)
	if err != nil {
		log.Printf("Couldn't open directory %s: %s\n", os.Args[1], err.Error())
		return
	}
	fmt.Printf("Name,Status,Time,Obj,Bound,Gap,Vars,Rows,Blocks,Cuts,StopReason,Comment\n")
	for _, f := range dir {
		fileName := dirName + "/" + f.Name()
		if !strings.Contains(fileName, ".json") {
			continue
		}
		inst, err := parbend.ReadInstance(fileName)
		if err != nil {
			log.Printf("Couldn't read %s: %s\n", f.Name(), err.Error())
			return
		}
		var sol parbend.Solution
		if inst.Solution != nil {
			sol = *inst.Solution
		}
		if err := checkSolution(inst, sol); err != nil {
			sol.Comment += fmt.Sprintf("ANALYZER: Error = %s", err.Error())
		}
		gap := 100.0 * math.Abs(sol.Obj-sol.Bound) / math.Max(math.Abs(sol.Bound), 1)
		fmt.Printf("%s,%s,%s,%g,%g,%.4f,%d,%d,%d,%d,%s,%s\n",
			inst.Name, sol.Status, sol.Time, sol.Obj, sol.Bound, gap,
			inst.Model.NumVars(), inst.Model.NumRows(), inst.Blocks.NumBlocks(),
			sol.Cuts, sol.StopReason, sol.Comment)
	}
}

// checkSolution re-evaluates the stored vector against the instance:
// every row must hold, integral columns must be integral, and the stored
// objective must match the recomputed one.
func checkSolution(inst *parbend.Instance, sol parbend.Solution) error {
	if sol.X == nil {
		return nil
	}
	m := inst.Model
	if len(sol.X) != m.NumVars() {
		return errors.New(fmt.Sprintf("Solution has %d values for %d columns!", len(sol.X), m.NumVars()))
	}
	const tol = 1e-6
	obj := 0.0
	for j, v := range m.Vars {
		x := sol.X[j]
		if x < v.Lower-tol || x > v.Upper+tol {
			return errors.New(fmt.Sprintf("Column %s = %g violates its bounds!", v.Name, x))
		}
		if v.Type != parbend.Continuous && math.Abs(x-math.Round(x)) > tol {
			return errors.New(fmt.Sprintf("Column %s = %g is not integral!", v.Name, x))
		}
		obj += v.Obj * x
	}
	for _, row := range m.Rows {
		lhs := 0.0
		for _, nz := range row.Coefs {
			lhs += nz.Coef * sol.X[nz.Col]
		}
		ok := true
		switch row.Sense {
		case parbend.LessEqual:
			ok = lhs <= row.RHS+tol
		case parbend.GreaterEqual:
			ok = lhs >= row.RHS-tol
		default:
			ok = math.Abs(lhs-row.RHS) <= tol
		}
		if !ok {
			return errors.New(fmt.Sprintf("Row %s violated: %g vs %g!", row.Name, lhs, row.RHS))
		}
	}
	if math.Abs(obj-sol.Obj) > 1e-4 {
		return errors.New(fmt.Sprintf("Stored objective %g differs from recomputed %g!", sol.Obj, obj))
	}
	return nil
}
